package logstore

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ResolveProject determines the project name for a working directory.
// Precedence: DEV_ORCH_PROJECT environment override, then the basename of
// the enclosing git repository, then the basename of the directory itself.
func ResolveProject(cwd string) string {
	if p := os.Getenv("DEV_ORCH_PROJECT"); p != "" {
		return p
	}

	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = cwd
	if out, err := cmd.Output(); err == nil {
		top := strings.TrimSpace(string(out))
		if top != "" {
			return filepath.Base(top)
		}
	}

	return filepath.Base(cwd)
}
