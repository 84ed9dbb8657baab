package main

import (
	"os"

	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/config"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/logstore"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/procfile"
)

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

// resolveProject picks the project a command operates on when no --project
// flag was given: the DEV_ORCH_PROJECT environment variable wins, then the
// working directory's process definition file, then the git toplevel name,
// then the directory name itself.
func resolveProject(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	if env := os.Getenv("DEV_ORCH_PROJECT"); env != "" {
		return env, nil
	}
	if pf, err := procfile.Load(cwd); err == nil && pf != nil && pf.Project != "" {
		return pf.Project, nil
	}
	return logstore.ResolveProject(cwd), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
