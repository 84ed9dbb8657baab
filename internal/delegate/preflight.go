package delegate

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/config"
)

// authPattern matches the authentication-failure vocabulary AI CLIs print
// when their credentials are missing or expired. Pure output matching is
// all the wrapped tools offer; there is no structured signal.
var authPattern = regexp.MustCompile(`(?i)\b(?:login|authenticate|sign in|authorization|credentials|token expired|unauthorized|api key)\b`)

var (
	// ErrCLINotFound means the tool binary is not on PATH.
	ErrCLINotFound = errors.New("cli not found")
	// ErrAuthRequired means the tool's output matched the authentication
	// vocabulary.
	ErrAuthRequired = errors.New("authentication required")
)

// ContainsAuthFailure reports whether tool output matches the
// authentication-failure vocabulary.
func ContainsAuthFailure(output string) bool {
	return authPattern.MatchString(output)
}

// Preflight probes a tool before real work is dispatched: it verifies the
// binary exists, then runs it with a trivial prompt under the timeout and
// scans the output for authentication failures. A probe that merely times
// out or exits nonzero without matching the vocabulary passes; only a
// missing binary or a matched auth phrase blocks dispatch.
func Preflight(tool config.ToolConfig, prompt string, timeout time.Duration) error {
	if _, err := exec.LookPath(tool.Bin); err != nil {
		return fmt.Errorf("%s: %w", tool.Bin, ErrCLINotFound)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	args := append([]string{}, tool.Args...)
	if tool.PromptMode == "arg" {
		args = append(args, prompt)
	}
	cmd := exec.CommandContext(ctx, tool.Bin, args...)
	if tool.PromptMode != "arg" {
		cmd.Stdin = strings.NewReader(prompt)
	}

	out, _ := cmd.CombinedOutput() // Exit status is irrelevant, only the output matters
	if ContainsAuthFailure(string(out)) {
		return fmt.Errorf("%s: %w", tool.Bin, ErrAuthRequired)
	}
	return nil
}
