package delegate

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/domain"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/prompts"
)

// contextTimeout bounds the optional code-context command. Context
// enrichment is never allowed to stall a dispatch.
const contextTimeout = 15 * time.Second

// BuildPrompt assembles the enhanced prompt handed to the tool: the raw
// task description, the project name and path, an optional context snippet,
// and the closing instruction block from the template.
func BuildPrompt(loader *prompts.Loader, taskDescription, projectPath, contextSnippet string) string {
	prompt, err := loader.BuildTaskPrompt(prompts.TaskData{
		TaskDescription: taskDescription,
		ProjectName:     filepath.Base(projectPath),
		ProjectPath:     projectPath,
		ContextSnippet:  contextSnippet,
	})
	if err != nil {
		// A broken override must not block the dispatch; fall back to the
		// bare description.
		return taskDescription
	}
	return prompt
}

// GatherContext runs the configured context command with {task} substituted
// and returns its output. Best effort: any failure yields an empty snippet.
func GatherContext(contextCommand, taskDescription, projectPath string) string {
	if contextCommand == "" {
		return ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), contextTimeout)
	defer cancel()

	line := strings.ReplaceAll(contextCommand, "{task}", taskDescription)
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", line)
	cmd.Dir = projectPath
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// Trailer is the block appended to a task log once the task reaches a
// terminal state, so the transcript alone tells how the run ended.
func Trailer(task *domain.DelegationTask) string {
	exit := "none"
	if task.ExitCode != nil {
		exit = fmt.Sprintf("%d", *task.ExitCode)
	}
	completed := "unknown"
	if task.CompletedAt != nil {
		completed = task.CompletedAt.Format("2006-01-02 15:04:05")
	}
	return fmt.Sprintf("\n=== TASK %s: exit %s at %s ===\n", strings.ToUpper(string(task.Status)), exit, completed)
}
