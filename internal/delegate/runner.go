package delegate

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/config"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/domain"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/logstore"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/notify"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/prompts"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/statusstore"
)

// Recorder persists finished delegations for the history command.
type Recorder interface {
	RecordDelegation(task *domain.DelegationTask) error
}

// Request describes one delegation as the operator asked for it.
type Request struct {
	AIName          string `json:"ai_name"`
	TaskDescription string `json:"task_description"`
	ProjectPath     string `json:"project_path"`
	Branch          bool   `json:"branch"`
	BranchName      string `json:"branch_name,omitempty"`
	Visible         bool   `json:"visible,omitempty"`
	Sync            bool   `json:"sync,omitempty"`
}

// Runner executes a delegated task against a project checkout and owns the
// task's status record for the duration of the run.
type Runner struct {
	Logs     *logstore.Store
	Status   *statusstore.Store
	Config   config.DelegateConfig
	Loader   *prompts.Loader
	Notifier notify.Notifier
	Recorder Recorder
	Output   io.Writer
}

func (r *Runner) printf(format string, args ...interface{}) {
	if r.Output != nil {
		fmt.Fprintf(r.Output, format, args...)
	}
}

// Execute runs a dispatched task to its terminal state: optional branch
// isolation, prompt construction, tool invocation with output captured to
// the task log, the post-run authentication scan, and the final atomic
// status write. The task must already carry a running status record.
func (r *Runner) Execute(task *domain.DelegationTask, req Request) {
	project := filepath.Base(req.ProjectPath)
	if err := os.MkdirAll(r.Logs.TaskLogDir(project), 0755); err != nil {
		r.finalize(task, domain.StatusFailed, fmt.Sprintf("creating task log dir: %v", err))
		return
	}
	task.LogPath = filepath.Join(r.Logs.TaskLogDir(project), task.TaskID+".log")

	logFile, err := os.Create(task.LogPath)
	if err != nil {
		r.finalize(task, domain.StatusFailed, fmt.Sprintf("creating task log: %v", err))
		return
	}
	defer logFile.Close()

	if req.Branch {
		if !r.isolate(task, req, logFile) {
			return
		}
	}

	snippet := GatherContext(r.Config.ContextCommand, req.TaskDescription, req.ProjectPath)
	prompt := BuildPrompt(r.Loader, req.TaskDescription, req.ProjectPath, snippet)

	exit := r.invoke(task, prompt, logFile)
	task.ExitCode = &exit

	// Authentication failures take precedence over the exit code: partial
	// output before an auth prompt can look exit-code-clean.
	output, _ := os.ReadFile(task.LogPath)
	switch {
	case ContainsAuthFailure(string(output)):
		r.finalize(task, domain.StatusAuthRequired, domain.ErrAuthDuringExecution)
	case exit == 0:
		r.finalize(task, domain.StatusCompleted, "")
	default:
		r.finalize(task, domain.StatusFailed, "")
	}
}

// isolate runs the branch-isolation step. On a non-git project it logs a
// warning and lets execution proceed unisolated; a failed branch creation
// is terminal for the task. Returns whether execution should continue.
func (r *Runner) isolate(task *domain.DelegationTask, req Request, logFile *os.File) bool {
	if !IsGitRepo(req.ProjectPath) {
		r.printf("warning: %s is not a git repository, running without branch isolation\n", req.ProjectPath)
		fmt.Fprintf(logFile, "=== WARNING: not a git repository, branch isolation skipped ===\n")
		return true
	}

	original, err := CurrentBranch(req.ProjectPath)
	if err != nil {
		r.printf("warning: could not determine current branch: %v\n", err)
	} else {
		task.OriginalBranch = original
	}

	StashChanges(req.ProjectPath, task.TaskID)

	name := req.BranchName
	if name == "" {
		name = BranchName(req.AIName, req.TaskDescription, task.StartedAt)
	}
	if err := CreateBranch(req.ProjectPath, name); err != nil {
		fmt.Fprintf(logFile, "=== ERROR: branch creation failed: %v ===\n", err)
		r.finalize(task, domain.StatusBranchCreationFailed, domain.ErrBranchCreation)
		return false
	}
	task.BranchName = name

	// Record the branch on the running record so pollers see it early.
	if err := r.Status.Write(task); err != nil {
		r.printf("warning: updating status record: %v\n", err)
	}
	return true
}

// invoke runs the AI tool with the prompt, combined output appended to the
// task log, and returns the exit code.
func (r *Runner) invoke(task *domain.DelegationTask, prompt string, logFile *os.File) int {
	tool := r.Config.Tool(task.AIName)

	args := append([]string{}, tool.Args...)
	if tool.PromptMode == "arg" {
		args = append(args, prompt)
	}
	cmd := exec.Command(tool.Bin, args...)
	cmd.Dir = task.ProjectPath
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if tool.PromptMode != "arg" {
		cmd.Stdin = strings.NewReader(prompt)
	}

	err := cmd.Run()
	return exitCode(err)
}

// finalize moves the task to a terminal state: commit accounting when a
// branch was used, the atomic status rewrite, the log trailer, and the
// completion notification. Every terminal path funnels through here so the
// durable record is always written before the runner returns.
func (r *Runner) finalize(task *domain.DelegationTask, status domain.TaskStatus, errCode string) {
	now := time.Now()
	task.Status = status
	task.CompletedAt = &now
	task.Error = errCode

	if task.BranchName != "" && task.OriginalBranch != "" {
		task.CommitsMade = CommitCount(task.ProjectPath, task.OriginalBranch, task.BranchName)
		task.FilesChanged = FilesChanged(task.ProjectPath, task.OriginalBranch, task.BranchName)
	}

	if err := r.Status.Write(task); err != nil {
		r.printf("error: writing final status for %s: %v\n", task.TaskID, err)
	}

	if task.LogPath != "" {
		if f, err := os.OpenFile(task.LogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
			f.WriteString(Trailer(task))
			f.Close()
		}
	}

	if r.Recorder != nil {
		if err := r.Recorder.RecordDelegation(task); err != nil {
			r.printf("warning: recording delegation history: %v\n", err)
		}
	}

	r.notifyDone(task)
}

func (r *Runner) notifyDone(task *domain.DelegationTask) {
	if r.Notifier == nil {
		return
	}

	kind := notify.NotifySuccess
	message := fmt.Sprintf("%s finished %q", task.AIName, task.TaskDescription)
	switch task.Status {
	case domain.StatusFailed:
		kind = notify.NotifyError
		message = fmt.Sprintf("%s failed %q", task.AIName, task.TaskDescription)
	case domain.StatusBranchCreationFailed:
		kind = notify.NotifyError
		message = fmt.Sprintf("%s could not create an isolation branch for %q", task.AIName, task.TaskDescription)
	case domain.StatusAuthRequired:
		kind = notify.NotifyWarning
		message = fmt.Sprintf("%s needs a manual login before it can run tasks", task.AIName)
	}

	err := r.Notifier.Send(notify.Notification{
		Title:   "Task delegation",
		Message: message,
		Type:    kind,
		TaskID:  task.TaskID,
	})
	if err != nil {
		r.printf("warning: sending notification: %v\n", err)
	}
}

// exitCode maps a Run error to the tool's exit code.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
		return exitErr.ExitCode()
	}
	return 1
}
