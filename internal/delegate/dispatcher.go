package delegate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/domain"
)

// Handle is what a dispatch returns to the caller: enough to poll the
// status record and find the transcript.
type Handle struct {
	TaskID     string            `json:"task_id"`
	Status     domain.TaskStatus `json:"status"`
	Branch     string            `json:"branch,omitempty"`
	Error      string            `json:"error,omitempty"`
	StatusPath string            `json:"status_path"`
	LogPath    string            `json:"log_path,omitempty"`
}

// Payload carries a dispatched task across the parent/child process
// boundary for detached execution.
type Payload struct {
	Task    *domain.DelegationTask `json:"task"`
	Request Request                `json:"request"`
}

// Dispatcher is the public delegation entry point: it generates the task
// ID, writes the initial running record, runs the preflight probe, and
// hands the task to the chosen execution strategy.
type Dispatcher struct {
	Runner *Runner
}

// Dispatch starts a delegation and returns its handle. Background and
// visible strategies return as soon as the detached work is spawned; the
// synchronous strategy blocks until the task is terminal.
func (d *Dispatcher) Dispatch(req Request) (Handle, error) {
	if req.AIName == "" || req.TaskDescription == "" || req.ProjectPath == "" {
		return Handle{}, fmt.Errorf("ai name, task description and project path are required")
	}
	if abs, err := filepath.Abs(req.ProjectPath); err == nil {
		req.ProjectPath = abs
	}
	if fi, err := os.Stat(req.ProjectPath); err != nil || !fi.IsDir() {
		return Handle{}, fmt.Errorf("project path %s is not a directory", req.ProjectPath)
	}

	now := time.Now()
	task := &domain.DelegationTask{
		TaskID:          domain.NewTaskID(req.AIName, now, os.Getpid()),
		AIName:          req.AIName,
		Status:          domain.StatusRunning,
		TaskDescription: req.TaskDescription,
		ProjectPath:     req.ProjectPath,
		StartedAt:       now,
	}

	// The running record goes down first, so no poller can ever observe a
	// terminal state without running having been in the file's history.
	if err := d.Runner.Status.Write(task); err != nil {
		return Handle{}, fmt.Errorf("writing status record: %w", err)
	}

	visible := !req.Sync && (req.Visible || d.Runner.Config.VisibleDefault)
	if err := d.preflight(task, req, visible); err != nil {
		return d.handle(task), nil
	}

	switch {
	case req.Sync:
		d.Runner.Execute(task, req)
	case visible:
		if err := d.visible(task, req); err != nil {
			d.Runner.finalize(task, domain.StatusFailed, "dispatch_failed")
			return d.handle(task), fmt.Errorf("launching visible pane: %w", err)
		}
	default:
		if err := d.background(task, req); err != nil {
			d.Runner.finalize(task, domain.StatusFailed, "dispatch_failed")
			return d.handle(task), fmt.Errorf("detaching background task: %w", err)
		}
	}
	return d.handle(task), nil
}

// preflight verifies the tool can run before any work or side effect. For
// visible panes only the binary check applies; an interactive session is
// exactly where a login prompt belongs.
func (d *Dispatcher) preflight(task *domain.DelegationTask, req Request, visible bool) error {
	tool := d.Runner.Config.Tool(req.AIName)

	if visible {
		if _, err := exec.LookPath(tool.Bin); err != nil {
			d.Runner.finalize(task, domain.StatusFailed, domain.ErrCLINotFound)
			return err
		}
		return nil
	}

	prompt, err := d.Runner.Loader.PreflightPrompt()
	if err != nil {
		prompt = "Reply with the single word OK and exit."
	}

	err = Preflight(tool, prompt, d.Runner.Config.PreflightTimeout)
	switch {
	case errors.Is(err, ErrCLINotFound):
		d.Runner.finalize(task, domain.StatusFailed, domain.ErrCLINotFound)
		return err
	case errors.Is(err, ErrAuthRequired):
		d.Runner.finalize(task, domain.StatusAuthRequired, domain.ErrAuthPreflight)
		return err
	}
	return nil
}

// background re-executes this binary as a detached session leader running
// the hidden delegate-exec command. The status record is the only link
// between the two processes; the parent never waits.
func (d *Dispatcher) background(task *domain.DelegationTask, req Request) error {
	payloadPath, err := d.writePayload(task, req)
	if err != nil {
		return err
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating executable: %w", err)
	}

	cmd := exec.Command(exe, "delegate-exec", payloadPath)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

// visible substitutes the delegate-exec command line into the configured
// pane command. Without a pane command it degrades to background with a
// warning.
func (d *Dispatcher) visible(task *domain.DelegationTask, req Request) error {
	if d.Runner.Config.PaneCommand == "" {
		d.Runner.printf("warning: no pane command configured, running task %s in background\n", task.TaskID)
		return d.background(task, req)
	}

	payloadPath, err := d.writePayload(task, req)
	if err != nil {
		return err
	}
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating executable: %w", err)
	}

	line := strings.ReplaceAll(d.Runner.Config.PaneCommand, "{cmd}", fmt.Sprintf("%s delegate-exec %s", exe, payloadPath))
	cmd := exec.Command("/bin/sh", "-c", line)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

func (d *Dispatcher) writePayload(task *domain.DelegationTask, req Request) (string, error) {
	data, err := json.Marshal(Payload{Task: task, Request: req})
	if err != nil {
		return "", err
	}
	path := d.payloadPath(task.TaskID)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing dispatch payload: %w", err)
	}
	return path, nil
}

func (d *Dispatcher) payloadPath(taskID string) string {
	return strings.TrimSuffix(d.Runner.Status.Path(taskID), ".status") + ".dispatch"
}

func (d *Dispatcher) handle(task *domain.DelegationTask) Handle {
	return Handle{
		TaskID:     task.TaskID,
		Status:     task.Status,
		Branch:     task.BranchName,
		Error:      task.Error,
		StatusPath: d.Runner.Status.Path(task.TaskID),
		LogPath:    task.LogPath,
	}
}

// ReadPayload loads a dispatch payload and removes the file; the payload
// is single use.
func ReadPayload(path string) (*Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dispatch payload: %w", err)
	}
	os.Remove(path) // Ignore error

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing dispatch payload: %w", err)
	}
	if p.Task == nil {
		return nil, fmt.Errorf("dispatch payload %s has no task", path)
	}
	return &p, nil
}
