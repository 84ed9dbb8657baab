package delegate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/domain"
)

var taskIDPattern = regexp.MustCompile(`^fake-ai_\d{8}_\d{6}_\d+$`)

func testDispatcher(t *testing.T, toolScript string) (*Dispatcher, *captureNotifier) {
	t.Helper()
	runner, notifier := testRunner(t, toolScript)
	return &Dispatcher{Runner: runner}, notifier
}

func dispatchRequest(t *testing.T) Request {
	t.Helper()
	return Request{
		AIName:          "fake-ai",
		TaskDescription: "Refactor the config loader",
		ProjectPath:     t.TempDir(),
	}
}

func TestDispatch_SyncRunsToCompletion(t *testing.T) {
	d, _ := testDispatcher(t, `cat >/dev/null; echo done`)
	req := dispatchRequest(t)
	req.Sync = true

	handle, err := d.Dispatch(req)
	if err != nil {
		t.Fatal(err)
	}

	if !taskIDPattern.MatchString(handle.TaskID) {
		t.Errorf("task ID %q does not match ai_YYYYMMDD_HHMMSS_pid", handle.TaskID)
	}
	if handle.Status != domain.StatusCompleted {
		t.Errorf("handle status = %q, want completed", handle.Status)
	}
	if handle.StatusPath == "" {
		t.Fatal("handle has no status path")
	}
	if _, err := os.Stat(handle.StatusPath); err != nil {
		t.Errorf("status file missing: %v", err)
	}

	record, err := d.Runner.Status.Read(handle.TaskID)
	if err != nil {
		t.Fatal(err)
	}
	if record.Status != domain.StatusCompleted {
		t.Errorf("record status = %q, want completed", record.Status)
	}
}

func TestDispatch_CLINotFound(t *testing.T) {
	d, _ := testDispatcher(t, `cat >/dev/null; echo done`)
	d.Runner.Config.Tools["ghost-ai"] = d.Runner.Config.Tools["fake-ai"]
	ghost := d.Runner.Config.Tools["ghost-ai"]
	ghost.Bin = "definitely-not-a-real-tool-xyz"
	d.Runner.Config.Tools["ghost-ai"] = ghost

	req := dispatchRequest(t)
	req.AIName = "ghost-ai"

	handle, err := d.Dispatch(req)
	if err != nil {
		t.Fatal(err)
	}

	if handle.Status != domain.StatusFailed {
		t.Errorf("handle status = %q, want failed", handle.Status)
	}
	if handle.Error != domain.ErrCLINotFound {
		t.Errorf("handle error = %q, want %q", handle.Error, domain.ErrCLINotFound)
	}
	if handle.LogPath != "" {
		t.Errorf("log path = %q, want none before execution starts", handle.LogPath)
	}

	record, err := d.Runner.Status.Read(handle.TaskID)
	if err != nil {
		t.Fatal(err)
	}
	if record.Status != domain.StatusFailed || record.Error != domain.ErrCLINotFound {
		t.Errorf("record = %q/%q, want failed/cli_not_found", record.Status, record.Error)
	}
	if record.BranchName != "" {
		t.Errorf("branch = %q, want none for a task that never started", record.BranchName)
	}
}

func TestDispatch_AuthRequiredPreflight(t *testing.T) {
	d, _ := testDispatcher(t, `cat >/dev/null; echo "Please login to continue"`)

	handle, err := d.Dispatch(dispatchRequest(t))
	if err != nil {
		t.Fatal(err)
	}

	if handle.Status != domain.StatusAuthRequired {
		t.Errorf("handle status = %q, want auth_required", handle.Status)
	}
	if handle.Error != domain.ErrAuthPreflight {
		t.Errorf("handle error = %q, want %q", handle.Error, domain.ErrAuthPreflight)
	}

	record, err := d.Runner.Status.Read(handle.TaskID)
	if err != nil {
		t.Fatal(err)
	}
	if record.Status != domain.StatusAuthRequired {
		t.Errorf("record status = %q, want auth_required", record.Status)
	}
	if record.LogPath != "" {
		t.Errorf("log path = %q, want none, preflight must not leave work artifacts", record.LogPath)
	}
}

func TestDispatch_RunningObservableBeforeTerminal(t *testing.T) {
	d, _ := testDispatcher(t, `cat >/dev/null; sleep 0.3; echo done`)
	req := dispatchRequest(t)
	req.Sync = true

	type seen struct {
		running  bool
		terminal domain.TaskStatus
	}
	observed := make(chan seen, 1)
	statusDir := d.Runner.Status.Dir()

	go func() {
		var s seen
		deadline := time.Now().Add(10 * time.Second)
		for time.Now().Before(deadline) {
			entries, _ := os.ReadDir(statusDir)
			for _, e := range entries {
				if !strings.HasSuffix(e.Name(), ".status") {
					continue
				}
				record, err := d.Runner.Status.Read(strings.TrimSuffix(e.Name(), ".status"))
				if err != nil {
					continue
				}
				if record.Status == domain.StatusRunning {
					s.running = true
				} else if record.Status.IsTerminal() {
					s.terminal = record.Status
					observed <- s
					return
				}
			}
			time.Sleep(5 * time.Millisecond)
		}
		observed <- s
	}()

	if _, err := d.Dispatch(req); err != nil {
		t.Fatal(err)
	}

	s := <-observed
	if !s.running {
		t.Error("poller never observed the running state")
	}
	if s.terminal != domain.StatusCompleted {
		t.Errorf("poller observed terminal %q, want completed", s.terminal)
	}
}

func TestDispatch_ValidatesRequest(t *testing.T) {
	d, _ := testDispatcher(t, `cat >/dev/null; echo done`)

	if _, err := d.Dispatch(Request{TaskDescription: "x", ProjectPath: t.TempDir()}); err == nil {
		t.Error("dispatch without AI name succeeded")
	}
	if _, err := d.Dispatch(Request{AIName: "fake-ai", ProjectPath: t.TempDir()}); err == nil {
		t.Error("dispatch without task description succeeded")
	}
	if _, err := d.Dispatch(Request{AIName: "fake-ai", TaskDescription: "x", ProjectPath: "/no/such/dir"}); err == nil {
		t.Error("dispatch to a missing project path succeeded")
	}
}

func TestDispatch_VisiblePaneCommand(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "pane-ran")
	d, _ := testDispatcher(t, `cat >/dev/null; echo done`)
	d.Runner.Config.PaneCommand = "touch " + marker + " # {cmd}"

	req := dispatchRequest(t)
	req.Visible = true

	handle, err := d.Dispatch(req)
	if err != nil {
		t.Fatal(err)
	}
	if handle.Status != domain.StatusRunning {
		t.Errorf("handle status = %q, want running right after pane launch", handle.Status)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(marker); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("pane command never ran")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// The pane gets the delegation handed over via the payload file
	payload, err := ReadPayload(d.payloadPath(handle.TaskID))
	if err != nil {
		t.Fatal(err)
	}
	if payload.Task.TaskID != handle.TaskID {
		t.Errorf("payload task = %q, want %q", payload.Task.TaskID, handle.TaskID)
	}
	if payload.Request.TaskDescription != req.TaskDescription {
		t.Errorf("payload request description = %q, want %q", payload.Request.TaskDescription, req.TaskDescription)
	}
}

func TestDispatch_VisibleSkipsAuthProbe(t *testing.T) {
	// The tool demands a login; an interactive pane is exactly where that
	// belongs, so the dispatch must not be blocked
	d, _ := testDispatcher(t, `cat >/dev/null; echo "Please login to continue"`)
	d.Runner.Config.PaneCommand = "true # {cmd}"

	req := dispatchRequest(t)
	req.Visible = true

	handle, err := d.Dispatch(req)
	if err != nil {
		t.Fatal(err)
	}
	if handle.Status != domain.StatusRunning {
		t.Errorf("handle status = %q, want running", handle.Status)
	}
}

func TestReadPayload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "task.dispatch")

	task := makeTask(t, dir)
	data, err := json.Marshal(Payload{Task: task, Request: requestFor(task, true)})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	payload, err := ReadPayload(path)
	if err != nil {
		t.Fatal(err)
	}
	if payload.Task.TaskID != task.TaskID {
		t.Errorf("task ID = %q, want %q", payload.Task.TaskID, task.TaskID)
	}
	if !payload.Request.Branch {
		t.Error("request branch flag lost in round trip")
	}

	// Payloads are single use
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("payload file still exists after read")
	}

	if _, err := ReadPayload(path); err == nil {
		t.Error("reading a consumed payload succeeded")
	}
}
