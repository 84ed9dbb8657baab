package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/domain"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/logquery"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/logstore"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/statusstore"
)

func testModel(t *testing.T) Model {
	t.Helper()
	logs := logstore.New(t.TempDir())
	return NewModel(Config{
		Project: "myproj",
		Query:   logquery.New(logs),
		Status:  statusstore.New(logs.StatusDir()),
	})
}

func testSummaries() []domain.ProcessSummary {
	return []domain.ProcessSummary{
		{Name: "api", Running: true, ErrorCount: 2, LastLine: "listening on :8080", SizeBytes: 4096},
		{Name: "web", Running: false, LastLine: "exited", SizeBytes: 1024},
		{Name: "worker", Running: true, LastLine: "polling", SizeBytes: 2048},
	}
}

func testTasks() []*domain.DelegationTask {
	done := time.Now().Add(-time.Minute)
	return []*domain.DelegationTask{
		{TaskID: "claude_20260101_120000_100", AIName: "claude", Status: domain.StatusRunning,
			TaskDescription: "fix the login bug", StartedAt: time.Now().Add(-2 * time.Minute)},
		{TaskID: "gemini_20260101_110000_99", AIName: "gemini", Status: domain.StatusCompleted,
			TaskDescription: "add tests", StartedAt: done.Add(-5 * time.Minute), CompletedAt: &done},
	}
}

func TestNewModel(t *testing.T) {
	m := testModel(t)
	if m.project != "myproj" {
		t.Errorf("project = %q, want %q", m.project, "myproj")
	}
	if m.activeTab != tabProcesses {
		t.Errorf("activeTab = %d, want %d", m.activeTab, tabProcesses)
	}
	if m.query == nil || m.status == nil {
		t.Error("query and status must be set")
	}
}

func TestInitReturnsCmd(t *testing.T) {
	m := testModel(t)
	if m.Init() == nil {
		t.Error("Init() returned nil cmd")
	}
}

func TestTabSwitch(t *testing.T) {
	m := testModel(t)
	m.selectedRow = 2

	newModel, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	um := newModel.(Model)
	if um.activeTab != tabDelegations {
		t.Errorf("activeTab = %d, want %d", um.activeTab, tabDelegations)
	}
	if um.selectedRow != 0 {
		t.Errorf("selectedRow = %d, want 0 after tab switch", um.selectedRow)
	}

	newModel, _ = um.Update(tea.KeyMsg{Type: tea.KeyTab})
	um = newModel.(Model)
	if um.activeTab != tabProcesses {
		t.Errorf("activeTab = %d, want %d after full cycle", um.activeTab, tabProcesses)
	}
}

func TestNavigationBounds(t *testing.T) {
	m := testModel(t)
	newModel, _ := m.Update(RefreshMsg{Summaries: testSummaries()})
	m = newModel.(Model)

	for i := 0; i < 5; i++ {
		newModel, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
		m = newModel.(Model)
	}
	if m.selectedRow != 2 {
		t.Errorf("selectedRow = %d, want 2 (clamped to last row)", m.selectedRow)
	}

	for i := 0; i < 5; i++ {
		newModel, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("k")})
		m = newModel.(Model)
	}
	if m.selectedRow != 0 {
		t.Errorf("selectedRow = %d, want 0 (clamped to first row)", m.selectedRow)
	}
}

func TestNavigationArrowKeys(t *testing.T) {
	m := testModel(t)
	newModel, _ := m.Update(RefreshMsg{Summaries: testSummaries()})
	m = newModel.(Model)

	newModel, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = newModel.(Model)
	if m.selectedRow != 1 {
		t.Errorf("selectedRow = %d after down, want 1", m.selectedRow)
	}

	newModel, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m = newModel.(Model)
	if m.selectedRow != 0 {
		t.Errorf("selectedRow = %d after up, want 0", m.selectedRow)
	}
}

func TestNavigationEmptyList(t *testing.T) {
	m := testModel(t)
	newModel, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	um := newModel.(Model)
	if um.selectedRow != 0 {
		t.Errorf("selectedRow = %d on empty list, want 0", um.selectedRow)
	}
}

func TestQuitKeys(t *testing.T) {
	m := testModel(t)
	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune("q")},
		{Type: tea.KeyCtrlC},
	} {
		_, cmd := m.Update(key)
		if cmd == nil {
			t.Fatalf("Update(%v) returned nil cmd, want quit", key)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("Update(%v) cmd = %T, want tea.QuitMsg", key, cmd())
		}
	}
}

func TestWindowSize(t *testing.T) {
	m := testModel(t)
	newModel, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	um := newModel.(Model)
	if um.width != 120 || um.height != 40 {
		t.Errorf("size = %dx%d, want 120x40", um.width, um.height)
	}
}

func TestTickSchedulesRefresh(t *testing.T) {
	m := testModel(t)
	_, cmd := m.Update(TickMsg(time.Now()))
	if cmd == nil {
		t.Error("TickMsg returned nil cmd, want refresh + next tick")
	}
}

func TestRefreshMsgAppliesData(t *testing.T) {
	m := testModel(t)
	m.selectedRow = 5

	newModel, _ := m.Update(RefreshMsg{Summaries: testSummaries(), Tasks: testTasks()})
	um := newModel.(Model)
	if len(um.summaries) != 3 {
		t.Errorf("summaries = %d, want 3", len(um.summaries))
	}
	if len(um.tasks) != 2 {
		t.Errorf("tasks = %d, want 2", len(um.tasks))
	}
	if um.lastRefresh.IsZero() {
		t.Error("lastRefresh not set")
	}
	if um.selectedRow != 0 {
		t.Errorf("selectedRow = %d, want 0 after shrinking refresh", um.selectedRow)
	}
}

func TestRefreshCmdLoadsFromStores(t *testing.T) {
	logs := logstore.New(t.TempDir())
	f, err := logs.OpenLog("myproj", "api")
	if err != nil {
		t.Fatalf("OpenLog: %v", err)
	}
	if _, err := f.WriteString("line one\nERROR: boom\nline three\n"); err != nil {
		t.Fatalf("writing log: %v", err)
	}
	f.Close()

	status := statusstore.New(logs.StatusDir())
	task := &domain.DelegationTask{
		TaskID:          "claude_20260101_120000_42",
		AIName:          "claude",
		Status:          domain.StatusRunning,
		TaskDescription: "refactor",
		StartedAt:       time.Now(),
	}
	if err := status.Write(task); err != nil {
		t.Fatalf("writing status: %v", err)
	}

	m := NewModel(Config{Project: "myproj", Query: logquery.New(logs), Status: status})
	msg := m.refreshCmd()()
	refresh, ok := msg.(RefreshMsg)
	if !ok {
		t.Fatalf("refreshCmd msg = %T, want RefreshMsg", msg)
	}
	if refresh.Err != nil {
		t.Fatalf("refresh error: %v", refresh.Err)
	}
	if len(refresh.Summaries) != 1 || refresh.Summaries[0].Name != "api" {
		t.Errorf("summaries = %+v, want one entry for api", refresh.Summaries)
	}
	if refresh.Summaries[0].ErrorCount != 1 {
		t.Errorf("ErrorCount = %d, want 1", refresh.Summaries[0].ErrorCount)
	}
	if len(refresh.Tasks) != 1 || refresh.Tasks[0].TaskID != task.TaskID {
		t.Errorf("tasks = %+v, want one entry for %s", refresh.Tasks, task.TaskID)
	}
}

func TestViewBeforeFirstWindowSize(t *testing.T) {
	m := testModel(t)
	if got := m.View(); got != "Loading..." {
		t.Errorf("View() = %q, want Loading...", got)
	}
}

func TestViewRendersProcesses(t *testing.T) {
	m := testModel(t)
	newModel, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = newModel.(Model)
	newModel, _ = m.Update(RefreshMsg{Summaries: testSummaries(), Tasks: testTasks()})
	m = newModel.(Model)

	view := m.View()
	for _, want := range []string{"myproj", "2/3 up", "1 running", "api", "worker", "listening on :8080"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}

func TestViewRendersDelegations(t *testing.T) {
	m := testModel(t)
	newModel, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = newModel.(Model)
	newModel, _ = m.Update(RefreshMsg{Tasks: testTasks()})
	m = newModel.(Model)
	newModel, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = newModel.(Model)

	view := m.View()
	for _, want := range []string{"claude_20260101_120000_100", "running", "completed", "fix the login bug"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly-ten", 11, "exactly-ten"},
		{"a much longer string", 10, "a much ..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{90 * time.Minute, "1h30m"},
		{2*time.Hour + 5*time.Minute, "2h05m"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
