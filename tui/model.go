// Package tui implements the interactive terminal dashboard. It renders
// process log summaries and delegation tasks for one project and refreshes
// itself on a fixed tick.
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/domain"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/logquery"
	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/statusstore"
)

const (
	tabProcesses = iota
	tabDelegations
	tabCount
)

// refreshInterval is how often the dashboard re-reads logs and task records.
const refreshInterval = 2 * time.Second

// Config carries the data sources the dashboard reads from.
type Config struct {
	Project string
	Query   *logquery.Query
	Status  *statusstore.Store
}

// Model is the bubbletea model for the dashboard.
type Model struct {
	project string
	query   *logquery.Query
	status  *statusstore.Store

	summaries []domain.ProcessSummary
	tasks     []*domain.DelegationTask
	loadErr   error

	width       int
	height      int
	activeTab   int
	selectedRow int
	lastRefresh time.Time
}

// NewModel creates the dashboard model.
func NewModel(cfg Config) Model {
	return Model{
		project: cfg.Project,
		query:   cfg.Query,
		status:  cfg.Status,
	}
}

// Init loads the first snapshot and starts the refresh tick.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.refreshCmd(), tickCmd())
}

// TickMsg is sent on every refresh interval.
type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// RefreshMsg carries a freshly loaded snapshot of summaries and tasks.
type RefreshMsg struct {
	Summaries []domain.ProcessSummary
	Tasks     []*domain.DelegationTask
	Err       error
}

func (m Model) refreshCmd() tea.Cmd {
	query := m.query
	status := m.status
	project := m.project
	return func() tea.Msg {
		var msg RefreshMsg
		summaries, err := query.Summary(project)
		if err != nil {
			msg.Err = err
		} else {
			msg.Summaries = summaries
		}
		tasks, err := status.List()
		if err != nil {
			msg.Err = err
		} else {
			msg.Tasks = tasks
		}
		return msg
	}
}

// rowCount is the number of selectable rows on the active tab.
func (m Model) rowCount() int {
	if m.activeTab == tabProcesses {
		return len(m.summaries)
	}
	return len(m.tasks)
}
