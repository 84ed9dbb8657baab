package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Update handles messages and returns the updated model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		return m, tea.Batch(m.refreshCmd(), tickCmd())

	case RefreshMsg:
		m.summaries = msg.Summaries
		m.tasks = msg.Tasks
		m.loadErr = msg.Err
		m.lastRefresh = time.Now()
		if max := m.rowCount() - 1; m.selectedRow > max {
			m.selectedRow = 0
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "tab":
		m.activeTab = (m.activeTab + 1) % tabCount
		m.selectedRow = 0
		return m, nil

	case "j", "down":
		if m.selectedRow < m.rowCount()-1 {
			m.selectedRow++
		}
		return m, nil

	case "k", "up":
		if m.selectedRow > 0 {
			m.selectedRow--
		}
		return m, nil

	case "r":
		return m, m.refreshCmd()
	}

	return m, nil
}
