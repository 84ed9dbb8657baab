package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/domain"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)

	headerStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255"))

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	runningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	stoppedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	completedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("250"))

	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Underline(true)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("244"))
)

var tabNames = []string{"Processes", "Delegations"}

// View renders the dashboard.
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	running := 0
	for _, s := range m.summaries {
		if s.Running {
			running++
		}
	}
	active := 0
	for _, t := range m.tasks {
		if t.Status == domain.StatusRunning {
			active++
		}
	}
	header := fmt.Sprintf(" %s │ Processes: %d/%d up │ Delegations: %d running ",
		titleStyle.Render(m.project), running, len(m.summaries), active)
	b.WriteString(headerStyle.Width(m.width).Render(header))
	b.WriteString("\n\n")

	b.WriteString(m.renderTabs())
	b.WriteString("\n")

	var content string
	if m.activeTab == tabProcesses {
		content = m.renderProcesses()
	} else {
		content = m.renderDelegations()
	}
	b.WriteString(sectionStyle.Width(m.width - 2).Render(content))
	b.WriteString("\n")

	if m.loadErr != nil {
		b.WriteString(errorStyle.Render("  error: " + m.loadErr.Error()))
		b.WriteString("\n")
	}

	bar := " [tab]switch [j/k]navigate [r]efresh [q]uit "
	if !m.lastRefresh.IsZero() {
		bar += "│ updated " + m.lastRefresh.Format("15:04:05")
	}
	b.WriteString(statusBarStyle.Width(m.width).Render(bar))

	return b.String()
}

func (m Model) renderTabs() string {
	parts := make([]string, len(tabNames))
	for i, name := range tabNames {
		label := fmt.Sprintf(" %s ", name)
		if i == m.activeTab {
			parts[i] = tabActiveStyle.Render(label)
		} else {
			parts[i] = tabInactiveStyle.Render(label)
		}
	}
	return strings.Join(parts, "│")
}

func (m Model) renderProcesses() string {
	if len(m.summaries) == 0 {
		return stoppedStyle.Render("No process logs for this project")
	}

	var lines []string
	for i, s := range m.summaries {
		icon := stoppedStyle.Render("○")
		if s.Running {
			icon = runningStyle.Render("●")
		}
		errs := fmt.Sprintf("%d errs", s.ErrorCount)
		if s.ErrorCount > 0 {
			errs = warningStyle.Render(errs)
		}
		line := fmt.Sprintf("  %s %-16s %9s  %s  %s",
			icon, s.Name, humanize.Bytes(uint64(s.SizeBytes)), errs,
			truncate(s.LastLine, m.lineWidth()))
		if i == m.selectedRow {
			line = "> " + line[2:]
			line = tabActiveStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderDelegations() string {
	if len(m.tasks) == 0 {
		return stoppedStyle.Render("No delegated tasks")
	}

	var lines []string
	for i, t := range m.tasks {
		var icon string
		switch t.Status {
		case domain.StatusRunning:
			icon = runningStyle.Render("●")
		case domain.StatusCompleted:
			icon = completedStyle.Render("✓")
		case domain.StatusAuthRequired:
			icon = warningStyle.Render("⚠")
		default:
			icon = errorStyle.Render("✗")
		}
		line := fmt.Sprintf("  %s %-28s %-10s %7s  %s",
			icon, truncate(t.TaskID, 28), t.Status,
			formatDuration(t.Duration()), truncate(t.TaskDescription, m.lineWidth()))
		if i == m.selectedRow {
			line = "> " + line[2:]
			line = tabActiveStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// lineWidth is the room left for free text after the fixed columns.
func (m Model) lineWidth() int {
	w := m.width - 40
	if w < 20 {
		w = 20
	}
	return w
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	h := int(d.Hours())
	return fmt.Sprintf("%dh%02dm", h, int(d.Minutes())-h*60)
}
