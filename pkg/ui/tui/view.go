package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"pagegrab/pkg/progress"
)

// View renders the whole screen
func (m Model) View() string {
	var sections []string

	sections = append(sections, logoStyle.Render("pagegrab")+" "+logMessageStyle.Render(m.target))
	sections = append(sections, m.renderProgressPanel())
	if len(m.history) > 0 {
		sections = append(sections, m.renderHistoryPanel())
	}
	if !m.finished {
		sections = append(sections, helpStyle.Render("q: stop"))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"
}

// renderProgressPanel shows the bar, or a spinner while the total is unknown
func (m Model) renderProgressPanel() string {
	title := titleStyle.Render(" PROGRESS ")
	s := m.snap

	var bar string
	if m.known {
		bar = m.bar.ViewAs(s.Percent() / 100)
	} else {
		bar = m.spinner.View() + " " + logMessageStyle.Render("waiting for the image manifest")
	}

	count := fmt.Sprintf("%d/?", s.Completed)
	if m.known {
		count = fmt.Sprintf("%d/%d", s.Completed, s.Total)
	}

	stats := []string{
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Images:"), statsValueStyle.Render(count)),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Elapsed:"), statsValueStyle.Render(progress.FormatDuration(s.Elapsed))),
	}
	if s.ETA > 0 {
		stats = append(stats, fmt.Sprintf("%s %s", statsLabelStyle.Render("ETA:"), statsValueStyle.Render(progress.FormatDuration(s.ETA))))
	}
	if s.Status != "" {
		stats = append(stats, statusStyle(s.Done()).Render(s.Status))
	}

	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		title,
		bar,
		strings.Join(stats, "  "),
	))
}

// renderHistoryPanel lists recent status changes
func (m Model) renderHistoryPanel() string {
	title := titleStyle.Render(" STATUS ")

	lines := make([]string, 0, len(m.history))
	for _, h := range m.history {
		lines = append(lines, fmt.Sprintf("%s %s",
			logTimestampStyle.Render(h.Time.Format("15:04:05")),
			logMessageStyle.Render(h.Text)))
	}

	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n")))
}
