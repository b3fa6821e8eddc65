package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"pagegrab/pkg/progress"
)

// StartMsg is sent when the expected total is learned
type StartMsg struct {
	Total int
}

// SnapshotMsg carries a progress update
type SnapshotMsg struct {
	Snapshot progress.Snapshot
}

// FinishMsg ends the program after the final state is drawn
type FinishMsg struct {
	Snapshot progress.Snapshot
}

// Update handles all messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = barWidth(msg.Width)
		return m, nil

	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case StartMsg:
		m.known = true
		m.snap.Total = msg.Total
		return m, nil

	case SnapshotMsg:
		if m.finished {
			return m, nil
		}
		m.apply(msg.Snapshot)
		return m, nil

	case FinishMsg:
		m.apply(msg.Snapshot)
		m.finished = true
		return m, tea.Quit
	}

	return m, nil
}

// handleKeyPress handles keyboard input
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		if m.onQuit != nil {
			m.onQuit()
		}
		m.finished = true
		return m, tea.Quit
	}
	return m, nil
}

func barWidth(width int) int {
	w := width - 20
	switch {
	case w > 80:
		return 80
	case w < 10:
		return 10
	}
	return w
}
