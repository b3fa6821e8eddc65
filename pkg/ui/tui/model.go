package tui

import (
	"time"

	pbar "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pagegrab/pkg/progress"
)

const maxStatusLines = 8

// StatusLine is one entry of the status history panel
type StatusLine struct {
	Time time.Time
	Text string
}

// Model is the bubbletea model for a single run
type Model struct {
	spinner spinner.Model
	bar     pbar.Model

	target   string
	snap     progress.Snapshot
	known    bool
	finished bool
	history  []StatusLine

	width  int
	height int

	// onQuit is called when the operator asks to stop
	onQuit func()
}

// NewModel creates a model for target
func NewModel(target string, onQuit func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(neonCyan)

	b := pbar.New(pbar.WithDefaultGradient())
	b.Width = 40

	return Model{
		spinner: s,
		bar:     b,
		target:  target,
		snap:    progress.Snapshot{Total: progress.Unknown},
		onQuit:  onQuit,
	}
}

// Init starts the spinner
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Snapshot returns the last state shown
func (m Model) Snapshot() progress.Snapshot {
	return m.snap
}

// History returns the recorded status changes, oldest first
func (m Model) History() []StatusLine {
	return append([]StatusLine(nil), m.history...)
}

func (m *Model) apply(s progress.Snapshot) {
	if s.Status != "" && s.Status != m.snap.Status {
		m.history = append(m.history, StatusLine{Time: time.Now(), Text: s.Status})
		if len(m.history) > maxStatusLines {
			m.history = m.history[len(m.history)-maxStatusLines:]
		}
	}
	m.snap = s
	if s.Known() {
		m.known = true
	}
}
