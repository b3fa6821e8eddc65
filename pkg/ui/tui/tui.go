package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"pagegrab/pkg/progress"
)

// Renderer drives a bubbletea program from progress updates
type Renderer struct {
	program *tea.Program

	once sync.Once
	done chan struct{}
	err  error
}

// NewRenderer creates a renderer for target. onQuit runs when the operator
// presses q, and should cancel the run.
func NewRenderer(target string, onQuit func(), opts ...tea.ProgramOption) *Renderer {
	model := NewModel(target, onQuit)
	return &Renderer{
		program: tea.NewProgram(model, opts...),
		done:    make(chan struct{}),
	}
}

// Run starts the program in the background
func (r *Renderer) Run() {
	r.once.Do(func() {
		go func() {
			defer close(r.done)
			_, r.err = r.program.Run()
		}()
	})
}

// Start implements progress.Renderer
func (r *Renderer) Start(total int) {
	r.program.Send(StartMsg{Total: total})
}

// Update implements progress.Renderer
func (r *Renderer) Update(s progress.Snapshot) {
	r.program.Send(SnapshotMsg{Snapshot: s})
}

// Finish draws the final state and waits for the program to exit
func (r *Renderer) Finish(s progress.Snapshot) {
	r.program.Send(FinishMsg{Snapshot: s})
	r.Wait()
}

// Wait blocks until the program has exited and returns its error
func (r *Renderer) Wait() error {
	<-r.done
	return r.err
}
