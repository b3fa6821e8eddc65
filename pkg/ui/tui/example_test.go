package tui_test

import (
	"context"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"pagegrab/pkg/logger"
	"pagegrab/pkg/progress"
	"pagegrab/pkg/ui/tui"
)

func ExampleRenderer() {
	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	// q in the terminal stops the run
	renderer := tui.NewRenderer("https://example.com/gallery", cancel,
		tea.WithOutput(io.Discard),
		tea.WithInput(nil),
	)
	renderer.Run()

	tracker := progress.NewTracker(renderer, logger.NewNopLogger())
	tracker.Start(3)
	for i := 0; i < 3; i++ {
		tracker.Advance()
	}
	tracker.Finish()
}
