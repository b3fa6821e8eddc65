package ui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"pagegrab/pkg/progress"
)

const maxDescription = 48

// BarRenderer draws a single progress bar. It spins until the expected
// total is known and then switches to a bounded bar.
type BarRenderer struct {
	mu        sync.Mutex
	w         io.Writer
	bar       *progressbar.ProgressBar
	completed int
	status    string
	finished  bool
}

// NewBarRenderer creates a bar writing to w
func NewBarRenderer(w io.Writer) *BarRenderer {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("discovering"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("img"),
		progressbar.OptionShowIts(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	return &BarRenderer{w: w, bar: bar}
}

// Start bounds the bar at total
func (b *BarRenderer) Start(total int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if total > 0 {
		b.bar.ChangeMax(total)
	}
	b.describe("downloading")
}

// Update moves the bar to the snapshot's count and status
func (b *BarRenderer) Update(s progress.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finished {
		return
	}
	if s.Status != "" && s.Status != b.status {
		b.status = s.Status
		b.describe(s.Status)
	}
	if s.Completed != b.completed {
		b.completed = s.Completed
		_ = b.bar.Set(s.Completed)
	}
}

// Finish completes the bar, leaving it short if assets are missing
func (b *BarRenderer) Finish(s progress.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finished {
		return
	}
	b.finished = true

	_ = b.bar.Set(s.Completed)
	if s.Done() || !s.Known() {
		_ = b.bar.Finish()
	} else {
		_ = b.bar.Exit()
	}
	fmt.Fprintln(b.w)
}

func (b *BarRenderer) describe(text string) {
	r := []rune(text)
	if len(r) > maxDescription {
		text = string(r[:maxDescription-1]) + "…"
	}
	b.bar.Describe(text)
}
