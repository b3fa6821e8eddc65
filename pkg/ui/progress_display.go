package ui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"pagegrab/pkg/logger"
	"pagegrab/pkg/progress"
)

// LineRenderer prints plain progress lines, for output that is not a
// terminal. A line is written when the count or status changes, or at
// most every interval otherwise.
type LineRenderer struct {
	mu        sync.Mutex
	w         io.Writer
	log       logger.Logger
	interval  time.Duration
	last      time.Time
	completed int
	status    string
}

// NewLineRenderer creates a renderer writing to w. log, if set, also gets
// a progress entry at every printed line.
func NewLineRenderer(w io.Writer, interval time.Duration, log logger.Logger) *LineRenderer {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &LineRenderer{w: w, log: log, interval: interval, completed: -1}
}

func (l *LineRenderer) Start(total int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "expecting %d images\n", total)
}

func (l *LineRenderer) Update(s progress.Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	changed := s.Completed != l.completed || s.Status != l.status
	if !changed && time.Since(l.last) < l.interval {
		return
	}
	l.completed = s.Completed
	l.status = s.Status
	l.last = time.Now()

	fmt.Fprintln(l.w, s.Line())
	if l.log != nil {
		logger.LogProgress(l.log, s.Completed, s.Total)
	}
}

func (l *LineRenderer) Finish(s progress.Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s.Line())
}

// PrintSummary prints the end-of-run report
func PrintSummary(w io.Writer, s progress.Snapshot, dest string, failed int64) {
	mark := Green("✓")
	if (s.Known() && !s.Done()) || failed > 0 {
		mark = Yellow("!")
	}

	if s.Known() {
		fmt.Fprintf(w, "\n%s Downloaded %d of %d images to %s\n", mark, s.Completed, s.Total, Cyan(dest))
	} else {
		fmt.Fprintf(w, "\n%s Downloaded %d images to %s\n", mark, s.Completed, Cyan(dest))
	}

	rate := 0.0
	if mins := s.Elapsed.Minutes(); mins > 0 {
		rate = float64(s.Completed) / mins
	}
	fmt.Fprintf(w, "  %s %s (%.1f images/min)\n", Dim("•"), progress.FormatDuration(s.Elapsed), rate)

	if failed > 0 {
		fmt.Fprintf(w, "  %s %s\n", Dim("•"), Red(fmt.Sprintf("%d downloads failed", failed)))
	}
	if s.Known() && s.Completed < s.Total {
		fmt.Fprintf(w, "  %s %d images were never seen on the page\n", Dim("•"), s.Total-s.Completed)
	}
}
