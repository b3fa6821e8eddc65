package progress

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"pagegrab/pkg/logger"
)

// Unknown is the total before the manifest has been seen
const Unknown = -1

// Snapshot is a consistent view of the progress state
type Snapshot struct {
	Completed int
	// Total is Unknown until Start is called
	Total   int
	Status  string
	Elapsed time.Duration
	// ETA is zero when it cannot be estimated
	ETA time.Duration
}

// Known reports whether the total has been learned
func (s Snapshot) Known() bool {
	return s.Total >= 0
}

// Done reports whether every expected asset is complete
func (s Snapshot) Done() bool {
	return s.Known() && s.Completed >= s.Total
}

// Percent returns completion in [0,100], or 0 while the total is unknown
func (s Snapshot) Percent() float64 {
	switch {
	case !s.Known():
		return 0
	case s.Total == 0:
		return 100
	}
	return float64(s.Completed) / float64(s.Total) * 100
}

// Line renders the snapshot as "completed/total [elapsed<eta] status"
func (s Snapshot) Line() string {
	var b strings.Builder
	if s.Known() {
		fmt.Fprintf(&b, "%d/%d", s.Completed, s.Total)
	} else {
		fmt.Fprintf(&b, "%d/?", s.Completed)
	}

	b.WriteString(" [")
	b.WriteString(FormatDuration(s.Elapsed))
	if s.ETA > 0 {
		b.WriteString("<")
		b.WriteString(FormatDuration(s.ETA))
	}
	b.WriteString("]")

	if s.Status != "" {
		b.WriteString(" ")
		b.WriteString(s.Status)
	}
	return b.String()
}

// FormatDuration renders d as mm:ss, or h:mm:ss past an hour
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d/time.Minute) % 60
	sec := int(d/time.Second) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%02d:%02d", m, sec)
}

// Renderer displays progress to the operator
type Renderer interface {
	// Start is called once the total is known
	Start(total int)
	Update(s Snapshot)
	// Finish is called once when the run ends
	Finish(s Snapshot)
}

// Tracker owns the progress state. All mutation goes through its methods,
// which are safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	completed int
	total     int
	status    string
	started   time.Time
	overflow  int
	finished  bool

	renderMu sync.Mutex
	renderer Renderer
	logger   logger.Logger
	now      func() time.Time
}

// NewTracker creates a tracker with an unknown total. renderer may be nil.
func NewTracker(renderer Renderer, log logger.Logger) *Tracker {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Tracker{
		total:    Unknown,
		renderer: renderer,
		logger:   log.WithField("component", "progress"),
		now:      time.Now,
		started:  time.Now(),
	}
}

// Start sets the expected total. Only the first call has any effect.
func (t *Tracker) Start(total int) {
	if total < 0 {
		total = 0
	}

	t.mu.Lock()
	if t.total != Unknown {
		prev := t.total
		t.mu.Unlock()
		t.logger.WarnWithFields("Expected total already set, ignoring", map[string]interface{}{
			"total":    prev,
			"proposed": total,
		})
		return
	}
	// completed never decreases; a short manifest is reported against the
	// count already reached
	announced := total
	if t.completed > total {
		t.overflow += t.completed - total
		total = t.completed
		t.logger.ErrorWithFields("More assets completed than expected", map[string]interface{}{
			"total":    announced,
			"reported": total,
			"overflow": t.overflow,
		})
	}
	t.total = total
	t.mu.Unlock()

	t.render(func(r Renderer) { r.Start(total) })
	t.refresh()
}

// Advance records one completed asset. The count never passes a known
// total; an extra completion is logged as a discovery bug and dropped.
func (t *Tracker) Advance() {
	t.mu.Lock()
	if t.total != Unknown && t.completed >= t.total {
		t.overflow++
		overflow := t.overflow
		t.mu.Unlock()
		t.logger.ErrorWithFields("Completion beyond expected total", map[string]interface{}{
			"total":    t.Total(),
			"overflow": overflow,
		})
		return
	}
	t.completed++
	t.mu.Unlock()

	t.refresh()
}

// SetStatus replaces the trailing status annotation
func (t *Tracker) SetStatus(text string) {
	t.mu.Lock()
	t.status = text
	t.mu.Unlock()

	t.refresh()
}

// Total returns the expected total or Unknown
func (t *Tracker) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Overflow returns how many completions were dropped at the total
func (t *Tracker) Overflow() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.overflow
}

// Snapshot returns the current state
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Snapshot {
	s := Snapshot{
		Completed: t.completed,
		Total:     t.total,
		Status:    t.status,
		Elapsed:   t.now().Sub(t.started),
	}
	if s.Known() && s.Completed > 0 && s.Completed < s.Total {
		perItem := s.Elapsed / time.Duration(s.Completed)
		s.ETA = perItem * time.Duration(s.Total-s.Completed)
	}
	return s
}

// Line returns the human-readable progress line
func (t *Tracker) Line() string {
	return t.Snapshot().Line()
}

// Run refreshes the renderer every interval until ctx is done
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.LogComponentStart(t.logger, "refresher", map[string]interface{}{
		"interval_ms": interval.Milliseconds(),
	})
	for {
		select {
		case <-ctx.Done():
			logger.LogComponentStop(t.logger, "refresher", context.Cause(ctx).Error())
			return
		case <-ticker.C:
			t.refresh()
		}
	}
}

// Finish hands the final state to the renderer. Later calls do nothing.
func (t *Tracker) Finish() Snapshot {
	t.mu.Lock()
	s := t.snapshotLocked()
	already := t.finished
	t.finished = true
	t.mu.Unlock()

	if !already {
		t.render(func(r Renderer) { r.Finish(s) })
	}
	return s
}

// refresh takes the snapshot under the render lock so renderers never see
// an older state after a newer one
func (t *Tracker) refresh() {
	if t.renderer == nil {
		return
	}
	t.renderMu.Lock()
	defer t.renderMu.Unlock()

	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return
	}
	s := t.snapshotLocked()
	t.mu.Unlock()

	t.renderer.Update(s)
}

func (t *Tracker) render(fn func(Renderer)) {
	if t.renderer == nil {
		return
	}
	t.renderMu.Lock()
	defer t.renderMu.Unlock()
	fn(t.renderer)
}
