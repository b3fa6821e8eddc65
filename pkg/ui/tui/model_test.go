package tui

import (
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"pagegrab/pkg/progress"
)

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T, want Model", next)
	}
	return model, cmd
}

func TestModelUnknownTotal(t *testing.T) {
	model := NewModel("https://example.com/gallery", nil)

	if model.Snapshot().Known() {
		t.Fatal("new model should not know the total")
	}

	model, _ = update(t, model, SnapshotMsg{Snapshot: progress.Snapshot{Completed: 2, Total: progress.Unknown}})
	view := model.View()
	if !strings.Contains(view, "2/?") {
		t.Errorf("expected unknown total in view, got:\n%s", view)
	}
	if !strings.Contains(view, "waiting for the image manifest") {
		t.Errorf("expected spinner text while total unknown, got:\n%s", view)
	}
}

func TestModelProgress(t *testing.T) {
	model := NewModel("https://example.com/gallery", nil)

	model, _ = update(t, model, StartMsg{Total: 5})
	model, _ = update(t, model, SnapshotMsg{Snapshot: progress.Snapshot{
		Completed: 3,
		Total:     5,
		Elapsed:   30 * time.Second,
		ETA:       20 * time.Second,
	}})

	view := model.View()
	for _, want := range []string{"3/5", "00:30", "00:20", "q: stop"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected %q in view, got:\n%s", want, view)
		}
	}
	if strings.Contains(view, "waiting for the image manifest") {
		t.Error("spinner text should be gone once the total is known")
	}
}

func TestModelStatusHistory(t *testing.T) {
	model := NewModel("target", nil)

	for i := 0; i < maxStatusLines+3; i++ {
		status := "retrying " + strings.Repeat("x", i+1)
		model, _ = update(t, model, SnapshotMsg{Snapshot: progress.Snapshot{Total: 10, Status: status}})
	}
	// unchanged status is not recorded twice
	model, _ = update(t, model, SnapshotMsg{Snapshot: model.Snapshot()})

	history := model.History()
	if len(history) != maxStatusLines {
		t.Fatalf("expected %d status lines, got %d", maxStatusLines, len(history))
	}
	if history[len(history)-1].Text != model.Snapshot().Status {
		t.Errorf("last history entry %q does not match current status %q", history[len(history)-1].Text, model.Snapshot().Status)
	}
}

func TestModelFinishQuits(t *testing.T) {
	model := NewModel("target", nil)

	final := progress.Snapshot{Completed: 4, Total: 4, Status: "done"}
	model, cmd := update(t, model, FinishMsg{Snapshot: final})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("finish should quit the program")
	}
	if model.Snapshot() != final {
		t.Errorf("expected final snapshot %+v, got %+v", final, model.Snapshot())
	}

	// late updates are ignored
	model, _ = update(t, model, SnapshotMsg{Snapshot: progress.Snapshot{Completed: 1, Total: 4}})
	if model.Snapshot().Completed != 4 {
		t.Error("snapshot changed after finish")
	}
	if strings.Contains(model.View(), "q: stop") {
		t.Error("help should be hidden after finish")
	}
}

func TestModelQuitKeyCancels(t *testing.T) {
	cancelled := false
	model := NewModel("target", func() { cancelled = true })

	// other keys do nothing
	_, cmd := update(t, model, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}})
	if cmd != nil || cancelled {
		t.Fatal("unexpected reaction to unbound key")
	}

	_, cmd = update(t, model, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if !cancelled {
		t.Error("quit key should cancel the run")
	}
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("quit key should quit the program")
	}
}

func TestBarWidth(t *testing.T) {
	tests := map[int]int{0: 10, 25: 10, 60: 40, 200: 80}
	for width, want := range tests {
		if got := barWidth(width); got != want {
			t.Errorf("barWidth(%d) = %d, want %d", width, got, want)
		}
	}
}

func TestRendererLifecycle(t *testing.T) {
	r := NewRenderer("target", nil,
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
		tea.WithoutSignalHandler(),
	)
	r.Run()

	r.Start(2)
	r.Update(progress.Snapshot{Completed: 1, Total: 2})

	finished := make(chan struct{})
	go func() {
		r.Finish(progress.Snapshot{Completed: 2, Total: 2})
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("renderer did not exit after finish")
	}
	if err := r.Wait(); err != nil {
		t.Errorf("unexpected program error: %v", err)
	}
}
