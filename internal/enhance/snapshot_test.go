package enhance_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sussurro/sussurro/internal/enhance"
)

type fakeClipboard struct {
	text string
	err  error
}

func (f fakeClipboard) Read(ctx context.Context) (string, error) { return f.text, f.err }

type fakeWindow struct {
	title string
}

func (f fakeWindow) Title(ctx context.Context) string { return f.title }

func TestSnapshotCapturesBothSections(t *testing.T) {
	t.Parallel()

	s := enhance.NewSnapshotter(
		fakeClipboard{text: "  meeting at 3pm  "},
		fakeWindow{title: "editor - main.go"},
	)
	snap := s.Snapshot(context.Background())
	if snap.Clipboard != "meeting at 3pm" {
		t.Errorf("Clipboard = %q, want trimmed text", snap.Clipboard)
	}
	if snap.WindowTitle != "editor - main.go" {
		t.Errorf("WindowTitle = %q", snap.WindowTitle)
	}
	if snap.CaptureDuration <= 0 {
		t.Errorf("CaptureDuration = %v, want > 0", snap.CaptureDuration)
	}
}

func TestSnapshotBudgets(t *testing.T) {
	t.Parallel()

	s := enhance.NewSnapshotter(
		fakeClipboard{text: "abcdefghij"},
		fakeWindow{title: "some window"},
		enhance.WithClipboardBudget(5),
		enhance.WithTitleBudget(0),
	)
	snap := s.Snapshot(context.Background())
	if snap.Clipboard != "abcde..." {
		t.Errorf("Clipboard = %q, want truncated to budget", snap.Clipboard)
	}
	if snap.WindowTitle != "" {
		t.Errorf("WindowTitle = %q, want disabled section", snap.WindowTitle)
	}
}

func TestSnapshotBudgetCountsRunes(t *testing.T) {
	t.Parallel()

	s := enhance.NewSnapshotter(
		fakeClipboard{text: "héllo wörld"},
		nil,
		enhance.WithClipboardBudget(5),
	)
	snap := s.Snapshot(context.Background())
	if snap.Clipboard != "héllo..." {
		t.Errorf("Clipboard = %q, budget must cut on rune boundaries", snap.Clipboard)
	}
}

func TestSnapshotToleratesFailures(t *testing.T) {
	t.Parallel()

	s := enhance.NewSnapshotter(
		fakeClipboard{err: errors.New("no clipboard tool")},
		fakeWindow{title: "term"},
	)
	snap := s.Snapshot(context.Background())
	if snap.Clipboard != "" {
		t.Errorf("Clipboard = %q, want empty on failure", snap.Clipboard)
	}
	if snap.WindowTitle != "term" {
		t.Errorf("WindowTitle = %q, window capture must survive clipboard failure", snap.WindowTitle)
	}

	nilSnap := enhance.NewSnapshotter(nil, nil).Snapshot(context.Background())
	if nilSnap.Clipboard != "" || nilSnap.WindowTitle != "" {
		t.Error("nil collaborators must yield an empty snapshot")
	}
}

type slowClipboard struct{}

func (slowClipboard) Read(ctx context.Context) (string, error) {
	select {
	case <-time.After(time.Second):
		return "too late", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestSnapshotHonorsTimeout(t *testing.T) {
	t.Parallel()

	s := enhance.NewSnapshotter(
		slowClipboard{},
		fakeWindow{title: "term"},
		enhance.WithSnapshotTimeout(20*time.Millisecond),
	)
	start := time.Now()
	snap := s.Snapshot(context.Background())
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("Snapshot blocked for %v, want timeout around 20ms", elapsed)
	}
	if snap.Clipboard != "" {
		t.Errorf("Clipboard = %q, want empty after timeout", snap.Clipboard)
	}
	if snap.WindowTitle != "term" {
		t.Errorf("WindowTitle = %q, fast section must still be captured", snap.WindowTitle)
	}
}

type mutableClipboard struct {
	mu   sync.Mutex
	text string
}

func (c *mutableClipboard) Read(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text, nil
}

func (c *mutableClipboard) set(text string) {
	c.mu.Lock()
	c.text = text
	c.mu.Unlock()
}

func TestSnapshotPrimeIsConsumedOnce(t *testing.T) {
	t.Parallel()

	clip := &mutableClipboard{text: "during recording"}
	s := enhance.NewSnapshotter(clip, fakeWindow{title: "editor"})

	s.Prime(context.Background())
	clip.set("after recording")

	snap := s.Snapshot(context.Background())
	if snap.Clipboard != "during recording" {
		t.Errorf("Clipboard = %q, want the primed capture", snap.Clipboard)
	}
	if snap.WindowTitle != "editor" {
		t.Errorf("WindowTitle = %q", snap.WindowTitle)
	}

	snap = s.Snapshot(context.Background())
	if snap.Clipboard != "after recording" {
		t.Errorf("Clipboard = %q, want a fresh capture once the primed one is spent", snap.Clipboard)
	}
}

func TestSnapshotDiscardDropsPrimed(t *testing.T) {
	t.Parallel()

	clip := &mutableClipboard{text: "first session"}
	s := enhance.NewSnapshotter(clip, nil)

	s.Prime(context.Background())
	s.Discard()
	clip.set("second session")

	snap := s.Snapshot(context.Background())
	if snap.Clipboard != "second session" {
		t.Errorf("Clipboard = %q, a discarded prime must not leak into the next session", snap.Clipboard)
	}
}
