// Package enhance rewrites finished transcripts with an LLM according to the
// active enhancement mode.
//
// Each mode maps to a system prompt. A [Snapshotter] captures the desktop
// context (active window title, clipboard text) when recording starts and
// folds it into the prompt under per-section character budgets, so the model
// can resolve references like "reply to this" without the snapshot ever
// appearing in the output.
package enhance

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultClipboardBudget caps the clipboard section of the prompt.
	DefaultClipboardBudget = 2000

	// DefaultTitleBudget caps the window-title section of the prompt.
	DefaultTitleBudget = 200

	// DefaultSnapshotTimeout bounds the whole desktop capture. The prompt
	// is built from whatever was gathered when it expires.
	DefaultSnapshotTimeout = 300 * time.Millisecond
)

// ContextSnapshot is the desktop state captured for a session, normally at
// the moment recording starts. All fields are optional; empty sections are
// omitted from the prompt.
type ContextSnapshot struct {
	// WindowTitle is the focused window's title at capture time.
	WindowTitle string

	// Clipboard is the clipboard text at capture time, already truncated
	// to the configured budget.
	Clipboard string

	// CaptureDuration records how long the capture took.
	CaptureDuration time.Duration
}

// ClipboardReader supplies the clipboard text for prompt context.
type ClipboardReader interface {
	Read(ctx context.Context) (string, error)
}

// WindowTitler names the currently focused window.
type WindowTitler interface {
	Title(ctx context.Context) string
}

// Snapshotter concurrently captures the desktop context for one session.
// Capture is best effort: a missing tool or timeout yields empty sections,
// never an error.
type Snapshotter struct {
	clipboard ClipboardReader
	window    WindowTitler
	log       *slog.Logger

	clipboardBudget int
	titleBudget     int
	timeout         time.Duration

	mu     sync.Mutex
	primed *ContextSnapshot
}

// SnapshotOption is a functional option for [NewSnapshotter].
type SnapshotOption func(*Snapshotter)

// WithClipboardBudget caps the clipboard text included in prompts, in runes.
// Zero or negative disables the clipboard section entirely.
func WithClipboardBudget(n int) SnapshotOption {
	return func(s *Snapshotter) { s.clipboardBudget = n }
}

// WithTitleBudget caps the window title included in prompts, in runes.
// Zero or negative disables the title section entirely.
func WithTitleBudget(n int) SnapshotOption {
	return func(s *Snapshotter) { s.titleBudget = n }
}

// WithSnapshotTimeout bounds how long Snapshot may spend on desktop calls.
func WithSnapshotTimeout(d time.Duration) SnapshotOption {
	return func(s *Snapshotter) { s.timeout = d }
}

// NewSnapshotter creates a Snapshotter with default budgets. Either
// collaborator may be nil, which simply leaves its section empty.
func NewSnapshotter(clipboard ClipboardReader, window WindowTitler, opts ...SnapshotOption) *Snapshotter {
	s := &Snapshotter{
		clipboard:       clipboard,
		window:          window,
		log:             slog.Default(),
		clipboardBudget: DefaultClipboardBudget,
		titleBudget:     DefaultTitleBudget,
		timeout:         DefaultSnapshotTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Snapshot returns the context for a session's enhancement call. A snapshot
// primed while recording is consumed first; without one the desktop is
// captured fresh.
func (s *Snapshotter) Snapshot(ctx context.Context) *ContextSnapshot {
	s.mu.Lock()
	snap := s.primed
	s.primed = nil
	s.mu.Unlock()
	if snap != nil {
		return snap
	}
	return s.capture(ctx)
}

// Prime captures the desktop now and holds the result for the next
// [Snapshotter.Snapshot] call. Firing it when recording starts means the
// prompt describes the window the user dictated into, not whatever gained
// focus while transcription ran.
func (s *Snapshotter) Prime(ctx context.Context) {
	snap := s.capture(ctx)
	s.mu.Lock()
	s.primed = snap
	s.mu.Unlock()
}

// Discard drops a primed snapshot that was never consumed, keeping a
// finished session's clipboard out of the next session's prompt.
func (s *Snapshotter) Discard() {
	s.mu.Lock()
	s.primed = nil
	s.mu.Unlock()
}

func (s *Snapshotter) capture(ctx context.Context) *ContextSnapshot {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	snap := &ContextSnapshot{}
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if s.clipboard == nil || s.clipboardBudget <= 0 {
			return nil
		}
		text, err := s.clipboard.Read(egCtx)
		if err != nil {
			s.log.Debug("clipboard not captured for prompt context", "err", err)
			return nil
		}
		snap.Clipboard = truncate(text, s.clipboardBudget)
		return nil
	})

	eg.Go(func() error {
		if s.window == nil || s.titleBudget <= 0 {
			return nil
		}
		snap.WindowTitle = truncate(s.window.Title(egCtx), s.titleBudget)
		return nil
	})

	// Both goroutines swallow their failures; capture itself never errors.
	_ = eg.Wait()

	snap.CaptureDuration = time.Since(start)
	return snap
}

// truncate trims s and cuts it to at most n runes, marking the cut.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
