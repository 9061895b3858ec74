// Package dictation owns the lifecycle of a dictation session: recording
// microphone audio, transcribing it, optionally enhancing the text with an
// LLM, and delivering the result into the focused application.
//
// A session moves through the states Idle → Recording → Transcribing →
// (Enhancing) → Idle. At most one session exists at a time. The controller
// performs no I/O itself; capture, speech-to-text, enhancement, delivery
// and user feedback are all delegated to injected collaborators, which
// keeps the sequencing logic testable with fakes.
//
// Cancellation is cooperative: a cancel sets a flag on the session's token
// (and cancels its context), and the pipeline re-checks the flag when it
// enters a new state and again after every long call returns. A cancel
// that races with a successful stage therefore still wins: the result is
// discarded and nothing is delivered.
package dictation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// State identifies where the active session is in its pipeline.
type State int

const (
	// StateIdle means no session exists.
	StateIdle State = iota
	// StateRecording means microphone audio is being captured.
	StateRecording
	// StateTranscribing means captured audio is at the speech engine.
	StateTranscribing
	// StateEnhancing means transcribed text is at the LLM.
	StateEnhancing
)

// String returns a human-readable state name for logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateTranscribing:
		return "transcribing"
	case StateEnhancing:
		return "enhancing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Sentinel errors returned by the controller.
var (
	// ErrNoEngineSelected is reported when a session is requested but no
	// speech engine is configured.
	ErrNoEngineSelected = errors.New("dictation: no speech engine selected")

	// ErrSessionActive is reported when a start request arrives while a
	// session already exists.
	ErrSessionActive = errors.New("dictation: a session is already active")

	// ErrCancelled is recorded as the cancellation cause on a session's
	// context when the user cancels. It is expected control flow: stage
	// errors whose context.Cause is ErrCancelled are discarded, never
	// reported.
	ErrCancelled = errors.New("dictation: session cancelled")
)

// CancelToken is the cooperative cancellation handle for one session.
// Cancelling sets a sticky flag and cancels the session context with
// [ErrCancelled] as the cause; the pipeline checks the flag at its stage
// boundaries, so a cancel always beats a stage result that arrived in
// the same instant.
type CancelToken struct {
	flag   atomic.Bool
	cancel context.CancelCauseFunc
}

func newCancelToken(cancel context.CancelCauseFunc) *CancelToken {
	return &CancelToken{cancel: cancel}
}

// Cancel marks the session cancelled and cancels its context. Safe to
// call multiple times and from any goroutine.
func (t *CancelToken) Cancel() {
	t.flag.Store(true)
	t.cancel(ErrCancelled)
}

// Cancelled reports whether Cancel has been called.
func (t *CancelToken) Cancelled() bool {
	return t.flag.Load()
}

// release frees the session context without marking the session
// cancelled. Called once the pipeline finishes normally.
func (t *CancelToken) release() {
	t.cancel(nil)
}
