package activation

import (
	"fmt"
	"time"
)

// EventKind is the edge direction of an input event.
type EventKind int

const (
	// Down is a key press or button press.
	Down EventKind = iota
	// Up is a key release or button release.
	Up
)

// String returns a human-readable kind name for logs.
func (k EventKind) String() string {
	switch k {
	case Down:
		return "down"
	case Up:
		return "up"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one timestamped edge from an input source, already mapped to
// the binding slot it belongs to. Timestamps come from the source so
// that press durations survive queueing delays.
type Event struct {
	Slot Slot
	Kind EventKind
	At   time.Time
}

// Action is the session request a state machine derives from an event.
type Action int

const (
	// ActionNone means the event changed machine state without producing
	// a session request.
	ActionNone Action = iota
	// ActionStart requests a new dictation session.
	ActionStart
	// ActionStop requests that the visible session stop recording.
	ActionStop
	// ActionToggle requests a start or stop depending on controller state.
	ActionToggle
)

// String returns a human-readable action name for logs.
func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionStart:
		return "start"
	case ActionStop:
		return "stop"
	case ActionToggle:
		return "toggle"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// SessionControl is the slice of the session controller the activation
// engine needs: enough state to gate requests, and the request entry
// points themselves. Implementations must be safe for concurrent use.
type SessionControl interface {
	// SessionVisible reports whether a session is currently visible to
	// the user (any state other than idle).
	SessionVisible() bool

	// Processing reports whether the pipeline is past recording
	// (transcribing or enhancing). New sessions must not start and
	// stops are meaningless while processing.
	Processing() bool

	// RequestStart asks for a new dictation session.
	RequestStart()

	// RequestStop asks the recording session to stop and process.
	RequestStop()
}
