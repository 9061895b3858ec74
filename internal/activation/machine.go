package activation

import "time"

// DefaultHoldThreshold separates a quick tap from press-and-hold. A key
// released before this threshold arms hands-free mode; held longer, the
// release stops the session.
const DefaultHoldThreshold = 1700 * time.Millisecond

// PressState is the press-duration machine's current state.
type PressState int

const (
	// PressIdle means no press is in flight and hands-free is not armed.
	PressIdle PressState = iota
	// PressHeld means the key is down and the session (if any) started
	// with this press.
	PressHeld
	// PressArmed means a quick tap left the session running hands-free;
	// the next press stops it.
	PressArmed
)

// String returns a human-readable state name for logs.
func (s PressState) String() string {
	switch s {
	case PressIdle:
		return "idle"
	case PressHeld:
		return "held"
	case PressArmed:
		return "hands-free"
	default:
		return "unknown"
	}
}

// RuntimeState is a point-in-time snapshot of one binding's machine,
// exposed for logging and the reconfiguration reset.
type RuntimeState struct {
	Pressed        bool
	PressedAt      time.Time
	HandsFreeArmed bool
}

// PressMachine implements the press-duration state machine shared by the
// modifier and shortcut bindings:
//
//	idle --down--> held            (start session if none visible)
//	held --up before threshold--> hands-free  (session keeps running)
//	held --up at/after threshold--> idle      (stop session)
//	hands-free --down--> idle                 (stop session)
//
// A session started by a quick tap therefore survives the release, and
// the very next press ends it regardless of how long that press lasts.
// Feed is not safe for concurrent use; the engine serializes events.
type PressMachine struct {
	holdThreshold time.Duration

	state     PressState
	pressed   bool
	pressedAt time.Time
}

// NewPressMachine creates a machine with the given hold threshold.
// A non-positive threshold falls back to DefaultHoldThreshold.
func NewPressMachine(holdThreshold time.Duration) *PressMachine {
	if holdThreshold <= 0 {
		holdThreshold = DefaultHoldThreshold
	}
	return &PressMachine{holdThreshold: holdThreshold}
}

// Feed advances the machine with one event and returns the session
// action it implies. sessionVisible gates the start emission: a press
// while a session is already visible transitions state but must not
// start a second session.
func (m *PressMachine) Feed(ev Event, sessionVisible bool) Action {
	switch ev.Kind {
	case Down:
		if m.pressed {
			// Key repeat while held; the initial press already counted.
			return ActionNone
		}
		m.pressed = true
		switch m.state {
		case PressIdle:
			m.state = PressHeld
			m.pressedAt = ev.At
			if sessionVisible {
				return ActionNone
			}
			return ActionStart
		case PressArmed:
			m.state = PressIdle
			return ActionStop
		}
	case Up:
		if !m.pressed {
			return ActionNone
		}
		m.pressed = false
		if m.state != PressHeld {
			// Release after a hands-free stopping press, or after a reset.
			return ActionNone
		}
		if ev.At.Sub(m.pressedAt) < m.holdThreshold {
			m.state = PressArmed
			return ActionNone
		}
		m.state = PressIdle
		return ActionStop
	}
	return ActionNone
}

// Reset returns the machine to idle, discarding any armed hands-free
// state and in-flight press.
func (m *PressMachine) Reset() {
	m.state = PressIdle
	m.pressed = false
	m.pressedAt = time.Time{}
}

// State returns the current machine state.
func (m *PressMachine) State() PressState { return m.state }

// Runtime returns a snapshot of the machine for logging.
func (m *PressMachine) Runtime() RuntimeState {
	return RuntimeState{
		Pressed:        m.pressed,
		PressedAt:      m.pressedAt,
		HandsFreeArmed: m.state == PressArmed,
	}
}
