package activation

// PointerMachine implements the middle-click binding: a press arms a
// delay timer, releasing before it fires cancels the toggle, and a
// re-press restarts the full delay. The engine owns the actual timer;
// the machine tracks button state and a press sequence number so a
// stale timer firing after release (or after a newer press) is a no-op.
// Not safe for concurrent use; the engine serializes events.
type PointerMachine struct {
	down bool
	seq  uint64
}

// Press records the button going down and returns the sequence number
// the delay timer for this press must carry.
func (m *PointerMachine) Press() uint64 {
	m.down = true
	m.seq++
	return m.seq
}

// Release records the button going up, cancelling the pending toggle.
func (m *PointerMachine) Release() {
	m.down = false
}

// Fire is called when the delay timer carrying seq elapses. It returns
// ActionToggle only if the button is still held and no newer press
// superseded this one.
func (m *PointerMachine) Fire(seq uint64) Action {
	if m.down && seq == m.seq {
		return ActionToggle
	}
	return ActionNone
}

// Reset clears button state and invalidates outstanding timers.
func (m *PointerMachine) Reset() {
	m.down = false
	m.seq++
}

// Runtime returns a snapshot of the machine for logging.
func (m *PointerMachine) Runtime() RuntimeState {
	return RuntimeState{Pressed: m.down}
}
