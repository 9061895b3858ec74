package activation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vcaesar/keycode"
)

// DefaultShortcutCooldown suppresses repeat shortcut activations. Some
// desktop environments deliver a registered shortcut several times for
// one physical press; activations inside the window are dropped and do
// not extend it.
const DefaultShortcutCooldown = 500 * time.Millisecond

// Chord is a parsed multi-key shortcut. All listed keys must be held,
// and the last listed key is the one whose press completes the chord.
type Chord struct {
	Names []string
	Keys  []uint16
}

// Main returns the keycode whose press completes the chord.
func (c Chord) Main() uint16 { return c.Keys[len(c.Keys)-1] }

// String returns the normalized chord text, e.g. "ctrl+alt+d".
func (c Chord) String() string { return strings.Join(c.Names, "+") }

// LookupKey resolves a key name such as "ctrl", "f9" or "space" to its
// keycode. Numeric names are accepted verbatim as raw codes.
func LookupKey(name string) (uint16, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if code, ok := keycode.Keycode[name]; ok {
		return code, nil
	}
	if n, err := strconv.ParseUint(name, 10, 16); err == nil && n > 0 {
		return uint16(n), nil
	}
	return 0, fmt.Errorf("activation: unknown key %q", name)
}

// ParseChord parses a "+"-separated shortcut such as "ctrl+shift+space".
func ParseChord(s string) (Chord, error) {
	parts := strings.Split(s, "+")
	chord := Chord{
		Names: make([]string, 0, len(parts)),
		Keys:  make([]uint16, 0, len(parts)),
	}
	for _, part := range parts {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			return Chord{}, fmt.Errorf("activation: empty key in chord %q", s)
		}
		code, err := LookupKey(name)
		if err != nil {
			return Chord{}, fmt.Errorf("activation: chord %q: %w", s, err)
		}
		for _, seen := range chord.Keys {
			if seen == code {
				return Chord{}, fmt.Errorf("activation: chord %q lists %q twice", s, name)
			}
		}
		chord.Names = append(chord.Names, name)
		chord.Keys = append(chord.Keys, code)
	}
	return chord, nil
}

// chordTracker watches the stream of raw key edges and reports when the
// chord as a whole goes down or up. The chord activates when its main
// key is pressed while every other member is already held, and
// deactivates as soon as any member is released.
type chordTracker struct {
	chord  Chord
	held   map[uint16]bool
	active bool
}

func newChordTracker(c Chord) *chordTracker {
	return &chordTracker{chord: c, held: make(map[uint16]bool, len(c.Keys))}
}

// feed processes one raw key edge and reports the chord-level edge it
// produced, if any.
func (t *chordTracker) feed(code uint16, kind EventKind) (EventKind, bool) {
	if !t.member(code) {
		return 0, false
	}
	switch kind {
	case Down:
		t.held[code] = true
		if !t.active && code == t.chord.Main() && t.allHeld() {
			t.active = true
			return Down, true
		}
	case Up:
		delete(t.held, code)
		if t.active {
			t.active = false
			return Up, true
		}
	}
	return 0, false
}

func (t *chordTracker) member(code uint16) bool {
	for _, k := range t.chord.Keys {
		if k == code {
			return true
		}
	}
	return false
}

func (t *chordTracker) allHeld() bool {
	for _, k := range t.chord.Keys {
		if !t.held[k] {
			return false
		}
	}
	return true
}

func (t *chordTracker) reset() {
	t.active = false
	clear(t.held)
}

// cooldown drops Down events that arrive too soon after the last
// accepted one. Dropped events do not move the window, so a burst of
// repeats ends exactly one window after the first press. Releases
// always pass so the press machine can measure hold durations.
type cooldown struct {
	window time.Duration
	last   time.Time
}

func (c *cooldown) allow(ev Event) bool {
	if ev.Kind != Down {
		return true
	}
	if !c.last.IsZero() && ev.At.Sub(c.last) < c.window {
		return false
	}
	c.last = ev.At
	return true
}

func (c *cooldown) reset() {
	c.last = time.Time{}
}
