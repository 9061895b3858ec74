package activation

import (
	"fmt"
	"sync"
	"time"

	hook "github.com/robotn/gohook"
	"github.com/vcaesar/keycode"
)

// middleButton is the platform button number gohook reports for the
// middle mouse button.
var middleButton = keycode.MouseMap["center"]

// HookSource is the production EventSource. It installs a process-wide
// input hook via gohook and translates raw key and mouse edges into
// binding events: modifier keys are matched by keycode, shortcut chords
// by a per-binding tracker, and the middle mouse button by its button
// number. Because the underlying hook is a process-wide singleton, at
// most one HookSource may be open at a time; the engine tears the old
// one down before building a replacement.
type HookSource struct {
	events chan Event
	done   chan struct{}
	once   sync.Once

	keys    map[uint16]Slot
	chords  map[Slot]*chordTracker
	pointer bool
}

// NewHookSource starts monitoring the given enabled bindings.
func NewHookSource(bindings []Binding) (EventSource, error) {
	s := &HookSource{
		events: make(chan Event, 32),
		done:   make(chan struct{}),
		keys:   make(map[uint16]Slot),
		chords: make(map[Slot]*chordTracker),
	}
	for _, b := range bindings {
		if !b.Enabled {
			continue
		}
		switch b.Kind {
		case KindModifier:
			s.keys[b.KeyCode] = b.Slot
		case KindShortcut:
			chord, err := ParseChord(b.Chord)
			if err != nil {
				return nil, fmt.Errorf("activation: hook source: %w", err)
			}
			s.chords[b.Slot] = newChordTracker(chord)
		case KindMiddleClick:
			s.pointer = true
		}
	}
	go s.translate(hook.Start())
	return s, nil
}

// Events returns the mapped event stream. The channel closes after
// Close.
func (s *HookSource) Events() <-chan Event { return s.events }

// Close uninstalls the hook. Safe to call multiple times.
func (s *HookSource) Close() error {
	s.once.Do(func() {
		close(s.done)
		hook.End()
	})
	return nil
}

// translate consumes raw hook events until the hook channel closes.
func (s *HookSource) translate(raw chan hook.Event) {
	defer close(s.events)
	for {
		select {
		case <-s.done:
			return
		case rv, ok := <-raw:
			if !ok {
				return
			}
			for _, ev := range s.mapEvent(rv) {
				select {
				case s.events <- ev:
				case <-s.done:
					return
				}
			}
		}
	}
}

// mapEvent translates one raw hook event into zero or more binding
// events. Key repeats (KeyHold) are dropped; the press machines only
// care about edges.
func (s *HookSource) mapEvent(rv hook.Event) []Event {
	at := rv.When
	if at.IsZero() {
		at = time.Now()
	}
	switch rv.Kind {
	case hook.KeyDown, hook.KeyUp:
		kind := Down
		if rv.Kind == hook.KeyUp {
			kind = Up
		}
		var out []Event
		if slot, ok := s.keys[rv.Keycode]; ok {
			out = append(out, Event{Slot: slot, Kind: kind, At: at})
		}
		for slot, tracker := range s.chords {
			if edge, fired := tracker.feed(rv.Keycode, kind); fired {
				out = append(out, Event{Slot: slot, Kind: edge, At: at})
			}
		}
		return out
	case hook.MouseDown, hook.MouseUp:
		if !s.pointer || rv.Button != middleButton {
			return nil
		}
		kind := Down
		if rv.Kind == hook.MouseUp {
			kind = Up
		}
		return []Event{{Slot: SlotPointer, Kind: kind, At: at}}
	}
	return nil
}
