// Package activation turns raw input events (modifier keys, custom
// shortcuts, the middle mouse button) into dictation session requests.
//
// Each configured binding owns a small state machine fed by timestamped
// Down/Up events. The press-duration machine distinguishes a quick tap
// (hands-free toggle) from press-and-hold (push-to-talk); the pointer
// machine arms a cancellable delay timer. All machine state is owned by
// a single engine goroutine, so no per-binding locking is needed.
package activation

import (
	"errors"
	"fmt"
	"time"
)

// Slot identifies one of the configurable binding positions.
type Slot int

const (
	// SlotPrimary is the main push-to-talk binding.
	SlotPrimary Slot = iota
	// SlotSecondary is the alternate push-to-talk binding.
	SlotSecondary
	// SlotPointer is the middle-mouse-button binding.
	SlotPointer
)

// String returns a human-readable slot name for logs.
func (s Slot) String() string {
	switch s {
	case SlotPrimary:
		return "primary"
	case SlotSecondary:
		return "secondary"
	case SlotPointer:
		return "pointer"
	default:
		return fmt.Sprintf("slot(%d)", int(s))
	}
}

// BindingKind selects how a slot is driven by hardware.
type BindingKind int

const (
	// KindModifier binds a single modifier key identified by raw keycode.
	KindModifier BindingKind = iota
	// KindShortcut binds a multi-key chord such as "ctrl+shift+space".
	KindShortcut
	// KindMiddleClick binds the middle mouse button with a hold delay.
	KindMiddleClick
)

// String returns a human-readable kind name for logs.
func (k BindingKind) String() string {
	switch k {
	case KindModifier:
		return "modifier"
	case KindShortcut:
		return "shortcut"
	case KindMiddleClick:
		return "middle-click"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Binding describes one configured input binding.
type Binding struct {
	// Slot is the position this binding occupies.
	Slot Slot

	// Kind selects the hardware source and state machine variant.
	Kind BindingKind

	// Enabled disables the binding without removing its configuration.
	Enabled bool

	// KeyCode is the raw keycode of the bound modifier. Only meaningful
	// for KindModifier.
	KeyCode uint16

	// Chord is the textual shortcut, e.g. "ctrl+alt+d". Only meaningful
	// for KindShortcut.
	Chord string

	// Debounced routes this binding's events through the debounce slot,
	// coalescing hardware flicker. Only meaningful for KindModifier.
	Debounced bool

	// HoldDelay is how long the middle button must be held before a
	// toggle fires. Only meaningful for KindMiddleClick. Zero fires
	// immediately on press.
	HoldDelay time.Duration
}

// Binding validation errors.
var (
	ErrNoKeyCode    = errors.New("activation: modifier binding has no keycode")
	ErrNoChord      = errors.New("activation: shortcut binding has no chord")
	ErrHoldDelay    = errors.New("activation: hold delay out of range")
	ErrSlotMismatch = errors.New("activation: binding kind not allowed in slot")
)

// maxHoldDelay caps the middle-click hold delay.
const maxHoldDelay = 5 * time.Second

// Validate reports configuration errors for a single binding.
// Structural problems (wrong slot, bad chord syntax, delay range) are
// flagged even on disabled bindings; a missing key or chord is only an
// error when the binding is enabled, since a slot cleared by a keycode
// reassignment legitimately has none.
func (b Binding) Validate() error {
	var errs []error
	switch b.Kind {
	case KindModifier:
		if b.KeyCode == 0 && b.Enabled {
			errs = append(errs, fmt.Errorf("%w: slot %s", ErrNoKeyCode, b.Slot))
		}
		if b.Slot == SlotPointer {
			errs = append(errs, fmt.Errorf("%w: modifier in pointer slot", ErrSlotMismatch))
		}
	case KindShortcut:
		if b.Chord == "" {
			if b.Enabled {
				errs = append(errs, fmt.Errorf("%w: slot %s", ErrNoChord, b.Slot))
			}
		} else if _, err := ParseChord(b.Chord); err != nil {
			errs = append(errs, err)
		}
		if b.Slot == SlotPointer {
			errs = append(errs, fmt.Errorf("%w: shortcut in pointer slot", ErrSlotMismatch))
		}
	case KindMiddleClick:
		if b.HoldDelay < 0 || b.HoldDelay > maxHoldDelay {
			errs = append(errs, fmt.Errorf("%w: %s (max %s)", ErrHoldDelay, b.HoldDelay, maxHoldDelay))
		}
		if b.Slot != SlotPointer {
			errs = append(errs, fmt.Errorf("%w: middle-click in slot %s", ErrSlotMismatch, b.Slot))
		}
	default:
		errs = append(errs, fmt.Errorf("activation: unknown binding kind %d", int(b.Kind)))
	}
	return errors.Join(errs...)
}

// ValidateBindings validates every binding and the set as a whole.
func ValidateBindings(bindings []Binding) error {
	var errs []error
	seen := make(map[Slot]bool, len(bindings))
	for _, b := range bindings {
		if seen[b.Slot] {
			errs = append(errs, fmt.Errorf("activation: slot %s configured twice", b.Slot))
		}
		seen[b.Slot] = true
		if err := b.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ResolveDuplicateKeys enforces the rule that a given modifier keycode
// belongs to at most one slot. When the new configuration assigns the
// same keycode to both key slots, the slot whose keycode changed relative
// to the previous configuration keeps it and the other slot is disabled.
// If both changed (or there is no previous configuration), the primary
// slot wins. The input slice is not modified.
func ResolveDuplicateKeys(old, updated []Binding) []Binding {
	out := make([]Binding, len(updated))
	copy(out, updated)

	var primary, secondary *Binding
	for i := range out {
		if out[i].Kind != KindModifier {
			continue
		}
		switch out[i].Slot {
		case SlotPrimary:
			primary = &out[i]
		case SlotSecondary:
			secondary = &out[i]
		}
	}
	if primary == nil || secondary == nil || primary.KeyCode != secondary.KeyCode {
		return out
	}

	prev := make(map[Slot]uint16, 2)
	for _, b := range old {
		if b.Kind == KindModifier {
			prev[b.Slot] = b.KeyCode
		}
	}

	// The slot that kept its old keycode is the one being displaced.
	if prev[SlotPrimary] == primary.KeyCode && prev[SlotSecondary] != secondary.KeyCode {
		primary.Enabled = false
		primary.KeyCode = 0
	} else {
		secondary.Enabled = false
		secondary.KeyCode = 0
	}
	return out
}
