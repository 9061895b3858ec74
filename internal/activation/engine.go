package activation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrEngineClosed is returned by Reconfigure after the engine shut down.
var ErrEngineClosed = errors.New("activation: engine closed")

// EventSource delivers mapped input events for a set of bindings. The
// Events channel closes after Close. Close must not wait for consumers
// of the channel.
type EventSource interface {
	Events() <-chan Event
	Close() error
}

// SourceFactory builds an EventSource monitoring the given enabled
// bindings.
type SourceFactory func(bindings []Binding) (EventSource, error)

// EngineConfig configures an [Engine].
type EngineConfig struct {
	// Bindings is the initial binding set. May be empty.
	Bindings []Binding

	// Sessions receives the session requests the bindings produce.
	Sessions SessionControl

	// Source builds the input event source. Defaults to NewHookSource.
	Source SourceFactory

	// HoldThreshold separates tap from hold. Defaults to
	// DefaultHoldThreshold if zero.
	HoldThreshold time.Duration

	// DebounceWindow is the settle window for debounced bindings.
	// Defaults to DefaultDebounceWindow if zero.
	DebounceWindow time.Duration

	// ShortcutCooldown suppresses repeat shortcut activations.
	// Defaults to DefaultShortcutCooldown if zero.
	ShortcutCooldown time.Duration

	// Logger receives engine logs. Defaults to slog.Default.
	Logger *slog.Logger
}

// Engine drives the configured bindings: it owns one state machine per
// enabled binding, consumes events from the input source, and forwards
// the resulting session requests. All machine state is confined to the
// run loop goroutine; timers and the debouncer re-enter through the
// inbox so no event is ever processed concurrently with another.
type Engine struct {
	sessions         SessionControl
	source           SourceFactory
	holdThreshold    time.Duration
	debounceWindow   time.Duration
	shortcutCooldown time.Duration
	log              *slog.Logger

	inbox    chan message
	done     chan struct{}
	stopOnce sync.Once

	// Owned by the run loop (and by Start before the loop exists).
	gen      int
	bindings []Binding
	slots    map[Slot]*slotState
	src      EventSource
}

// slotState bundles one enabled binding with its machine and helpers.
type slotState struct {
	binding Binding
	press   *PressMachine
	pointer *PointerMachine
	deb     *Debouncer
	cool    cooldown
	timer   *time.Timer
}

type msgKind int

const (
	msgRaw msgKind = iota
	msgSettled
	msgPointerFire
	msgReconfigure
	msgSnapshot
)

type message struct {
	kind     msgKind
	gen      int
	ev       Event
	slot     Slot
	seq      uint64
	bindings []Binding
	reply    chan error
	snapshot chan map[Slot]RuntimeState
}

// NewEngine creates an engine for the given configuration. Call Start
// to begin monitoring.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Sessions == nil {
		return nil, errors.New("activation: engine needs a session control")
	}
	if err := ValidateBindings(cfg.Bindings); err != nil {
		return nil, err
	}
	source := cfg.Source
	if source == nil {
		source = NewHookSource
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	holdThreshold := cfg.HoldThreshold
	if holdThreshold <= 0 {
		holdThreshold = DefaultHoldThreshold
	}
	debounceWindow := cfg.DebounceWindow
	if debounceWindow <= 0 {
		debounceWindow = DefaultDebounceWindow
	}
	shortcutCooldown := cfg.ShortcutCooldown
	if shortcutCooldown <= 0 {
		shortcutCooldown = DefaultShortcutCooldown
	}
	return &Engine{
		sessions:         cfg.Sessions,
		source:           source,
		holdThreshold:    holdThreshold,
		debounceWindow:   debounceWindow,
		shortcutCooldown: shortcutCooldown,
		log:              logger,
		inbox:            make(chan message, 64),
		done:             make(chan struct{}),
		bindings:         cfg.Bindings,
	}, nil
}

// Start builds the initial monitors and launches the run loop. It must
// be called at most once; the loop exits when ctx is cancelled or the
// engine is closed.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.rebuild(e.bindings); err != nil {
		return err
	}
	go e.run(ctx)
	return nil
}

// Close shuts the engine down. Safe to call multiple times.
func (e *Engine) Close() error {
	e.stopOnce.Do(func() { close(e.done) })
	return nil
}

// Reconfigure atomically replaces the binding set: existing monitors are
// torn down, every binding's runtime state is discarded, and monitors
// for the new set are built. A validation failure leaves the running
// configuration untouched.
func (e *Engine) Reconfigure(bindings []Binding) error {
	reply := make(chan error, 1)
	select {
	case e.inbox <- message{kind: msgReconfigure, bindings: bindings, reply: reply}:
	case <-e.done:
		return ErrEngineClosed
	}
	select {
	case err := <-reply:
		return err
	case <-e.done:
		return ErrEngineClosed
	}
}

// Runtime returns a snapshot of every enabled binding's machine state.
func (e *Engine) Runtime() map[Slot]RuntimeState {
	snapshot := make(chan map[Slot]RuntimeState, 1)
	select {
	case e.inbox <- message{kind: msgSnapshot, snapshot: snapshot}:
	case <-e.done:
		return nil
	}
	select {
	case s := <-snapshot:
		return s
	case <-e.done:
		return nil
	}
}

func (e *Engine) run(ctx context.Context) {
	defer e.teardown()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		case m := <-e.inbox:
			e.handle(m)
		}
	}
}

func (e *Engine) handle(m message) {
	switch m.kind {
	case msgReconfigure:
		m.reply <- e.rebuild(m.bindings)
	case msgSnapshot:
		states := make(map[Slot]RuntimeState, len(e.slots))
		for slot, st := range e.slots {
			switch {
			case st.press != nil:
				states[slot] = st.press.Runtime()
			case st.pointer != nil:
				states[slot] = st.pointer.Runtime()
			}
		}
		m.snapshot <- states
	case msgRaw:
		if m.gen != e.gen {
			return
		}
		e.dispatch(m.ev)
	case msgSettled:
		if m.gen != e.gen {
			return
		}
		if st, ok := e.slots[m.ev.Slot]; ok {
			e.feed(st, m.ev)
		}
	case msgPointerFire:
		if m.gen != e.gen {
			return
		}
		if st, ok := e.slots[m.slot]; ok && st.pointer != nil {
			e.forward(st, st.pointer.Fire(m.seq))
		}
	}
}

// dispatch routes one raw event through the binding's cooldown and
// debounce stages before it reaches the state machine.
func (e *Engine) dispatch(ev Event) {
	st, ok := e.slots[ev.Slot]
	if !ok {
		return
	}
	if st.binding.Kind == KindShortcut && !st.cool.allow(ev) {
		e.log.Debug("shortcut repeat inside cooldown, ignored", "slot", ev.Slot.String())
		return
	}
	if st.deb != nil {
		st.deb.Feed(ev)
		return
	}
	e.feed(st, ev)
}

// feed hands a settled event to the binding's machine.
func (e *Engine) feed(st *slotState, ev Event) {
	switch st.binding.Kind {
	case KindModifier, KindShortcut:
		e.forward(st, st.press.Feed(ev, e.sessions.SessionVisible()))
	case KindMiddleClick:
		switch ev.Kind {
		case Down:
			seq := st.pointer.Press()
			if st.timer != nil {
				st.timer.Stop()
			}
			gen := e.gen
			slot := st.binding.Slot
			st.timer = time.AfterFunc(st.binding.HoldDelay, func() {
				e.post(message{kind: msgPointerFire, gen: gen, slot: slot, seq: seq})
			})
		case Up:
			st.pointer.Release()
			if st.timer != nil {
				st.timer.Stop()
				st.timer = nil
			}
		}
	}
}

// forward turns a machine action into a session request. Starts are
// additionally gated here: a session that is already transcribing or
// enhancing must finish before a new one may begin.
func (e *Engine) forward(st *slotState, action Action) {
	switch action {
	case ActionStart:
		if e.sessions.Processing() {
			e.log.Debug("start suppressed, session still processing",
				"slot", st.binding.Slot.String())
			return
		}
		e.log.Info("dictation start requested",
			"slot", st.binding.Slot.String(),
			"binding", st.binding.Kind.String(),
		)
		e.sessions.RequestStart()
	case ActionStop:
		e.log.Info("dictation stop requested",
			"slot", st.binding.Slot.String(),
			"binding", st.binding.Kind.String(),
		)
		e.sessions.RequestStop()
	case ActionToggle:
		if e.sessions.SessionVisible() {
			e.forward(st, ActionStop)
		} else {
			e.forward(st, ActionStart)
		}
	}
}

// post delivers a message to the run loop unless the engine is closed.
// Only called from timer goroutines and the pump, never from the loop
// itself.
func (e *Engine) post(m message) {
	select {
	case e.inbox <- m:
	case <-e.done:
	}
}

// rebuild replaces the binding set. Validation runs first so a bad
// configuration cannot take down working monitors.
func (e *Engine) rebuild(updated []Binding) error {
	resolved := ResolveDuplicateKeys(e.bindings, updated)
	if err := ValidateBindings(resolved); err != nil {
		return fmt.Errorf("activation: reconfigure rejected: %w", err)
	}

	e.teardown()
	e.gen++
	e.bindings = resolved
	e.slots = make(map[Slot]*slotState)

	var enabled []Binding
	for _, b := range resolved {
		if !b.Enabled {
			continue
		}
		st := &slotState{binding: b}
		switch b.Kind {
		case KindModifier, KindShortcut:
			st.press = NewPressMachine(e.holdThreshold)
			if b.Kind == KindShortcut {
				st.cool = cooldown{window: e.shortcutCooldown}
			}
			if b.Kind == KindModifier && b.Debounced {
				gen := e.gen
				st.deb = NewDebouncer(e.debounceWindow, func(ev Event) {
					e.post(message{kind: msgSettled, gen: gen, ev: ev})
				})
			}
		case KindMiddleClick:
			st.pointer = &PointerMachine{}
		}
		e.slots[b.Slot] = st
		enabled = append(enabled, b)
	}

	if len(enabled) == 0 {
		e.log.Info("no bindings enabled, input monitoring paused")
		return nil
	}

	src, err := e.source(enabled)
	if err != nil {
		return fmt.Errorf("activation: building input source: %w", err)
	}
	e.src = src
	go e.pump(src, e.gen)

	e.log.Info("input monitoring configured", "bindings", len(enabled))
	return nil
}

// teardown stops monitors and discards all binding runtime state.
func (e *Engine) teardown() {
	for _, st := range e.slots {
		if st.deb != nil {
			st.deb.Stop()
		}
		if st.timer != nil {
			st.timer.Stop()
			st.timer = nil
		}
		if st.press != nil {
			st.press.Reset()
		}
		if st.pointer != nil {
			st.pointer.Reset()
		}
	}
	if e.src != nil {
		if err := e.src.Close(); err != nil {
			e.log.Warn("closing input source", "error", err)
		}
		e.src = nil
	}
}

// pump copies events from the source into the inbox, stamping a
// generation so events from torn-down monitors are discarded.
func (e *Engine) pump(src EventSource, gen int) {
	for ev := range src.Events() {
		if ev.At.IsZero() {
			ev.At = time.Now()
		}
		e.post(message{kind: msgRaw, gen: gen, ev: ev})
	}
}
