package activation

import (
	"sync"
	"time"
)

// DefaultDebounceWindow is how long a raw transition must stay unchanged
// before it is delivered to the state machine. Flickery hardware can
// report dozens of edges per physical press; only the settled edge counts.
const DefaultDebounceWindow = 75 * time.Millisecond

// Debouncer coalesces raw Down/Up transitions for one binding. Each raw
// transition replaces the pending one and restarts the window; when the
// window elapses without a newer transition, the last-seen transition is
// delivered. Safe for concurrent use.
type Debouncer struct {
	window  time.Duration
	deliver func(Event)

	mu      sync.Mutex
	timer   *time.Timer
	pending Event
	seq     uint64
}

// NewDebouncer creates a debouncer that calls deliver with each settled
// transition. A non-positive window falls back to DefaultDebounceWindow.
func NewDebouncer(window time.Duration, deliver func(Event)) *Debouncer {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Debouncer{window: window, deliver: deliver}
}

// Feed records a raw transition, replacing any pending one.
func (d *Debouncer) Feed(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = ev
	d.seq++
	seq := d.seq
	d.timer = time.AfterFunc(d.window, func() { d.fire(seq) })
}

// fire delivers the pending transition unless a newer one superseded it
// between the timer firing and the lock being acquired.
func (d *Debouncer) fire(seq uint64) {
	d.mu.Lock()
	if seq != d.seq {
		d.mu.Unlock()
		return
	}
	ev := d.pending
	d.timer = nil
	d.mu.Unlock()
	d.deliver(ev)
}

// Stop discards any pending transition and cancels the timer. The
// debouncer may be fed again afterwards.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
}
