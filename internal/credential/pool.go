package credential

import (
	"sync"
	"time"
)

// Entry is one credential in a pool.
type Entry struct {
	// ID uniquely identifies the entry within its pool.
	ID string

	// Secret is the API key or token value.
	Secret string

	// LastUsedAt is stamped every time the rotation loop hands the entry to
	// an operation. Zero until first use.
	LastUsedAt time.Time
}

// Pool holds the ordered credentials of one provider and the round-robin
// active pointer. The active pointer always points at a live entry unless the
// pool is empty.
//
// Pool is safe for concurrent use; under the single-session invariant
// concurrent callers are not expected, but updates to the active pointer are
// locked so future overlapping retries stay safe.
type Pool struct {
	mu       sync.Mutex
	provider string
	entries  []Entry
	active   int
}

// NewPool creates a pool for the named provider. The first entry is active.
func NewPool(provider string, entries []Entry) *Pool {
	return &Pool{provider: provider, entries: entries}
}

// Provider returns the provider name this pool serves.
func (p *Pool) Provider() string { return p.provider }

// Size returns the number of entries.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Active returns a copy of the active entry, or false if the pool is empty.
func (p *Pool) Active() (Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.entries) == 0 {
		return Entry{}, false
	}
	return p.entries[p.active], true
}

// Rotate advances the active pointer round-robin. For a pool of one entry
// this is a no-op by construction (the pointer wraps onto itself), which is
// exactly the semantics the rotation loop relies on.
func (p *Pool) Rotate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.entries) == 0 {
		return
	}
	p.active = nextIndex(p.active, len(p.entries))
}

// MarkUsed stamps LastUsedAt on the entry with the given id.
func (p *Pool) MarkUsed(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.entries {
		if p.entries[i].ID == id {
			p.entries[i].LastUsedAt = time.Now()
			return
		}
	}
}

// Entries returns a snapshot copy of all entries, in pool order.
func (p *Pool) Entries() []Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Entry, len(p.entries))
	copy(out, p.entries)
	return out
}

// SetEntries replaces the pool contents and resets the active pointer to the
// first entry. Used when configuration is reloaded.
func (p *Pool) SetEntries(entries []Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = entries
	p.active = 0
}

// nextIndex is the pure rotation step: the index following i in a pool of n.
func nextIndex(i, n int) int {
	if n <= 0 {
		return 0
	}
	return (i + 1) % n
}
