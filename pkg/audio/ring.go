package audio

import "sync"

// Ring is a thread-safe circular buffer of float32 samples. The capture layer
// writes every frame into it so late joiners (VAD tail inspection, live
// preview reconnects) can read the most recent window without coordinating
// with the writer.
type Ring struct {
	mu       sync.RWMutex
	data     []float32
	writePos int
	filled   int
}

// NewRing creates a ring buffer holding up to size samples.
func NewRing(size int) *Ring {
	if size < 1 {
		size = 1
	}
	return &Ring{data: make([]float32, size)}
}

// Write appends samples, overwriting the oldest content once full.
func (r *Ring) Write(samples []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range samples {
		r.data[r.writePos] = s
		r.writePos = (r.writePos + 1) % len(r.data)
		if r.filled < len(r.data) {
			r.filled++
		}
	}
}

// Tail returns a copy of the last n samples, fewer if the buffer holds fewer.
func (r *Ring) Tail(n int) []float32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n > r.filled {
		n = r.filled
	}
	if n == 0 {
		return nil
	}
	out := make([]float32, n)
	start := (r.writePos - n + len(r.data)) % len(r.data)
	for i := range n {
		out[i] = r.data[(start+i)%len(r.data)]
	}
	return out
}

// Len returns the number of samples currently buffered.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filled
}

// Reset empties the buffer.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writePos = 0
	r.filled = 0
}
