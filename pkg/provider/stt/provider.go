// Package stt defines the provider boundary for speech-to-text backends.
//
// Providers are batch engines: a finished audio clip goes in, one
// authoritative transcript comes out. Engines that can additionally stream
// interim results while a recording is still open implement [LivePreviewer];
// the preview is advisory only and the authoritative transcript always comes
// from Transcribe, so a dropped preview socket never affects a session.
//
// Implementations must be safe for concurrent use; under the single-session
// rule only one Transcribe runs at a time, but configuration reloads may
// construct and query providers concurrently.
package stt

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sussurro/sussurro/pkg/audio"
	"github.com/sussurro/sussurro/pkg/types"
)

// Provider is the abstraction over any speech-to-text backend.
type Provider interface {
	// Transcribe runs speech-to-text over the whole clip and returns the
	// authoritative transcript. Implementations must honor ctx cancellation
	// on anything that blocks.
	Transcribe(ctx context.Context, clip *audio.Clip) (types.Transcript, error)

	// Engine returns the engine name this provider serves. It is the key
	// the registry and configuration select by.
	Engine() string
}

// LiveConfig describes a live preview stream.
type LiveConfig struct {
	// SampleRate of the PCM samples passed to SendPCM, in Hz.
	SampleRate int

	// OnFragment receives interim transcript fragments as they arrive.
	// It is called from the stream's read goroutine and must not block.
	OnFragment func(types.Transcript)
}

// LiveSession is an open preview stream. Audio flows in via SendPCM while
// fragments flow out through the configured callback.
type LiveSession interface {
	// SendPCM queues mono samples for streaming recognition. Samples may be
	// dropped when the stream is reconnecting; preview is lossy by contract.
	SendPCM(samples []float32) error

	// Close tears the stream down and stops the callback. Safe to call
	// more than once.
	Close() error
}

// LivePreviewer is implemented by providers that can stream interim
// fragments during recording.
type LivePreviewer interface {
	StartLive(ctx context.Context, cfg LiveConfig) (LiveSession, error)
}

// Registry holds the constructed providers keyed by engine name. Engine
// selection resolves against it at session start, so a reconfigured registry
// takes effect on the next session.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds p under its engine name. Registering a second provider for
// the same name is an error; replace the registry on reconfiguration instead.
func (r *Registry) Register(p Provider) error {
	name := p.Engine()
	if name == "" {
		return fmt.Errorf("stt: provider %T has an empty engine name", p)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("stt: engine %q is already registered", name)
	}
	r.providers[name] = p
	return nil
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Names lists the registered engine names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
