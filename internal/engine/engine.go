// Package engine routes transcription requests to the configured speech
// engine.
//
// A Router owns the live provider registry and the selected engine name.
// Configuration reloads swap both in one step; sessions resolve the engine
// when they start, so a reload takes effect on the next session rather
// than mid-flight. The router also manages local model memory: switching
// away from an engine that holds a loaded model releases it.
//
// This package lives under internal/ because it encapsulates
// application-private routing logic and is not intended to be imported by
// external code.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sussurro/sussurro/internal/dictation"
	"github.com/sussurro/sussurro/pkg/audio"
	"github.com/sussurro/sussurro/pkg/provider/stt"
	"github.com/sussurro/sussurro/pkg/types"
)

// Unloader is implemented by providers that hold releasable resources,
// such as an in-process whisper model.
type Unloader interface {
	Unload() error
}

// Compile-time assertion that the router satisfies the session
// controller's transcriber seam.
var _ dictation.Transcriber = (*Router)(nil)

// Option is a functional option for configuring a Router.
type Option func(*Router)

// WithLogger sets the router's logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(r *Router) { r.log = log }
}

// Router resolves the selected speech engine against the provider
// registry. Safe for concurrent use.
type Router struct {
	log *slog.Logger

	mu       sync.RWMutex
	registry *stt.Registry
	selected string
}

// NewRouter creates a router with an empty registry and no selection.
// Sessions started before the first Reconfigure fail with
// ErrNoEngineSelected.
func NewRouter(opts ...Option) *Router {
	r := &Router{
		log:      slog.Default(),
		registry: stt.NewRegistry(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Reconfigure swaps the registry and the selection in one step. When the
// requested engine is not in the new registry the selection is cleared
// and an error is returned; sessions then fail with ErrNoEngineSelected
// until the configuration is fixed. A provider displaced by the swap has
// its resources released.
func (r *Router) Reconfigure(registry *stt.Registry, selected string) error {
	if registry == nil {
		registry = stt.NewRegistry()
	}
	next, ok := registry.Get(selected)

	r.mu.Lock()
	prev := r.resolveLocked()
	r.registry = registry
	if selected == "" || ok {
		r.selected = selected
	} else {
		r.selected = ""
	}
	r.mu.Unlock()

	if prev != nil && prev != next {
		r.release(prev)
	}
	if selected != "" && !ok {
		return fmt.Errorf("engine: %q is not among the configured engines %v", selected, registry.Names())
	}
	if selected != "" {
		r.log.Info("speech engine selected", "engine", selected)
	}
	return nil
}

// Select switches to another engine in the current registry. An unknown
// name is an error and leaves the selection unchanged. The displaced
// provider has its resources released.
func (r *Router) Select(name string) error {
	r.mu.Lock()
	next, ok := r.registry.Get(name)
	if !ok {
		names := r.registry.Names()
		r.mu.Unlock()
		return fmt.Errorf("engine: %q is not among the configured engines %v", name, names)
	}
	prev := r.resolveLocked()
	r.selected = name
	r.mu.Unlock()

	if prev != nil && prev != next {
		r.release(prev)
	}
	r.log.Info("speech engine selected", "engine", name)
	return nil
}

// Engine implements dictation.Transcriber. It returns the selected engine
// name, or ErrNoEngineSelected when nothing resolvable is selected.
func (r *Router) Engine() (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.selected == "" {
		return "", dictation.ErrNoEngineSelected
	}
	if _, ok := r.registry.Get(r.selected); !ok {
		return "", fmt.Errorf("%w: %q is not constructed", dictation.ErrNoEngineSelected, r.selected)
	}
	return r.selected, nil
}

// Transcribe implements dictation.Transcriber by delegating to the
// selected provider.
func (r *Router) Transcribe(ctx context.Context, clip *audio.Clip) (types.Transcript, error) {
	r.mu.RLock()
	p := r.resolveLocked()
	r.mu.RUnlock()
	if p == nil {
		return types.Transcript{}, dictation.ErrNoEngineSelected
	}
	return p.Transcribe(ctx, clip)
}

// Live returns the selected engine's live preview capability, when it
// has one.
func (r *Router) Live() (stt.LivePreviewer, bool) {
	r.mu.RLock()
	p := r.resolveLocked()
	r.mu.RUnlock()
	lp, ok := p.(stt.LivePreviewer)
	return lp, ok
}

// ReleaseModel frees resources held by the selected engine, such as an
// in-process whisper model. Called after cancelled sessions and on
// shutdown; the next session reloads lazily.
func (r *Router) ReleaseModel() {
	r.mu.RLock()
	p := r.resolveLocked()
	r.mu.RUnlock()
	if p != nil {
		r.release(p)
	}
}

// Status describes the router for readiness checks and the startup
// summary.
type Status struct {
	// Selected is the configured engine name, empty when none.
	Selected string

	// Ready reports whether the selection resolves to a constructed
	// provider.
	Ready bool

	// Engines lists the registered engine names, sorted.
	Engines []string
}

// Status reports the current selection and the registered engine names.
func (r *Router) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Status{
		Selected: r.selected,
		Ready:    r.resolveLocked() != nil,
		Engines:  r.registry.Names(),
	}
}

// resolveLocked returns the currently selected provider, or nil. Callers
// must hold r.mu.
func (r *Router) resolveLocked() stt.Provider {
	if r.selected == "" {
		return nil
	}
	p, _ := r.registry.Get(r.selected)
	return p
}

// release unloads a provider's resources when it supports that.
func (r *Router) release(p stt.Provider) {
	u, ok := p.(Unloader)
	if !ok {
		return
	}
	if err := u.Unload(); err != nil {
		r.log.Warn("engine resource release failed", "engine", p.Engine(), "err", err)
	}
}
