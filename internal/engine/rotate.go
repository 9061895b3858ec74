package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/sussurro/sussurro/internal/credential"
	"github.com/sussurro/sussurro/pkg/audio"
	"github.com/sussurro/sussurro/pkg/provider/stt"
	"github.com/sussurro/sussurro/pkg/types"
)

// ProviderFactory builds a speech provider bound to one credential entry.
// The wiring layer closes over the engine's model and language settings;
// only the secret varies per entry.
type ProviderFactory func(entry credential.Entry) (stt.Provider, error)

// RotatingProvider is an stt.Provider that retries Transcribe across a
// credential pool. Unauthorized and rate-limited responses advance the
// pool; any other failure is returned as is. Providers are constructed
// lazily and cached per entry so rotation does not rebuild HTTP clients.
type RotatingProvider struct {
	name    string
	pool    *credential.Pool
	factory ProviderFactory

	mu    sync.Mutex
	cache map[string]stt.Provider
}

// NewRotatingProvider wraps factory-built providers with pool rotation.
// name is the engine name the wrapper answers to; it must match what the
// factory's providers report.
func NewRotatingProvider(name string, pool *credential.Pool, factory ProviderFactory) *RotatingProvider {
	return &RotatingProvider{
		name:    name,
		pool:    pool,
		factory: factory,
		cache:   make(map[string]stt.Provider),
	}
}

// Engine implements stt.Provider.
func (r *RotatingProvider) Engine() string { return r.name }

// Transcribe implements stt.Provider.
func (r *RotatingProvider) Transcribe(ctx context.Context, clip *audio.Clip) (types.Transcript, error) {
	return credential.WithRotationResult(ctx, r.pool, func(ctx context.Context, e credential.Entry) (types.Transcript, error) {
		p, err := r.provider(e)
		if err != nil {
			return types.Transcript{}, err
		}
		return p.Transcribe(ctx, clip)
	})
}

// Invalidate drops all cached providers. Called when the credential pool
// is replaced on a config reload.
func (r *RotatingProvider) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]stt.Provider)
}

func (r *RotatingProvider) provider(e credential.Entry) (stt.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.cache[e.ID]; ok {
		return p, nil
	}
	p, err := r.factory(e)
	if err != nil {
		return nil, err
	}
	r.cache[e.ID] = p
	return p, nil
}

// LiveRotatingProvider adds live preview support to [RotatingProvider]
// for engine families that stream, such as deepgram. Rotation applies to
// opening the stream; an established stream keeps its credential, since
// its provider redials with the key it was built with.
type LiveRotatingProvider struct {
	RotatingProvider
}

// NewLiveRotatingProvider wraps factory-built live-capable providers with
// pool rotation.
func NewLiveRotatingProvider(name string, pool *credential.Pool, factory ProviderFactory) *LiveRotatingProvider {
	return &LiveRotatingProvider{
		RotatingProvider: RotatingProvider{
			name:    name,
			pool:    pool,
			factory: factory,
			cache:   make(map[string]stt.Provider),
		},
	}
}

// StartLive implements stt.LivePreviewer.
func (r *LiveRotatingProvider) StartLive(ctx context.Context, cfg stt.LiveConfig) (stt.LiveSession, error) {
	return credential.WithRotationResult(ctx, r.pool, func(ctx context.Context, e credential.Entry) (stt.LiveSession, error) {
		p, err := r.provider(e)
		if err != nil {
			return nil, err
		}
		lp, ok := p.(stt.LivePreviewer)
		if !ok {
			return nil, fmt.Errorf("engine: %s provider does not support live preview", r.name)
		}
		return lp.StartLive(ctx, cfg)
	})
}

var (
	_ stt.Provider      = (*RotatingProvider)(nil)
	_ stt.Provider      = (*LiveRotatingProvider)(nil)
	_ stt.LivePreviewer = (*LiveRotatingProvider)(nil)
)
