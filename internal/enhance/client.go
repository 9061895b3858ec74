package enhance

import (
	"context"
	"sync"

	"github.com/sussurro/sussurro/internal/credential"
	"github.com/sussurro/sussurro/pkg/provider/llm"
)

// ProviderFactory builds an LLM provider bound to one credential entry.
// The wiring layer closes over the configured provider name, model, and
// base URL; only the secret varies per entry.
type ProviderFactory func(entry credential.Entry) (llm.Provider, error)

// RotatingProvider is an llm.Provider that retries Complete across a
// credential pool. Unauthorized and rate-limited responses advance the pool;
// any other failure is returned as is. Providers are constructed lazily and
// cached per entry so rotation does not rebuild HTTP clients.
type RotatingProvider struct {
	pool    *credential.Pool
	model   string
	factory ProviderFactory

	mu    sync.Mutex
	cache map[string]llm.Provider
}

// NewRotatingProvider wraps factory-built providers with pool rotation.
func NewRotatingProvider(pool *credential.Pool, model string, factory ProviderFactory) *RotatingProvider {
	return &RotatingProvider{
		pool:    pool,
		model:   model,
		factory: factory,
		cache:   make(map[string]llm.Provider),
	}
}

// Complete implements llm.Provider.
func (r *RotatingProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return credential.WithRotationResult(ctx, r.pool, func(ctx context.Context, e credential.Entry) (*llm.CompletionResponse, error) {
		p, err := r.provider(e)
		if err != nil {
			return nil, err
		}
		return p.Complete(ctx, req)
	})
}

// Model implements llm.Provider.
func (r *RotatingProvider) Model() string { return r.model }

// Invalidate drops all cached providers. Called when the credential pool is
// replaced on a config reload.
func (r *RotatingProvider) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]llm.Provider)
}

func (r *RotatingProvider) provider(e credential.Entry) (llm.Provider, error) {
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

var _ llm.Provider = (*RotatingProvider)(nil)
