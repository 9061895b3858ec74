package enhance_test

import (
	"context"
	"errors"
	"testing"

	"github.com/sussurro/sussurro/internal/credential"
	"github.com/sussurro/sussurro/internal/enhance"
	"github.com/sussurro/sussurro/pkg/provider/llm"
	llmmock "github.com/sussurro/sussurro/pkg/provider/llm/mock"
	"github.com/sussurro/sussurro/pkg/types"
)

func TestRotatingProviderRotatesOnUnauthorized(t *testing.T) {
	t.Parallel()

	pool := credential.NewPool("openai", []credential.Entry{
		{ID: "k1", Secret: "bad"},
		{ID: "k2", Secret: "good"},
	})
	backends := map[string]*llmmock.Provider{
		"k1": {CompleteErr: &types.StatusError{Code: 401}},
		"k2": {CompleteResponse: &llm.CompletionResponse{Content: "ok"}},
	}
	var built []string
	rp := enhance.NewRotatingProvider(pool, "gpt-4o-mini", func(e credential.Entry) (llm.Provider, error) {
		built = append(built, e.ID)
		return backends[e.ID], nil
	})

	resp, err := rp.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("Content = %q", resp.Content)
	}

	// The pool now points at k2; a second call must reuse the cached
	// provider instead of rebuilding it.
	if _, err := rp.Complete(context.Background(), llm.CompletionRequest{}); err != nil {
		t.Fatalf("second Complete: %v", err)
	}
	if len(built) != 2 {
		t.Errorf("factory calls = %v, want one per entry", built)
	}
	if rp.Model() != "gpt-4o-mini" {
		t.Errorf("Model = %q", rp.Model())
	}
}

func TestRotatingProviderExhaustsPool(t *testing.T) {
	t.Parallel()

	pool := credential.NewPool("openai", []credential.Entry{{ID: "only", Secret: "k"}})
	p := &llmmock.Provider{CompleteErr: &types.StatusError{Code: 429}}
	rp := enhance.NewRotatingProvider(pool, "m", func(credential.Entry) (llm.Provider, error) {
		return p, nil
	})

	_, err := rp.Complete(context.Background(), llm.CompletionRequest{})
	if !errors.Is(err, credential.ErrCredentialsExhausted) {
		t.Fatalf("err = %v, want ErrCredentialsExhausted", err)
	}
	// A pool of one gets exactly one rotation retry with the same key.
	if got := len(p.CompleteCalls); got != 2 {
		t.Errorf("Complete attempts = %d, want 2", got)
	}
}

func TestRotatingProviderTerminalErrorStops(t *testing.T) {
	t.Parallel()

	pool := credential.NewPool("openai", []credential.Entry{
		{ID: "k1", Secret: "a"},
		{ID: "k2", Secret: "b"},
	})
	inner := errors.New("model not found")
	p := &llmmock.Provider{CompleteErr: &types.StatusError{Code: 404, Err: inner}}
	rp := enhance.NewRotatingProvider(pool, "m", func(credential.Entry) (llm.Provider, error) {
		return p, nil
	})

	_, err := rp.Complete(context.Background(), llm.CompletionRequest{})
	if !errors.Is(err, inner) {
		t.Fatalf("err = %v, want the terminal provider error", err)
	}
	if got := len(p.CompleteCalls); got != 1 {
		t.Errorf("Complete attempts = %d, terminal failures must not rotate", got)
	}
	if active, _ := pool.Active(); active.ID != "k1" {
		t.Errorf("active = %q, pool must not advance on terminal errors", active.ID)
	}
}

func TestRotatingProviderFactoryErrorIsTerminal(t *testing.T) {
	t.Parallel()

	pool := credential.NewPool("openai", []credential.Entry{
		{ID: "k1", Secret: "a"},
		{ID: "k2", Secret: "b"},
	})
	boom := errors.New("bad base URL")
	rp := enhance.NewRotatingProvider(pool, "m", func(credential.Entry) (llm.Provider, error) {
		return nil, boom
	})

	_, err := rp.Complete(context.Background(), llm.CompletionRequest{})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want factory error", err)
	}
}

func TestRotatingProviderInvalidateRebuilds(t *testing.T) {
	t.Parallel()

	pool := credential.NewPool("openai", []credential.Entry{{ID: "k1", Secret: "a"}})
	var builds int
	rp := enhance.NewRotatingProvider(pool, "m", func(credential.Entry) (llm.Provider, error) {
		builds++
		return &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "ok"}}, nil
	})

	for range 2 {
		if _, err := rp.Complete(context.Background(), llm.CompletionRequest{}); err != nil {
			t.Fatalf("Complete: %v", err)
		}
	}
	if builds != 1 {
		t.Fatalf("builds = %d before Invalidate, want 1", builds)
	}

	rp.Invalidate()
	if _, err := rp.Complete(context.Background(), llm.CompletionRequest{}); err != nil {
		t.Fatalf("Complete after Invalidate: %v", err)
	}
	if builds != 2 {
		t.Errorf("builds = %d after Invalidate, want 2", builds)
	}
}
