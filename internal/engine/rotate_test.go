package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sussurro/sussurro/internal/credential"
	"github.com/sussurro/sussurro/internal/engine"
	"github.com/sussurro/sussurro/pkg/audio"
	"github.com/sussurro/sussurro/pkg/provider/stt"
	"github.com/sussurro/sussurro/pkg/provider/stt/mock"
	"github.com/sussurro/sussurro/pkg/types"
)

var errBoom = errors.New("boom")

func testClip() *audio.Clip {
	return &audio.Clip{Samples: []float32{0.1, 0.2}, SampleRate: 16000}
}

func twoKeyPool() *credential.Pool {
	return credential.NewPool("deepgram", []credential.Entry{
		{ID: "main", Secret: "dg-1"},
		{ID: "spare", Secret: "dg-2"},
	})
}

// scriptedFactory builds one mock provider per credential entry and
// records how often each entry was built.
type scriptedFactory struct {
	mu        sync.Mutex
	providers map[string]stt.Provider
	builds    map[string]int
}

func newScriptedFactory() *scriptedFactory {
	return &scriptedFactory{
		providers: make(map[string]stt.Provider),
		builds:    make(map[string]int),
	}
}

func (f *scriptedFactory) set(id string, p stt.Provider) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.providers[id] = p
}

func (f *scriptedFactory) buildCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.builds[id]
}

func (f *scriptedFactory) build(e credential.Entry) (stt.Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builds[e.ID]++
	p, ok := f.providers[e.ID]
	if !ok {
		return nil, errBoom
	}
	return p, nil
}

func TestRotatingProvider_RotatesOnUnauthorized(t *testing.T) {
	t.Parallel()

	rejected := &mock.Provider{
		EngineName:    "deepgram",
		TranscribeErr: &types.StatusError{Code: 401, Err: errBoom},
	}
	accepted := &mock.Provider{
		EngineName:         "deepgram",
		TranscribeResponse: types.Transcript{Text: "hello", IsFinal: true},
	}
	factory := newScriptedFactory()
	factory.set("main", rejected)
	factory.set("spare", accepted)

	r := engine.NewRotatingProvider("deepgram", twoKeyPool(), factory.build)

	tr, err := r.Transcribe(context.Background(), testClip())
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "hello" {
		t.Errorf("Text = %q, want %q", tr.Text, "hello")
	}
	if len(rejected.TranscribeCalls) != 1 || len(accepted.TranscribeCalls) != 1 {
		t.Errorf("calls = (%d, %d), want one per entry",
			len(rejected.TranscribeCalls), len(accepted.TranscribeCalls))
	}
}

func TestRotatingProvider_NonRotatableErrorReturnsImmediately(t *testing.T) {
	t.Parallel()

	failing := &mock.Provider{EngineName: "deepgram", TranscribeErr: errBoom}
	untouched := &mock.Provider{EngineName: "deepgram"}
	factory := newScriptedFactory()
	factory.set("main", failing)
	factory.set("spare", untouched)

	r := engine.NewRotatingProvider("deepgram", twoKeyPool(), factory.build)

	_, err := r.Transcribe(context.Background(), testClip())
	if !errors.Is(err, errBoom) {
		t.Fatalf("Transcribe err = %v, want errBoom", err)
	}
	if len(untouched.TranscribeCalls) != 0 {
		t.Errorf("second entry saw %d calls, want 0", len(untouched.TranscribeCalls))
	}
}

func TestRotatingProvider_Exhaustion(t *testing.T) {
	t.Parallel()

	factory := newScriptedFactory()
	for _, id := range []string{"main", "spare"} {
		factory.set(id, &mock.Provider{
			EngineName:    "deepgram",
			TranscribeErr: &types.StatusError{Code: 401, Err: errBoom},
		})
	}

	r := engine.NewRotatingProvider("deepgram", twoKeyPool(), factory.build)

	_, err := r.Transcribe(context.Background(), testClip())
	if !errors.Is(err, credential.ErrCredentialsExhausted) {
		t.Fatalf("Transcribe err = %v, want ErrCredentialsExhausted", err)
	}
}

func TestRotatingProvider_CachesProvidersPerEntry(t *testing.T) {
	t.Parallel()

	factory := newScriptedFactory()
	factory.set("main", &mock.Provider{EngineName: "deepgram"})
	pool := credential.NewPool("deepgram", []credential.Entry{{ID: "main", Secret: "dg-1"}})
	r := engine.NewRotatingProvider("deepgram", pool, factory.build)

	for i := 0; i < 3; i++ {
		if _, err := r.Transcribe(context.Background(), testClip()); err != nil {
			t.Fatalf("Transcribe #%d: %v", i, err)
		}
	}
	if got := factory.buildCount("main"); got != 1 {
		t.Errorf("factory built %d providers, want 1", got)
	}

	r.Invalidate()
	if _, err := r.Transcribe(context.Background(), testClip()); err != nil {
		t.Fatalf("Transcribe after Invalidate: %v", err)
	}
	if got := factory.buildCount("main"); got != 2 {
		t.Errorf("factory built %d providers after Invalidate, want 2", got)
	}
}

func TestRotatingProvider_EngineName(t *testing.T) {
	t.Parallel()

	r := engine.NewRotatingProvider("openai", twoKeyPool(), newScriptedFactory().build)
	if got := r.Engine(); got != "openai" {
		t.Errorf("Engine() = %q, want openai", got)
	}
}

func TestLiveRotatingProvider_StartLiveRotates(t *testing.T) {
	t.Parallel()

	rejected := &mock.Live{StartLiveErr: &types.StatusError{Code: 401, Err: errBoom}}
	rejected.EngineName = "deepgram"
	accepted := &mock.Live{}
	accepted.EngineName = "deepgram"

	factory := newScriptedFactory()
	factory.set("main", rejected)
	factory.set("spare", accepted)

	r := engine.NewLiveRotatingProvider("deepgram", twoKeyPool(), factory.build)

	sess, err := r.StartLive(context.Background(), stt.LiveConfig{SampleRate: 16000})
	if err != nil {
		t.Fatalf("StartLive: %v", err)
	}
	if sess == nil {
		t.Fatal("StartLive returned a nil session")
	}
	if rejected.StartLiveCalls != 1 || accepted.StartLiveCalls != 1 {
		t.Errorf("StartLive calls = (%d, %d), want one per entry",
			rejected.StartLiveCalls, accepted.StartLiveCalls)
	}
}

func TestLiveRotatingProvider_BatchOnlyFactory(t *testing.T) {
	t.Parallel()

	factory := newScriptedFactory()
	factory.set("main", &mock.Provider{EngineName: "deepgram"})
	factory.set("spare", &mock.Provider{EngineName: "deepgram"})

	r := engine.NewLiveRotatingProvider("deepgram", twoKeyPool(), factory.build)

	if _, err := r.StartLive(context.Background(), stt.LiveConfig{}); err == nil {
		t.Fatal("StartLive over a batch-only provider succeeded, want error")
	}
}

func TestRouter_LiveCapabilityThroughRotation(t *testing.T) {
	t.Parallel()

	live := &mock.Live{}
	live.EngineName = "deepgram"
	factory := newScriptedFactory()
	factory.set("main", live)
	factory.set("spare", live)

	wrapped := engine.NewLiveRotatingProvider("deepgram", twoKeyPool(), factory.build)
	r := engine.NewRouter(engine.WithLogger(testLogger()))
	if err := r.Reconfigure(registryWith(t, wrapped), "deepgram"); err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}

	if _, ok := r.Live(); !ok {
		t.Error("rotation wrapper must preserve live preview capability")
	}
}
