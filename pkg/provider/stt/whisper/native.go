// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sussurro/sussurro/pkg/audio"
	"github.com/sussurro/sussurro/pkg/provider/stt"
	"github.com/sussurro/sussurro/pkg/types"
	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Compile-time assertion that NativeProvider satisfies stt.Provider.
var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider implements stt.Provider using the whisper.cpp Go bindings
// (CGO), with no server process involved. The model is loaded lazily on the
// first Transcribe and stays resident until Unload, so selecting a different
// engine frees the memory while keeping the provider registered.
//
// Transcribe and Unload serialize on an internal lock: the model is never
// released while an inference is running.
type NativeProvider struct {
	modelPath string
	language  string
	log       *slog.Logger

	mu    sync.Mutex
	model whisperlib.Model
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the language code for transcription
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// WithNativeLogger sets the logger for model load and unload events.
// Defaults to slog.Default().
func WithNativeLogger(log *slog.Logger) NativeOption {
	return func(p *NativeProvider) { p.log = log }
}

// NewNative creates a NativeProvider for the whisper.cpp model file at
// modelPath. The model is not loaded until the first Transcribe, so
// construction is cheap and a bad path surfaces on first use.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	p := &NativeProvider{
		modelPath: modelPath,
		language:  defaultLanguage,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Engine implements stt.Provider.
func (p *NativeProvider) Engine() string { return EngineNative }

// Loaded reports whether the model is currently resident.
func (p *NativeProvider) Loaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.model != nil
}

// Unload releases the whisper model if it is loaded. The provider remains
// usable; the next Transcribe reloads the model.
func (p *NativeProvider) Unload() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model == nil {
		return nil
	}
	err := p.model.Close()
	p.model = nil
	if err != nil {
		return fmt.Errorf("whisper: unload model: %w", err)
	}
	p.log.Info("whisper model unloaded", "model", p.modelPath)
	return nil
}

// Close releases the model. Equivalent to Unload.
func (p *NativeProvider) Close() error { return p.Unload() }

// Transcribe runs whisper.cpp inference over the clip. Each call creates a
// fresh whisper context from the shared model; contexts are not reusable
// across inferences.
func (p *NativeProvider) Transcribe(ctx context.Context, clip *audio.Clip) (types.Transcript, error) {
	if clip.Empty() {
		return types.Transcript{}, errors.New("whisper: empty clip")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureModelLocked(); err != nil {
		return types.Transcript{}, err
	}
	if err := ctx.Err(); err != nil {
		return types.Transcript{}, err
	}

	wctx, err := p.model.NewContext()
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(p.language); err != nil {
		p.log.Warn("whisper language not accepted, using model default",
			"language", p.language, "err", err)
	}

	// Process blocks in CGo and cannot be interrupted mid-inference; a
	// cancelled ctx is honored at the boundaries instead.
	if err := wctx.Process(clipSamples(clip), nil, nil, nil); err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: process audio: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return types.Transcript{}, err
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return types.Transcript{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}

	return types.Transcript{
		Text:     strings.Join(parts, " "),
		IsFinal:  true,
		Language: p.language,
		Duration: clip.Duration(),
	}, nil
}

// ensureModelLocked loads the model if needed. Caller holds p.mu.
func (p *NativeProvider) ensureModelLocked() error {
	if p.model != nil {
		return nil
	}
	start := time.Now()
	model, err := whisperlib.New(p.modelPath)
	if err != nil {
		return fmt.Errorf("whisper: load model %q: %w", p.modelPath, err)
	}
	p.model = model
	p.log.Info("whisper model loaded", "model", p.modelPath, "took", time.Since(start))
	return nil
}
