package whisper_test

import (
	"context"
	"math"
	"os"
	"testing"

	"github.com/sussurro/sussurro/pkg/audio"
	"github.com/sussurro/sussurro/pkg/provider/stt/whisper"
)

// Inference needs libwhisper and a model file, so most of these tests cover
// the lifecycle around it: construction, lazy-load state, and unload. The
// real-inference test runs only when WHISPER_MODEL_PATH is set.

func TestNewNative_EmptyModelPath_ReturnsError(t *testing.T) {
	t.Parallel()
	if _, err := whisper.NewNative(""); err == nil {
		t.Fatal("expected error for empty modelPath, got nil")
	}
}

func TestNewNative_DoesNotLoadModel(t *testing.T) {
	t.Parallel()

	// The path does not exist; construction must still succeed because the
	// model only loads on first use.
	p, err := whisper.NewNative("/nonexistent/ggml-base.en.bin")
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	if p.Loaded() {
		t.Error("model reported loaded before first Transcribe")
	}
}

func TestNativeEngineName(t *testing.T) {
	t.Parallel()

	p, err := whisper.NewNative("/models/ggml-base.en.bin")
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	if got := p.Engine(); got != whisper.EngineNative {
		t.Errorf("Engine() = %q, want %q", got, whisper.EngineNative)
	}
}

func TestNativeUnload_NoopWhenNotLoaded(t *testing.T) {
	t.Parallel()

	p, err := whisper.NewNative("/models/ggml-base.en.bin")
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	if err := p.Unload(); err != nil {
		t.Errorf("Unload before load: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close before load: %v", err)
	}
}

func TestNativeTranscribe_EmptyClip(t *testing.T) {
	t.Parallel()

	p, err := whisper.NewNative("/models/ggml-base.en.bin")
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	if _, err := p.Transcribe(context.Background(), &audio.Clip{SampleRate: 16000}); err == nil {
		t.Fatal("expected error for empty clip")
	}
	if p.Loaded() {
		t.Error("empty clip must not trigger a model load")
	}
}

// TestNativeTranscribe_Integration runs real inference. It is skipped unless
// WHISPER_MODEL_PATH points at a ggml model file and libwhisper is linked.
func TestNativeTranscribe_Integration(t *testing.T) {
	modelPath := os.Getenv("WHISPER_MODEL_PATH")
	if modelPath == "" {
		t.Skip("WHISPER_MODEL_PATH not set; skipping native whisper test")
	}

	p, err := whisper.NewNative(modelPath)
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer p.Close()

	// One second of 440 Hz tone; the model should load and produce some
	// (possibly empty) transcript without erroring.
	samples := make([]float32, 16000)
	for i := range samples {
		samples[i] = float32(0.3 * math.Sin(2*math.Pi*440*float64(i)/16000))
	}
	clip := &audio.Clip{Samples: samples, SampleRate: 16000}

	if _, err := p.Transcribe(context.Background(), clip); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if !p.Loaded() {
		t.Error("model not resident after Transcribe")
	}
	if err := p.Unload(); err != nil {
		t.Errorf("Unload: %v", err)
	}
	if p.Loaded() {
		t.Error("model still resident after Unload")
	}
}
