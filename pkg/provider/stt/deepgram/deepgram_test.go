package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/sussurro/sussurro/pkg/audio"
	"github.com/sussurro/sussurro/pkg/types"
)

func testClip(rate, n int) *audio.Clip {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = 0.25
	}
	return &audio.Clip{Samples: samples, SampleRate: rate}
}

// ---- constructor ----

func TestNew_EmptyAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != defaultModel || p.language != defaultLanguage {
		t.Errorf("defaults = (%q, %q), want (%q, %q)", p.model, p.language, defaultModel, defaultLanguage)
	}
	if p.Engine() != EngineName {
		t.Errorf("Engine() = %q, want %q", p.Engine(), EngineName)
	}
}

// ---- URL / query-param tests ----

func TestBuildBatchURL_Defaults(t *testing.T) {
	t.Parallel()

	p, _ := New("key")
	rawURL, err := p.buildBatchURL()
	if err != nil {
		t.Fatalf("buildBatchURL: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()
	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "en", q.Get("language"))
	assertEqual(t, "punctuate", "true", q.Get("punctuate"))
	assertEqual(t, "smart_format", "true", q.Get("smart_format"))
	if _, ok := q["keywords"]; ok {
		t.Error("expected no 'keywords' param when none configured")
	}
}

func TestBuildBatchURL_Keywords(t *testing.T) {
	t.Parallel()

	p, _ := New("key", WithModel("base"), WithKeywords([]string{"kubectl", "sussurro"}))
	rawURL, err := p.buildBatchURL()
	if err != nil {
		t.Fatalf("buildBatchURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	q := u.Query()
	assertEqual(t, "model", "base", q.Get("model"))

	kws := q["keywords"]
	if len(kws) != 2 {
		t.Fatalf("expected 2 keywords, got %d: %v", len(kws), kws)
	}
	found := map[string]bool{}
	for _, kw := range kws {
		found[kw] = true
	}
	if !found["kubectl"] || !found["sussurro"] {
		t.Errorf("keywords = %v, want both hints present", kws)
	}
}

// ---- JSON parsing tests ----

func TestParseBatchResponse_FullResult(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"results": {
			"channels": [{
				"alternatives": [{
					"transcript": "Hello world",
					"confidence": 0.95,
					"words": [
						{"word": "hello", "start": 0.1, "end": 0.5, "confidence": 0.97},
						{"word": "world", "start": 0.6, "end": 1.0, "confidence": 0.93}
					]
				}]
			}]
		}
	}`)

	tr, err := parseBatchResponse(raw)
	if err != nil {
		t.Fatalf("parseBatchResponse: %v", err)
	}
	assertEqual(t, "text", "Hello world", tr.Text)
	if !tr.IsFinal {
		t.Error("batch results must be final")
	}
	if tr.Confidence != 0.95 {
		t.Errorf("confidence = %f, want 0.95", tr.Confidence)
	}
	if len(tr.Words) != 2 {
		t.Fatalf("expected 2 words, got %d", len(tr.Words))
	}
	assertEqual(t, "word[0]", "hello", tr.Words[0].Word)
	if tr.Words[0].Start != time.Duration(0.1*float64(time.Second)) {
		t.Errorf("unexpected start: %v", tr.Words[0].Start)
	}
}

func TestParseBatchResponse_NoAlternatives(t *testing.T) {
	t.Parallel()
	if _, err := parseBatchResponse([]byte(`{"results":{"channels":[]}}`)); err == nil {
		t.Error("expected error when channels is empty")
	}
}

func TestParseBatchResponse_InvalidJSON(t *testing.T) {
	t.Parallel()
	if _, err := parseBatchResponse([]byte(`{invalid`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

// ---- Transcribe over HTTP ----

func TestTranscribe_SendsAuthAndWAV(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Token secret" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "audio/wav" {
			t.Errorf("Content-Type = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if len(body) < 4 || string(body[0:4]) != "RIFF" {
			t.Error("body is not a WAV upload")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": map[string]any{
				"channels": []any{map[string]any{
					"alternatives": []any{map[string]any{
						"transcript": "dictated text",
						"confidence": 0.9,
					}},
				}},
			},
		})
	}))
	defer srv.Close()

	p, _ := New("secret", WithBatchEndpoint(srv.URL))
	tr, err := p.Transcribe(context.Background(), testClip(16000, 1600))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	assertEqual(t, "text", "dictated text", tr.Text)
	assertEqual(t, "language", "en", tr.Language)
	if tr.Duration.Milliseconds() != 100 {
		t.Errorf("Duration = %v, want 100ms", tr.Duration)
	}
}

func TestTranscribe_AuthFailureIsStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"err_msg":"invalid credentials"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, _ := New("bad-key", WithBatchEndpoint(srv.URL))
	_, err := p.Transcribe(context.Background(), testClip(16000, 160))

	var coded *types.StatusError
	if !errors.As(err, &coded) {
		t.Fatalf("err = %v, want *types.StatusError", err)
	}
	if coded.Code != http.StatusUnauthorized {
		t.Errorf("Code = %d, want 401", coded.Code)
	}
}

func TestTranscribe_EmptyClip(t *testing.T) {
	t.Parallel()

	p, _ := New("key")
	if _, err := p.Transcribe(context.Background(), &audio.Clip{SampleRate: 16000}); err == nil {
		t.Fatal("expected error for empty clip")
	}
}

// ---- helpers ----

func assertEqual(t *testing.T, label, want, got string) {
	t.Helper()
	if want != got {
		t.Errorf("%s: want %q, got %q", label, want, got)
	}
}
