// Package whisper provides speech-to-text backed by whisper.cpp, either
// against a running whisper-server binary over HTTP ([Provider]) or
// in-process through the CGo bindings ([NativeProvider]).
//
// whisper.cpp operates on 16 kHz mono audio; clips recorded at any other
// rate are resampled before inference. Both providers are batch engines:
// they transcribe one finished clip per call and emit no interim results.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sussurro/sussurro/pkg/audio"
	"github.com/sussurro/sussurro/pkg/provider/stt"
	"github.com/sussurro/sussurro/pkg/types"
)

// Engine names the providers register under.
const (
	// EngineServer is the registry name of the HTTP whisper-server backend.
	EngineServer = "whisper-server"

	// EngineNative is the registry name of the in-process CGo backend.
	EngineNative = "whisper"
)

const (
	// whisperRate is the sample rate whisper.cpp expects.
	whisperRate = 16000

	defaultLanguage = "en"
	defaultTimeout  = 60 * time.Second
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper-server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with, which is the default.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the language code sent to the whisper-server
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithTimeout bounds a single inference request, including upload.
// Defaults to 60s; long clips on slow hardware may need more.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// Provider implements stt.Provider against a whisper-server instance
// (the HTTP frontend that ships with whisper.cpp, POST /inference).
type Provider struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a Provider that connects to the whisper-server at serverURL
// (e.g., "http://localhost:8080"). serverURL must be non-empty. No network
// connection is made until the first Transcribe.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Engine implements stt.Provider.
func (p *Provider) Engine() string { return EngineServer }

// Transcribe encodes the clip as WAV and submits it to the whisper-server
// inference endpoint.
func (p *Provider) Transcribe(ctx context.Context, clip *audio.Clip) (types.Transcript, error) {
	if clip.Empty() {
		return types.Transcript{}, errors.New("whisper: empty clip")
	}

	wav := audio.EncodeWAV(clipSamples(clip), whisperRate)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "clip.wav")
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: write wav data: %w", err)
	}
	if p.language != "" {
		if err := mw.WriteField("language", p.language); err != nil {
			return types.Transcript{}, fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if p.model != "" {
		if err := mw.WriteField("model", p.model); err != nil {
			return types.Transcript{}, fmt.Errorf("whisper: write model field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return types.Transcript{}, fmt.Errorf("whisper: server returned HTTP %d: %s",
			resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: read response body: %w", err)
	}
	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	return types.Transcript{
		Text:     strings.TrimSpace(result.Text),
		IsFinal:  true,
		Language: p.language,
		Duration: clip.Duration(),
	}, nil
}

// ---- helpers ----------------------------------------------------------------

// clipSamples returns the clip audio at the 16 kHz rate whisper.cpp expects.
func clipSamples(clip *audio.Clip) []float32 {
	if clip.SampleRate == whisperRate {
		return clip.Samples
	}
	return audio.ResampleMono(clip.Samples, clip.SampleRate, whisperRate)
}
