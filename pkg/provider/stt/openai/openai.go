// Package openai provides a transcription provider backed by the OpenAI
// audio API.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/sussurro/sussurro/pkg/audio"
	"github.com/sussurro/sussurro/pkg/provider/stt"
	"github.com/sussurro/sussurro/pkg/types"
)

// EngineName is the registry name of this provider.
const EngineName = "openai"

const defaultModel = string(oai.AudioModelWhisper1)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using the OpenAI transcription endpoint.
type Provider struct {
	client   oai.Client
	model    string
	language string
	prompt   string
}

// config holds optional configuration for the provider.
type config struct {
	model    string
	language string
	prompt   string
	baseURL  string
	timeout  time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithModel selects the transcription model (e.g., "whisper-1",
// "gpt-4o-mini-transcribe"). Defaults to whisper-1.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithLanguage supplies the ISO-639-1 language of the audio. Empty lets the
// model detect it.
func WithLanguage(lang string) Option {
	return func(c *config) { c.language = lang }
}

// WithPrompt supplies a vocabulary hint string. Custom terms joined into the
// prompt measurably improve recognition of uncommon words.
func WithPrompt(prompt string) Option {
	return func(c *config) { c.prompt = prompt }
}

// WithBaseURL overrides the default API base URL for OpenAI-compatible
// transcription servers.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout, including the audio upload.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs an OpenAI transcription Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}

	cfg := &config{model: defaultModel}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{
		client:   oai.NewClient(reqOpts...),
		model:    cfg.model,
		language: cfg.language,
		prompt:   cfg.prompt,
	}, nil
}

// Engine implements stt.Provider.
func (p *Provider) Engine() string { return EngineName }

// Transcribe uploads the clip as WAV and returns the transcription.
func (p *Provider) Transcribe(ctx context.Context, clip *audio.Clip) (types.Transcript, error) {
	if clip.Empty() {
		return types.Transcript{}, errors.New("openai: empty clip")
	}

	wav := audio.EncodeWAV(clip.Samples, clip.SampleRate)
	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(wav), "clip.wav", "audio/wav"),
		Model: oai.AudioModel(p.model),
	}
	if p.language != "" {
		params.Language = param.NewOpt(p.language)
	}
	if p.prompt != "" {
		params.Prompt = param.NewOpt(p.prompt)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return types.Transcript{}, wrapError(err)
	}

	return types.Transcript{
		Text:     strings.TrimSpace(resp.Text),
		IsFinal:  true,
		Language: p.language,
		Duration: clip.Duration(),
	}, nil
}

// wrapError surfaces the HTTP status of API failures so the credential
// rotation policy can classify them.
func wrapError(err error) error {
	var apierr *oai.Error
	if errors.As(err, &apierr) {
		return &types.StatusError{Code: apierr.StatusCode, Err: err}
	}
	return fmt.Errorf("openai: transcription: %w", err)
}
