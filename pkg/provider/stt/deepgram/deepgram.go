// Package deepgram provides Deepgram-backed transcription: a batch provider
// over the prerecorded REST API, plus an optional live preview stream over
// the streaming WebSocket API (see live.go). Sessions always finalize
// through the batch path; the live stream only feeds interim display.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sussurro/sussurro/pkg/audio"
	"github.com/sussurro/sussurro/pkg/provider/stt"
	"github.com/sussurro/sussurro/pkg/types"
)

// EngineName is the registry name of this provider.
const EngineName = "deepgram"

const (
	batchEndpoint = "https://api.deepgram.com/v1/listen"
	liveEndpoint  = "wss://api.deepgram.com/v1/listen"

	defaultModel      = "nova-3"
	defaultLanguage   = "en"
	defaultSampleRate = 16000
	defaultTimeout    = 60 * time.Second
)

// Compile-time assertion that Provider implements stt.Provider and can
// stream live previews.
var (
	_ stt.Provider      = (*Provider)(nil)
	_ stt.LivePreviewer = (*Provider)(nil)
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en",
// "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// WithKeywords supplies vocabulary hints that boost recognition probability
// for uncommon words. Applied to both the batch and live requests.
func WithKeywords(words []string) Option {
	return func(p *Provider) { p.keywords = words }
}

// WithTimeout bounds a single batch request, including the audio upload.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// WithBatchEndpoint overrides the prerecorded API endpoint. Used in tests.
func WithBatchEndpoint(u string) Option {
	return func(p *Provider) { p.batchURL = u }
}

// WithLiveEndpoint overrides the streaming API endpoint. Used in tests;
// http:// URLs are accepted and upgraded.
func WithLiveEndpoint(u string) Option {
	return func(p *Provider) { p.liveURL = u }
}

// Provider implements stt.Provider backed by the Deepgram API.
type Provider struct {
	apiKey     string
	model      string
	language   string
	keywords   []string
	batchURL   string
	liveURL    string
	httpClient *http.Client
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		language:   defaultLanguage,
		batchURL:   batchEndpoint,
		liveURL:    liveEndpoint,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Engine implements stt.Provider.
func (p *Provider) Engine() string { return EngineName }

// Transcribe submits the clip to the prerecorded endpoint and returns the
// transcript of the first channel's best alternative.
func (p *Provider) Transcribe(ctx context.Context, clip *audio.Clip) (types.Transcript, error) {
	if clip.Empty() {
		return types.Transcript{}, errors.New("deepgram: empty clip")
	}

	reqURL, err := p.buildBatchURL()
	if err != nil {
		return types.Transcript{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	wav := audio.EncodeWAV(clip.Samples, clip.SampleRate)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(wav))
	if err != nil {
		return types.Transcript{}, fmt.Errorf("deepgram: create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("deepgram: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return types.Transcript{}, &types.StatusError{
			Code: resp.StatusCode,
			Err:  fmt.Errorf("deepgram: %s", strings.TrimSpace(string(msg))),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("deepgram: read response body: %w", err)
	}

	t, err := parseBatchResponse(data)
	if err != nil {
		return types.Transcript{}, err
	}
	t.Language = p.language
	t.Duration = clip.Duration()
	return t, nil
}

// buildBatchURL constructs the prerecorded endpoint URL with query params.
func (p *Provider) buildBatchURL() (string, error) {
	u, err := url.Parse(p.batchURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", p.language)
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	for _, kw := range p.keywords {
		q.Add("keywords", kw)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// buildLiveURL constructs the streaming endpoint URL for the given sample
// rate. The stream carries raw s16le PCM, so encoding must be explicit.
func (p *Provider) buildLiveURL(sampleRate int) (string, error) {
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	u, err := url.Parse(p.liveURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", p.language)
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("channels", "1")
	for _, kw := range p.keywords {
		q.Add("keywords", kw)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// batchResponse is the JSON shape of a prerecorded transcription result.
type batchResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
				Words      []struct {
					Word       string  `json:"word"`
					Start      float64 `json:"start"`
					End        float64 `json:"end"`
					Confidence float64 `json:"confidence"`
				} `json:"words"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// parseBatchResponse extracts the first channel's best alternative.
func parseBatchResponse(data []byte) (types.Transcript, error) {
	var resp batchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return types.Transcript{}, fmt.Errorf("deepgram: parse response: %w", err)
	}
	if len(resp.Results.Channels) == 0 || len(resp.Results.Channels[0].Alternatives) == 0 {
		return types.Transcript{}, errors.New("deepgram: response has no alternatives")
	}

	alt := resp.Results.Channels[0].Alternatives[0]
	words := make([]types.WordDetail, 0, len(alt.Words))
	for _, w := range alt.Words {
		words = append(words, types.WordDetail{
			Word:       w.Word,
			Start:      time.Duration(w.Start * float64(time.Second)),
			End:        time.Duration(w.End * float64(time.Second)),
			Confidence: w.Confidence,
		})
	}

	return types.Transcript{
		Text:       alt.Transcript,
		IsFinal:    true,
		Confidence: alt.Confidence,
		Words:      words,
	}, nil
}
