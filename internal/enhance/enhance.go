package enhance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/sussurro/sussurro/pkg/provider/llm"
	"github.com/sussurro/sussurro/pkg/types"
)

// ErrUnknownMode is returned when Enhance is asked for a mode that neither
// the built-in table nor the configuration defines.
var ErrUnknownMode = errors.New("enhance: unknown mode")

const (
	defaultTemperature = 0.2
	defaultMaxTokens   = 2048
)

// Config assembles an Enhancer.
type Config struct {
	// Provider performs the completions. Required.
	Provider llm.Provider

	// DefaultMode is the standing mode applied to every session. Empty
	// leaves enhancement off unless a trigger phrase forces a mode.
	DefaultMode string

	// Modes adds to or overrides the built-in mode prompts.
	Modes map[string]string

	// Snapshotter captures desktop context for the prompt. Optional.
	Snapshotter *Snapshotter

	// Temperature for completions. Zero means 0.2; enhancement wants
	// near-deterministic output.
	Temperature float64

	// MaxTokens caps the completion. Zero means 2048.
	MaxTokens int

	// Logger receives enhancement diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Enhancer rewrites transcripts through the configured LLM provider.
type Enhancer struct {
	provider    llm.Provider
	defaultMode string
	modes       map[string]string
	snapshotter *Snapshotter
	temperature float64
	maxTokens   int
	log         *slog.Logger
}

// New validates cfg and builds an Enhancer.
func New(cfg Config) (*Enhancer, error) {
	if cfg.Provider == nil {
		return nil, errors.New("enhance: Provider is required")
	}
	modes := builtinModes()
	for name, prompt := range cfg.Modes {
		name = strings.TrimSpace(name)
		if name == "" || strings.TrimSpace(prompt) == "" {
			return nil, fmt.Errorf("enhance: mode %q has an empty name or prompt", name)
		}
		modes[name] = prompt
	}
	if cfg.DefaultMode != "" {
		if _, ok := modes[cfg.DefaultMode]; !ok {
			return nil, fmt.Errorf("%w: default mode %q", ErrUnknownMode, cfg.DefaultMode)
		}
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Enhancer{
		provider:    cfg.Provider,
		defaultMode: cfg.DefaultMode,
		modes:       modes,
		snapshotter: cfg.Snapshotter,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		log:         cfg.Logger,
	}, nil
}

// DefaultMode returns the standing mode, empty when enhancement is off by
// default.
func (e *Enhancer) DefaultMode() string { return e.defaultMode }

// Modes lists all known mode names, sorted.
func (e *Enhancer) Modes() []string {
	names := make([]string, 0, len(e.modes))
	for name := range e.modes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether the named mode exists.
func (e *Enhancer) Has(mode string) bool {
	_, ok := e.modes[mode]
	return ok
}

// Enhance rewrites text according to mode. The error is terminal for the
// caller's enhancement stage only; sessions fall back to the raw transcript.
func (e *Enhancer) Enhance(ctx context.Context, text, mode string) (types.Enhancement, error) {
	prompt, ok := e.modes[mode]
	if !ok {
		return types.Enhancement{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	var snap *ContextSnapshot
	if e.snapshotter != nil {
		snap = e.snapshotter.Snapshot(ctx)
		e.log.Debug("context snapshot attached to prompt",
			"title_len", len(snap.WindowTitle),
			"clipboard_len", len(snap.Clipboard),
			"took", snap.CaptureDuration)
	}

	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: formatSystemPrompt(prompt, snap),
		Messages:     []types.Message{{Role: "user", Content: text}},
		Temperature:  e.temperature,
		MaxTokens:    e.maxTokens,
	})
	if err != nil {
		return types.Enhancement{}, fmt.Errorf("enhance: mode %q: %w", mode, err)
	}

	out := strings.TrimSpace(resp.Content)
	if out == "" {
		return types.Enhancement{}, fmt.Errorf("enhance: mode %q: model returned empty text", mode)
	}

	return types.Enhancement{
		Text:             out,
		Mode:             mode,
		Model:            e.provider.Model(),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}
