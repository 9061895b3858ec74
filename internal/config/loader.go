package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/sussurro/sussurro/internal/activation"
	"github.com/sussurro/sussurro/internal/enhance"
	"github.com/sussurro/sussurro/internal/trigger"
	"gopkg.in/yaml.v3"
)

// KnownEnhancementProviders lists the provider ids the enhancement layer
// can route to: "openai" via the OpenAI SDK, everything else through the
// any-llm gateway. Used by [Validate] to warn about unrecognised names.
var KnownEnhancementProviders = []string{
	"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands environment
// references and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	expandEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandEnv resolves ${VAR} references in the fields documented to
// support them. An unset variable expands to empty, which [Validate]
// then flags for required fields such as credential secrets.
func expandEnv(cfg *Config) {
	expand := func(s string) string {
		if !strings.Contains(s, "$") {
			return s
		}
		return os.Expand(s, func(name string) string {
			v, ok := os.LookupEnv(name)
			if !ok {
				slog.Warn("config references an unset environment variable", "var", name)
			}
			return v
		})
	}
	for _, entries := range cfg.Credentials {
		for i := range entries {
			entries[i].Secret = expand(entries[i].Secret)
		}
	}
	cfg.Vocab.Dir = expand(cfg.Vocab.Dir)
	cfg.History.Path = expand(cfg.History.Path)
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
// Suspicious but workable combinations are logged as warnings instead.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	// Bindings. Key names and chords are resolved here so a typo fails
	// the load, not the first keypress.
	if bindings, err := cfg.RuntimeBindings(); err != nil {
		errs = append(errs, err)
	} else if err := activation.ValidateBindings(bindings); err != nil {
		errs = append(errs, err)
	}

	// Engine selection
	engineNames := cfg.Engines.Names()
	switch {
	case cfg.Engine == "" && len(engineNames) > 0:
		slog.Warn("engine is not set; dictation cannot start until one is selected", "configured", engineNames)
	case cfg.Engine == "":
		slog.Warn("no transcription engines configured; dictation cannot start")
	case len(engineNames) == 0:
		errs = append(errs, fmt.Errorf("engine %q is not configured and no engine sections are present", cfg.Engine))
	case !slices.Contains(engineNames, cfg.Engine):
		errs = append(errs, fmt.Errorf("engine %q is not configured; configured engines: %s", cfg.Engine, strings.Join(engineNames, ", ")))
	}

	// Engine sections
	if w := cfg.Engines.Whisper; w != nil && w.ModelPath == "" {
		errs = append(errs, errors.New("engines.whisper.model_path is required"))
	}
	if ws := cfg.Engines.WhisperServer; ws != nil {
		if ws.URL == "" {
			errs = append(errs, errors.New("engines.whisper-server.url is required"))
		}
		if ws.Timeout < 0 {
			errs = append(errs, fmt.Errorf("engines.whisper-server.timeout %s is negative", ws.Timeout.Std()))
		}
	}

	// Cloud engine ↔ credential pool cross-validation
	if cfg.Engines.OpenAI != nil && len(cfg.Credentials["openai"]) == 0 {
		slog.Warn("engines.openai is configured but credentials.openai is empty; requests will be unauthenticated")
	}
	if cfg.Engines.Deepgram != nil && len(cfg.Credentials["deepgram"]) == 0 {
		slog.Warn("engines.deepgram is configured but credentials.deepgram is empty; requests will be unauthenticated")
	}

	// Credential pools
	for provider, entries := range cfg.Credentials {
		if provider == "" {
			errs = append(errs, errors.New("credentials contains an empty provider name"))
		}
		if len(entries) == 0 {
			slog.Warn("credential pool is empty", "provider", provider)
		}
		idsSeen := make(map[string]int, len(entries))
		for i, e := range entries {
			prefix := fmt.Sprintf("credentials.%s[%d]", provider, i)
			if e.ID == "" {
				errs = append(errs, fmt.Errorf("%s.id is required", prefix))
			} else {
				if prev, ok := idsSeen[e.ID]; ok {
					errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of credentials.%s[%d]", prefix, e.ID, provider, prev))
				}
				idsSeen[e.ID] = i
			}
			if e.Secret == "" {
				errs = append(errs, fmt.Errorf("%s.secret is empty", prefix))
			}
		}
	}

	// Capture
	if cfg.Capture.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("capture.sample_rate %d is negative", cfg.Capture.SampleRate))
	}
	if cfg.Capture.MaxDuration < 0 {
		errs = append(errs, fmt.Errorf("capture.max_duration %s is negative", cfg.Capture.MaxDuration.Std()))
	}
	if cfg.Capture.SilenceAfter < 0 {
		errs = append(errs, fmt.Errorf("capture.silence_after %s is negative", cfg.Capture.SilenceAfter.Std()))
	}

	// Trigger rules. ParseRules flags structural problems (missing
	// names, empty patterns, bad regex forms); duplicates are caught
	// here because the detector itself tolerates them.
	if _, err := trigger.ParseRules(cfg.TriggerRules()); err != nil {
		errs = append(errs, err)
	}
	ruleNamesSeen := make(map[string]int, len(cfg.Triggers))
	for i, t := range cfg.Triggers {
		if t.Name == "" {
			continue
		}
		if prev, ok := ruleNamesSeen[t.Name]; ok {
			errs = append(errs, fmt.Errorf("triggers[%d].name %q is a duplicate of triggers[%d]", i, t.Name, prev))
		}
		ruleNamesSeen[t.Name] = i
	}

	// Enhancement
	enh := cfg.Enhancement
	if enh.Enabled && enh.Provider == "" {
		errs = append(errs, errors.New("enhancement.enabled requires enhancement.provider"))
	}
	if enh.Enabled && enh.Model == "" {
		errs = append(errs, errors.New("enhancement.enabled requires enhancement.model"))
	}
	if enh.Provider != "" && !slices.Contains(KnownEnhancementProviders, enh.Provider) {
		slog.Warn("unknown enhancement provider; may be a typo or a third-party any-llm provider",
			"provider", enh.Provider,
			"known", KnownEnhancementProviders,
		)
	}
	if enh.Temperature < 0 || enh.Temperature > 2 {
		errs = append(errs, fmt.Errorf("enhancement.temperature %.2f is out of range [0, 2]", enh.Temperature))
	}
	if enh.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("enhancement.max_tokens %d is negative", enh.MaxTokens))
	}
	for name, prompt := range enh.Modes {
		if name == "" {
			errs = append(errs, errors.New("enhancement.modes contains an empty mode name"))
			continue
		}
		if strings.TrimSpace(prompt) == "" {
			errs = append(errs, fmt.Errorf("enhancement.modes.%s has an empty prompt", name))
		}
	}

	// Mode name cross-validation against built-ins plus custom modes.
	knownModes := map[string]bool{
		enhance.ModeClean:  true,
		enhance.ModeEmail:  true,
		enhance.ModeNote:   true,
		enhance.ModePrompt: true,
	}
	for name := range enh.Modes {
		knownModes[name] = true
	}
	if enh.Mode != "" && !knownModes[enh.Mode] {
		errs = append(errs, fmt.Errorf("enhancement.mode %q is not a built-in or configured mode", enh.Mode))
	}
	for _, t := range cfg.Triggers {
		if t.TargetMode != "" && !knownModes[t.TargetMode] {
			slog.Warn("trigger rule targets an unknown enhancement mode",
				"rule", t.Name,
				"mode", t.TargetMode,
			)
		}
	}
	if len(cfg.Triggers) > 0 && enh.Provider == "" {
		slog.Warn("trigger rules are configured but enhancement.provider is empty; matched rules cannot enhance")
	}

	// History
	if cfg.History.TTL < 0 {
		errs = append(errs, fmt.Errorf("history.ttl %s is negative", cfg.History.TTL.Std()))
	}

	// Delivery
	if cfg.Delivery.Typer != "" && !cfg.Delivery.Typer.IsValid() {
		errs = append(errs, fmt.Errorf("delivery.typer %q is invalid; valid values: auto, wtype, xdotool, clipboard", cfg.Delivery.Typer))
	}

	return errors.Join(errs...)
}
