// Package config provides the configuration schema, loader, file watcher,
// and reload diff for the sussurro daemon.
package config

import (
	"fmt"
	"time"

	"github.com/sussurro/sussurro/internal/activation"
	"github.com/sussurro/sussurro/internal/trigger"
)

// LogLevel controls log verbosity for the daemon.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// BindingKind selects how a key binding slot is driven.
type BindingKind string

const (
	// KindModifier binds a single held modifier key.
	KindModifier BindingKind = "modifier"

	// KindShortcut binds a multi-key chord such as "ctrl+alt+d".
	KindShortcut BindingKind = "shortcut"
)

// IsValid reports whether k is a recognised binding kind.
func (k BindingKind) IsValid() bool {
	return k == KindModifier || k == KindShortcut
}

// Typer selects the text delivery tool.
type Typer string

const (
	// TyperAuto picks the first available tool at startup.
	TyperAuto Typer = "auto"

	// TyperWtype injects text with wtype (Wayland).
	TyperWtype Typer = "wtype"

	// TyperXdotool injects text with xdotool (X11).
	TyperXdotool Typer = "xdotool"

	// TyperClipboard copies the text and simulates a paste.
	TyperClipboard Typer = "clipboard"
)

// IsValid reports whether t is a recognised typer.
func (t Typer) IsValid() bool {
	switch t {
	case TyperAuto, TyperWtype, TyperXdotool, TyperClipboard:
		return true
	}
	return false
}

// Config is the root configuration structure for the daemon.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	// LogLevel controls verbosity. Empty means info.
	LogLevel LogLevel `yaml:"log_level"`

	Server      ServerConfig                  `yaml:"server"`
	Bindings    BindingsConfig                `yaml:"bindings"`
	Engine      string                        `yaml:"engine"`
	Engines     EnginesConfig                 `yaml:"engines"`
	Credentials map[string][]CredentialConfig `yaml:"credentials"`
	Capture     CaptureConfig                 `yaml:"capture"`
	Triggers    []TriggerRuleConfig           `yaml:"triggers"`
	Enhancement EnhancementConfig             `yaml:"enhancement"`
	Vocab       VocabConfig                   `yaml:"vocab"`
	History     HistoryConfig                 `yaml:"history"`
	Delivery    DeliveryConfig                `yaml:"delivery"`
}

// ServerConfig holds the metrics and health listener settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the observability server listens on
	// (e.g., "127.0.0.1:9470"). Empty disables the server entirely.
	ListenAddr string `yaml:"listen_addr"`
}

// BindingsConfig declares the three input binding slots.
type BindingsConfig struct {
	// Primary is the main push-to-talk binding.
	Primary KeyBindingConfig `yaml:"primary"`

	// Secondary is the alternate push-to-talk binding.
	Secondary KeyBindingConfig `yaml:"secondary"`

	// Pointer is the middle-mouse-button binding.
	Pointer PointerBindingConfig `yaml:"pointer"`
}

// KeyBindingConfig configures one keyboard-driven binding slot.
type KeyBindingConfig struct {
	// Kind selects the hardware source: "modifier" or "shortcut".
	Kind BindingKind `yaml:"kind"`

	// Key names the bound modifier, e.g. "rctrl", "f9", or a raw numeric
	// keycode. Only meaningful for kind modifier.
	Key string `yaml:"key"`

	// Chord is the textual shortcut, e.g. "ctrl+alt+d". Only meaningful
	// for kind shortcut.
	Chord string `yaml:"chord"`

	// Debounced routes this binding's events through the debounce slot,
	// coalescing hardware flicker. Only meaningful for kind modifier.
	Debounced bool `yaml:"debounced"`

	// Enabled activates the binding.
	Enabled bool `yaml:"enabled"`
}

// PointerBindingConfig configures the middle-mouse-button binding.
type PointerBindingConfig struct {
	// Enabled activates the binding.
	Enabled bool `yaml:"enabled"`

	// HoldDelay is how long the button must stay down before the toggle
	// fires, 0 to 5s. Zero fires immediately on press.
	HoldDelay Duration `yaml:"hold_delay"`
}

// EnginesConfig holds one optional section per known transcription
// engine. A nil section means the engine is not configured and will not
// be constructed.
type EnginesConfig struct {
	Whisper       *WhisperNativeConfig `yaml:"whisper"`
	WhisperServer *WhisperServerConfig `yaml:"whisper-server"`
	OpenAI        *OpenAIEngineConfig  `yaml:"openai"`
	Deepgram      *DeepgramConfig      `yaml:"deepgram"`
}

// Names lists the configured engine names, in declaration order.
func (e EnginesConfig) Names() []string {
	var names []string
	if e.Whisper != nil {
		names = append(names, "whisper")
	}
	if e.WhisperServer != nil {
		names = append(names, "whisper-server")
	}
	if e.OpenAI != nil {
		names = append(names, "openai")
	}
	if e.Deepgram != nil {
		names = append(names, "deepgram")
	}
	return names
}

// WhisperNativeConfig configures the in-process whisper.cpp engine.
type WhisperNativeConfig struct {
	// ModelPath is the GGML model file. Required.
	ModelPath string `yaml:"model_path"`

	// Language is the ISO-639-1 recognition language. Empty means "en".
	Language string `yaml:"language"`
}

// WhisperServerConfig configures the whisper.cpp server engine.
type WhisperServerConfig struct {
	// URL is the base address of a running whisper server. Required.
	URL string `yaml:"url"`

	// Model is the model name forwarded with each request. Optional.
	Model string `yaml:"model"`

	// Language is the ISO-639-1 recognition language. Empty means "en".
	Language string `yaml:"language"`

	// Timeout bounds one transcription request. Zero uses the provider
	// default.
	Timeout Duration `yaml:"timeout"`
}

// OpenAIEngineConfig configures the OpenAI transcription engine.
type OpenAIEngineConfig struct {
	// Model selects the transcription model. Empty means whisper-1.
	Model string `yaml:"model"`

	// Language is the ISO-639-1 audio language. Empty lets the model
	// detect it.
	Language string `yaml:"language"`

	// BaseURL overrides the API endpoint for OpenAI-compatible servers.
	BaseURL string `yaml:"base_url"`
}

// DeepgramConfig configures the Deepgram engine.
type DeepgramConfig struct {
	// Model selects the Deepgram model. Empty means nova-3.
	Model string `yaml:"model"`

	// Language is the BCP-47 recognition language. Empty means "en".
	Language string `yaml:"language"`

	// LivePreview streams interim transcript fragments while recording.
	LivePreview bool `yaml:"live_preview"`
}

// CredentialConfig is one API key inside a provider's pool. Pools are
// ordered; rotation walks them round-robin on auth and quota failures.
type CredentialConfig struct {
	// ID names the entry in logs and the startup summary. Required.
	ID string `yaml:"id"`

	// Secret is the key material. Supports ${VAR} environment expansion.
	Secret string `yaml:"secret"`
}

// CaptureConfig holds microphone capture settings.
type CaptureConfig struct {
	// Device is the input device passed to ffmpeg. Empty means "default".
	Device string `yaml:"device"`

	// Backend is the ffmpeg input format, typically "pulse" or "alsa".
	Backend string `yaml:"backend"`

	// SampleRate is the capture rate in Hz. Zero means 16000.
	SampleRate int `yaml:"sample_rate"`

	// MaxDuration hard-stops a runaway recording. Zero uses the capture
	// default.
	MaxDuration Duration `yaml:"max_duration"`

	// AutoStop ends a hands-free recording after trailing silence.
	AutoStop bool `yaml:"auto_stop"`

	// SilenceAfter is the trailing-silence span that triggers auto-stop.
	SilenceAfter Duration `yaml:"silence_after"`
}

// TriggerRuleConfig is one spoken trigger phrase rule.
type TriggerRuleConfig struct {
	// Name identifies the rule in logs and history. Required.
	Name string `yaml:"name"`

	// TargetMode is the enhancement mode the rule forces for the session.
	TargetMode string `yaml:"target_mode"`

	// Patterns are literal phrases or /regex/flags forms. At least one.
	Patterns []string `yaml:"patterns"`
}

// EnhancementConfig holds LLM post-processing settings.
type EnhancementConfig struct {
	// Enabled turns standing enhancement on. Trigger rules can still
	// force enhancement for single sessions while this is off.
	Enabled bool `yaml:"enabled"`

	// Mode is the standing enhancement mode. Empty means "clean".
	Mode string `yaml:"mode"`

	// Provider routes completions: "openai" uses the OpenAI SDK, any
	// other value is an any-llm gateway id such as "anthropic" or
	// "ollama".
	Provider string `yaml:"provider"`

	// Model is the completion model, e.g. "gpt-4o-mini".
	Model string `yaml:"model"`

	// BaseURL overrides the provider endpoint. Optional.
	BaseURL string `yaml:"base_url"`

	// Temperature for completions, 0 to 2. Zero means the enhancer
	// default.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps one completion. Zero means the enhancer default.
	MaxTokens int `yaml:"max_tokens"`

	// Modes adds to or overrides the built-in mode prompts, keyed by
	// mode name.
	Modes map[string]string `yaml:"modes"`

	// Context controls the desktop snapshot folded into prompts.
	Context ContextConfig `yaml:"context"`
}

// ContextConfig controls desktop context capture for enhancement prompts.
type ContextConfig struct {
	// Clipboard includes the clipboard text.
	Clipboard bool `yaml:"clipboard"`

	// ClipboardBudget caps the clipboard section in runes. Zero uses the
	// snapshot default.
	ClipboardBudget int `yaml:"clipboard_budget"`

	// WindowTitle includes the active window title.
	WindowTitle bool `yaml:"window_title"`

	// TitleBudget caps the title section in runes. Zero uses the
	// snapshot default.
	TitleBudget int `yaml:"title_budget"`
}

// VocabConfig holds vocabulary corrector settings.
type VocabConfig struct {
	// Enabled forces the corrector on or off. Unset means automatic: on
	// when the vocab directory contains terms.
	Enabled *bool `yaml:"enabled"`

	// Dir is the directory of vocabulary YAML files. Supports ${VAR}
	// expansion.
	Dir string `yaml:"dir"`
}

// HistoryConfig holds session history store settings.
type HistoryConfig struct {
	// Enabled turns the history store on. Unset means on.
	Enabled *bool `yaml:"enabled"`

	// Path is the on-disk store location. Empty keeps history in memory
	// for the lifetime of the process. Supports ${VAR} expansion.
	Path string `yaml:"path"`

	// TTL is how long records are kept. Zero uses the store default.
	TTL Duration `yaml:"ttl"`
}

// IsEnabled reports the effective history switch.
func (h HistoryConfig) IsEnabled() bool {
	return h.Enabled == nil || *h.Enabled
}

// DeliveryConfig holds text delivery and session feedback settings.
type DeliveryConfig struct {
	// Typer selects the injection tool. Empty means auto.
	Typer Typer `yaml:"typer"`

	// AutoSubmit simulates Enter after delivering the text.
	AutoSubmit bool `yaml:"auto_submit"`

	// Notify shows desktop notifications on session events. Unset means
	// on.
	Notify *bool `yaml:"notify"`

	// PauseMedia pauses playback while recording. Unset means on.
	PauseMedia *bool `yaml:"pause_media"`

	// MuteSystem mutes system audio while recording. Unset means on.
	MuteSystem *bool `yaml:"mute_system"`
}

// NotifyEnabled reports the effective notification switch.
func (d DeliveryConfig) NotifyEnabled() bool { return d.Notify == nil || *d.Notify }

// PauseMediaEnabled reports the effective media pause switch.
func (d DeliveryConfig) PauseMediaEnabled() bool { return d.PauseMedia == nil || *d.PauseMedia }

// MuteSystemEnabled reports the effective system mute switch.
func (d DeliveryConfig) MuteSystemEnabled() bool { return d.MuteSystem == nil || *d.MuteSystem }

// RuntimeBindings converts the bindings section into activation bindings.
// Key names are resolved to keycodes here so that a typo fails the load,
// not the first keypress.
func (c *Config) RuntimeBindings() ([]activation.Binding, error) {
	var out []activation.Binding

	for _, kb := range []struct {
		slot Slot
		cfg  KeyBindingConfig
	}{
		{slot: Slot{activation.SlotPrimary, "bindings.primary"}, cfg: c.Bindings.Primary},
		{slot: Slot{activation.SlotSecondary, "bindings.secondary"}, cfg: c.Bindings.Secondary},
	} {
		b, err := kb.cfg.runtime(kb.slot.slot)
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", kb.slot.label, err)
		}
		out = append(out, b)
	}

	out = append(out, activation.Binding{
		Slot:      activation.SlotPointer,
		Kind:      activation.KindMiddleClick,
		Enabled:   c.Bindings.Pointer.Enabled,
		HoldDelay: c.Bindings.Pointer.HoldDelay.Std(),
	})
	return out, nil
}

// Slot pairs an activation slot with its config label for error messages.
type Slot struct {
	slot  activation.Slot
	label string
}

// runtime converts one key binding to its activation form.
func (k KeyBindingConfig) runtime(slot activation.Slot) (activation.Binding, error) {
	b := activation.Binding{
		Slot:      slot,
		Enabled:   k.Enabled,
		Chord:     k.Chord,
		Debounced: k.Debounced,
	}
	switch k.Kind {
	case KindShortcut:
		b.Kind = activation.KindShortcut
	case KindModifier, "":
		b.Kind = activation.KindModifier
		if k.Key != "" {
			code, err := activation.LookupKey(k.Key)
			if err != nil {
				return activation.Binding{}, err
			}
			b.KeyCode = code
		}
	default:
		return activation.Binding{}, fmt.Errorf("unknown binding kind %q", k.Kind)
	}
	return b, nil
}

// TriggerRules converts the triggers section into the detector's raw rule
// form.
func (c *Config) TriggerRules() []trigger.RawRule {
	rules := make([]trigger.RawRule, 0, len(c.Triggers))
	for _, t := range c.Triggers {
		rules = append(rules, trigger.RawRule{
			Name:       t.Name,
			TargetMode: t.TargetMode,
			Patterns:   t.Patterns,
		})
	}
	return rules
}

// Duration is a time.Duration that unmarshals from YAML strings such as
// "75ms" or "2m".
type Duration time.Duration

// UnmarshalYAML parses the standard Go duration syntax.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML renders the duration in Go syntax.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }
