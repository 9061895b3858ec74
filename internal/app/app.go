// Package app wires all sussurro subsystems into a running daemon.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run starts input monitoring and blocks, and Shutdown tears
// everything down in reverse order.
//
// For testing, inject fakes via functional options (WithRecorder,
// WithDeliverer, WithSourceFactory). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/sussurro/sussurro/internal/activation"
	"github.com/sussurro/sussurro/internal/capture"
	"github.com/sussurro/sussurro/internal/config"
	"github.com/sussurro/sussurro/internal/credential"
	"github.com/sussurro/sussurro/internal/dictation"
	"github.com/sussurro/sussurro/internal/engine"
	"github.com/sussurro/sussurro/internal/enhance"
	"github.com/sussurro/sussurro/internal/history"
	"github.com/sussurro/sussurro/internal/observe"
	"github.com/sussurro/sussurro/internal/system"
	"github.com/sussurro/sussurro/internal/trigger"
	"github.com/sussurro/sussurro/internal/vocab"
	"github.com/sussurro/sussurro/pkg/provider/llm"
	"github.com/sussurro/sussurro/pkg/provider/llm/anyllm"
	llmopenai "github.com/sussurro/sussurro/pkg/provider/llm/openai"
	"github.com/sussurro/sussurro/pkg/provider/stt"
	"github.com/sussurro/sussurro/pkg/provider/stt/deepgram"
	sttopenai "github.com/sussurro/sussurro/pkg/provider/stt/openai"
	"github.com/sussurro/sussurro/pkg/provider/stt/whisper"
	"github.com/sussurro/sussurro/pkg/provider/vad"
)

// invalidator is a credential rotation wrapper whose cached clients must
// be dropped when pool entries change.
type invalidator interface {
	Invalidate()
}

// App owns all subsystem lifetimes and orchestrates the dictation pipeline.
type App struct {
	log     *slog.Logger
	metrics *observe.Metrics

	// mu guards the fields a config reload swaps.
	mu        sync.Mutex
	cfg       *config.Config
	pools     map[string]*credential.Pool
	keywords  []string
	sttRotors []invalidator
	llmRotor  *enhance.RotatingProvider

	router     *engine.Router
	recorder   dictation.Recorder
	deliverer  dictation.Deliverer
	corrector  *swapCorrector
	detector   *swapDetector
	enhancer   *swapEnhancer
	snapshot   *snapshotHooks
	preview    *previewTap
	history    *history.Store
	clipboard  *system.Clipboard
	controller *dictation.Controller
	hotkeys    *activation.Engine
	source     activation.SourceFactory

	// closers run back to front during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *App) { a.log = log }
}

// WithMetrics injects a metrics bundle instead of the process default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithRecorder injects a capture source instead of building the ffmpeg
// recorder from config.
func WithRecorder(r dictation.Recorder) Option {
	return func(a *App) { a.recorder = r }
}

// WithDeliverer injects a text deliverer instead of probing for typing
// tools.
func WithDeliverer(d dictation.Deliverer) Option {
	return func(a *App) { a.deliverer = d }
}

// WithSourceFactory injects the input event source factory, letting
// tests drive bindings with synthetic events instead of a hardware hook.
func WithSourceFactory(f activation.SourceFactory) Option {
	return func(a *App) { a.source = f }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The config must
// already be validated by the loader. Use Option functions to inject test
// doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:   cfg,
		log:   slog.Default(),
		pools: make(map[string]*credential.Pool),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Credential pools ──────────────────────────────────────────────
	a.applyCredentials(cfg)

	// ── 2. Vocabulary ────────────────────────────────────────────────────
	a.corrector = &swapCorrector{}
	if err := a.reloadVocab(cfg); err != nil {
		return nil, fmt.Errorf("app: init vocabulary: %w", err)
	}

	// ── 3. Speech engines ────────────────────────────────────────────────
	a.router = engine.NewRouter(engine.WithLogger(a.log))
	if err := a.rebuildEngines(cfg); err != nil {
		return nil, fmt.Errorf("app: init engines: %w", err)
	}
	a.closers = append(a.closers, func() error {
		a.router.ReleaseModel()
		return nil
	})

	// ── 4. Recorder ──────────────────────────────────────────────────────
	if err := a.initRecorder(cfg); err != nil {
		return nil, fmt.Errorf("app: init recorder: %w", err)
	}

	// ── 5. Trigger rules ─────────────────────────────────────────────────
	a.detector = &swapDetector{}
	rules, err := trigger.ParseRules(cfg.TriggerRules())
	if err != nil {
		return nil, fmt.Errorf("app: init triggers: %w", err)
	}
	a.detector.setRules(rules)

	// ── 6. Enhancer ──────────────────────────────────────────────────────
	a.clipboard = system.NewClipboard(a.log)
	a.enhancer = &swapEnhancer{}
	a.snapshot = &snapshotHooks{}
	if err := a.rebuildEnhancer(cfg); err != nil {
		return nil, fmt.Errorf("app: init enhancer: %w", err)
	}

	// ── 7. History ───────────────────────────────────────────────────────
	if cfg.History.IsEnabled() {
		store, err := history.Open(history.Config{
			Path:   cfg.History.Path,
			TTL:    cfg.History.TTL.Std(),
			Logger: a.log.With("component", "history"),
		})
		if err != nil {
			return nil, fmt.Errorf("app: init history: %w", err)
		}
		a.history = store
		a.closers = append(a.closers, store.Close)
	}

	// ── 8. Desktop integration ───────────────────────────────────────────
	hooks := a.initDesktop(cfg)

	// ── 9. Session controller ────────────────────────────────────────────
	dcfg := dictation.Config{
		Recorder:    a.recorder,
		Transcriber: a.router,
		Deliverer:   a.deliverer,
		Corrector:   a.corrector,
		Detector:    a.detector,
		Enhancer:    a.enhancer,
		Hooks:       hooks,
		Metrics:     a.metrics,
		Logger:      a.log.With("component", "dictation"),
	}
	if a.history != nil {
		dcfg.History = a.history
	}
	ctrl, err := dictation.New(dcfg)
	if err != nil {
		return nil, fmt.Errorf("app: init controller: %w", err)
	}
	a.controller = ctrl
	a.closers = append(a.closers, ctrl.Close)

	// ── 10. Input bindings ───────────────────────────────────────────────
	bindings, err := cfg.RuntimeBindings()
	if err != nil {
		return nil, fmt.Errorf("app: init bindings: %w", err)
	}
	ecfg := activation.EngineConfig{
		Bindings: bindings,
		Sessions: ctrl,
		Source:   a.source,
		Logger:   a.log.With("component", "activation"),
	}
	hk, err := activation.NewEngine(ecfg)
	if err != nil {
		return nil, fmt.Errorf("app: init bindings: %w", err)
	}
	a.hotkeys = hk
	a.closers = append(a.closers, hk.Close)

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// applyCredentials loads the configured pools, updating existing pools in
// place so the rotation wrappers that captured them see the new entries.
func (a *App) applyCredentials(cfg *config.Config) {
	seen := make(map[string]bool, len(cfg.Credentials))
	for provider, entries := range cfg.Credentials {
		es := make([]credential.Entry, 0, len(entries))
		for _, e := range entries {
			es = append(es, credential.Entry{ID: e.ID, Secret: e.Secret})
		}
		seen[provider] = true
		if pool, ok := a.pools[provider]; ok {
			pool.SetEntries(es)
			continue
		}
		a.pools[provider] = credential.NewPool(provider, es)
	}
	for provider, pool := range a.pools {
		if !seen[provider] {
			pool.SetEntries(nil)
		}
	}
}

// pool returns the named pool, creating an empty one when the config has
// no credentials section for it. Rotation over an empty pool fails with
// the exhausted error, which names the missing provider.
func (a *App) pool(provider string) *credential.Pool {
	if p, ok := a.pools[provider]; ok {
		return p
	}
	p := credential.NewPool(provider, nil)
	a.pools[provider] = p
	return p
}

// reloadVocab loads the vocabulary directory and swaps the corrector. The
// loaded terms also bias engine recognition, so engine rebuilds read
// a.keywords afterwards.
func (a *App) reloadVocab(cfg *config.Config) error {
	vc := cfg.Vocab
	if vc.Enabled != nil && !*vc.Enabled {
		a.keywords = nil
		a.corrector.swap(nil)
		return nil
	}

	voc, err := vocab.LoadDir(vc.Dir)
	if err != nil {
		return err
	}
	if voc.Empty() {
		if vc.Enabled != nil && *vc.Enabled {
			a.log.Warn("vocabulary enabled but directory has no terms", "dir", vc.Dir)
		}
		a.keywords = nil
		a.corrector.swap(nil)
		return nil
	}

	a.keywords = voc.Terms
	a.corrector.swap(vocab.NewCorrector(voc))
	a.log.Info("vocabulary loaded",
		"dir", vc.Dir, "terms", len(voc.Terms), "replacements", len(voc.Replacements))
	return nil
}

// rebuildEngines constructs the engine registry from config and points
// the router at it. Cloud engines are wrapped in credential rotation, and
// vocabulary terms are folded in as recognition hints. On error the
// router keeps its previous registry.
func (a *App) rebuildEngines(cfg *config.Config) error {
	registry := stt.NewRegistry()
	var rotors []invalidator

	if c := cfg.Engines.Whisper; c != nil {
		opts := []whisper.NativeOption{
			whisper.WithNativeLogger(a.log.With("engine", whisper.EngineNative)),
		}
		if c.Language != "" {
			opts = append(opts, whisper.WithNativeLanguage(c.Language))
		}
		p, err := whisper.NewNative(c.ModelPath, opts...)
		if err != nil {
			return fmt.Errorf("engine %s: %w", whisper.EngineNative, err)
		}
		if err := registry.Register(p); err != nil {
			return err
		}
	}

	if c := cfg.Engines.WhisperServer; c != nil {
		var opts []whisper.Option
		if c.Model != "" {
			opts = append(opts, whisper.WithModel(c.Model))
		}
		if c.Language != "" {
			opts = append(opts, whisper.WithLanguage(c.Language))
		}
		if c.Timeout > 0 {
			opts = append(opts, whisper.WithTimeout(c.Timeout.Std()))
		}
		p, err := whisper.New(c.URL, opts...)
		if err != nil {
			return fmt.Errorf("engine %s: %w", whisper.EngineServer, err)
		}
		if err := registry.Register(p); err != nil {
			return err
		}
	}

	if c := cfg.Engines.OpenAI; c != nil {
		cc := *c
		keywords := a.keywords
		factory := func(entry credential.Entry) (stt.Provider, error) {
			var opts []sttopenai.Option
			if cc.Model != "" {
				opts = append(opts, sttopenai.WithModel(cc.Model))
			}
			if cc.Language != "" {
				opts = append(opts, sttopenai.WithLanguage(cc.Language))
			}
			if cc.BaseURL != "" {
				opts = append(opts, sttopenai.WithBaseURL(cc.BaseURL))
			}
			if len(keywords) > 0 {
				opts = append(opts, sttopenai.WithPrompt(strings.Join(keywords, ", ")))
			}
			return sttopenai.New(entry.Secret, opts...)
		}
		rot := engine.NewRotatingProvider(sttopenai.EngineName, a.pool(sttopenai.EngineName), factory)
		rotors = append(rotors, rot)
		if err := registry.Register(rot); err != nil {
			return err
		}
	}

	if c := cfg.Engines.Deepgram; c != nil {
		cc := *c
		keywords := a.keywords
		factory := func(entry credential.Entry) (stt.Provider, error) {
			var opts []deepgram.Option
			if cc.Model != "" {
				opts = append(opts, deepgram.WithModel(cc.Model))
			}
			if cc.Language != "" {
				opts = append(opts, deepgram.WithLanguage(cc.Language))
			}
			if len(keywords) > 0 {
				opts = append(opts, deepgram.WithKeywords(keywords))
			}
			return deepgram.New(entry.Secret, opts...)
		}
		pool := a.pool(deepgram.EngineName)
		var rot stt.Provider
		if cc.LivePreview {
			lr := engine.NewLiveRotatingProvider(deepgram.EngineName, pool, factory)
			rotors = append(rotors, lr)
			rot = lr
		} else {
			rr := engine.NewRotatingProvider(deepgram.EngineName, pool, factory)
			rotors = append(rotors, rr)
			rot = rr
		}
		if err := registry.Register(rot); err != nil {
			return err
		}
	}

	a.sttRotors = rotors
	if err := a.router.Reconfigure(registry, cfg.Engine); err != nil {
		a.log.Warn("engine selection failed, dictation requests will be rejected",
			"engine", cfg.Engine, "err", err)
	}
	return nil
}

// initRecorder builds the ffmpeg capture recorder unless one was
// injected. Live preview taps the sample stream when the deepgram
// section asks for it.
func (a *App) initRecorder(cfg *config.Config) error {
	if a.recorder != nil {
		return nil
	}

	cc := cfg.Capture
	rcfg := capture.Config{
		Device:       cc.Device,
		Backend:      cc.Backend,
		SampleRate:   cc.SampleRate,
		MaxDuration:  cc.MaxDuration.Std(),
		AutoStop:     cc.AutoStop,
		SilenceAfter: cc.SilenceAfter.Std(),
		Logger:       a.log.With("component", "capture"),
	}
	if cc.AutoStop {
		rcfg.VAD = vad.NewEnergy()
	}
	if dg := cfg.Engines.Deepgram; dg != nil && dg.LivePreview {
		rate := cc.SampleRate
		if rate == 0 {
			rate = capture.DefaultSampleRate
		}
		a.preview = newPreviewTap(a.router, rate, a.log.With("component", "preview"))
		rcfg.OnSamples = a.preview.Feed
	}

	rec, err := capture.NewRecorder(rcfg)
	if err != nil {
		return err
	}
	a.recorder = captureSource{rec}
	a.closers = append(a.closers, rec.Close)
	return nil
}

// rebuildEnhancer assembles the enhancement stack from config and swaps
// it in. With no usable provider config the enhancer is cleared, which
// delivers raw transcripts and fails trigger-forced modes cleanly.
func (a *App) rebuildEnhancer(cfg *config.Config) error {
	ec := cfg.Enhancement
	if ec.Provider == "" || ec.Model == "" {
		if ec.Enabled || len(cfg.Triggers) > 0 {
			a.log.Warn("enhancement requested without provider and model, delivering raw transcripts")
		}
		a.llmRotor = nil
		a.enhancer.swap(nil)
		a.snapshot.swap(nil)
		return nil
	}

	rotor := enhance.NewRotatingProvider(a.pool(ec.Provider), ec.Model, llmFactory(ec))

	var snap *enhance.Snapshotter
	if ec.Context.Clipboard || ec.Context.WindowTitle {
		var (
			clip  enhance.ClipboardReader
			title enhance.WindowTitler
		)
		if ec.Context.Clipboard {
			clip = a.clipboard
		}
		if ec.Context.WindowTitle {
			title = system.NewWindowTitle(a.log)
		}
		var opts []enhance.SnapshotOption
		if ec.Context.ClipboardBudget > 0 {
			opts = append(opts, enhance.WithClipboardBudget(ec.Context.ClipboardBudget))
		}
		if ec.Context.TitleBudget > 0 {
			opts = append(opts, enhance.WithTitleBudget(ec.Context.TitleBudget))
		}
		snap = enhance.NewSnapshotter(clip, title, opts...)
	}

	mode := ""
	if ec.Enabled {
		mode = ec.Mode
		if mode == "" {
			mode = enhance.ModeClean
		}
	}

	enh, err := enhance.New(enhance.Config{
		Provider:    rotor,
		DefaultMode: mode,
		Modes:       ec.Modes,
		Snapshotter: snap,
		Temperature: ec.Temperature,
		MaxTokens:   ec.MaxTokens,
		Logger:      a.log.With("component", "enhance"),
	})
	if err != nil {
		return err
	}

	a.llmRotor = rotor
	a.enhancer.swap(enh)
	a.snapshot.swap(snap)
	return nil
}

// llmFactory returns the per-credential completion client constructor for
// the configured enhancement provider. "openai" uses the OpenAI SDK
// directly; everything else goes through the any-llm gateway.
func llmFactory(ec config.EnhancementConfig) enhance.ProviderFactory {
	if ec.Provider == "openai" {
		return func(entry credential.Entry) (llm.Provider, error) {
			var opts []llmopenai.Option
			if ec.BaseURL != "" {
				opts = append(opts, llmopenai.WithBaseURL(ec.BaseURL))
			}
			return llmopenai.New(entry.Secret, ec.Model, opts...)
		}
	}
	return func(entry credential.Entry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.Secret != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.Secret))
		}
		if ec.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(ec.BaseURL))
		}
		return anyllm.New(ec.Provider, ec.Model, opts...)
	}
}

// initDesktop builds the typer, clipboard fallback, and session feedback
// from the delivery section, and returns the hook fan-out for the
// controller.
func (a *App) initDesktop(cfg *config.Config) dictation.SystemHooks {
	if a.deliverer == nil {
		typer := system.NewTyper(string(cfg.Delivery.Typer), a.clipboard, a.log)
		if cfg.Delivery.AutoSubmit {
			a.deliverer = &submitDeliverer{typer: typer, log: a.log}
		} else {
			a.deliverer = typer
		}
	}

	feedback := system.NewFeedback(system.FeedbackConfig{
		Notify:                   cfg.Delivery.NotifyEnabled(),
		MuteWhileRecording:       cfg.Delivery.MuteSystemEnabled(),
		PauseMediaWhileRecording: cfg.Delivery.PauseMediaEnabled(),
		Logger:                   a.log,
	})

	var hooks multiHooks
	if a.preview != nil {
		hooks = append(hooks, a.preview)
	}
	hooks = append(hooks, feedback, a.snapshot, modelHooks{a.router})
	return hooks
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts input monitoring and blocks until ctx is cancelled. The
// activation engine dispatches binding events to the controller from its
// own goroutines; Run itself only waits.
func (a *App) Run(ctx context.Context) error {
	if err := a.hotkeys.Start(ctx); err != nil {
		return fmt.Errorf("app: start input monitoring: %w", err)
	}

	st := a.router.Status()
	a.log.Info("sussurro running", "engine", st.Selected, "engines", strings.Join(st.Engines, ", "))

	<-ctx.Done()
	return ctx.Err()
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// Reload applies a changed configuration to the running daemon. Hot areas
// (credentials, vocabulary, engines, triggers, enhancement, bindings)
// take effect immediately; areas wired once at startup are logged as
// needing a restart. Called from the config watcher goroutine; a failed
// area keeps its previous state.
func (a *App) Reload(next *config.Config) {
	a.mu.Lock()
	defer a.mu.Unlock()

	diff := config.Diff(a.cfg, next)
	if !diff.Changed() {
		return
	}
	a.cfg = next

	if diff.CredentialsChanged {
		a.applyCredentials(next)
		for _, r := range a.sttRotors {
			r.Invalidate()
		}
		if a.llmRotor != nil {
			a.llmRotor.Invalidate()
		}
		a.log.Info("credential pools reloaded", "providers", len(next.Credentials))
	}

	if diff.VocabChanged {
		if err := a.reloadVocab(next); err != nil {
			a.log.Error("reloading vocabulary, keeping previous terms", "err", err)
		}
	}

	if diff.EngineChanged || diff.EnginesChanged || diff.VocabChanged {
		if err := a.rebuildEngines(next); err != nil {
			a.log.Error("rebuilding engines, keeping previous registry", "err", err)
		}
	}

	if diff.TriggersChanged {
		rules, err := trigger.ParseRules(next.TriggerRules())
		if err != nil {
			a.log.Error("reloading trigger rules, keeping previous rules", "err", err)
		} else {
			a.detector.setRules(rules)
		}
	}

	if diff.EnhancementChanged {
		if err := a.rebuildEnhancer(next); err != nil {
			a.log.Error("rebuilding enhancer, keeping previous", "err", err)
		}
	}

	if diff.BindingsChanged {
		bindings, err := next.RuntimeBindings()
		if err != nil {
			a.log.Error("reloading bindings, keeping previous", "err", err)
		} else if err := a.hotkeys.Reconfigure(bindings); err != nil {
			a.log.Error("reconfiguring input bindings", "err", err)
		}
	}

	if areas := diff.RestartRequired(); len(areas) > 0 {
		a.log.Warn("changed areas take effect after a restart", "areas", strings.Join(areas, ", "))
	}

	a.log.Info("configuration reloaded")
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears subsystems down in reverse-init order: input bindings
// stop first so no new sessions start, the controller then cancels any
// in-flight session, and the stores close last. If ctx expires before
// all closers finish, the rest are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Router exposes the engine router for health and readiness probes.
func (a *App) Router() *engine.Router { return a.router }

// History exposes the session history store. Nil when history is disabled.
func (a *App) History() *history.Store { return a.history }
