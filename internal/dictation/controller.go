package dictation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sussurro/sussurro/internal/observe"
)

// Config carries the collaborators and tuning for a Controller.
type Config struct {
	// Recorder captures microphone audio. Required.
	Recorder Recorder

	// Transcriber converts clips to text. Required.
	Transcriber Transcriber

	// Deliverer types the final text into the focused application. Required.
	Deliverer Deliverer

	// Corrector applies vocabulary replacements. Optional.
	Corrector Corrector

	// Detector matches spoken trigger phrases. Optional.
	Detector Detector

	// Enhancer rewrites text with an LLM. Optional; when nil, or when its
	// DefaultMode is empty and no trigger forces one, the corrected
	// transcript is delivered as-is.
	Enhancer Enhancer

	// Hooks receives lifecycle notifications. Optional.
	Hooks SystemHooks

	// History persists finished sessions. Optional.
	History History

	// Metrics records session telemetry. Defaults to observe.DefaultMetrics().
	Metrics *observe.Metrics

	// Logger for session lifecycle events. Defaults to slog.Default().
	Logger *slog.Logger
}

// Controller sequences dictation sessions. It enforces the single-session
// invariant and exposes the non-blocking request methods the activation
// engine calls from its event loop.
type Controller struct {
	recorder    Recorder
	transcriber Transcriber
	deliverer   Deliverer
	corrector   Corrector
	detector    Detector
	enhancer    Enhancer
	hooks       SystemHooks
	history     History
	metrics     *observe.Metrics
	log         *slog.Logger

	mu     sync.Mutex
	state  State
	sess   *session
	closed bool
	wg     sync.WaitGroup
}

// New validates the configuration and returns a ready Controller.
func New(cfg Config) (*Controller, error) {
	if cfg.Recorder == nil {
		return nil, errors.New("dictation: config requires a Recorder")
	}
	if cfg.Transcriber == nil {
		return nil, errors.New("dictation: config requires a Transcriber")
	}
	if cfg.Deliverer == nil {
		return nil, errors.New("dictation: config requires a Deliverer")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{
		recorder:    cfg.Recorder,
		transcriber: cfg.Transcriber,
		deliverer:   cfg.Deliverer,
		corrector:   cfg.Corrector,
		detector:    cfg.Detector,
		enhancer:    cfg.Enhancer,
		hooks:       cfg.Hooks,
		history:     cfg.History,
		metrics:     cfg.Metrics,
		log:         cfg.Logger,
		state:       StateIdle,
	}, nil
}

// State returns the current session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionVisible reports whether any session exists, in any state.
func (c *Controller) SessionVisible() bool {
	return c.State() != StateIdle
}

// Processing reports whether the active session is past capture and
// cannot be replaced yet: transcribing or enhancing.
func (c *Controller) Processing() bool {
	st := c.State()
	return st == StateTranscribing || st == StateEnhancing
}

// RequestStart begins a new session. The request is ignored when a
// session already exists or the controller is closed; a missing speech
// engine or a recorder failure is surfaced through the StartFailed hook.
func (c *Controller) RequestStart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.state != StateIdle {
		c.log.Debug("start request ignored", "state", c.state.String(), "reason", ErrSessionActive)
		return
	}

	engine, err := c.transcriber.Engine()
	if err != nil {
		c.log.Error("cannot start dictation", "err", err)
		if c.hooks != nil {
			c.hooks.StartFailed(context.Background(), err)
		}
		return
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	token := newCancelToken(cancel)

	recording, err := c.recorder.Start(ctx)
	if err != nil {
		cancel(nil)
		c.log.Error("starting recorder", "err", err)
		if c.hooks != nil {
			c.hooks.StartFailed(context.Background(), err)
		}
		return
	}

	sess := &session{
		id:        uuid.NewString(),
		ctrl:      c,
		ctx:       ctx,
		token:     token,
		recording: recording,
		engine:    engine,
		startedAt: time.Now(),
	}
	c.state = StateRecording
	c.sess = sess
	c.wg.Add(1)
	go sess.run()

	c.log.Info("dictation session started", "session_id", sess.id, "engine", engine)
}

// RequestStop ends the capture stage of the active session; the session
// then continues through transcription and delivery. Requests while idle
// or while already processing are ignored.
func (c *Controller) RequestStop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateRecording:
		c.sess.recording.Stop()
	case StateIdle:
		c.log.Debug("stop request ignored, no session")
	default:
		c.log.Debug("stop request ignored", "state", c.state.String())
	}
}

// RequestToggle starts a session when idle and stops capture when
// recording. While processing it does nothing.
func (c *Controller) RequestToggle() {
	switch c.State() {
	case StateIdle:
		c.RequestStart()
	case StateRecording:
		c.RequestStop()
	default:
		c.log.Debug("toggle request ignored", "state", c.State().String())
	}
}

// RequestCancel abandons the active session. Captured audio is dropped,
// in-flight provider results are discarded and nothing is delivered.
func (c *Controller) RequestCancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateIdle {
		return
	}
	c.log.Info("cancelling dictation session", "session_id", c.sess.id, "state", c.state.String())
	c.sess.token.Cancel()
	c.sess.recording.Abort()
}

// Close cancels any active session and waits for its goroutine to
// finish. The controller accepts no further start requests.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sess := c.sess
	c.mu.Unlock()

	if sess != nil {
		sess.token.Cancel()
		sess.recording.Abort()
	}
	c.wg.Wait()
	return nil
}

// setState publishes a pipeline stage transition.
func (c *Controller) setState(st State) {
	c.mu.Lock()
	c.state = st
	c.mu.Unlock()
}

// clearSession returns the controller to idle after a session finished.
func (c *Controller) clearSession() {
	c.mu.Lock()
	c.state = StateIdle
	c.sess = nil
	c.mu.Unlock()
}
