package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/sussurro/sussurro/internal/capture"
	"github.com/sussurro/sussurro/internal/dictation"
	"github.com/sussurro/sussurro/internal/engine"
	"github.com/sussurro/sussurro/internal/enhance"
	"github.com/sussurro/sussurro/internal/system"
	"github.com/sussurro/sussurro/internal/trigger"
	"github.com/sussurro/sussurro/internal/vocab"
	"github.com/sussurro/sussurro/pkg/types"
)

// captureSource adapts the concrete ffmpeg recorder to the controller's
// recorder seam.
type captureSource struct {
	rec *capture.Recorder
}

func (s captureSource) Start(ctx context.Context) (dictation.Recording, error) {
	rec, err := s.rec.Start(ctx)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// swapCorrector is the corrector handed to the controller. A config
// reload replaces the inner corrector while the controller keeps one
// stable reference; nil inside means pass-through.
type swapCorrector struct {
	mu sync.RWMutex
	c  *vocab.Corrector
}

func (s *swapCorrector) swap(c *vocab.Corrector) {
	s.mu.Lock()
	s.c = c
	s.mu.Unlock()
}

func (s *swapCorrector) Correct(text string) string {
	s.mu.RLock()
	c := s.c
	s.mu.RUnlock()
	if c == nil {
		return text
	}
	return c.Correct(text)
}

// swapDetector holds the compiled trigger rules behind a lock so a
// config reload can replace them mid-flight.
type swapDetector struct {
	mu    sync.RWMutex
	rules []trigger.Rule
}

func (d *swapDetector) setRules(rules []trigger.Rule) {
	d.mu.Lock()
	d.rules = rules
	d.mu.Unlock()
}

func (d *swapDetector) Detect(text string) (dictation.Detection, bool) {
	d.mu.RLock()
	rules := d.rules
	d.mu.RUnlock()

	stripped, m := trigger.Detect(text, rules)
	if m == nil {
		return dictation.Detection{}, false
	}
	return dictation.Detection{
		Stripped: stripped,
		Rule:     m.Rule.Name,
		Mode:     m.Rule.TargetMode,
	}, true
}

// errEnhancerOff is returned when a trigger forces an enhancement mode
// but no completion provider is configured.
var errEnhancerOff = errors.New("app: enhancement is not configured")

// swapEnhancer is the enhancer handed to the controller. Nil inside
// means enhancement is off: no standing mode, and forced modes fail.
type swapEnhancer struct {
	mu  sync.RWMutex
	enh dictation.Enhancer
}

func (s *swapEnhancer) swap(enh dictation.Enhancer) {
	s.mu.Lock()
	s.enh = enh
	s.mu.Unlock()
}

func (s *swapEnhancer) DefaultMode() string {
	s.mu.RLock()
	enh := s.enh
	s.mu.RUnlock()
	if enh == nil {
		return ""
	}
	return enh.DefaultMode()
}

func (s *swapEnhancer) Enhance(ctx context.Context, text string, mode string) (types.Enhancement, error) {
	s.mu.RLock()
	enh := s.enh
	s.mu.RUnlock()
	if enh == nil {
		return types.Enhancement{}, errEnhancerOff
	}
	return enh.Enhance(ctx, text, mode)
}

// snapshotHooks captures the desktop context snapshot the moment a
// session starts recording, so the enhancement prompt describes the
// window the user dictated into rather than whatever holds focus once
// transcription finishes. A config reload swaps the snapshotter together
// with the enhancer; nil inside means context capture is off.
type snapshotHooks struct {
	mu   sync.RWMutex
	snap *enhance.Snapshotter
}

func (h *snapshotHooks) swap(s *enhance.Snapshotter) {
	h.mu.Lock()
	h.snap = s
	h.mu.Unlock()
}

func (h *snapshotHooks) current() *enhance.Snapshotter {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snap
}

func (h *snapshotHooks) RecordingStarted(ctx context.Context) {
	if s := h.current(); s != nil {
		s.Prime(ctx)
	}
}

func (h *snapshotHooks) Processing(ctx context.Context) {}

func (h *snapshotHooks) SessionEnded(ctx context.Context, rec types.SessionRecord) {
	if s := h.current(); s != nil {
		s.Discard()
	}
}

func (h *snapshotHooks) StartFailed(ctx context.Context, err error) {}

// modelHooks releases the local speech model after a cancelled session;
// the next session reloads it lazily. Engines without releasable
// resources make this a no-op.
type modelHooks struct {
	router *engine.Router
}

func (h modelHooks) RecordingStarted(ctx context.Context) {}

func (h modelHooks) Processing(ctx context.Context) {}

func (h modelHooks) SessionEnded(ctx context.Context, rec types.SessionRecord) {
	if rec.Cancelled {
		h.router.ReleaseModel()
	}
}

func (h modelHooks) StartFailed(ctx context.Context, err error) {}

// submitDeliverer presses Enter after each delivery, for setups that
// want dictated text sent off immediately. A failed keypress is logged
// rather than failing the session, since the text already landed.
type submitDeliverer struct {
	typer *system.Typer
	log   *slog.Logger
}

func (d *submitDeliverer) Deliver(ctx context.Context, text string) error {
	if err := d.typer.Deliver(ctx, text); err != nil {
		return err
	}
	if err := d.typer.Submit(ctx); err != nil {
		d.log.Warn("auto-submit failed, text was still delivered", "err", err)
	}
	return nil
}

// multiHooks fans session lifecycle notifications out to several
// receivers.
type multiHooks []dictation.SystemHooks

func (m multiHooks) RecordingStarted(ctx context.Context) {
	for _, h := range m {
		h.RecordingStarted(ctx)
	}
}

func (m multiHooks) Processing(ctx context.Context) {
	for _, h := range m {
		h.Processing(ctx)
	}
}

func (m multiHooks) SessionEnded(ctx context.Context, rec types.SessionRecord) {
	for _, h := range m {
		h.SessionEnded(ctx, rec)
	}
}

func (m multiHooks) StartFailed(ctx context.Context, err error) {
	for _, h := range m {
		h.StartFailed(ctx, err)
	}
}

var (
	_ dictation.Recorder    = captureSource{}
	_ dictation.Corrector   = (*swapCorrector)(nil)
	_ dictation.Detector    = (*swapDetector)(nil)
	_ dictation.Enhancer    = (*swapEnhancer)(nil)
	_ dictation.Deliverer   = (*submitDeliverer)(nil)
	_ dictation.SystemHooks = (*snapshotHooks)(nil)
	_ dictation.SystemHooks = modelHooks{}
	_ dictation.SystemHooks = multiHooks(nil)
)
