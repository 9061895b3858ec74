package app

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sussurro/sussurro/internal/dictation"
	"github.com/sussurro/sussurro/internal/engine"
	"github.com/sussurro/sussurro/pkg/provider/stt"
	"github.com/sussurro/sussurro/pkg/types"
)

// previewTap bridges the recorder's sample stream to the selected
// engine's live preview. It is installed as the capture tap and as a
// session lifecycle hook: recording start opens the stream, processing
// or session end closes it. Preview is display-only and lossy; a failed
// stream never affects the session.
type previewTap struct {
	router *engine.Router
	rate   int
	log    *slog.Logger

	mu sync.Mutex
	// gen invalidates a stream dial that finishes after its session
	// already moved on.
	gen  int
	sess stt.LiveSession
}

func newPreviewTap(router *engine.Router, rate int, log *slog.Logger) *previewTap {
	return &previewTap{router: router, rate: rate, log: log}
}

// Feed observes converted sample chunks from the recorder. It runs on
// the capture reader goroutine; SendPCM buffers or drops, so the tap
// never stalls ingestion. A send error ends the preview for this
// session.
func (p *previewTap) Feed(samples []float32) {
	p.mu.Lock()
	sess := p.sess
	p.mu.Unlock()
	if sess == nil {
		return
	}
	if err := sess.SendPCM(samples); err != nil {
		p.mu.Lock()
		if p.sess == sess {
			p.sess = nil
		}
		p.mu.Unlock()
	}
}

// RecordingStarted opens the preview stream when the selected engine
// supports one. The dial happens off the hook goroutine so session
// feedback is never delayed by a slow handshake.
func (p *previewTap) RecordingStarted(ctx context.Context) {
	lp, ok := p.router.Live()
	if !ok {
		return
	}

	p.mu.Lock()
	p.gen++
	gen := p.gen
	p.mu.Unlock()

	go func() {
		sess, err := lp.StartLive(ctx, stt.LiveConfig{
			SampleRate: p.rate,
			OnFragment: p.logFragment,
		})
		if err != nil {
			p.log.Warn("live preview unavailable", "err", err)
			return
		}
		p.mu.Lock()
		if p.gen != gen {
			p.mu.Unlock()
			sess.Close()
			return
		}
		p.sess = sess
		p.mu.Unlock()
	}()
}

// Processing closes the stream; capture has ended and the batch engine
// takes over.
func (p *previewTap) Processing(ctx context.Context) { p.close() }

// SessionEnded closes the stream for outcomes that skip processing,
// such as a cancelled session.
func (p *previewTap) SessionEnded(ctx context.Context, rec types.SessionRecord) { p.close() }

func (p *previewTap) StartFailed(ctx context.Context, err error) {}

func (p *previewTap) close() {
	p.mu.Lock()
	p.gen++
	sess := p.sess
	p.sess = nil
	p.mu.Unlock()
	if sess == nil {
		return
	}
	if err := sess.Close(); err != nil {
		p.log.Debug("closing live preview", "err", err)
	}
}

var _ dictation.SystemHooks = (*previewTap)(nil)

