package dictation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/sussurro/sussurro/internal/observe"
	"github.com/sussurro/sussurro/pkg/types"
)

// Session outcomes as recorded in metrics.
const (
	outcomeCompleted = "completed"
	outcomeCancelled = "cancelled"
	outcomeFailed    = "failed"
)

// historyTimeout bounds the post-session bookkeeping writes, which run on
// a fresh context so that a cancelled session is still recorded.
const historyTimeout = 5 * time.Second

// session is one record→transcribe→enhance→deliver round trip. Exactly
// one goroutine (run) drives it; the controller only touches the token
// and the recording handle.
type session struct {
	id        string
	ctrl      *Controller
	ctx       context.Context
	token     *CancelToken
	recording Recording
	engine    string
	startedAt time.Time
	span      trace.Span

	record types.SessionRecord
}

// run executes the pipeline. Every exit path goes through finish, so the
// controller always returns to idle and the session is always recorded.
func (s *session) run() {
	c := s.ctrl
	defer c.wg.Done()

	s.record = types.SessionRecord{
		ID:        s.id,
		StartedAt: s.startedAt,
		Engine:    s.engine,
	}

	s.ctx, s.span = observe.StartSpan(s.ctx, "dictation.session")
	s.span.SetAttributes(observe.Attr("session_id", s.id), observe.Attr("engine", s.engine))
	defer s.span.End()

	c.metrics.ActiveSessions.Add(s.ctx, 1)
	defer c.metrics.ActiveSessions.Add(context.Background(), -1)

	if c.hooks != nil {
		c.hooks.RecordingStarted(s.ctx)
	}

	// Capture. Wait returns when the recording is stopped, aborted or
	// ends on its own.
	captureStart := time.Now()
	clip, err := s.recording.Wait(s.ctx)
	s.record.Timings.Record = time.Since(captureStart)
	if s.token.Cancelled() {
		s.finish(outcomeCancelled, nil)
		return
	}
	if err != nil {
		s.finish(outcomeFailed, fmt.Errorf("recording: %w", err))
		return
	}
	c.metrics.CaptureDuration.Record(s.ctx, s.record.Timings.Record.Seconds())
	if clip.Empty() {
		c.log.Info("empty recording discarded", "session_id", s.id)
		s.finish(outcomeCompleted, nil)
		return
	}

	// Transcription.
	c.setState(StateTranscribing)
	if c.hooks != nil {
		c.hooks.Processing(s.ctx)
	}
	if s.token.Cancelled() {
		s.finish(outcomeCancelled, nil)
		return
	}
	sttStart := time.Now()
	transcript, err := c.transcriber.Transcribe(s.ctx, clip)
	s.record.Timings.Transcribe = time.Since(sttStart)
	c.metrics.STTDuration.Record(s.ctx, s.record.Timings.Transcribe.Seconds())
	if s.token.Cancelled() {
		// A cancel that raced the transcription result wins: the text is
		// dropped even though the engine succeeded.
		s.finish(outcomeCancelled, nil)
		return
	}
	if err != nil {
		s.finish(outcomeFailed, fmt.Errorf("transcribe: %w", err))
		return
	}

	text := strings.TrimSpace(transcript.Text)
	s.record.RawText = text
	if text == "" {
		c.log.Info("empty transcript, nothing to deliver", "session_id", s.id)
		s.finish(outcomeCompleted, nil)
		return
	}

	if c.corrector != nil {
		text = c.corrector.Correct(text)
	}

	// Trigger phrases may strip a prefix/suffix and force an enhancement
	// mode. The forced mode applies to this session only.
	mode := ""
	if c.enhancer != nil {
		mode = c.enhancer.DefaultMode()
	}
	if c.detector != nil {
		if det, ok := c.detector.Detect(text); ok {
			s.record.TriggerRule = det.Rule
			c.metrics.RecordTriggerMatch(s.ctx, det.Rule)
			text = det.Stripped
			if det.Mode != "" {
				mode = det.Mode
			}
			c.log.Info("trigger rule matched", "session_id", s.id, "rule", det.Rule, "mode", mode)
		}
	}
	s.record.Mode = mode

	// Enhancement. Failures never lose the dictation: the corrected
	// transcript is delivered with a failure marker appended.
	final := text
	if mode != "" && c.enhancer != nil && text != "" {
		c.setState(StateEnhancing)
		if s.token.Cancelled() {
			s.finish(outcomeCancelled, nil)
			return
		}
		enhanceStart := time.Now()
		enhanced, err := c.enhancer.Enhance(s.ctx, text, mode)
		s.record.Timings.Enhance = time.Since(enhanceStart)
		c.metrics.EnhanceDuration.Record(s.ctx, s.record.Timings.Enhance.Seconds())
		if s.token.Cancelled() {
			s.finish(outcomeCancelled, nil)
			return
		}
		if err != nil {
			c.log.Warn("enhancement failed, delivering raw transcript", "session_id", s.id, "mode", mode, "err", err)
			final = text + enhancementFailureMarker(err)
		} else {
			final = enhanced.Text
		}
	}

	// Delivery.
	if s.token.Cancelled() {
		s.finish(outcomeCancelled, nil)
		return
	}
	s.record.FinalText = final
	deliverStart := time.Now()
	err = c.deliverer.Deliver(s.ctx, final)
	s.record.Timings.Deliver = time.Since(deliverStart)
	if err != nil {
		s.finish(outcomeFailed, fmt.Errorf("deliver: %w", err))
		return
	}
	c.metrics.DeliverDuration.Record(s.ctx, s.record.Timings.Deliver.Seconds())

	s.finish(outcomeCompleted, nil)
}

// finish returns the controller to idle and records the session. It runs
// exactly once per session, on the session goroutine.
func (s *session) finish(outcome string, err error) {
	c := s.ctrl

	s.record.FinishedAt = time.Now()
	s.record.Cancelled = outcome == outcomeCancelled
	if err != nil {
		s.record.Err = err.Error()
		c.log.Error("dictation session failed", "session_id", s.id, "err", err)
	}
	s.span.SetAttributes(observe.Attr("outcome", outcome))
	s.token.release()

	c.clearSession()

	// Bookkeeping runs on a fresh context so it survives session
	// cancellation.
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()

	if c.history != nil {
		if herr := c.history.Append(ctx, s.record); herr != nil {
			c.log.Warn("recording session history", "session_id", s.id, "err", herr)
		}
	}
	c.metrics.RecordSession(ctx, outcome)
	c.metrics.SessionDuration.Record(ctx, s.record.FinishedAt.Sub(s.record.StartedAt).Seconds())
	if c.hooks != nil {
		c.hooks.SessionEnded(ctx, s.record)
	}

	c.log.Info("dictation session finished",
		"session_id", s.id,
		"outcome", outcome,
		"duration", s.record.FinishedAt.Sub(s.record.StartedAt),
		"chars", len(s.record.FinalText))
}

// enhancementFailureMarker formats the suffix appended to the transcript
// when enhancement fails, so the user sees both the text and the reason.
func enhancementFailureMarker(err error) string {
	return fmt.Sprintf(" [enhancement failed: %s]", err.Error())
}
