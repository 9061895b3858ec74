package system

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/sussurro/sussurro/pkg/types"
)

// FeedbackConfig selects which desktop side effects accompany a session.
type FeedbackConfig struct {
	// Notify shows desktop notifications for failed sessions and
	// rejected starts.
	Notify bool

	// MuteWhileRecording mutes the default audio sink during capture so
	// playback does not bleed into the microphone.
	MuteWhileRecording bool

	// PauseMediaWhileRecording pauses the active media player during
	// capture and resumes it afterwards, only if it was playing.
	PauseMediaWhileRecording bool

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Feedback performs the desktop side effects of a session: mute, media
// pause and notifications. It degrades feature by feature when a tool is
// missing. All commands run on detached bounded contexts, so state is
// restored even when the session context is already cancelled.
type Feedback struct {
	run runner
	log *slog.Logger

	notifyPath    string
	pactlPath     string
	playerctlPath string

	mu     sync.Mutex
	muted  bool
	paused bool
}

// NewFeedback probes the tools the enabled features need.
func NewFeedback(cfg FeedbackConfig) *Feedback {
	return newFeedback(execRunner{}, cfg)
}

func newFeedback(run runner, cfg FeedbackConfig) *Feedback {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	f := &Feedback{run: run, log: log}
	if cfg.Notify {
		if path, err := run.look("notify-send"); err == nil {
			f.notifyPath = path
		} else {
			log.Warn("notify-send not found, notifications disabled")
		}
	}
	if cfg.MuteWhileRecording {
		if path, err := run.look("pactl"); err == nil {
			f.pactlPath = path
		} else {
			log.Warn("pactl not found, mute while recording disabled")
		}
	}
	if cfg.PauseMediaWhileRecording {
		if path, err := run.look("playerctl"); err == nil {
			f.playerctlPath = path
		} else {
			log.Warn("playerctl not found, media pause disabled")
		}
	}
	return f
}

// RecordingStarted mutes the sink and pauses playing media.
func (f *Feedback) RecordingStarted(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pactlPath != "" {
		cctx, cancel := detachedCtx()
		if _, err := f.run.run(cctx, "", "pactl", "set-sink-mute", "@DEFAULT_SINK@", "1"); err != nil {
			f.log.Warn("muting audio sink", "err", err)
		} else {
			f.muted = true
		}
		cancel()
	}
	if f.playerctlPath != "" {
		cctx, cancel := detachedCtx()
		status, err := f.run.run(cctx, "", "playerctl", "status")
		if err == nil && strings.TrimSpace(status) == "Playing" {
			if _, err := f.run.run(cctx, "", "playerctl", "pause"); err != nil {
				f.log.Warn("pausing media", "err", err)
			} else {
				f.paused = true
			}
		}
		cancel()
	}
}

// Processing restores mute and media as soon as capture ends; the user
// can listen again while transcription runs.
func (f *Feedback) Processing(ctx context.Context) {
	f.restore()
}

// SessionEnded restores desktop state (in case Processing never ran) and
// notifies about failures. Cancelled sessions end silently.
func (f *Feedback) SessionEnded(ctx context.Context, rec types.SessionRecord) {
	f.restore()
	if rec.Err != "" && !rec.Cancelled {
		f.sendNotification("Dictation failed", rec.Err)
	}
}

// StartFailed notifies that no session could be started.
func (f *Feedback) StartFailed(ctx context.Context, err error) {
	f.sendNotification("Dictation unavailable", err.Error())
}

// restore undoes mute and media pause. Idempotent.
func (f *Feedback) restore() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.muted {
		cctx, cancel := detachedCtx()
		if _, err := f.run.run(cctx, "", "pactl", "set-sink-mute", "@DEFAULT_SINK@", "0"); err != nil {
			f.log.Warn("unmuting audio sink", "err", err)
		}
		f.muted = false
		cancel()
	}
	if f.paused {
		cctx, cancel := detachedCtx()
		if _, err := f.run.run(cctx, "", "playerctl", "play"); err != nil {
			f.log.Warn("resuming media", "err", err)
		}
		f.paused = false
		cancel()
	}
}

func (f *Feedback) sendNotification(title, body string) {
	if f.notifyPath == "" {
		return
	}
	cctx, cancel := detachedCtx()
	defer cancel()
	if _, err := f.run.run(cctx, "", "notify-send", "-a", "sussurro", title, body); err != nil {
		f.log.Warn("sending notification", "err", err)
	}
}
