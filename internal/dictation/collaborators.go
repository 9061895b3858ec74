package dictation

import (
	"context"

	"github.com/sussurro/sussurro/pkg/audio"
	"github.com/sussurro/sussurro/pkg/types"
)

// Recorder starts microphone capture. The production implementation lives
// in internal/capture; tests inject fakes.
type Recorder interface {
	// Start begins capturing and returns a handle for the in-flight
	// recording. The recording ends when Stop or Abort is called, when
	// ctx is cancelled, or when the implementation decides on its own
	// (silence auto-stop, maximum length).
	Start(ctx context.Context) (Recording, error)
}

// Recording is one in-flight capture.
type Recording interface {
	// Wait blocks until the recording has ended and returns the captured
	// clip. After Stop it returns the audio captured so far; after Abort
	// it returns promptly and the result is discarded by the caller.
	Wait(ctx context.Context) (*audio.Clip, error)

	// Stop ends the recording gracefully, keeping the captured audio.
	// Safe to call more than once and after the recording already ended.
	Stop()

	// Abort ends the recording and drops the captured audio. Safe to
	// call more than once and after the recording already ended.
	Abort()
}

// Transcriber converts a finished clip to text.
type Transcriber interface {
	// Engine returns the identifier of the selected speech engine, or
	// ErrNoEngineSelected when none is configured.
	Engine() (string, error)

	// Transcribe runs speech-to-text over the whole clip and returns the
	// final transcript.
	Transcribe(ctx context.Context, clip *audio.Clip) (types.Transcript, error)
}

// Corrector applies vocabulary replacements to a raw transcript. It is
// pure text-in text-out and must not block.
type Corrector interface {
	Correct(text string) string
}

// Detection is the outcome of a trigger phrase match.
type Detection struct {
	// Stripped is the transcript with the trigger phrase removed and the
	// remainder normalized.
	Stripped string

	// Rule is the name of the rule that matched.
	Rule string

	// Mode is the enhancement mode the rule forces for this session.
	// Empty when the rule does not force a mode.
	Mode string
}

// Detector scans a corrected transcript for spoken trigger phrases.
type Detector interface {
	// Detect reports the first matching rule, if any.
	Detect(text string) (Detection, bool)
}

// Enhancer rewrites transcribed text with an LLM.
type Enhancer interface {
	// DefaultMode returns the configured enhancement mode, or "" when
	// enhancement is disabled.
	DefaultMode() string

	// Enhance rewrites text according to the given mode.
	Enhance(ctx context.Context, text string, mode string) (types.Enhancement, error)
}

// Deliverer places the final text into the focused application.
type Deliverer interface {
	Deliver(ctx context.Context, text string) error
}

// SystemHooks receives session lifecycle notifications for user feedback
// (sounds, notifications, media pause/resume). Implementations must be
// safe for concurrent use and should not block for long.
type SystemHooks interface {
	// RecordingStarted fires when capture begins.
	RecordingStarted(ctx context.Context)

	// Processing fires when capture has ended and transcription begins.
	Processing(ctx context.Context)

	// SessionEnded fires exactly once per session, whatever the outcome.
	SessionEnded(ctx context.Context, rec types.SessionRecord)

	// StartFailed fires when a start request was rejected before any
	// session existed, for example with no engine selected.
	StartFailed(ctx context.Context, err error)
}

// History persists finished session records.
type History interface {
	Append(ctx context.Context, rec types.SessionRecord) error
}
