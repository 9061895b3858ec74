// Package types defines the shared types used across all sussurro packages.
//
// These types form the lingua franca between the capture layer, the
// transcription and enhancement providers, and the session controller. They are
// intentionally minimal; each package defines its own domain types, but
// cross-cutting data structures live here to avoid circular imports.
package types

import "time"

// Transcript represents a speech-to-text result from a transcription provider.
// Both partial (interim) and final transcripts use this type.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal indicates whether this is a final (authoritative) or partial (interim) transcript.
	IsFinal bool

	// Language is the detected or requested BCP-47 language code. Empty if unknown.
	Language string

	// Confidence is the overall confidence score (0.0 to 1.0). May be zero if the
	// provider does not report confidence.
	Confidence float64

	// Words contains per-word detail when available. May be nil for providers
	// that don't support word-level output.
	Words []WordDetail

	// Duration is the length of the transcribed audio.
	Duration time.Duration
}

// WordDetail holds per-word metadata from transcription providers that support it.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// Enhancement is the result of running a transcript through the text
// enhancement capability.
type Enhancement struct {
	// Text is the enhanced output.
	Text string

	// Mode is the enhancement mode that produced this result.
	Mode string

	// Model is the model identifier reported by the provider.
	Model string

	// PromptTokens and CompletionTokens are usage figures when the provider
	// reports them, zero otherwise.
	PromptTokens     int
	CompletionTokens int
}

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// SessionRecord is a complete dictation session written to the history store.
// It is the atomic unit of history: one record per record→transcribe→deliver
// round trip, whether it succeeded, failed, or was cancelled.
type SessionRecord struct {
	// ID is the session's unique identifier.
	ID string

	// StartedAt and FinishedAt bound the session wall-clock lifetime.
	StartedAt  time.Time
	FinishedAt time.Time

	// Engine is the transcription engine name that served the session.
	Engine string

	// Mode is the enhancement mode in effect, empty when enhancement was off.
	Mode string

	// RawText is the uncorrected transcript as returned by the engine.
	RawText string

	// FinalText is the delivered text (corrected, possibly enhanced).
	FinalText string

	// TriggerRule is the name of the trigger rule that fired, if any.
	TriggerRule string

	// Cancelled marks sessions that were cancelled before delivery.
	Cancelled bool

	// Err holds the surfaced error message for failed sessions, empty otherwise.
	Err string

	// Timings breaks the session down by pipeline stage.
	Timings StageTimings
}

// StageTimings records per-stage durations of one session.
type StageTimings struct {
	Record     time.Duration
	Transcribe time.Duration
	Enhance    time.Duration
	Deliver    time.Duration
}
