// Package vad defines the Engine interface for voice activity detection
// and ships an energy-based implementation.
//
// A VAD engine surfaces a frame-level speech detector as a stateful,
// per-stream session. Each session keeps its own state (hysteresis,
// smoothing history) so concurrent audio streams stay independent.
//
// VAD is synchronous by design: Process returns immediately with a
// detection result, making it suitable for the capture loop that gates
// silence auto-stop.
//
// Engines must be safe for concurrent use. A single Session must not be
// shared across goroutines unless its implementation documents otherwise.
package vad

import "errors"

// ErrSessionClosed is returned by Process after Close.
var ErrSessionClosed = errors.New("vad: session closed")

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz of the frames passed to
	// Process. Common values: 8000, 16000, 48000.
	SampleRate int

	// SpeechThreshold is the level at or above which a frame counts as
	// speech. For the energy engine this is an RMS amplitude in [0, 1].
	// Higher values reduce false positives at the cost of speech start
	// latency.
	SpeechThreshold float64

	// SilenceThreshold is the level at or below which an active speech
	// segment is considered ended. Must be ≤ SpeechThreshold; the gap
	// between the two is the hysteresis band.
	SilenceThreshold float64
}

// Session is an active detection stream. Frames are mono float32 PCM in
// [-1, 1] at the configured sample rate; frame length may vary.
type Session interface {
	// Process analyses one frame and returns the detection result. It
	// must not block; it is called from the capture loop.
	Process(samples []float32) (VADEvent, error)

	// Reset clears accumulated state without closing the session. Use
	// it when the audio stream restarts.
	Reset()

	// Close releases the session. Further Process calls fail with
	// ErrSessionClosed. Closing twice is safe.
	Close() error
}

// Engine is the factory for VAD sessions, implemented by each backend.
type Engine interface {
	// NewSession creates an independent session with the given
	// configuration, ready to accept frames.
	NewSession(cfg Config) (Session, error)
}
