package vad

import (
	"errors"
	"fmt"

	"github.com/sussurro/sussurro/pkg/audio"
)

// Default thresholds for the energy engine. Normal speech close to a
// microphone lands well above an RMS of 0.015; room noise stays below
// 0.008 on most setups.
const (
	DefaultSpeechThreshold  = 0.015
	DefaultSilenceThreshold = 0.008
)

// Energy is an RMS-based VAD engine. It cannot compete with a model
// detector on noisy audio, but it needs no native dependencies and is
// plenty for deciding "has the speaker gone quiet" during dictation.
type Energy struct{}

// NewEnergy returns the energy engine.
func NewEnergy() *Energy {
	return &Energy{}
}

// NewSession implements Engine. Zero thresholds select the defaults.
func (e *Energy) NewSession(cfg Config) (Session, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("vad: invalid sample rate %d", cfg.SampleRate)
	}
	if cfg.SpeechThreshold == 0 {
		cfg.SpeechThreshold = DefaultSpeechThreshold
	}
	if cfg.SilenceThreshold == 0 {
		cfg.SilenceThreshold = DefaultSilenceThreshold
	}
	if cfg.SpeechThreshold < 0 || cfg.SpeechThreshold > 1 {
		return nil, fmt.Errorf("vad: speech threshold %v out of range", cfg.SpeechThreshold)
	}
	if cfg.SilenceThreshold < 0 || cfg.SilenceThreshold > cfg.SpeechThreshold {
		return nil, errors.New("vad: silence threshold must be in [0, speech threshold]")
	}
	return &energySession{cfg: cfg}, nil
}

var _ Engine = (*Energy)(nil)

// energySession applies the thresholds with hysteresis: a segment starts
// at or above SpeechThreshold and only ends at or below SilenceThreshold,
// so levels wobbling between the two do not chop the segment apart.
type energySession struct {
	cfg      Config
	inSpeech bool
	closed   bool
}

func (s *energySession) Process(samples []float32) (VADEvent, error) {
	if s.closed {
		return VADEvent{}, ErrSessionClosed
	}
	rms := audio.RMS(samples)
	prob := rms / s.cfg.SpeechThreshold
	if prob > 1 {
		prob = 1
	}

	switch {
	case !s.inSpeech && rms >= s.cfg.SpeechThreshold:
		s.inSpeech = true
		return VADEvent{Type: VADSpeechStart, Probability: prob}, nil
	case s.inSpeech && rms <= s.cfg.SilenceThreshold:
		s.inSpeech = false
		return VADEvent{Type: VADSpeechEnd, Probability: prob}, nil
	case s.inSpeech:
		return VADEvent{Type: VADSpeechContinue, Probability: prob}, nil
	default:
		return VADEvent{Type: VADSilence, Probability: prob}, nil
	}
}

func (s *energySession) Reset() {
	s.inSpeech = false
}

func (s *energySession) Close() error {
	s.closed = true
	return nil
}

var _ Session = (*energySession)(nil)
