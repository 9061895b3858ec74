// Package mock provides test doubles for the stt interfaces.
//
// Use Provider to script batch transcription results and Live to script a
// preview stream. All fields are safe to set before calling any method;
// mutating them during a concurrent call is the caller's responsibility.
package mock

import (
	"context"
	"sync"

	"github.com/sussurro/sussurro/pkg/audio"
	"github.com/sussurro/sussurro/pkg/provider/stt"
	"github.com/sussurro/sussurro/pkg/types"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Clip is the clip passed to Transcribe.
	Clip *audio.Clip
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// TranscribeResponse is returned by Transcribe.
	TranscribeResponse types.Transcript

	// TranscribeErr, if non-nil, is returned as the error from Transcribe.
	TranscribeErr error

	// TranscribeFunc, if non-nil, is consulted instead of the static fields.
	TranscribeFunc func(ctx context.Context, clip *audio.Clip) (types.Transcript, error)

	// EngineName is returned by Engine. Defaults to "mock".
	EngineName string

	// TranscribeCalls records every invocation of Transcribe in order.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns the scripted result.
func (p *Provider) Transcribe(ctx context.Context, clip *audio.Clip) (types.Transcript, error) {
	p.mu.Lock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, Clip: clip})
	fn := p.TranscribeFunc
	resp, err := p.TranscribeResponse, p.TranscribeErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, clip)
	}
	return resp, err
}

// Engine returns EngineName, or "mock" when unset.
func (p *Provider) Engine() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.EngineName == "" {
		return "mock"
	}
	return p.EngineName
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}

// LiveSession is a scripted stt.LiveSession.
type LiveSession struct {
	mu sync.Mutex

	// SendErr, if non-nil, is returned from SendPCM.
	SendErr error

	// Sent records every chunk passed to SendPCM.
	Sent [][]float32

	// CloseCalls counts Close invocations.
	CloseCalls int
}

// SendPCM records the chunk.
func (s *LiveSession) SendPCM(samples []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendErr != nil {
		return s.SendErr
	}
	cp := make([]float32, len(samples))
	copy(cp, samples)
	s.Sent = append(s.Sent, cp)
	return nil
}

// Close counts the call.
func (s *LiveSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	return nil
}

// Live is a mock stt.LivePreviewer layered over Provider.
type Live struct {
	Provider

	// Session is handed out by StartLive. When nil a fresh LiveSession is
	// created on first use and stored back into Session.
	Session *LiveSession

	// StartLiveErr, if non-nil, fails StartLive.
	StartLiveErr error

	// LastLiveConfig holds the config of the most recent StartLive call.
	LastLiveConfig stt.LiveConfig

	// StartLiveCalls counts StartLive invocations.
	StartLiveCalls int
}

// StartLive returns the scripted session.
func (l *Live) StartLive(_ context.Context, cfg stt.LiveConfig) (stt.LiveSession, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.StartLiveCalls++
	l.LastLiveConfig = cfg
	if l.StartLiveErr != nil {
		return nil, l.StartLiveErr
	}
	if l.Session == nil {
		l.Session = &LiveSession{}
	}
	return l.Session, nil
}

// Compile-time interface assertions.
var (
	_ stt.Provider      = (*Provider)(nil)
	_ stt.LiveSession   = (*LiveSession)(nil)
	_ stt.LivePreviewer = (*Live)(nil)
)
