// Package capture records microphone audio by shelling out to ffmpeg and
// exposes it as a single mono PCM clip when the recording ends.
//
// A [Recorder] launches one ffmpeg process per recording, asks it for raw
// s16le output on stdout, and converts the stream to float32 samples as it
// arrives. The resulting [Recording] supports a graceful Stop (ffmpeg is
// interrupted and the buffered tail is kept), an Abort that discards the
// audio, an optional silence auto-stop driven by a VAD engine, and a hard
// duration ceiling.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sussurro/sussurro/pkg/audio"
	"github.com/sussurro/sussurro/pkg/provider/vad"
)

const (
	// DefaultSampleRate is the capture rate requested from ffmpeg. 16 kHz
	// mono is what every supported transcription engine expects.
	DefaultSampleRate = 16000

	// DefaultMaxDuration bounds a single recording regardless of input.
	DefaultMaxDuration = 5 * time.Minute

	// DefaultSilenceAfter is how much trailing silence ends a recording
	// when auto-stop is enabled.
	DefaultSilenceAfter = 2 * time.Second

	// readChunk is the stdout read buffer size in bytes.
	readChunk = 4096

	// ringWindow is how much recent audio the tail ring retains.
	ringWindow = 3 * time.Second
)

// ErrRecorderClosed is returned by Start after the recorder has been closed.
var ErrRecorderClosed = errors.New("capture: recorder closed")

// Config controls the capture pipeline.
type Config struct {
	// Device is the input device passed to ffmpeg. Defaults to "default".
	Device string

	// Backend is the ffmpeg input format, typically "pulse" or "alsa".
	// Defaults to "pulse".
	Backend string

	// SampleRate is the capture rate in Hz. Defaults to DefaultSampleRate.
	SampleRate int

	// MaxDuration hard-stops a recording that runs too long. Defaults to
	// DefaultMaxDuration.
	MaxDuration time.Duration

	// AutoStop enables silence-based stopping. Requires VAD.
	AutoStop bool

	// SilenceAfter is the trailing-silence span that triggers auto-stop.
	// Only consulted when AutoStop is set. Defaults to DefaultSilenceAfter.
	SilenceAfter time.Duration

	// VAD supplies speech detection for auto-stop. Ignored unless AutoStop
	// is set.
	VAD vad.Engine

	// OnSamples, when set, observes every converted sample chunk as it
	// arrives, before buffering. It runs on the reader goroutine and must
	// not block; the live preview tap feeds a streaming recognizer from
	// here.
	OnSamples func(samples []float32)

	// Logger receives capture diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Recorder launches recordings. One Recorder serves the whole process; each
// Start spawns a fresh ffmpeg.
type Recorder struct {
	cfg    Config
	log    *slog.Logger
	launch launchFunc
	closed atomic.Bool
}

// NewRecorder builds a Recorder from cfg, filling in defaults.
func NewRecorder(cfg Config) (*Recorder, error) {
	if cfg.Device == "" {
		cfg.Device = "default"
	}
	if cfg.Backend == "" {
		cfg.Backend = "pulse"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.SampleRate < 0 {
		return nil, fmt.Errorf("capture: invalid sample rate %d", cfg.SampleRate)
	}
	if cfg.MaxDuration == 0 {
		cfg.MaxDuration = DefaultMaxDuration
	}
	if cfg.SilenceAfter == 0 {
		cfg.SilenceAfter = DefaultSilenceAfter
	}
	if cfg.AutoStop && cfg.VAD == nil {
		return nil, errors.New("capture: auto-stop requires a VAD engine")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Recorder{
		cfg:    cfg,
		log:    cfg.Logger,
		launch: launchFFmpeg,
	}, nil
}

// Start spawns ffmpeg and begins buffering audio. The returned Recording is
// live until Stop, Abort, silence auto-stop, the duration ceiling, or ctx
// cancellation ends it.
func (r *Recorder) Start(ctx context.Context) (*Recording, error) {
	if r.closed.Load() {
		return nil, ErrRecorderClosed
	}

	var sess vad.Session
	if r.cfg.AutoStop {
		var err error
		sess, err = r.cfg.VAD.NewSession(vad.Config{SampleRate: r.cfg.SampleRate})
		if err != nil {
			return nil, fmt.Errorf("capture: vad session: %w", err)
		}
	}

	argv := ffmpegArgs(r.cfg)
	proc, err := r.launch(ctx, argv)
	if err != nil {
		if sess != nil {
			sess.Close()
		}
		return nil, fmt.Errorf("capture: start ffmpeg: %w", err)
	}

	rec := &Recording{
		log:          r.log,
		proc:         proc,
		vad:          sess,
		sampleRate:   r.cfg.SampleRate,
		silenceAfter: r.cfg.SilenceAfter,
		onSamples:    r.cfg.OnSamples,
		ring:         audio.NewRing(r.cfg.SampleRate * int(ringWindow/time.Second)),
		startedAt:    time.Now(),
		done:         make(chan struct{}),
	}
	rec.maxTimer = time.AfterFunc(r.cfg.MaxDuration, func() {
		r.log.Info("recording reached max duration, stopping", "max", r.cfg.MaxDuration)
		rec.Stop()
	})

	go rec.run()

	r.log.Debug("recording started",
		"backend", r.cfg.Backend,
		"device", r.cfg.Device,
		"rate", r.cfg.SampleRate,
		"auto_stop", r.cfg.AutoStop)
	return rec, nil
}

// Close marks the recorder unusable. In-flight recordings are unaffected.
func (r *Recorder) Close() error {
	r.closed.Store(true)
	return nil
}

// ffmpegArgs builds the capture command line: mono s16le PCM on stdout.
func ffmpegArgs(cfg Config) []string {
	return []string{
		"ffmpeg",
		"-hide_banner",
		"-loglevel", "error",
		"-f", cfg.Backend,
		"-i", cfg.Device,
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", cfg.SampleRate),
		"-f", "s16le",
		"-",
	}
}

// Recording is one in-flight capture. Stop and Abort may be called from any
// goroutine, any number of times.
type Recording struct {
	log          *slog.Logger
	proc         process
	vad          vad.Session
	sampleRate   int
	silenceAfter time.Duration
	onSamples    func([]float32)
	ring         *audio.Ring
	startedAt    time.Time
	maxTimer     *time.Timer

	stopOnce    sync.Once
	stopped     atomic.Bool
	aborted     atomic.Bool
	autoStopped atomic.Bool
	done        chan struct{}

	mu      sync.Mutex
	samples []float32

	// reader goroutine state, no locking needed
	readErr     error
	consumed    int64 // samples ingested, drives silence timing
	heardSpeech bool
	silenceFrom int64 // sample position where the current silence began
	vadBroken   bool
}

// Stop requests a graceful end: ffmpeg is interrupted, buffered audio is
// kept. Non-blocking and idempotent.
func (rec *Recording) Stop() {
	rec.stopOnce.Do(func() {
		rec.stopped.Store(true)
		if err := rec.proc.Interrupt(); err != nil {
			rec.log.Warn("interrupt failed, killing recorder process", "err", err)
			rec.proc.Kill()
		}
	})
}

// Abort ends the recording and discards its audio. Non-blocking, idempotent,
// and safe to combine with Stop (abort wins).
func (rec *Recording) Abort() {
	rec.aborted.Store(true)
	rec.stopOnce.Do(func() {
		rec.stopped.Store(true)
		rec.proc.Kill()
	})
}

// Wait blocks until the recording ends and returns the captured clip. An
// aborted recording yields an empty clip and no error. Cancelling ctx kills
// the process, waits for it to be reaped, and returns ctx.Err().
func (rec *Recording) Wait(ctx context.Context) (*audio.Clip, error) {
	select {
	case <-rec.done:
	case <-ctx.Done():
		rec.Abort()
		<-rec.done
		return &audio.Clip{SampleRate: rec.sampleRate}, ctx.Err()
	}

	rec.maxTimer.Stop()
	if rec.aborted.Load() {
		return &audio.Clip{SampleRate: rec.sampleRate}, nil
	}
	if rec.readErr != nil {
		return nil, rec.readErr
	}

	rec.mu.Lock()
	samples := rec.samples
	rec.samples = nil
	rec.mu.Unlock()
	return &audio.Clip{Samples: samples, SampleRate: rec.sampleRate}, nil
}

// Elapsed reports how long the recording has been running.
func (rec *Recording) Elapsed() time.Duration {
	return time.Since(rec.startedAt)
}

// Tail returns the most recent span of captured audio from the ring buffer.
func (rec *Recording) Tail(d time.Duration) []float32 {
	n := int(int64(rec.sampleRate) * int64(d) / int64(time.Second))
	return rec.ring.Tail(n)
}

// run consumes ffmpeg stdout until EOF, then reaps the process. It owns all
// reader-side state.
func (rec *Recording) run() {
	defer close(rec.done)
	defer func() {
		if rec.vad != nil {
			rec.vad.Close()
		}
	}()

	rec.silenceFrom = -1

	buf := make([]byte, readChunk)
	var carry byte
	hasCarry := false

	src := rec.proc.Stdout()
	for {
		n, err := src.Read(buf)
		if n > 0 {
			data := buf[:n]
			if hasCarry {
				rec.ingest(audio.BytesToFloat32([]byte{carry, data[0]}))
				data = data[1:]
				hasCarry = false
			}
			if len(data)%2 == 1 {
				carry = data[len(data)-1]
				hasCarry = true
				data = data[:len(data)-1]
			}
			if len(data) > 0 {
				rec.ingest(audio.BytesToFloat32(data))
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !rec.stopped.Load() {
				rec.readErr = fmt.Errorf("capture: read audio: %w", err)
			}
			break
		}
	}

	if err := rec.proc.Wait(); err != nil && rec.readErr == nil && !rec.stopped.Load() {
		rec.readErr = fmt.Errorf("capture: ffmpeg: %w", err)
	}
}

// ingest appends converted samples and feeds the ring, the tap, and the
// VAD.
func (rec *Recording) ingest(samples []float32) {
	if len(samples) == 0 {
		return
	}
	rec.mu.Lock()
	rec.samples = append(rec.samples, samples...)
	rec.mu.Unlock()

	rec.ring.Write(samples)
	if rec.onSamples != nil {
		rec.onSamples(samples)
	}
	rec.consumed += int64(len(samples))
	rec.watchSilence(samples)
}

// watchSilence runs the auto-stop VAD over the new samples. Timing is derived
// from sample counts rather than the wall clock so it tracks the audio stream
// itself.
func (rec *Recording) watchSilence(samples []float32) {
	if rec.vad == nil || rec.vadBroken || rec.stopped.Load() {
		return
	}

	ev, err := rec.vad.Process(samples)
	if err != nil {
		rec.log.Warn("vad failed, disabling silence auto-stop", "err", err)
		rec.vadBroken = true
		return
	}

	switch ev.Type {
	case vad.VADSpeechStart, vad.VADSpeechContinue:
		rec.heardSpeech = true
		rec.silenceFrom = -1
	case vad.VADSpeechEnd, vad.VADSilence:
		if !rec.heardSpeech {
			return
		}
		if rec.silenceFrom < 0 {
			rec.silenceFrom = rec.consumed - int64(len(samples))
		}
		silent := time.Duration(rec.consumed-rec.silenceFrom) * time.Second / time.Duration(rec.sampleRate)
		if silent >= rec.silenceAfter {
			rec.autoStopped.Store(true)
			rec.log.Info("trailing silence reached threshold, stopping capture", "silence", silent)
			rec.Stop()
		}
	}
}

// AutoStopped reports whether the recording was ended by the silence watcher
// rather than an explicit request.
func (rec *Recording) AutoStopped() bool {
	return rec.autoStopped.Load()
}
