package capture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sussurro/sussurro/pkg/provider/vad"
	vadmock "github.com/sussurro/sussurro/pkg/provider/vad/mock"
)

// fakeProc feeds scripted PCM through an in-memory pipe. Interrupt and Kill
// both end the stream; tests distinguish them by counter.
type fakeProc struct {
	r *io.PipeReader
	w *io.PipeWriter

	waitErr error

	interrupts atomic.Int32
	kills      atomic.Int32

	closeOnce sync.Once
}

func newFakeProc() *fakeProc {
	r, w := io.Pipe()
	return &fakeProc{r: r, w: w}
}

func (p *fakeProc) Stdout() io.Reader { return p.r }

func (p *fakeProc) Interrupt() error {
	p.interrupts.Add(1)
	p.closeOnce.Do(func() { p.w.Close() })
	return nil
}

func (p *fakeProc) Kill() {
	p.kills.Add(1)
	p.closeOnce.Do(func() { p.w.Close() })
}

func (p *fakeProc) Wait() error { return p.waitErr }

// failStream ends the pipe with err instead of a clean EOF.
func (p *fakeProc) failStream(err error) {
	p.closeOnce.Do(func() { p.w.CloseWithError(err) })
}

func newTestRecorder(t *testing.T, cfg Config, proc process) *Recorder {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	rec, err := NewRecorder(cfg)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	rec.launch = func(ctx context.Context, argv []string) (process, error) {
		return proc, nil
	}
	return rec
}

// pcm encodes n copies of the int16 value as little-endian bytes.
func pcm(value int16, n int) []byte {
	out := make([]byte, n*2)
	for i := range n {
		out[i*2] = byte(value)
		out[i*2+1] = byte(value >> 8)
	}
	return out
}

func waitClip(t *testing.T, rec *Recording) ([]float32, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	clip, err := rec.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return clip.Samples, nil
}

func TestStopKeepsBufferedAudio(t *testing.T) {
	t.Parallel()

	proc := newFakeProc()
	r := newTestRecorder(t, Config{}, proc)

	rec, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := proc.w.Write(pcm(16384, 100)); err != nil {
		t.Fatalf("write pcm: %v", err)
	}
	rec.Stop()
	rec.Stop() // idempotent

	samples, err := waitClip(t, rec)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(samples) != 100 {
		t.Fatalf("got %d samples, want 100", len(samples))
	}
	if got, want := samples[0], float32(16384)/32768; got != want {
		t.Errorf("sample = %v, want %v", got, want)
	}
	if got := proc.interrupts.Load(); got != 1 {
		t.Errorf("interrupts = %d, want 1", got)
	}
}

func TestAbortDiscardsAudio(t *testing.T) {
	t.Parallel()

	proc := newFakeProc()
	r := newTestRecorder(t, Config{}, proc)

	rec, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := proc.w.Write(pcm(1000, 50)); err != nil {
		t.Fatalf("write pcm: %v", err)
	}
	rec.Abort()

	samples, err := waitClip(t, rec)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(samples) != 0 {
		t.Fatalf("aborted recording kept %d samples", len(samples))
	}
	if got := proc.kills.Load(); got != 1 {
		t.Errorf("kills = %d, want 1", got)
	}
}

func TestOnSamplesTapSeesStream(t *testing.T) {
	t.Parallel()

	proc := newFakeProc()
	var mu sync.Mutex
	tapped := 0
	cfg := Config{OnSamples: func(samples []float32) {
		mu.Lock()
		tapped += len(samples)
		mu.Unlock()
	}}
	r := newTestRecorder(t, cfg, proc)

	rec, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := proc.w.Write(pcm(8192, 75)); err != nil {
		t.Fatalf("write pcm: %v", err)
	}
	rec.Stop()

	samples, err := waitClip(t, rec)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	mu.Lock()
	got := tapped
	mu.Unlock()
	if got != len(samples) {
		t.Errorf("tap saw %d samples, clip has %d", got, len(samples))
	}
	if got != 75 {
		t.Errorf("tap saw %d samples, want 75", got)
	}
}

func TestOddByteIsCarriedAcrossReads(t *testing.T) {
	t.Parallel()

	proc := newFakeProc()
	r := newTestRecorder(t, Config{}, proc)

	rec, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Sample values 0x0201 and 0x0403, split so the second sample's low
	// byte arrives in a separate read from its high byte.
	if _, err := proc.w.Write([]byte{0x01, 0x02, 0x03}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := proc.w.Write([]byte{0x04}); err != nil {
		t.Fatalf("write: %v", err)
	}
	rec.Stop()

	samples, err := waitClip(t, rec)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(samples))
	}
	want := []float32{float32(0x0201) / 32768, float32(0x0403) / 32768}
	for i := range want {
		if samples[i] != want[i] {
			t.Errorf("samples[%d] = %v, want %v", i, samples[i], want[i])
		}
	}
}

func TestSilenceAutoStop(t *testing.T) {
	t.Parallel()

	proc := newFakeProc()
	r := newTestRecorder(t, Config{
		SampleRate:   16000,
		AutoStop:     true,
		SilenceAfter: 100 * time.Millisecond,
		VAD:          vad.NewEnergy(),
	}, proc)

	rec, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// A burst of speech, then silence until the watcher interrupts the
	// stream. 100 ms at 16 kHz is 1600 samples.
	if _, err := proc.w.Write(pcm(16000, 1600)); err != nil {
		t.Fatalf("write speech: %v", err)
	}
	silence := pcm(0, 800)
	for range 10 {
		if _, err := proc.w.Write(silence); err != nil {
			break
		}
	}
	rec.Stop() // no-op if the watcher already fired

	samples, err := waitClip(t, rec)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !rec.AutoStopped() {
		t.Fatal("recording was not auto-stopped")
	}
	// Speech plus exactly the silence needed to cross the threshold.
	if len(samples) != 1600+1600 {
		t.Errorf("got %d samples, want 3200", len(samples))
	}
}

func TestAutoStopWaitsForSpeech(t *testing.T) {
	t.Parallel()

	proc := newFakeProc()
	r := newTestRecorder(t, Config{
		SampleRate:   16000,
		AutoStop:     true,
		SilenceAfter: 50 * time.Millisecond,
		VAD:          vad.NewEnergy(),
	}, proc)

	rec, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Seconds of leading silence must not end a recording nobody has
	// spoken into yet.
	for range 5 {
		if _, err := proc.w.Write(pcm(0, 3200)); err != nil {
			t.Fatalf("write silence: %v", err)
		}
	}
	if rec.AutoStopped() {
		t.Fatal("auto-stopped before any speech")
	}
	rec.Stop()
	if _, err := waitClip(t, rec); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestVADErrorDisablesAutoStop(t *testing.T) {
	t.Parallel()

	sess := &vadmock.Session{ProcessErr: errors.New("model gone")}
	proc := newFakeProc()
	r := newTestRecorder(t, Config{
		AutoStop: true,
		VAD:      &vadmock.Engine{Session: sess},
	}, proc)

	rec, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	for range 3 {
		if _, err := proc.w.Write(pcm(0, 256)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	rec.Stop()

	samples, err := waitClip(t, rec)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(samples) != 768 {
		t.Errorf("got %d samples, want 768", len(samples))
	}
	if got := len(sess.ProcessCalls); got != 1 {
		t.Errorf("Process called %d times after failure, want 1", got)
	}
	if sess.CloseCallCount != 1 {
		t.Errorf("vad session closed %d times, want 1", sess.CloseCallCount)
	}
}

func TestMaxDurationStopsRecording(t *testing.T) {
	t.Parallel()

	proc := newFakeProc()
	r := newTestRecorder(t, Config{MaxDuration: 30 * time.Millisecond}, proc)

	rec, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	// No Stop call; the ceiling must end the stream by itself.
	if _, err := waitClip(t, rec); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got := proc.interrupts.Load(); got != 1 {
		t.Errorf("interrupts = %d, want 1", got)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	t.Parallel()

	proc := newFakeProc()
	r := newTestRecorder(t, Config{}, proc)

	rec, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	clip, err := rec.Wait(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait err = %v, want context.Canceled", err)
	}
	if clip == nil || !clip.Empty() {
		t.Error("cancelled Wait should return an empty clip")
	}
	if got := proc.kills.Load(); got == 0 {
		t.Error("process was not killed on context cancellation")
	}
}

func TestStreamErrorSurfaces(t *testing.T) {
	t.Parallel()

	proc := newFakeProc()
	r := newTestRecorder(t, Config{}, proc)

	rec, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	proc.failStream(errors.New("device disappeared"))

	_, err = waitClip(t, rec)
	if err == nil || !strings.Contains(err.Error(), "device disappeared") {
		t.Fatalf("Wait err = %v, want device disappeared", err)
	}
}

func TestProcessExitErrorSurfaces(t *testing.T) {
	t.Parallel()

	proc := newFakeProc()
	proc.waitErr = errors.New("exit status 1: Device or resource busy")
	r := newTestRecorder(t, Config{}, proc)

	rec, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	// The process dies on its own: clean EOF, nonzero exit.
	proc.closeOnce.Do(func() { proc.w.Close() })

	_, err = waitClip(t, rec)
	if err == nil || !strings.Contains(err.Error(), "resource busy") {
		t.Fatalf("Wait err = %v, want exit error", err)
	}
}

func TestStopSuppressesExitError(t *testing.T) {
	t.Parallel()

	proc := newFakeProc()
	proc.waitErr = errors.New("signal: interrupt")
	r := newTestRecorder(t, Config{}, proc)

	rec, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := proc.w.Write(pcm(500, 10)); err != nil {
		t.Fatalf("write: %v", err)
	}
	rec.Stop()

	samples, err := waitClip(t, rec)
	if err != nil {
		t.Fatalf("Wait after Stop: %v", err)
	}
	if len(samples) != 10 {
		t.Errorf("got %d samples, want 10", len(samples))
	}
}

func TestNewRecorderValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewRecorder(Config{AutoStop: true}); err == nil {
		t.Error("auto-stop without VAD engine should fail")
	}
	if _, err := NewRecorder(Config{SampleRate: -1}); err == nil {
		t.Error("negative sample rate should fail")
	}

	r, err := NewRecorder(Config{Logger: slog.New(slog.DiscardHandler)})
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	if r.cfg.SampleRate != DefaultSampleRate {
		t.Errorf("SampleRate = %d, want %d", r.cfg.SampleRate, DefaultSampleRate)
	}
	if r.cfg.Backend != "pulse" || r.cfg.Device != "default" {
		t.Errorf("backend/device defaults = %q/%q", r.cfg.Backend, r.cfg.Device)
	}
	if r.cfg.MaxDuration != DefaultMaxDuration {
		t.Errorf("MaxDuration = %v, want %v", r.cfg.MaxDuration, DefaultMaxDuration)
	}
}

func TestStartAfterClose(t *testing.T) {
	t.Parallel()

	r := newTestRecorder(t, Config{}, newFakeProc())
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := r.Start(context.Background()); !errors.Is(err, ErrRecorderClosed) {
		t.Fatalf("Start after Close = %v, want ErrRecorderClosed", err)
	}
}

func TestFFmpegArgs(t *testing.T) {
	t.Parallel()

	argv := ffmpegArgs(Config{Backend: "alsa", Device: "hw:1", SampleRate: 48000})
	want := []string{
		"ffmpeg", "-hide_banner", "-loglevel", "error",
		"-f", "alsa", "-i", "hw:1",
		"-ac", "1", "-ar", "48000", "-f", "s16le", "-",
	}
	if len(argv) != len(want) {
		t.Fatalf("argv = %v", argv)
	}
	for i := range want {
		if argv[i] != want[i] {
			t.Errorf("argv[%d] = %q, want %q", i, argv[i], want[i])
		}
	}
}
