package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/sussurro/sussurro/pkg/audio"
	"github.com/sussurro/sussurro/pkg/provider/stt"
	"github.com/sussurro/sussurro/pkg/types"
)

// Reconnection parameters for the live preview stream.
const (
	liveMaxRetries = 10
	liveBackoff    = 1 * time.Second
	liveMaxBackoff = 30 * time.Second
)

// ErrPreviewClosed is returned by SendPCM after the session has been closed.
var ErrPreviewClosed = errors.New("deepgram: live preview is closed")

// StartLive opens a streaming preview session. Interim fragments arrive on
// cfg.OnFragment until Close; the recording itself is never affected by the
// preview, so a dropped socket reconnects in the background and a dead one
// just goes quiet.
func (p *Provider) StartLive(ctx context.Context, cfg stt.LiveConfig) (stt.LiveSession, error) {
	dialURL, err := p.buildLiveURL(cfg.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	header := http.Header{}
	header.Set("Authorization", "Token "+p.apiKey)

	s := &liveSession{
		dialURL:    dialURL,
		header:     header,
		onFragment: cfg.OnFragment,
		log:        slog.Default(),
		backoff:    liveBackoff,
		maxBackoff: liveMaxBackoff,
		maxRetries: liveMaxRetries,
		audio:      make(chan []byte, 256),
		done:       make(chan struct{}),
	}

	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	s.setConn(conn)

	s.wg.Add(1)
	go s.run(ctx, conn)

	return s, nil
}

// liveSession is an open preview stream. It implements stt.LiveSession.
type liveSession struct {
	dialURL    string
	header     http.Header
	onFragment func(types.Transcript)
	log        *slog.Logger
	backoff    time.Duration
	maxBackoff time.Duration
	maxRetries int

	audio chan []byte
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup

	mu   sync.Mutex
	conn *websocket.Conn
}

// SendPCM queues mono samples for streaming recognition. The send never
// blocks: when the socket is down or the buffer is full the chunk is
// dropped, since preview audio has no value once it is stale.
func (s *liveSession) SendPCM(samples []float32) error {
	select {
	case <-s.done:
		return ErrPreviewClosed
	default:
	}
	select {
	case s.audio <- audio.Float32ToBytes(samples):
	default:
	}
	return nil
}

// Close terminates the stream. Safe to call more than once.
func (s *liveSession) Close() error {
	s.once.Do(func() {
		close(s.done)
		if conn := s.currentConn(); conn != nil {
			// CloseStream tells Deepgram to flush instead of timing out.
			_ = conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"CloseStream"}`))
			_ = conn.Close(websocket.StatusNormalClosure, "preview closed")
		}
		s.wg.Wait()
	})
	return nil
}

func (s *liveSession) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

func (s *liveSession) currentConn() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// dial establishes one websocket connection, surfacing the HTTP status of a
// rejected upgrade so credential rotation can classify it.
func (s *liveSession) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := websocket.Dial(ctx, s.dialURL, &websocket.DialOptions{
		HTTPHeader: s.header,
	})
	if err != nil {
		if resp != nil && resp.StatusCode >= http.StatusBadRequest {
			return nil, &types.StatusError{Code: resp.StatusCode, Err: fmt.Errorf("deepgram: dial: %w", err)}
		}
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}
	return conn, nil
}

// run owns the connection across reconnects. It exits when the session is
// closed, the context ends, or reconnection is exhausted.
func (s *liveSession) run(ctx context.Context, conn *websocket.Conn) {
	defer s.wg.Done()

	for {
		err := s.stream(ctx, conn)
		if err == nil {
			return
		}
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		s.log.Warn("live preview stream dropped, reconnecting", "err", err)
		next, rerr := s.redial(ctx)
		if rerr != nil {
			s.log.Error("live preview abandoned", "err", rerr)
			return
		}
		conn = next
		s.setConn(next)
	}
}

// stream pumps audio out and fragments in over one connection. It returns
// nil on clean shutdown and the read error when the socket fails.
func (s *liveSession) stream(ctx context.Context, conn *websocket.Conn) error {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		for {
			select {
			case <-wctx.Done():
				return
			case <-s.done:
				return
			case chunk := <-s.audio:
				if err := conn.Write(wctx, websocket.MessageBinary, chunk); err != nil {
					return
				}
			}
		}
	}()

	var streamErr error
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			select {
			case <-s.done:
			case <-ctx.Done():
			default:
				streamErr = err
			}
			break
		}
		t, ok := parseLiveMessage(msg)
		if !ok || t.Text == "" {
			continue
		}
		if s.onFragment != nil {
			s.onFragment(t)
		}
	}

	cancel()
	<-writeDone
	if streamErr != nil {
		_ = conn.Close(websocket.StatusInternalError, "stream failed")
	}
	return streamErr
}

// redial attempts reconnection with exponential backoff (doubling from the
// base up to the cap, no jitter).
func (s *liveSession) redial(ctx context.Context) (*websocket.Conn, error) {
	backoff := s.backoff

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		select {
		case <-s.done:
			return nil, ErrPreviewClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}

		conn, err := s.dial(ctx)
		if err == nil {
			s.log.Info("live preview reconnected", "attempt", attempt)
			return conn, nil
		}
		s.log.Warn("live preview reconnect failed",
			"attempt", attempt,
			"max_retries", s.maxRetries,
			"backoff", backoff,
			"err", err,
		)

		backoff *= 2
		if backoff > s.maxBackoff {
			backoff = s.maxBackoff
		}
	}

	return nil, fmt.Errorf("deepgram: live preview reconnect failed after %d attempts", s.maxRetries)
}

// liveResponse is the JSON shape of a streaming Results event.
type liveResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseLiveMessage parses a raw streaming message into a preview fragment.
// Returns false for anything that is not a usable Results event.
func parseLiveMessage(data []byte) (types.Transcript, bool) {
	var resp liveResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return types.Transcript{}, false
	}
	if resp.Type != "Results" {
		return types.Transcript{}, false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return types.Transcript{}, false
	}
	alt := resp.Channel.Alternatives[0]
	return types.Transcript{
		Text:       alt.Transcript,
		IsFinal:    resp.IsFinal,
		Confidence: alt.Confidence,
	}, true
}
