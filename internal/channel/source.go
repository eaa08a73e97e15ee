package channel

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClosed is returned by Stream.Next after the peer closed the channel normally.
var ErrClosed = io.EOF

// Source opens status channels.
type Source interface {
	Dial(ctx context.Context, endpoint string) (Stream, error)
}

// Stream is one open status channel. Close is idempotent and unblocks Next.
type Stream interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// WebSocketSource dials status channels over WebSocket.
type WebSocketSource struct {
	Dialer *websocket.Dialer
	Header http.Header
}

// NewWebSocketSource returns a source using the default gorilla dialer.
func NewWebSocketSource() *WebSocketSource {
	return &WebSocketSource{Dialer: websocket.DefaultDialer}
}

// Dial connects to endpoint. http and https schemes are rewritten to ws and wss.
func (s *WebSocketSource) Dial(ctx context.Context, endpoint string) (Stream, error) {
	dialer := s.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, ToWebSocketURL(endpoint), s.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return &wsStream{conn: conn}, nil
}

// ToWebSocketURL rewrites an http(s) URL to its ws(s) equivalent.
func ToWebSocketURL(u string) string {
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

type wsStream struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

func (w *wsStream) Next(ctx context.Context) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = w.conn.SetReadDeadline(deadline)
	}
	_, msg, err := w.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, ErrClosed
		}
		return nil, err
	}
	return msg, nil
}

func (w *wsStream) Close() error {
	w.closeOnce.Do(func() {
		_ = w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		w.closeErr = w.conn.Close()
	})
	return w.closeErr
}

// Step is one scripted channel action.
type Step struct {
	Message string
	Err     error
	Close   bool
	Delay   time.Duration
}

// Message scripts a raw text message.
func Message(raw string) Step { return Step{Message: raw} }

// Fail scripts a read error.
func Fail(err error) Step { return Step{Err: err} }

// Hangup scripts a normal close from the peer.
func Hangup() Step { return Step{Close: true} }

// ScriptedSource replays fixed steps for every dial. It is deterministic and
// used where a live backend is unavailable.
type ScriptedSource struct {
	Steps   []Step
	DialErr error

	mu    sync.Mutex
	dials []string
}

// Dial returns a stream that replays Steps, or DialErr.
func (s *ScriptedSource) Dial(ctx context.Context, endpoint string) (Stream, error) {
	s.mu.Lock()
	s.dials = append(s.dials, endpoint)
	s.mu.Unlock()

	if s.DialErr != nil {
		return nil, s.DialErr
	}
	steps := make([]Step, len(s.Steps))
	copy(steps, s.Steps)
	return &scriptedStream{steps: steps, closed: make(chan struct{})}, nil
}

// Dials returns the endpoints dialed so far.
func (s *ScriptedSource) Dials() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.dials))
	copy(out, s.dials)
	return out
}

type scriptedStream struct {
	mu        sync.Mutex
	steps     []Step
	closed    chan struct{}
	closeOnce sync.Once
}

// Next blocks after the script is exhausted until Close or ctx is done.
func (s *scriptedStream) Next(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	if len(s.steps) == 0 {
		s.mu.Unlock()
		select {
		case <-s.closed:
			return nil, errStreamClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	s.mu.Unlock()

	if step.Delay > 0 {
		timer := time.NewTimer(step.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-s.closed:
			return nil, errStreamClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	select {
	case <-s.closed:
		return nil, errStreamClosed
	default:
	}

	switch {
	case step.Err != nil:
		return nil, step.Err
	case step.Close:
		return nil, ErrClosed
	}
	return []byte(step.Message), nil
}

func (s *scriptedStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// errStreamClosed is returned by Next after a local Close.
var errStreamClosed = stderrors.New("stream closed locally")
