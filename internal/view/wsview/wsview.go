// Package wsview drives a remote board front end over a websocket. Board and
// message frames go out, move frames come back in answer to prompts.
package wsview

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/park285/cheese-lichess/internal/board"
	"github.com/park285/cheese-lichess/internal/msgcat"
	"github.com/park285/cheese-lichess/internal/obslog"
	"github.com/park285/cheese-lichess/internal/view"
	"github.com/park285/cheese-lichess/pkg/viewproto"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

var ErrDisconnected = errors.New("view websocket disconnected")

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "disconnected"
	}
}

type Option func(*View)

// WithHeader adds handshake headers, e.g. an auth token for the front end.
func WithHeader(h http.Header) Option {
	return func(v *View) { v.header = h.Clone() }
}

func WithReconnect(maxAttempts int) Option {
	return func(v *View) { v.maxReconnect = maxAttempts }
}

func WithPingInterval(d time.Duration) Option {
	return func(v *View) { v.pingInterval = d }
}

type View struct {
	url          string
	msgs         *msgcat.Catalog
	header       http.Header
	maxReconnect int
	pingInterval time.Duration
	writeTimeout time.Duration

	connMu sync.RWMutex
	conn   *websocket.Conn
	state  State

	writeMu sync.Mutex
	seq     atomic.Int64
	moves   chan viewproto.Frame

	failed     chan struct{}
	failOnce   sync.Once
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
	rootCtx    context.Context
	rootCancel context.CancelFunc
}

func New(url string, msgs *msgcat.Catalog, opts ...Option) *View {
	v := &View{
		url:          url,
		msgs:         msgs,
		header:       http.Header{},
		maxReconnect: 5,
		pingInterval: 30 * time.Second,
		writeTimeout: 5 * time.Second,
		moves:        make(chan viewproto.Frame, 8),
		failed:       make(chan struct{}),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.rootCtx, v.rootCancel = context.WithCancel(context.Background())
	return v
}

func (v *View) Connect(ctx context.Context) error {
	v.setState(StateConnecting)
	conn, err := v.dial(ctx)
	if err != nil {
		v.setState(StateFailed)
		return err
	}
	v.attach(conn)
	return nil
}

func (v *View) State() State {
	v.connMu.RLock()
	defer v.connMu.RUnlock()
	return v.state
}

func (v *View) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, v.url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      v.header,
	})
	return conn, err
}

func (v *View) attach(conn *websocket.Conn) {
	v.connMu.Lock()
	v.conn = conn
	v.connMu.Unlock()
	v.setState(StateConnected)

	connCtx, cancel := context.WithCancel(v.rootCtx)
	v.wg.Add(2)
	go v.listen(connCtx, cancel, conn)
	go v.pingLoop(connCtx, conn)
}

func (v *View) current() *websocket.Conn {
	v.connMu.RLock()
	defer v.connMu.RUnlock()
	return v.conn
}

func (v *View) listen(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) {
	defer v.wg.Done()
	defer cancel()
	for {
		var f viewproto.Frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			if v.isStopping() {
				return
			}
			obslog.L().Warn("view_ws_read_error", zap.Error(err))
			v.detach(conn, websocket.StatusGoingAway, "reconnect")
			v.scheduleReconnect()
			return
		}
		switch f.Type {
		case viewproto.TypeMove:
			select {
			case v.moves <- f:
			default:
				obslog.L().Warn("view_ws_move_dropped", zap.Int64("seq", f.Seq))
			}
		case viewproto.TypeError:
			if f.Error != nil {
				obslog.L().Warn("view_ws_remote_error", zap.String("code", f.Error.Code), zap.Error(f.Error), zap.Bool("retryable", f.Error.Retryable))
			}
		}
	}
}

func (v *View) pingLoop(ctx context.Context, conn *websocket.Conn) {
	defer v.wg.Done()
	t := time.NewTicker(v.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				// closing makes listen fail and take over the reconnect
				_ = conn.Close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

func (v *View) detach(conn *websocket.Conn, code websocket.StatusCode, reason string) {
	v.connMu.Lock()
	if v.conn == conn {
		v.conn = nil
	}
	v.connMu.Unlock()
	_ = conn.Close(code, reason)
	v.setState(StateDisconnected)
}

func (v *View) scheduleReconnect() {
	if v.maxReconnect <= 0 {
		v.fail()
		return
	}
	v.setState(StateReconnecting)
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		for attempt := 1; attempt <= v.maxReconnect; attempt++ {
			select {
			case <-v.stopCh:
				return
			case <-time.After(backoffDuration(attempt)):
			}
			conn, err := v.dial(v.rootCtx)
			if err != nil {
				obslog.L().Debug("view_ws_reconnect_failed", zap.Int("attempt", attempt), zap.Error(err))
				continue
			}
			v.attach(conn)
			return
		}
		v.fail()
	}()
}

func (v *View) fail() {
	v.setState(StateFailed)
	v.failOnce.Do(func() { close(v.failed) })
}

func (v *View) setState(s State) {
	v.connMu.Lock()
	prev := v.state
	v.state = s
	v.connMu.Unlock()
	if prev != s {
		obslog.L().Info("view_ws_state", zap.Stringer("from", prev), zap.Stringer("to", s))
	}
}

func (v *View) send(f viewproto.Frame) error {
	conn := v.current()
	if conn == nil {
		return ErrDisconnected
	}
	v.writeMu.Lock()
	defer v.writeMu.Unlock()
	ctx, cancel := context.WithTimeout(v.rootCtx, v.writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, f)
}

func (v *View) ShowMessage(text string) {
	if err := v.send(viewproto.Frame{Type: viewproto.TypeMessage, Text: text}); err != nil {
		obslog.L().Warn("view_ws_send_error", zap.String("type", viewproto.TypeMessage), zap.Error(err))
	}
}

func (v *View) RenderBoard(snap board.Snapshot, bottom board.Color) {
	if err := v.send(viewproto.Frame{Type: viewproto.TypeBoard, Board: boardState(snap, bottom, v.msgs)}); err != nil {
		obslog.L().Warn("view_ws_send_error", zap.String("type", viewproto.TypeBoard), zap.Error(err))
	}
}

// PromptMove asks the front end for a move and waits for the answer with the
// matching sequence number.
func (v *View) PromptMove(ctx context.Context) (string, error) {
	seq := v.seq.Add(1)
	if err := v.send(viewproto.Frame{Type: viewproto.TypePrompt, Seq: seq, Text: v.msgs.Text("play.prompt", nil)}); err != nil {
		return "", err
	}
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-v.failed:
			return "", ErrDisconnected
		case f := <-v.moves:
			if f.Seq != 0 && f.Seq != seq {
				obslog.L().Debug("view_ws_stale_move", zap.Int64("seq", f.Seq), zap.Int64("want", seq))
				continue
			}
			return strings.TrimSpace(f.Text), nil
		}
	}
}

func (v *View) Close(ctx context.Context) error {
	v.stopOnce.Do(func() { close(v.stopCh) })
	v.connMu.Lock()
	conn := v.conn
	v.conn = nil
	v.connMu.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "close")
	}
	v.rootCancel()

	done := make(chan struct{})
	go func() {
		v.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (v *View) isStopping() bool {
	select {
	case <-v.stopCh:
		return true
	default:
		return false
	}
}

func boardState(snap board.Snapshot, bottom board.Color, msgs *msgcat.Catalog) *viewproto.BoardState {
	m := snap.Material()
	byWhite, byBlack := snap.Captured()
	return &viewproto.BoardState{
		FEN:         snap.FEN,
		MovesUCI:    snap.Moves,
		MovesSAN:    snap.SAN,
		Turn:        snap.Turn.String(),
		Bottom:      bottom.String(),
		LastMove:    snap.LastMove,
		OpeningCode: snap.OpeningCode,
		OpeningName: snap.OpeningName,
		Outcome:     snap.Outcome.PGN(),
		Method:      snap.Method,
		Diagram:     snap.Diagram(bottom),
		Material:    viewproto.MaterialScore{White: m.White, Black: m.Black},
		Captured:    viewproto.CapturedPieces{White: byWhite, Black: byBlack},
		Lines:       view.SummaryLines(snap, msgs),
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}
