package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/cheese-lichess/internal/board"
	"github.com/park285/cheese-lichess/internal/lichess"
	"github.com/park285/cheese-lichess/internal/msgcat"
	"github.com/park285/cheese-lichess/internal/obslog"
	"go.uber.org/zap"
)

// Ways to open a game.
const (
	OpenAI     = "ai"
	OpenUser   = "user"
	OpenSeek   = "seek"
	OpenResume = "resume"
)

// Options selects how the game is opened.
type Options struct {
	Mode      string
	Opponent  string
	AILevel   int
	GameID    string
	Challenge lichess.ChallengeOptions
}

// Restorer looks up the checkpoint of an interrupted game. An empty id asks
// for the most recent one. A nil checkpoint means none is stored.
type Restorer interface {
	Restore(ctx context.Context, gameID string) (*Checkpoint, error)
}

// resignGrace bounds the wait for the server to confirm a resignation.
const resignGrace = 5 * time.Second

// Controller runs one game from opening to the final result.
type Controller struct {
	opts        Options
	gw          Gateway
	view        View
	msgs        *msgcat.Catalog
	observers   []Observer
	restorer    Restorer
	resignGrace time.Duration

	sess *Session
}

func NewController(opts Options, gw Gateway, view View, msgs *msgcat.Catalog, observers ...Observer) *Controller {
	return &Controller{
		opts:        opts,
		gw:          gw,
		view:        view,
		msgs:        msgs,
		observers:   observers,
		resignGrace: resignGrace,
		sess:        New(),
	}
}

// WithRestorer enables resuming from stored checkpoints.
func (c *Controller) WithRestorer(r Restorer) *Controller {
	c.restorer = r
	return c
}

// Session exposes the shared state, mainly for tests and final reporting.
func (c *Controller) Session() *Session { return c.sess }

// Run plays the game. It returns nil when the game ends or the operator
// resigns.
func (c *Controller) Run(ctx context.Context) error {
	logger := obslog.L().With(zap.String("session_id", c.sess.ID))
	gate := NewTurnGate()
	syncer := NewSynchronizer(c.sess, c.gw, gate, c.view, c.msgs, c.observers...)
	disp := NewDispatcher(c.sess, c.gw, c.view, c.msgs)

	// The account stream is open before the challenge so gameStart cannot be missed.
	acctCtx, cancelAcct := context.WithCancel(ctx)
	defer cancelAcct()
	events, err := c.gw.StreamAccountEvents(acctCtx)
	if err != nil {
		return err
	}

	stopSeek, err := c.open(acctCtx)
	if err != nil {
		return err
	}
	c.view.ShowMessage(c.msgs.Text("session.waiting_start", nil))
	err = syncer.AwaitStart(ctx, events)
	stopSeek()
	cancelAcct()
	if err != nil {
		return err
	}
	c.announceStart()

	streamCtx, cancelStream := context.WithCancel(ctx)
	syncDone := make(chan error, 1)
	go func() { syncDone <- syncer.Run(streamCtx) }()
	defer func() {
		cancelStream()
		<-syncDone
	}()

	c.view.ShowMessage(c.msgs.Text("play.intro", nil))
	for {
		if c.sess.Over() {
			c.announceResult()
			return nil
		}
		if err := gate.Wait(ctx); err != nil {
			if !errors.Is(err, ErrGateClosed) {
				return err
			}
			if c.sess.Over() {
				continue
			}
			if syncErr := syncer.Err(); syncErr != nil {
				return syncErr
			}
			return ErrStreamEnded
		}
		if !c.sess.UserTurn() {
			continue
		}

		res, err := c.turn(ctx, gate, disp)
		if err != nil {
			if gate.Closed() && ctx.Err() == nil {
				continue
			}
			return err
		}
		logger.Debug("dispatch_turn", zap.Stringer("outcome", res.Outcome), zap.String("input", res.Input))
		switch res.Outcome {
		case Resigned:
			c.awaitResignation(ctx, gate)
			c.announceResult()
			return nil
		case Rejected:
			if c.sess.UserTurn() {
				gate.Signal()
			}
		}
	}
}

// awaitResignation lets the stream deliver the server's verdict so observers
// see the finished game. When it does not arrive in time the resignation is
// recorded locally.
func (c *Controller) awaitResignation(ctx context.Context, gate *TurnGate) {
	timer := time.NewTimer(c.resignGrace)
	defer timer.Stop()
	select {
	case <-gate.Done():
	case <-timer.C:
	case <-ctx.Done():
	}
	upd, ok := c.sess.concede()
	if !ok {
		return
	}
	obslog.L().Info("resign_unconfirmed", zap.String("session_id", upd.SessionID), zap.String("game_id", upd.GameID))
	notifyCtx := context.WithoutCancel(ctx)
	for _, o := range c.observers {
		o.OnBoardUpdate(notifyCtx, upd)
	}
}

// turn runs one dispatch with a prompt that is abandoned when the gate closes.
func (c *Controller) turn(ctx context.Context, gate *TurnGate, disp *Dispatcher) (Result, error) {
	promptCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-gate.Done():
			cancel()
		case <-promptCtx.Done():
		}
	}()
	return disp.Turn(promptCtx)
}

// open creates or locates the game. The returned func withdraws a pending
// seek and is safe to call when there is none.
func (c *Controller) open(ctx context.Context) (func(), error) {
	noop := func() {}
	switch c.opts.Mode {
	case OpenAI, "":
		info, err := c.gw.ChallengeAI(ctx, c.opts.AILevel, c.opts.Challenge)
		if err != nil {
			return noop, err
		}
		if err := c.sess.SetGame(info.ID, info.URL); err != nil {
			return noop, err
		}
		c.view.ShowMessage(c.msgs.Text("session.challenge_ai", map[string]any{"Level": c.opts.AILevel, "URL": info.URL}))
		return noop, nil
	case OpenUser:
		info, err := c.gw.CreateChallenge(ctx, c.opts.Opponent, c.opts.Challenge)
		if err != nil {
			return noop, err
		}
		if err := c.sess.SetGame(info.ID, info.URL); err != nil {
			return noop, err
		}
		c.view.ShowMessage(c.msgs.Text("session.challenge_sent", map[string]any{"Opponent": c.opts.Opponent, "URL": info.URL}))
		return noop, nil
	case OpenSeek:
		seekCtx, cancel := context.WithCancel(ctx)
		go func() {
			if err := c.gw.CreateSeek(seekCtx, c.opts.Challenge); err != nil && seekCtx.Err() == nil {
				obslog.L().Warn("seek_error", zap.Error(err))
			}
		}()
		c.view.ShowMessage(c.msgs.Text("session.seek_open", map[string]any{
			"Minutes":   c.opts.Challenge.ClockLimit / 60,
			"Increment": c.opts.Challenge.ClockIncrement,
		}))
		return cancel, nil
	case OpenResume:
		return noop, c.resume(ctx)
	default:
		return noop, fmt.Errorf("unknown mode %q", c.opts.Mode)
	}
}

func (c *Controller) resume(ctx context.Context) error {
	gameID := strings.TrimSpace(c.opts.GameID)
	if c.restorer != nil {
		cp, err := c.restorer.Restore(ctx, gameID)
		if err != nil {
			return fmt.Errorf("load checkpoint: %w", err)
		}
		if cp != nil && (gameID == "" || cp.GameID == gameID) {
			if err := c.sess.Restore(cp); err != nil {
				return err
			}
			gameID = cp.GameID
		}
	}
	if gameID == "" {
		return errors.New("no game to resume")
	}
	if err := c.sess.SetGame(gameID, ""); err != nil {
		return err
	}
	c.view.ShowMessage(c.msgs.Text("session.resume", map[string]any{"GameID": gameID}))
	return nil
}

func (c *Controller) announceStart() {
	u := c.sess.Update()
	url := u.URL
	if url == "" {
		url = lichess.DefaultBaseURL + "/" + u.GameID
	}
	c.view.ShowMessage(c.msgs.Text("session.started", map[string]any{"GameID": u.GameID}))
	c.view.ShowMessage(c.msgs.Text("session.follow", map[string]any{"URL": url}))
	c.view.ShowMessage(c.msgs.Text("session.color", map[string]any{"Color": strings.ToUpper(u.UserColor.String())}))
	if name := c.sess.Opponent(); name != "" {
		c.view.ShowMessage(c.msgs.Text("session.opponent", map[string]any{"Name": name}))
	}
}

func (c *Controller) announceResult() {
	u := c.sess.Update()
	result := resultText(u.Outcome())
	if method := u.Method(); method != "" {
		c.view.ShowMessage(c.msgs.Text("game.over_method", map[string]any{"Result": result, "Method": method}))
	} else {
		c.view.ShowMessage(c.msgs.Text("game.over", map[string]any{"Result": result}))
	}
	obslog.L().Info("game_over",
		zap.String("session_id", u.SessionID),
		zap.String("game_id", u.GameID),
		zap.String("result", u.Outcome().PGN()),
		zap.String("method", u.Method()),
		zap.Int("plies", u.Snapshot.Ply()),
	)
}

func resultText(o board.Outcome) string {
	switch o {
	case board.WhiteWin:
		return "1-0 (white wins)"
	case board.BlackWin:
		return "0-1 (black wins)"
	case board.Draw:
		return "1/2-1/2 (draw)"
	default:
		return "*"
	}
}
