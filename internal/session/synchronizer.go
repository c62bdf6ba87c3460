package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/park285/cheese-lichess/internal/board"
	"github.com/park285/cheese-lichess/internal/lichess"
	"github.com/park285/cheese-lichess/internal/msgcat"
	"github.com/park285/cheese-lichess/internal/obslog"
	"go.uber.org/zap"
)

type SyncState int

const (
	StateIdle SyncState = iota
	StateAwaitingStart
	StateStreaming
	StateTerminated
)

func (s SyncState) String() string {
	switch s {
	case StateAwaitingStart:
		return "awaiting_start"
	case StateStreaming:
		return "streaming"
	case StateTerminated:
		return "terminated"
	default:
		return "idle"
	}
}

// Synchronizer mirrors the remote game into the session and opens the turn
// gate whenever the operator is to move.
type Synchronizer struct {
	sess      *Session
	gw        Gateway
	gate      *TurnGate
	view      View
	msgs      *msgcat.Catalog
	observers []Observer

	stateMu  sync.Mutex
	state    SyncState
	err      error
	termOnce sync.Once
}

func NewSynchronizer(sess *Session, gw Gateway, gate *TurnGate, view View, msgs *msgcat.Catalog, observers ...Observer) *Synchronizer {
	return &Synchronizer{
		sess:      sess,
		gw:        gw,
		gate:      gate,
		view:      view,
		msgs:      msgs,
		observers: observers,
	}
}

func (s *Synchronizer) State() SyncState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// Err is the fatal error that terminated the synchronizer, if any.
func (s *Synchronizer) Err() error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.err
}

func (s *Synchronizer) setState(st SyncState) {
	s.stateMu.Lock()
	prev := s.state
	if prev != StateTerminated {
		s.state = st
	}
	s.stateMu.Unlock()
	if prev != st {
		obslog.L().Debug("sync_state", zap.String("session_id", s.sess.ID), zap.Stringer("from", prev), zap.Stringer("to", st))
	}
}

func (s *Synchronizer) terminate(err error) {
	s.termOnce.Do(func() {
		s.stateMu.Lock()
		s.state = StateTerminated
		s.err = err
		s.stateMu.Unlock()
		s.gate.Close()
		if err != nil {
			obslog.L().Error("sync_terminated", zap.String("session_id", s.sess.ID), zap.Error(err))
		} else {
			obslog.L().Info("sync_terminated", zap.String("session_id", s.sess.ID))
		}
	})
}

// AwaitStart consumes account events until this session's game starts and
// records the operator's color. With no game id yet (seeks) the first
// gameStart is taken.
func (s *Synchronizer) AwaitStart(ctx context.Context, events <-chan lichess.EventMessage) error {
	s.setState(StateAwaitingStart)
	for {
		var (
			ev lichess.EventMessage
			ok bool
		)
		select {
		case <-ctx.Done():
			s.terminate(ctx.Err())
			return ctx.Err()
		case ev, ok = <-events:
		}
		if !ok {
			s.terminate(ErrNoGameStart)
			return ErrNoGameStart
		}

		known := s.sess.GameID()
		switch ev.Type {
		case lichess.EventGameStart:
			ref := ev.Game.Ref()
			if ref == "" || (known != "" && ref != known) {
				continue
			}
			color, ok := board.ParseColor(ev.Game.Color)
			if !ok {
				err := fmt.Errorf("gameStart for %s has no usable color %q", ref, ev.Game.Color)
				s.terminate(err)
				return err
			}
			if err := s.sess.SetGame(ref, ""); err != nil {
				s.terminate(err)
				return err
			}
			if err := s.sess.setColor(color); err != nil {
				s.terminate(err)
				return err
			}
			s.sess.setOpponent(ev.Game.Opponent.Username, ev.Game.Opponent.AILevel)
			obslog.L().Info("sync_game_start",
				zap.String("session_id", s.sess.ID),
				zap.String("game_id", ref),
				zap.String("color", color.String()),
				zap.String("opponent", ev.Game.Opponent.Username),
			)
			s.setState(StateStreaming)
			return nil
		case lichess.EventChallengeDeclined, lichess.EventChallengeCanceled, lichess.EventChallenge:
			if ev.Challenge == nil || known == "" || ev.Challenge.ID != known {
				continue
			}
			reason := ev.Challenge.DeclineReason
			switch {
			case ev.Type == lichess.EventChallengeCanceled:
				reason = "canceled"
			case ev.Type == lichess.EventChallenge && ev.Challenge.Status != "declined" && ev.Challenge.Status != "expired":
				continue
			case reason == "":
				reason = ev.Challenge.Status
			}
			err := fmt.Errorf("%w: %s", ErrChallengeDeclined, reason)
			s.view.ShowMessage(s.msgs.Text("session.declined", map[string]any{"Reason": reason}))
			s.terminate(err)
			return err
		}
	}
}

// Run follows the game stream until the game ends, the stream closes or ctx
// is done. An unreplayable move list is fatal.
func (s *Synchronizer) Run(ctx context.Context) error {
	gameID := s.sess.GameID()
	s.setState(StateStreaming)
	events, err := s.gw.StreamGameEvents(ctx, gameID)
	if err != nil {
		s.terminate(err)
		return err
	}
	for {
		select {
		case <-ctx.Done():
			s.terminate(nil)
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				s.terminate(nil)
				return nil
			}
			over, err := s.apply(ctx, ev)
			if err != nil {
				s.terminate(err)
				return err
			}
			if over {
				s.terminate(nil)
				return nil
			}
		}
	}
}

// apply folds one stream event into the session. It reports whether the game
// is over.
func (s *Synchronizer) apply(ctx context.Context, ev lichess.GameStateMessage) (bool, error) {
	switch ev.Type {
	case lichess.StateChatLine:
		if ev.ChatText != "" {
			s.view.ShowMessage(s.msgs.Text("game.chat", map[string]any{"User": ev.ChatUser, "Text": ev.ChatText}))
		}
		return false, nil
	case lichess.StateOpponentGone:
		if ev.Gone {
			s.view.ShowMessage(s.msgs.Text("game.opponent_gone", nil))
		}
		return false, nil
	case lichess.StateGameFull, lichess.StateGameState:
	default:
		return false, nil
	}

	full := ev.Type == lichess.StateGameFull

	s.sess.mu.Lock()
	if full {
		if ev.White != nil {
			s.sess.white = ev.White.DisplayName()
		}
		if ev.Black != nil {
			s.sess.black = ev.Black.DisplayName()
		}
	}
	fresh := len(ev.Moves) > s.sess.lastMoveCount
	if fresh {
		if err := s.sess.board.ApplyMoves(ev.Moves); err != nil {
			s.sess.mu.Unlock()
			return true, err
		}
		s.sess.lastMoveCount = len(ev.Moves)
	}
	wasOver := s.sess.over
	if ev.Finished() {
		s.sess.over = true
		s.sess.status = ev.Status
		s.sess.winner = ev.Winner
	}
	if s.sess.board.IsGameOver() {
		s.sess.over = true
	}
	ended := s.sess.over && !wasOver
	userTurn := s.sess.userTurnLocked()
	over := s.sess.over
	render := fresh || full
	notify := fresh || ended
	var upd Update
	if render || notify {
		upd = s.sess.updateLocked()
	}
	s.sess.mu.Unlock()

	if fresh {
		obslog.L().Info("sync_apply",
			zap.String("session_id", upd.SessionID),
			zap.String("game_id", upd.GameID),
			zap.Int("ply", upd.Snapshot.Ply()),
			zap.String("last_move", upd.Snapshot.LastMove),
		)
		s.view.ShowMessage(s.msgs.Text("board.updated", nil))
	}
	if render {
		s.view.RenderBoard(upd.Snapshot, upd.UserColor)
	}
	if notify {
		for _, o := range s.observers {
			o.OnBoardUpdate(ctx, upd)
		}
	}

	switch {
	case userTurn && render:
		s.gate.Signal()
		obslog.L().Debug("gate_signal", zap.String("session_id", s.sess.ID), zap.Int("ply", upd.Snapshot.Ply()))
	case fresh && !userTurn:
		s.gate.Clear()
	}

	if ended {
		obslog.L().Info("sync_game_over", zap.String("session_id", s.sess.ID), zap.String("status", ev.Status), zap.String("winner", ev.Winner))
	}
	return over, nil
}
