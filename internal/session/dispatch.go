package session

import (
	"context"
	"errors"
	"strings"

	"github.com/park285/cheese-lichess/internal/board"
	"github.com/park285/cheese-lichess/internal/lichess"
	"github.com/park285/cheese-lichess/internal/msgcat"
	"github.com/park285/cheese-lichess/internal/obslog"
	"go.uber.org/zap"
)

type Outcome int

const (
	Submitted Outcome = iota + 1
	Rejected
	Resigned
)

func (o Outcome) String() string {
	switch o {
	case Submitted:
		return "submitted"
	case Rejected:
		return "rejected"
	case Resigned:
		return "resigned"
	default:
		return "unknown"
	}
}

// Result describes one dispatch turn. Err carries the local or remote reason
// for a rejected attempt.
type Result struct {
	Outcome Outcome
	Input   string
	Move    board.Move
	Err     error
}

// Dispatcher reads one operator input per turn, validates it against the
// session board and hands it to the gateway.
type Dispatcher struct {
	sess *Session
	gw   Gateway
	view View
	msgs *msgcat.Catalog
}

func NewDispatcher(sess *Session, gw Gateway, view View, msgs *msgcat.Catalog) *Dispatcher {
	return &Dispatcher{sess: sess, gw: gw, view: view, msgs: msgs}
}

// Turn prompts once. The returned error is reserved for prompt failures; a
// refused move is reported through Result.
func (d *Dispatcher) Turn(ctx context.Context) (Result, error) {
	raw, err := d.view.PromptMove(ctx)
	if err != nil {
		return Result{}, err
	}
	input := strings.TrimSpace(raw)
	gameID := d.sess.GameID()

	if strings.EqualFold(input, "resign") {
		if err := d.gw.Resign(ctx, gameID); err != nil {
			obslog.L().Warn("resign_error", zap.String("game_id", gameID), zap.Error(err))
			d.view.ShowMessage(d.msgs.Text("resign.failed", map[string]any{"Error": err.Error()}))
			return Result{Outcome: Rejected, Input: input, Err: err}, nil
		}
		obslog.L().Info("resign", zap.String("game_id", gameID))
		d.view.ShowMessage(d.msgs.Text("resign.done", nil))
		return Result{Outcome: Resigned, Input: input}, nil
	}

	mv, err := d.validate(input)
	if err != nil {
		d.reportLocal(input, err)
		return Result{Outcome: Rejected, Input: input, Err: err}, nil
	}

	// the board may have moved while the operator was typing
	d.sess.mu.Lock()
	stale := !d.sess.board.IsLegal(mv)
	d.sess.mu.Unlock()
	if stale {
		d.reportLocal(input, ErrStaleMove)
		return Result{Outcome: Rejected, Input: input, Move: mv, Err: ErrStaleMove}, nil
	}

	if err := d.gw.SubmitMove(ctx, gameID, mv.UCI); err != nil {
		obslog.L().Warn("move_submit_error", zap.String("game_id", gameID), zap.String("uci", mv.UCI), zap.Error(err))
		if errors.Is(err, lichess.ErrUnconfirmed) {
			if d.sess.MoveCount() > mv.Ply {
				obslog.L().Info("move_submit_confirmed_by_stream", zap.String("game_id", gameID), zap.String("uci", mv.UCI))
				d.view.ShowMessage(d.msgs.Text("move.played", map[string]any{"SAN": mv.SAN}))
				return Result{Outcome: Submitted, Input: input, Move: mv}, nil
			}
			d.view.ShowMessage(d.msgs.Text("move.unconfirmed", map[string]any{"SAN": mv.SAN}))
			return Result{Outcome: Rejected, Input: input, Move: mv, Err: err}, nil
		}
		if errors.Is(err, lichess.ErrRetriesExhausted) {
			d.view.ShowMessage(d.msgs.Text("move.retries_exhausted", map[string]any{"Error": err.Error()}))
		} else {
			err = &TerminalSubmissionError{Move: mv.UCI, Err: err}
			d.view.ShowMessage(d.msgs.Text("move.rejected", map[string]any{"Error": err.Error()}))
		}
		return Result{Outcome: Rejected, Input: input, Move: mv, Err: err}, nil
	}

	obslog.L().Info("move_submit", zap.String("game_id", gameID), zap.String("uci", mv.UCI), zap.String("san", mv.SAN), zap.Int("ply", mv.Ply))
	d.view.ShowMessage(d.msgs.Text("move.played", map[string]any{"SAN": mv.SAN}))
	return Result{Outcome: Submitted, Input: input, Move: mv}, nil
}

func (d *Dispatcher) validate(input string) (board.Move, error) {
	d.sess.mu.Lock()
	defer d.sess.mu.Unlock()
	if d.sess.over {
		return board.Move{}, ErrGameOver
	}
	if !d.sess.userTurnLocked() {
		return board.Move{}, ErrNotYourTurn
	}
	mv, err := d.sess.board.ParseMove(input)
	if err != nil {
		return board.Move{}, err
	}
	if !d.sess.board.IsLegal(mv) {
		return board.Move{}, board.ErrIllegalMove
	}
	return mv, nil
}

func (d *Dispatcher) reportLocal(input string, err error) {
	data := map[string]any{"Input": input}
	switch {
	case errors.Is(err, board.ErrInvalidNotation):
		d.view.ShowMessage(d.msgs.Text("move.invalid_notation", data))
	case errors.Is(err, board.ErrIllegalMove):
		d.view.ShowMessage(d.msgs.Text("move.illegal", data))
	case errors.Is(err, ErrStaleMove), errors.Is(err, ErrNotYourTurn):
		d.view.ShowMessage(d.msgs.Text("move.stale", nil))
	default:
		d.view.ShowMessage(d.msgs.Text("move.rejected", map[string]any{"Error": err.Error()}))
	}
}
