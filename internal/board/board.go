package board

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

var (
	ErrInvalidNotation = errors.New("invalid move notation")
	ErrIllegalMove     = errors.New("illegal move")
)

// IllegalReplayError reports a remote move list that cannot be replayed from
// the initial position.
type IllegalReplayError struct {
	Index int
	Move  string
	Err   error
}

func (e *IllegalReplayError) Error() string {
	return fmt.Sprintf("replay move #%d %q: %v", e.Index+1, e.Move, e.Err)
}

func (e *IllegalReplayError) Unwrap() error { return e.Err }

type Color int

const (
	White Color = iota
	Black
)

func (c Color) String() string {
	if c == Black {
		return "black"
	}
	return "white"
}

// ParseColor accepts the remote server's color tokens.
func ParseColor(s string) (Color, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return White, true
	case "black", "b":
		return Black, true
	default:
		return White, false
	}
}

type Outcome int

const (
	InProgress Outcome = iota
	WhiteWin
	BlackWin
	Draw
)

func (o Outcome) String() string {
	switch o {
	case WhiteWin:
		return "white"
	case BlackWin:
		return "black"
	case Draw:
		return "draw"
	default:
		return "in_progress"
	}
}

// PGN returns the result token used in PGN headers.
func (o Outcome) PGN() string {
	switch o {
	case WhiteWin:
		return "1-0"
	case BlackWin:
		return "0-1"
	case Draw:
		return "1/2-1/2"
	default:
		return "*"
	}
}

// Board is the local mirror of the remote game. It is derived only from the
// ordered UCI move list and is not safe for concurrent use; callers guard it.
type Board struct {
	game  *nchess.Game
	moves []string
}

func New() *Board {
	return &Board{game: nchess.NewGame()}
}

// ApplyMoves resets to the initial position and replays moves. On failure the
// previous state is kept.
func (b *Board) ApplyMoves(moves []string) error {
	game := nchess.NewGame()
	applied := make([]string, 0, len(moves))
	for i, raw := range moves {
		uci := strings.ToLower(strings.TrimSpace(raw))
		if err := pushUCI(game, uci); err != nil {
			return &IllegalReplayError{Index: i, Move: raw, Err: err}
		}
		applied = append(applied, uci)
	}
	b.game = game
	b.moves = applied
	return nil
}

// Push applies one more UCI move on top of the current position.
func (b *Board) Push(uci string) error {
	uci = strings.ToLower(strings.TrimSpace(uci))
	if err := pushUCI(b.game, uci); err != nil {
		return err
	}
	b.moves = append(b.moves, uci)
	return nil
}

func pushUCI(game *nchess.Game, uci string) error {
	if game.Outcome() != nchess.NoOutcome {
		return fmt.Errorf("%w: game already decided", ErrIllegalMove)
	}
	if !uciPattern.MatchString(uci) {
		return fmt.Errorf("%w: %q", ErrInvalidNotation, uci)
	}
	if !legalUCI(game.Position(), uci) {
		return fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}
	if err := game.PushNotationMove(uci, nchess.UCINotation{}, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	return nil
}

func legalUCI(pos *nchess.Position, uci string) bool {
	if pos == nil {
		return false
	}
	valid := pos.ValidMoves()
	for i := range valid {
		if valid[i].String() == uci {
			return true
		}
	}
	return false
}

// IsLegal reports whether m can be played in the current position. A move
// parsed against an earlier position is never legal.
func (b *Board) IsLegal(m Move) bool {
	if m.UCI == "" || m.Ply != len(b.moves) || b.IsGameOver() {
		return false
	}
	return legalUCI(b.game.Position(), m.UCI)
}

func (b *Board) IsGameOver() bool {
	return b.game.Outcome() != nchess.NoOutcome
}

func (b *Board) Result() Outcome {
	switch b.game.Outcome() {
	case nchess.WhiteWon:
		return WhiteWin
	case nchess.BlackWon:
		return BlackWin
	case nchess.Draw:
		return Draw
	default:
		return InProgress
	}
}

// Method names how the game ended locally (checkmate, stalemate, ...), or ""
// while it is still running.
func (b *Board) Method() string {
	if !b.IsGameOver() {
		return ""
	}
	return strings.ToLower(b.game.Method().String())
}

func (b *Board) Turn() Color {
	if b.game.Position().Turn() == nchess.Black {
		return Black
	}
	return White
}

// MoveCount is the ply count of the current position.
func (b *Board) MoveCount() int { return len(b.moves) }

func (b *Board) Moves() []string {
	out := make([]string, len(b.moves))
	copy(out, b.moves)
	return out
}

func (b *Board) FEN() string { return b.game.FEN() }
