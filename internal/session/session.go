package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/cheese-lichess/internal/board"
	"github.com/park285/cheese-lichess/internal/lichess"
)

var (
	ErrChallengeDeclined = errors.New("challenge declined")
	ErrNoGameStart       = errors.New("event stream ended before the game started")
	ErrStreamEnded       = errors.New("game stream ended before the game finished")
	ErrStaleMove         = errors.New("board changed before the move was sent")
	ErrNotYourTurn       = errors.New("not your turn")
	ErrGameOver          = errors.New("game is over")
)

// TerminalSubmissionError is a move the server refused for good.
type TerminalSubmissionError struct {
	Move string
	Err  error
}

func (e *TerminalSubmissionError) Error() string {
	return fmt.Sprintf("move %s rejected: %v", e.Move, e.Err)
}

func (e *TerminalSubmissionError) Unwrap() error { return e.Err }

// Gateway is the remote side of a session.
type Gateway interface {
	StreamAccountEvents(ctx context.Context) (<-chan lichess.EventMessage, error)
	StreamGameEvents(ctx context.Context, gameID string) (<-chan lichess.GameStateMessage, error)
	CreateChallenge(ctx context.Context, opponent string, opts lichess.ChallengeOptions) (lichess.GameInfo, error)
	ChallengeAI(ctx context.Context, level int, opts lichess.ChallengeOptions) (lichess.GameInfo, error)
	CreateSeek(ctx context.Context, opts lichess.ChallengeOptions) error
	SubmitMove(ctx context.Context, gameID, uci string) error
	Resign(ctx context.Context, gameID string) error
}

// View is the operator-facing surface.
type View interface {
	ShowMessage(text string)
	RenderBoard(snap board.Snapshot, bottom board.Color)
	PromptMove(ctx context.Context) (string, error)
}

// Observer receives every board change after the session lock is released.
type Observer interface {
	OnBoardUpdate(ctx context.Context, u Update)
}

// Update is a detached view of the session at one point in time.
type Update struct {
	SessionID string
	GameID    string
	URL       string
	UserColor board.Color
	Snapshot  board.Snapshot
	Over      bool
	Status    string
	Winner    string
	White     string
	Black     string
	StartedAt time.Time
}

// Outcome prefers the server's verdict over the local position.
func (u Update) Outcome() board.Outcome {
	switch u.Winner {
	case "white":
		return board.WhiteWin
	case "black":
		return board.BlackWin
	}
	if o := u.Snapshot.Outcome; o != board.InProgress {
		return o
	}
	if u.Over && u.Status != "aborted" && u.Status != "noStart" {
		return board.Draw
	}
	return board.InProgress
}

func (u Update) Method() string {
	if lichess.StatusFinished(u.Status) {
		return u.Status
	}
	return u.Snapshot.Method
}

// Checkpoint is what a resumed session starts from.
type Checkpoint struct {
	GameID    string
	URL       string
	Color     string
	Moves     []string
	SessionID string
	UpdatedAt time.Time
}

// Session is the shared game state. One mutex guards the board and every
// field below it.
type Session struct {
	ID string

	mu            sync.Mutex
	board         *board.Board
	gameID        string
	gameURL       string
	userColor     board.Color
	colorKnown    bool
	lastMoveCount int
	over          bool
	status        string
	winner        string
	white         string
	black         string
	opponent      string
	startedAt     time.Time
}

func New() *Session {
	return &Session{
		ID:    uuid.NewString(),
		board: board.New(),
	}
}

// SetGame binds the session to a game. The id cannot change once set.
func (s *Session) SetGame(id, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gameID != "" && s.gameID != id {
		return fmt.Errorf("session already bound to game %s", s.gameID)
	}
	s.gameID = id
	if url != "" {
		s.gameURL = url
	}
	return nil
}

func (s *Session) GameID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gameID
}

// setColor records the operator's side once.
func (s *Session) setColor(c board.Color) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.colorKnown && s.userColor != c {
		return fmt.Errorf("color already set to %s", s.userColor)
	}
	s.userColor = c
	s.colorKnown = true
	if s.startedAt.IsZero() {
		s.startedAt = time.Now()
	}
	return nil
}

// Restore seeds the board from a checkpoint before streaming starts.
func (s *Session) Restore(cp *Checkpoint) error {
	if cp == nil {
		return nil
	}
	if err := s.SetGame(cp.GameID, cp.URL); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.board.ApplyMoves(cp.Moves); err != nil {
		return fmt.Errorf("restore checkpoint: %w", err)
	}
	s.lastMoveCount = len(cp.Moves)
	if c, ok := board.ParseColor(cp.Color); ok {
		s.userColor = c
		s.colorKnown = true
	}
	return nil
}

// MoveCount is the number of plies applied from the stream.
func (s *Session) MoveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMoveCount
}

// UserTurn reports whether the operator is to move in a live game.
func (s *Session) UserTurn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userTurnLocked()
}

func (s *Session) userTurnLocked() bool {
	return !s.over && s.colorKnown && s.board.Turn() == s.userColor
}

func (s *Session) setOpponent(username string, aiLevel int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case username != "":
		s.opponent = username
	case aiLevel > 0:
		s.opponent = fmt.Sprintf("Stockfish level %d", aiLevel)
	}
}

func (s *Session) Opponent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opponent
}

// concede ends a live game as lost by the operator. It reports false when the
// game had already ended.
func (s *Session) concede() (Update, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.over || !s.colorKnown {
		return Update{}, false
	}
	winner := board.White
	if s.userColor == board.White {
		winner = board.Black
	}
	s.over = true
	s.status = "resign"
	s.winner = winner.String()
	return s.updateLocked(), true
}

func (s *Session) Over() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.over
}

// Update takes a detached copy of the current state.
func (s *Session) Update() Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked()
}

func (s *Session) updateLocked() Update {
	return Update{
		SessionID: s.ID,
		GameID:    s.gameID,
		URL:       s.gameURL,
		UserColor: s.userColor,
		Snapshot:  s.board.Snapshot(),
		Over:      s.over,
		Status:    s.status,
		Winner:    s.winner,
		White:     s.white,
		Black:     s.black,
		StartedAt: s.startedAt,
	}
}
