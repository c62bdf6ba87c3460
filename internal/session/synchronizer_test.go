package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/park285/cheese-lichess/internal/board"
	"github.com/park285/cheese-lichess/internal/lichess"
)

func waitOpen(t *testing.T, g *TurnGate) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := g.Wait(ctx); err != nil {
		t.Fatalf("gate did not open: %v", err)
	}
}

func assertShut(t *testing.T, g *TurnGate) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := g.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("gate should be shut, got %v", err)
	}
}

func TestApplyTracksTurnsForWhite(t *testing.T) {
	sess := startedSession(t, board.White)
	gate := NewTurnGate()
	view := newFakeView()
	s := NewSynchronizer(sess, newFakeGateway(), gate, view, testCatalog(t))

	if _, err := s.apply(context.Background(), gameFull("")); err != nil {
		t.Fatalf("apply gameFull: %v", err)
	}
	waitOpen(t, gate)

	if _, err := s.apply(context.Background(), gameState("e2e4", "started")); err != nil {
		t.Fatalf("apply e2e4: %v", err)
	}
	if sess.UserTurn() {
		t.Fatalf("white should not be to move after e2e4")
	}
	assertShut(t, gate)

	if _, err := s.apply(context.Background(), gameState("e2e4 e7e5", "started")); err != nil {
		t.Fatalf("apply e7e5: %v", err)
	}
	if !sess.UserTurn() {
		t.Fatalf("white should be to move after e7e5")
	}
	waitOpen(t, gate)

	snap := sess.Update().Snapshot
	if snap.Ply() != 2 || snap.LastMove != "e7e5" || snap.SAN[1] != "e5" {
		t.Fatalf("snapshot = ply %d last %q", snap.Ply(), snap.LastMove)
	}
	if view.boardCount() != 3 {
		t.Fatalf("renders = %d, want 3", view.boardCount())
	}
}

func TestApplyDuplicateEventIsIdempotent(t *testing.T) {
	sess := startedSession(t, board.Black)
	gate := NewTurnGate()
	view := newFakeView()
	obs := &recordingObserver{}
	s := NewSynchronizer(sess, newFakeGateway(), gate, view, testCatalog(t), obs)

	ev := gameState("e2e4", "started")
	if _, err := s.apply(context.Background(), ev); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	fen := sess.Update().Snapshot.FEN
	waitOpen(t, gate)

	if _, err := s.apply(context.Background(), ev); err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if got := sess.Update().Snapshot.FEN; got != fen {
		t.Fatalf("FEN changed on duplicate: %s != %s", got, fen)
	}
	if view.boardCount() != 1 {
		t.Fatalf("duplicate rendered again: %d renders", view.boardCount())
	}
	if obs.count() != 1 {
		t.Fatalf("duplicate notified observers: %d updates", obs.count())
	}
	assertShut(t, gate)
}

func TestApplyIllegalReplayIsFatal(t *testing.T) {
	sess := startedSession(t, board.White)
	gate := NewTurnGate()
	gw := newFakeGateway()
	s := NewSynchronizer(sess, gw, gate, newFakeView(), testCatalog(t))

	gw.game <- gameFull("e2e4 e2e4")
	err := s.Run(context.Background())

	var replay *board.IllegalReplayError
	if !errors.As(err, &replay) {
		t.Fatalf("expected IllegalReplayError, got %v", err)
	}
	if replay.Index != 1 {
		t.Fatalf("replay index = %d, want 1", replay.Index)
	}
	if s.State() != StateTerminated || !errors.Is(s.Err(), err) {
		t.Fatalf("state = %s err = %v", s.State(), s.Err())
	}
	if !gate.Closed() {
		t.Fatalf("gate left open after fatal replay")
	}
	if sess.Update().Snapshot.Ply() != 0 {
		t.Fatalf("board changed by a failed replay")
	}
}

func TestApplyRemoteResignEndsGame(t *testing.T) {
	sess := startedSession(t, board.White)
	gate := NewTurnGate()
	obs := &recordingObserver{}
	gw := newFakeGateway()
	s := NewSynchronizer(sess, gw, gate, newFakeView(), testCatalog(t), obs)

	gw.game <- gameFull("e2e4")
	resign := gameState("e2e4", "resign")
	resign.Winner = "white"
	gw.game <- resign

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	u := sess.Update()
	if !u.Over || u.Outcome() != board.WhiteWin || u.Method() != "resign" {
		t.Fatalf("update = over %v outcome %s method %q", u.Over, u.Outcome(), u.Method())
	}
	if obs.count() != 2 {
		t.Fatalf("observer updates = %d, want 2", obs.count())
	}
	if !gate.Closed() {
		t.Fatalf("gate should close when the game ends")
	}
}

func TestRunStreamCloseTerminatesWithoutError(t *testing.T) {
	sess := startedSession(t, board.White)
	gate := NewTurnGate()
	gw := newFakeGateway()
	s := NewSynchronizer(sess, gw, gate, newFakeView(), testCatalog(t))
	close(gw.game)

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.Err() != nil || !gate.Closed() || sess.Over() {
		t.Fatalf("err=%v closed=%v over=%v", s.Err(), gate.Closed(), sess.Over())
	}
}

func TestAwaitStartMatchesKnownGame(t *testing.T) {
	sess := New()
	if err := sess.SetGame("g1", ""); err != nil {
		t.Fatalf("SetGame: %v", err)
	}
	s := NewSynchronizer(sess, newFakeGateway(), NewTurnGate(), newFakeView(), testCatalog(t))

	events := make(chan lichess.EventMessage, 4)
	events <- lichess.EventMessage{Type: lichess.EventGameStart, Game: &lichess.GameEventInfo{GameID: "other", Color: "white"}}
	start := lichess.EventMessage{Type: lichess.EventGameStart, Game: &lichess.GameEventInfo{GameID: "g1", Color: "black"}}
	start.Game.Opponent.Username = "magnus"
	events <- start

	if err := s.AwaitStart(context.Background(), events); err != nil {
		t.Fatalf("AwaitStart: %v", err)
	}
	if s.State() != StateStreaming {
		t.Fatalf("state = %s", s.State())
	}
	u := sess.Update()
	if u.GameID != "g1" || u.UserColor != board.Black {
		t.Fatalf("game %s color %s", u.GameID, u.UserColor)
	}
	if sess.Opponent() != "magnus" {
		t.Fatalf("opponent = %q", sess.Opponent())
	}
}

func TestAwaitStartTakesFirstGameWithoutID(t *testing.T) {
	sess := New()
	s := NewSynchronizer(sess, newFakeGateway(), NewTurnGate(), newFakeView(), testCatalog(t))

	events := make(chan lichess.EventMessage, 1)
	events <- lichess.EventMessage{Type: lichess.EventGameStart, Game: &lichess.GameEventInfo{ID: "seek42", Color: "white"}}

	if err := s.AwaitStart(context.Background(), events); err != nil {
		t.Fatalf("AwaitStart: %v", err)
	}
	if sess.GameID() != "seek42" {
		t.Fatalf("game id = %q", sess.GameID())
	}
}

func TestAwaitStartDeclined(t *testing.T) {
	sess := New()
	if err := sess.SetGame("g1", ""); err != nil {
		t.Fatalf("SetGame: %v", err)
	}
	gate := NewTurnGate()
	view := newFakeView()
	s := NewSynchronizer(sess, newFakeGateway(), gate, view, testCatalog(t))

	events := make(chan lichess.EventMessage, 1)
	events <- lichess.EventMessage{
		Type:      lichess.EventChallengeDeclined,
		Challenge: &lichess.ChallengeInfo{ID: "g1", Status: "declined", DeclineReason: "later"},
	}

	err := s.AwaitStart(context.Background(), events)
	if !errors.Is(err, ErrChallengeDeclined) {
		t.Fatalf("expected ErrChallengeDeclined, got %v", err)
	}
	if !view.saw("declined: later") {
		t.Fatalf("decline not shown: %v", view.messages)
	}
	if !gate.Closed() || s.State() != StateTerminated {
		t.Fatalf("closed=%v state=%s", gate.Closed(), s.State())
	}
}

func TestAwaitStartEventStreamClosed(t *testing.T) {
	s := NewSynchronizer(New(), newFakeGateway(), NewTurnGate(), newFakeView(), testCatalog(t))
	events := make(chan lichess.EventMessage)
	close(events)
	if err := s.AwaitStart(context.Background(), events); !errors.Is(err, ErrNoGameStart) {
		t.Fatalf("expected ErrNoGameStart, got %v", err)
	}
}

func TestApplyChatAndOpponentGone(t *testing.T) {
	sess := startedSession(t, board.White)
	view := newFakeView()
	s := NewSynchronizer(sess, newFakeGateway(), NewTurnGate(), view, testCatalog(t))

	chat := lichess.GameStateMessage{Type: lichess.StateChatLine, ChatUser: "lichess", ChatText: "good luck"}
	gone := lichess.GameStateMessage{Type: lichess.StateOpponentGone, Gone: true}
	for _, ev := range []lichess.GameStateMessage{chat, gone} {
		over, err := s.apply(context.Background(), ev)
		if err != nil || over {
			t.Fatalf("apply %s: over=%v err=%v", ev.Type, over, err)
		}
	}
	if !view.saw("lichess: good luck") || !view.saw("Opponent left") {
		t.Fatalf("messages = %v", view.messages)
	}
	if view.boardCount() != 0 {
		t.Fatalf("chat should not render the board")
	}
}
