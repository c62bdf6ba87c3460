package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/park285/cheese-lichess/internal/board"
	"github.com/park285/cheese-lichess/internal/lichess"
)

func TestTurnResignNeverSubmitsMove(t *testing.T) {
	for _, input := range []string{"resign", "RESIGN", "  Resign "} {
		gw := newFakeGateway()
		view := newFakeView(input)
		d := NewDispatcher(startedSession(t, board.White), gw, view, testCatalog(t))

		res, err := d.Turn(context.Background())
		if err != nil {
			t.Fatalf("%q: Turn: %v", input, err)
		}
		if res.Outcome != Resigned {
			t.Fatalf("%q: outcome = %s", input, res.Outcome)
		}
		if gw.resignCount() != 1 || len(gw.submittedMoves()) != 0 {
			t.Fatalf("%q: resigns=%d moves=%v", input, gw.resignCount(), gw.submittedMoves())
		}
	}
}

func TestTurnResignFailureKeepsPlaying(t *testing.T) {
	gw := newFakeGateway()
	gw.resignErr = errors.New("boom")
	view := newFakeView("resign")
	d := NewDispatcher(startedSession(t, board.White), gw, view, testCatalog(t))

	res, err := d.Turn(context.Background())
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if res.Outcome != Rejected || !view.saw("Resign failed") {
		t.Fatalf("outcome = %s messages = %v", res.Outcome, view.messages)
	}
}

func TestTurnSubmitsSANAsUCI(t *testing.T) {
	gw := newFakeGateway()
	view := newFakeView("Nf3")
	d := NewDispatcher(startedSession(t, board.White), gw, view, testCatalog(t))

	res, err := d.Turn(context.Background())
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if res.Outcome != Submitted || res.Move.UCI != "g1f3" {
		t.Fatalf("result = %+v", res)
	}
	if got := gw.submittedMoves(); len(got) != 1 || got[0] != "g1f3" {
		t.Fatalf("submitted = %v", got)
	}
	if !view.saw("Move played: Nf3") {
		t.Fatalf("messages = %v", view.messages)
	}
}

func TestTurnRejectsLocally(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		color   board.Color
		wantErr error
		wantMsg string
	}{
		{name: "off board", input: "e9", color: board.White, wantErr: board.ErrInvalidNotation, wantMsg: "Invalid notation: e9"},
		{name: "gibberish", input: "hello", color: board.White, wantErr: board.ErrInvalidNotation, wantMsg: "Invalid notation"},
		{name: "illegal", input: "e5", color: board.White, wantErr: board.ErrIllegalMove, wantMsg: "Illegal move: e5"},
		{name: "wrong side", input: "e4", color: board.Black, wantErr: ErrNotYourTurn, wantMsg: "board changed"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gw := newFakeGateway()
			view := newFakeView(tc.input)
			d := NewDispatcher(startedSession(t, tc.color), gw, view, testCatalog(t))

			res, err := d.Turn(context.Background())
			if err != nil {
				t.Fatalf("Turn: %v", err)
			}
			if res.Outcome != Rejected || !errors.Is(res.Err, tc.wantErr) {
				t.Fatalf("result = %+v", res)
			}
			if len(gw.submittedMoves()) != 0 {
				t.Fatalf("nothing should be sent, got %v", gw.submittedMoves())
			}
			if !view.saw(tc.wantMsg) {
				t.Fatalf("missing %q in %v", tc.wantMsg, view.messages)
			}
		})
	}
}

func TestTurnTerminalFailure(t *testing.T) {
	gw := newFakeGateway()
	gw.submitErr = &lichess.APIError{Status: 400, Body: `{"error":"Not your turn, or game already over"}`}
	view := newFakeView("e4")
	sess := startedSession(t, board.White)
	d := NewDispatcher(sess, gw, view, testCatalog(t))

	res, err := d.Turn(context.Background())
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	var terminal *TerminalSubmissionError
	if res.Outcome != Rejected || !errors.As(res.Err, &terminal) || terminal.Move != "e2e4" {
		t.Fatalf("result = %+v", res)
	}
	if !view.saw("Move rejected") {
		t.Fatalf("messages = %v", view.messages)
	}
	if sess.Update().Snapshot.Ply() != 0 {
		t.Fatalf("local board must follow the stream only")
	}
}

func TestTurnRetriesExhausted(t *testing.T) {
	gw := newFakeGateway()
	gw.submitErr = &lichess.RetryError{Op: "submit_move", Attempts: 4, Err: errors.New("connection reset")}
	view := newFakeView("e4")
	d := NewDispatcher(startedSession(t, board.White), gw, view, testCatalog(t))

	res, err := d.Turn(context.Background())
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if res.Outcome != Rejected || !errors.Is(res.Err, lichess.ErrRetriesExhausted) {
		t.Fatalf("result = %+v", res)
	}
	var terminal *TerminalSubmissionError
	if errors.As(res.Err, &terminal) {
		t.Fatalf("exhausted retries are not a terminal rejection")
	}
	if !view.saw("Connection problem") {
		t.Fatalf("messages = %v", view.messages)
	}
}

func TestTurnUnconfirmedResend(t *testing.T) {
	refused := fmt.Errorf("%w: %w", lichess.ErrUnconfirmed, &lichess.APIError{Status: 400, Body: "Not your turn"})

	t.Run("stream shows the move landed", func(t *testing.T) {
		gw := newFakeGateway()
		gw.submitErr = refused
		gw.hookOnError = true
		sess := startedSession(t, board.White)
		gw.onSubmit = func(uci string) {
			sess.mu.Lock()
			defer sess.mu.Unlock()
			if err := sess.board.ApplyMoves([]string{uci}); err != nil {
				t.Errorf("ApplyMoves: %v", err)
			}
			sess.lastMoveCount = 1
		}
		view := newFakeView("e4")
		res, err := NewDispatcher(sess, gw, view, testCatalog(t)).Turn(context.Background())
		if err != nil {
			t.Fatalf("Turn: %v", err)
		}
		if res.Outcome != Submitted || res.Err != nil {
			t.Fatalf("result = %+v", res)
		}
		if !view.saw("Move played: e4") || view.saw("Move rejected") {
			t.Fatalf("messages = %v", view.messages)
		}
	})

	t.Run("stream has not caught up", func(t *testing.T) {
		gw := newFakeGateway()
		gw.submitErr = refused
		view := newFakeView("e4")
		res, err := NewDispatcher(startedSession(t, board.White), gw, view, testCatalog(t)).Turn(context.Background())
		if err != nil {
			t.Fatalf("Turn: %v", err)
		}
		if res.Outcome != Rejected || !errors.Is(res.Err, lichess.ErrUnconfirmed) {
			t.Fatalf("result = %+v", res)
		}
		var terminal *TerminalSubmissionError
		if errors.As(res.Err, &terminal) {
			t.Fatalf("unconfirmed resend reported as terminal: %v", res.Err)
		}
		if !view.saw("Could not confirm e4") || view.saw("Move rejected") {
			t.Fatalf("messages = %v", view.messages)
		}
	})
}

func TestTurnPromptCancelled(t *testing.T) {
	gw := newFakeGateway()
	d := NewDispatcher(startedSession(t, board.White), gw, newFakeView(), testCatalog(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Turn(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
