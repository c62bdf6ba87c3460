package session

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/park285/cheese-lichess/internal/board"
	"github.com/park285/cheese-lichess/internal/lichess"
	"github.com/park285/cheese-lichess/internal/msgcat"
)

type fakeGateway struct {
	mu        sync.Mutex
	account   chan lichess.EventMessage
	game      chan lichess.GameStateMessage
	submitted []string
	resigned  int
	submitErr error
	resignErr error
	onSubmit  func(uci string)
	onResign  func()
	info      lichess.GameInfo
	seeks     int

	// hookOnError runs onSubmit even when submitErr is returned.
	hookOnError bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		account: make(chan lichess.EventMessage, 16),
		game:    make(chan lichess.GameStateMessage, 16),
		info:    lichess.GameInfo{ID: "g1", URL: "https://lichess.org/g1"},
	}
}

func (f *fakeGateway) StreamAccountEvents(context.Context) (<-chan lichess.EventMessage, error) {
	return f.account, nil
}

func (f *fakeGateway) StreamGameEvents(context.Context, string) (<-chan lichess.GameStateMessage, error) {
	return f.game, nil
}

func (f *fakeGateway) CreateChallenge(context.Context, string, lichess.ChallengeOptions) (lichess.GameInfo, error) {
	return f.info, nil
}

func (f *fakeGateway) ChallengeAI(context.Context, int, lichess.ChallengeOptions) (lichess.GameInfo, error) {
	return f.info, nil
}

func (f *fakeGateway) CreateSeek(ctx context.Context, _ lichess.ChallengeOptions) error {
	f.mu.Lock()
	f.seeks++
	f.mu.Unlock()
	<-ctx.Done()
	return nil
}

func (f *fakeGateway) SubmitMove(_ context.Context, _ string, uci string) error {
	f.mu.Lock()
	err := f.submitErr
	f.submitted = append(f.submitted, uci)
	hook := f.onSubmit
	always := f.hookOnError
	f.mu.Unlock()
	if hook != nil && (err == nil || always) {
		hook(uci)
	}
	return err
}

func (f *fakeGateway) Resign(context.Context, string) error {
	f.mu.Lock()
	f.resigned++
	err := f.resignErr
	hook := f.onResign
	f.mu.Unlock()
	if err == nil && hook != nil {
		hook()
	}
	return err
}

func (f *fakeGateway) submittedMoves() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.submitted...)
}

func (f *fakeGateway) resignCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resigned
}

type fakeView struct {
	mu       sync.Mutex
	messages []string
	boards   []board.Snapshot
	inputs   chan string
	prompts  int
}

func newFakeView(inputs ...string) *fakeView {
	v := &fakeView{inputs: make(chan string, 16)}
	for _, in := range inputs {
		v.inputs <- in
	}
	return v
}

func (v *fakeView) ShowMessage(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.messages = append(v.messages, text)
}

func (v *fakeView) RenderBoard(snap board.Snapshot, _ board.Color) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.boards = append(v.boards, snap)
}

func (v *fakeView) PromptMove(ctx context.Context) (string, error) {
	v.mu.Lock()
	v.prompts++
	v.mu.Unlock()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case in := <-v.inputs:
		return in, nil
	}
}

func (v *fakeView) boardCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.boards)
}

func (v *fakeView) saw(substr string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, m := range v.messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

type recordingObserver struct {
	mu      sync.Mutex
	updates []Update
}

func (o *recordingObserver) OnBoardUpdate(_ context.Context, u Update) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.updates = append(o.updates, u)
}

func (o *recordingObserver) finished() []Update {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []Update
	for _, u := range o.updates {
		if u.Over {
			out = append(out, u)
		}
	}
	return out
}

func (o *recordingObserver) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.updates)
}

func testCatalog(t *testing.T) *msgcat.Catalog {
	t.Helper()
	c, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat.New: %v", err)
	}
	return c
}

func gameState(moves string, status string) lichess.GameStateMessage {
	return lichess.GameStateMessage{Type: lichess.StateGameState, Moves: strings.Fields(moves), Status: status}
}

func gameFull(moves string) lichess.GameStateMessage {
	return lichess.GameStateMessage{
		Type:   lichess.StateGameFull,
		Moves:  strings.Fields(moves),
		Status: "started",
		White:  &lichess.Player{Name: "me"},
		Black:  &lichess.Player{AILevel: 1},
	}
}

func startedSession(t *testing.T, color board.Color) *Session {
	t.Helper()
	s := New()
	if err := s.SetGame("g1", "https://lichess.org/g1"); err != nil {
		t.Fatalf("SetGame: %v", err)
	}
	if err := s.setColor(color); err != nil {
		t.Fatalf("setColor: %v", err)
	}
	return s
}
