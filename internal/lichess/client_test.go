package lichess

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func newTestClient(t *testing.T, handler fasthttp.RequestHandler) *Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	t.Cleanup(func() { _ = ln.Close() })
	go func() { _ = fasthttp.Serve(ln, handler) }()

	return NewClient("http://lichess.test", "tok",
		WithDialer(func(string) (net.Conn, error) { return ln.Dial() }),
		WithRetry(RetryPolicy{
			MaxAttempts: 4,
			BaseDelay:   time.Second,
			Sleep:       func(context.Context, time.Duration) error { return nil },
		}),
	)
}

func TestSubmitMoveSendsAuthorizedPost(t *testing.T) {
	var path, auth, method atomic.Value
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		path.Store(string(ctx.Path()))
		auth.Store(string(ctx.Request.Header.Peek("Authorization")))
		method.Store(string(ctx.Method()))
		ctx.SetBodyString(`{"ok":true}`)
	})

	if err := c.SubmitMove(context.Background(), "abcd1234", "e2e4"); err != nil {
		t.Fatalf("SubmitMove: %v", err)
	}
	if got := path.Load(); got != "/api/board/game/abcd1234/move/e2e4" {
		t.Fatalf("path %v", got)
	}
	if got := auth.Load(); got != "Bearer tok" {
		t.Fatalf("auth header %v", got)
	}
	if got := method.Load(); got != "POST" {
		t.Fatalf("method %v", got)
	}
}

func TestSubmitMoveRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		if calls.Add(1) <= 2 {
			ctx.SetStatusCode(fasthttp.StatusBadGateway)
			return
		}
		ctx.SetBodyString(`{"ok":true}`)
	})

	if err := c.SubmitMove(context.Background(), "g1", "e2e4"); err != nil {
		t.Fatalf("SubmitMove: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestSubmitMoveRejectedIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		calls.Add(1)
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		ctx.SetBodyString(`{"error":"Not your turn, or game already over"}`)
	})

	err := c.SubmitMove(context.Background(), "g1", "e2e4")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 400 {
		t.Fatalf("expected 400 APIError, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected single attempt, got %d", calls.Load())
	}
}

func TestCreateChallengeReadsGameID(t *testing.T) {
	var form atomic.Value
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) != "/api/challenge/maia1" {
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			return
		}
		form.Store(string(ctx.PostArgs().Peek("clock.limit")) + "+" + string(ctx.PostArgs().Peek("clock.increment")) + "/" + string(ctx.PostArgs().Peek("color")))
		ctx.SetBodyString(`{"challenge":{"id":"Xy12AbCd","url":"https://lichess.org/Xy12AbCd"}}`)
	})

	info, err := c.CreateChallenge(context.Background(), "maia1", ChallengeOptions{ClockLimit: 600, ClockIncrement: 5})
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}
	if info.ID != "Xy12AbCd" || info.URL != "https://lichess.org/Xy12AbCd" {
		t.Fatalf("unexpected info %+v", info)
	}
	if got := form.Load(); got != "600+5/random" {
		t.Fatalf("unexpected form %v", got)
	}
}

func TestChallengeAISendsLevel(t *testing.T) {
	var level atomic.Value
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		level.Store(string(ctx.PostArgs().Peek("level")))
		ctx.SetBodyString(`{"id":"AiGame01","variant":{"key":"standard"}}`)
	})

	info, err := c.ChallengeAI(context.Background(), 3, ChallengeOptions{})
	if err != nil {
		t.Fatalf("ChallengeAI: %v", err)
	}
	if info.ID != "AiGame01" {
		t.Fatalf("unexpected id %q", info.ID)
	}
	if got := level.Load(); got != "3" {
		t.Fatalf("unexpected level %v", got)
	}
	if _, err := c.ChallengeAI(context.Background(), 9, ChallengeOptions{}); err == nil {
		t.Fatalf("expected range error for level 9")
	}
}

func TestGameInfoFromURL(t *testing.T) {
	cases := map[string]string{
		"https://lichess.org/Xy12AbCd":  "Xy12AbCd",
		"https://lichess.org/Xy12AbCd/": "Xy12AbCd",
		"Xy12AbCd":                      "Xy12AbCd",
	}
	for in, want := range cases {
		info, err := GameInfoFromURL(in)
		if err != nil {
			t.Fatalf("GameInfoFromURL(%q): %v", in, err)
		}
		if info.ID != want {
			t.Fatalf("GameInfoFromURL(%q)=%q want %q", in, info.ID, want)
		}
	}
	if _, err := GameInfoFromURL(""); !errors.Is(err, ErrMissingURL) {
		t.Fatalf("expected ErrMissingURL, got %v", err)
	}
}
