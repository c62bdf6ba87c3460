package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/park285/cheese-lichess/internal/archive"
	appcfg "github.com/park285/cheese-lichess/internal/config"
	"github.com/park285/cheese-lichess/internal/lichess"
	"github.com/park285/cheese-lichess/internal/msgcat"
	"github.com/park285/cheese-lichess/internal/obslog"
	"github.com/park285/cheese-lichess/internal/session"
	"github.com/park285/cheese-lichess/internal/snapshot"
	"github.com/park285/cheese-lichess/internal/store"
	"github.com/park285/cheese-lichess/internal/view"
	"github.com/park285/cheese-lichess/internal/view/wsview"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := appcfg.LoadEnv()
	bindFlags(flag.CommandLine, cfg)
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 2
	}

	if err := obslog.InitFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		return 2
	}
	defer func() { _ = obslog.Sync() }()

	msgs, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "messages error: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	console := view.NewConsole(os.Stdin, os.Stdout, msgs)
	app, err := wire(ctx, cfg, msgs, console)
	if err != nil {
		reportCritical(console, msgs, err)
		return 1
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.close(closeCtx); err != nil {
			obslog.L().Warn("shutdown_error", zap.Error(err))
		}
	}()

	obslog.L().Info("session_start",
		zap.String("session_id", app.controller.Session().ID),
		zap.String("mode", cfg.Mode),
		zap.String("view", cfg.ViewMode),
	)
	if err := app.controller.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			obslog.L().Info("session_interrupted", zap.String("session_id", app.controller.Session().ID))
			return 130
		}
		obslog.L().Error("session_error", zap.String("session_id", app.controller.Session().ID), zap.Error(err))
		reportCritical(app.view, msgs, err)
		return 1
	}
	return 0
}

func bindFlags(fs *flag.FlagSet, cfg *appcfg.AppConfig) {
	fs.StringVar(&cfg.Mode, "mode", cfg.Mode, "how to open the game: ai, user, seek or resume")
	fs.StringVar(&cfg.Opponent, "opponent", cfg.Opponent, "username to challenge in user mode")
	fs.IntVar(&cfg.AILevel, "level", cfg.AILevel, "Stockfish level 1-8 in ai mode")
	fs.StringVar(&cfg.GameID, "game", cfg.GameID, "game id or url to resume")
	fs.IntVar(&cfg.ClockLimit, "clock", cfg.ClockLimit, "clock limit in seconds")
	fs.IntVar(&cfg.ClockIncrement, "increment", cfg.ClockIncrement, "clock increment in seconds")
	fs.StringVar(&cfg.Color, "color", cfg.Color, "white, black or random")
	fs.BoolVar(&cfg.Rated, "rated", cfg.Rated, "play a rated game")
	fs.StringVar(&cfg.ViewMode, "view", cfg.ViewMode, "console or ws")
	fs.StringVar(&cfg.ViewWSURL, "view-url", cfg.ViewWSURL, "websocket url of the remote board")
	fs.StringVar(&cfg.SnapshotDir, "snapshots", cfg.SnapshotDir, "directory for board PNG snapshots")
}

type closer func(ctx context.Context) error

type app struct {
	controller *session.Controller
	view       session.View
	closers    []closer
}

func (a *app) close(ctx context.Context) error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i](ctx))
	}
	return err
}

// wire builds the gateway, view and observers selected by cfg.
func wire(ctx context.Context, cfg *appcfg.AppConfig, msgs *msgcat.Catalog, console *view.Console) (*app, error) {
	a := &app{view: console}
	fail := func(err error) (*app, error) {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return nil, multierr.Append(err, a.close(closeCtx))
	}

	client := lichess.NewClient(cfg.LichessBaseURL, cfg.LichessToken,
		lichess.WithTimeout(cfg.HTTPTimeout),
		lichess.WithRetry(lichess.RetryPolicy{MaxAttempts: cfg.SubmitMaxAttempts, BaseDelay: cfg.SubmitBaseDelay}),
	)

	if cfg.ViewMode == appcfg.ViewWS {
		ws := wsview.New(cfg.ViewWSURL, msgs)
		if err := ws.Connect(ctx); err != nil {
			return fail(fmt.Errorf("connect view websocket: %w", err))
		}
		a.view = ws
		a.closers = append(a.closers, ws.Close)
	}

	var observers []session.Observer
	var restorer session.Restorer
	if cfg.SnapshotDir != "" {
		w, err := snapshot.NewWriter(cfg.SnapshotDir)
		if err != nil {
			return fail(err)
		}
		observers = append(observers, w)
	}
	if cfg.RedisURL != "" {
		st, err := store.Open(ctx, cfg.RedisURL)
		if err != nil {
			return fail(fmt.Errorf("open checkpoint store: %w", err))
		}
		a.closers = append(a.closers, func(context.Context) error { return st.Close() })
		observers = append(observers, st)
		restorer = st
	}
	if cfg.DatabaseURL != "" {
		repo, err := archive.NewRepository(ctx, cfg.DatabaseURL)
		if err != nil {
			return fail(fmt.Errorf("open archive: %w", err))
		}
		a.closers = append(a.closers, func(context.Context) error { return repo.Close() })
		if err := repo.EnsureSchema(ctx); err != nil {
			return fail(fmt.Errorf("archive schema: %w", err))
		}
		observers = append(observers, repo)
	}

	opts := session.Options{
		Mode:     cfg.Mode,
		Opponent: cfg.Opponent,
		AILevel:  cfg.AILevel,
		GameID:   gameRef(cfg.GameID),
		Challenge: lichess.ChallengeOptions{
			ClockLimit:     cfg.ClockLimit,
			ClockIncrement: cfg.ClockIncrement,
			Rated:          cfg.Rated,
			Color:          cfg.Color,
		},
	}
	a.controller = session.NewController(opts, client, a.view, msgs, observers...)
	if restorer != nil {
		a.controller.WithRestorer(restorer)
	}
	return a, nil
}

// gameRef accepts a bare id or a game url.
func gameRef(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "/") {
		return raw
	}
	info, err := lichess.GameInfoFromURL(raw)
	if err != nil {
		return raw
	}
	// player urls append a four character suffix to the eight character id
	if len(info.ID) == 12 {
		return info.ID[:8]
	}
	return info.ID
}

func reportCritical(v session.View, msgs *msgcat.Catalog, err error) {
	v.ShowMessage(msgs.Text("error.critical", map[string]any{"Error": err.Error()}))
	v.ShowMessage(msgs.Text("error.causes", nil))
	for _, key := range []string{"error.cause_network", "error.cause_token", "error.cause_bug"} {
		v.ShowMessage(msgs.Text(key, nil))
	}
}
