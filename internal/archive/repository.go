// Package archive stores finished games with their PGN in Postgres.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/park285/cheese-lichess/internal/obslog"
	"github.com/park285/cheese-lichess/internal/session"
	"go.uber.org/zap"
)

const schema = `CREATE TABLE IF NOT EXISTS lichess_games (
    game_id       TEXT PRIMARY KEY,
    session_id    TEXT NOT NULL,
    url           TEXT NOT NULL DEFAULT '',
    user_color    TEXT NOT NULL,
    white_name    TEXT NOT NULL DEFAULT '',
    black_name    TEXT NOT NULL DEFAULT '',
    result        TEXT NOT NULL,
    result_method TEXT NOT NULL DEFAULT '',
    opening_eco   TEXT NOT NULL DEFAULT '',
    opening_name  TEXT NOT NULL DEFAULT '',
    moves_uci     JSONB NOT NULL,
    moves_san     JSONB NOT NULL,
    pgn           TEXT NOT NULL,
    started_at    TIMESTAMPTZ,
    ended_at      TIMESTAMPTZ NOT NULL,
    duration_ms   BIGINT NOT NULL DEFAULT 0
)`

const upsert = `INSERT INTO lichess_games (
    game_id, session_id, url, user_color, white_name, black_name,
    result, result_method, opening_eco, opening_name,
    moves_uci, moves_san, pgn, started_at, ended_at, duration_ms
  ) VALUES (
    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
  ) ON CONFLICT (game_id) DO UPDATE SET
    result=EXCLUDED.result,
    result_method=EXCLUDED.result_method,
    moves_uci=EXCLUDED.moves_uci,
    moves_san=EXCLUDED.moves_san,
    pgn=EXCLUDED.pgn,
    ended_at=EXCLUDED.ended_at,
    duration_ms=EXCLUDED.duration_ms`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Repository archives each finished game once.
type Repository struct {
	db     execer
	closer func() error
	now    func() time.Time

	mu    sync.Mutex
	saved map[string]bool
}

func NewRepository(ctx context.Context, databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("database url is empty")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	r := newRepository(db)
	r.closer = db.Close
	return r, nil
}

func newRepository(db execer) *Repository {
	return &Repository{db: db, now: time.Now, saved: make(map[string]bool)}
}

func (r *Repository) Close() error {
	if r == nil || r.closer == nil {
		return nil
	}
	return r.closer()
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// SaveResult upserts the final state of a game.
func (r *Repository) SaveResult(ctx context.Context, u session.Update) error {
	ended := r.now()
	outcome := u.Outcome()
	method := u.Method()
	pgn := buildPGN(u, outcome.PGN(), method, ended)

	movesUCIRaw, err := json.Marshal(nonNil(u.Snapshot.Moves))
	if err != nil {
		return err
	}
	movesSANRaw, err := json.Marshal(nonNil(u.Snapshot.SAN))
	if err != nil {
		return err
	}
	var started any
	var duration int64
	if !u.StartedAt.IsZero() {
		started = u.StartedAt
		duration = ended.Sub(u.StartedAt).Milliseconds()
		if duration < 0 {
			duration = 0
		}
	}

	_, err = r.db.ExecContext(ctx, upsert,
		u.GameID, u.SessionID, u.URL, u.UserColor.String(),
		u.White, u.Black,
		outcome.String(), method, u.Snapshot.OpeningCode, u.Snapshot.OpeningName,
		string(movesUCIRaw), string(movesSANRaw), pgn,
		started, ended, duration,
	)
	return err
}

// OnBoardUpdate archives the game the first time it is seen finished.
func (r *Repository) OnBoardUpdate(ctx context.Context, u session.Update) {
	if !u.Over || u.GameID == "" {
		return
	}
	r.mu.Lock()
	if r.saved[u.GameID] {
		r.mu.Unlock()
		return
	}
	r.saved[u.GameID] = true
	r.mu.Unlock()

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := r.SaveResult(saveCtx, u); err != nil {
		r.mu.Lock()
		delete(r.saved, u.GameID)
		r.mu.Unlock()
		obslog.L().Error("archive_persist_error", zap.String("game_id", u.GameID), zap.Error(err))
		return
	}
	obslog.L().Info("archive_persist", zap.String("game_id", u.GameID), zap.String("result", u.Outcome().PGN()), zap.String("method", u.Method()))
}

func buildPGN(u session.Update, pgnResult, method string, date time.Time) string {
	var b strings.Builder
	white, black := u.White, u.Black
	if white == "" {
		white = "?"
	}
	if black == "" {
		black = "?"
	}
	b.WriteString("[Event \"Lichess game\"]\n")
	site := u.URL
	if site == "" {
		site = "https://lichess.org/" + u.GameID
	}
	b.WriteString(fmt.Sprintf("[Site \"%s\"]\n", sanitizePGN(site)))
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(white)))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(black)))
	if u.Snapshot.OpeningCode != "" {
		b.WriteString(fmt.Sprintf("[ECO \"%s\"]\n", sanitizePGN(u.Snapshot.OpeningCode)))
		b.WriteString(fmt.Sprintf("[Opening \"%s\"]\n", sanitizePGN(u.Snapshot.OpeningName)))
	}
	if strings.TrimSpace(method) != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(strings.ToLower(method))))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", pgnResult))

	san := u.Snapshot.SAN
	for i := 0; i < len(san); i += 2 {
		b.WriteString(fmt.Sprintf("%d. %s", i/2+1, strings.TrimSpace(san[i])))
		if i+1 < len(san) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(san[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(pgnResult)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var _ session.Observer = (*Repository)(nil)
