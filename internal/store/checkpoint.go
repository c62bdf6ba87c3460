// Package store keeps resumable game checkpoints in Redis.
package store

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/park285/cheese-lichess/internal/obslog"
	"github.com/park285/cheese-lichess/internal/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const ttlCheckpoint = 24 * time.Hour

func keyCheckpoint(gameID string) string { return "lichess:checkpoint:" + strings.TrimSpace(gameID) }
func keyLatest() string                  { return "lichess:checkpoint:latest" }

type record struct {
	GameID    string    `json:"gameId"`
	URL       string    `json:"url,omitempty"`
	Color     string    `json:"color"`
	Moves     []string  `json:"moves"`
	SessionID string    `json:"sessionId"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store saves the latest position of every live game so an interrupted
// client can pick it up again.
type Store struct{ rdb *redis.Client }

func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

// Open connects to redisURL and checks the server is reachable.
func Open(ctx context.Context, redisURL string) (*Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, errors.New("redis url is empty")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{rdb: rdb}, nil
}

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func (s *Store) Save(ctx context.Context, cp *session.Checkpoint) error {
	if cp == nil || strings.TrimSpace(cp.GameID) == "" {
		return errors.New("checkpoint without game id")
	}
	raw, err := json.Marshal(record{
		GameID:    cp.GameID,
		URL:       cp.URL,
		Color:     cp.Color,
		Moves:     cp.Moves,
		SessionID: cp.SessionID,
		UpdatedAt: cp.UpdatedAt,
	})
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, keyCheckpoint(cp.GameID), raw, ttlCheckpoint)
	pipe.Set(ctx, keyLatest(), cp.GameID, ttlCheckpoint)
	_, err = pipe.Exec(ctx)
	return err
}

// Load returns nil without error when no checkpoint exists.
func (s *Store) Load(ctx context.Context, gameID string) (*session.Checkpoint, error) {
	raw, err := s.rdb.Get(ctx, keyCheckpoint(gameID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var r record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", gameID, err)
	}
	return &session.Checkpoint{
		GameID:    r.GameID,
		URL:       r.URL,
		Color:     r.Color,
		Moves:     r.Moves,
		SessionID: r.SessionID,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

func (s *Store) Delete(ctx context.Context, gameID string) error {
	if err := s.rdb.Del(ctx, keyCheckpoint(gameID)).Err(); err != nil {
		return err
	}
	latest, err := s.rdb.Get(ctx, keyLatest()).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if latest == gameID {
		return s.rdb.Del(ctx, keyLatest()).Err()
	}
	return nil
}

// Restore loads the checkpoint for gameID, or the most recently saved one
// when gameID is empty.
func (s *Store) Restore(ctx context.Context, gameID string) (*session.Checkpoint, error) {
	gameID = strings.TrimSpace(gameID)
	if gameID == "" {
		latest, err := s.rdb.Get(ctx, keyLatest()).Result()
		if err == redis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		gameID = latest
	}
	return s.Load(ctx, gameID)
}

// OnBoardUpdate keeps the checkpoint current and drops it once the game ends.
func (s *Store) OnBoardUpdate(ctx context.Context, u session.Update) {
	if u.GameID == "" {
		return
	}
	if u.Over {
		if err := s.Delete(ctx, u.GameID); err != nil {
			obslog.L().Warn("checkpoint_delete_error", zap.String("game_id", u.GameID), zap.Error(err))
		}
		return
	}
	cp := &session.Checkpoint{
		GameID:    u.GameID,
		URL:       u.URL,
		Color:     u.UserColor.String(),
		Moves:     u.Snapshot.Moves,
		SessionID: u.SessionID,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.Save(ctx, cp); err != nil {
		obslog.L().Warn("checkpoint_save_error", zap.String("game_id", u.GameID), zap.Error(err))
		return
	}
	obslog.L().Debug("checkpoint_saved", zap.String("game_id", u.GameID), zap.Int("ply", len(cp.Moves)))
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redis db %q", p)
		}
		db = n
	}
	pass, _ := u.User.Password()
	opts := &redis.Options{Addr: u.Host, Username: u.User.Username(), Password: pass, DB: db}
	if u.Scheme == "rediss" {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: u.Hostname()}
	}
	return opts, nil
}
