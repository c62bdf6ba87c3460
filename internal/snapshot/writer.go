// Package snapshot renders board PNGs and keeps the latest one per game on
// disk.
package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/park285/cheese-lichess/internal/obslog"
	"github.com/park285/cheese-lichess/internal/session"
	"github.com/park285/cheese-lichess/internal/view"
	"go.uber.org/zap"
)

// Writer is a session observer that rewrites <dir>/<gameID>.png on every
// board change.
type Writer struct {
	dir string
}

func NewWriter(dir string) (*Writer, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("snapshot dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &Writer{dir: dir}, nil
}

func (w *Writer) Path(gameID string) string {
	return filepath.Join(w.dir, gameID+".png")
}

func (w *Writer) OnBoardUpdate(ctx context.Context, u session.Update) {
	if u.GameID == "" {
		return
	}
	png, err := Render(ctx, u.Snapshot, u.UserColor, Options{Header: header(u), Footer: footer(u)})
	if err != nil {
		obslog.L().Warn("snapshot_render_error", zap.String("game_id", u.GameID), zap.Error(err))
		return
	}
	if err := w.write(u.GameID, png); err != nil {
		obslog.L().Warn("snapshot_write_error", zap.String("game_id", u.GameID), zap.Error(err))
		return
	}
	obslog.L().Debug("snapshot_written", zap.String("path", w.Path(u.GameID)), zap.Int("ply", u.Snapshot.Ply()))
}

// write replaces the file atomically so readers never see a partial PNG.
func (w *Writer) write(gameID string, data []byte) error {
	tmp, err := os.CreateTemp(w.dir, ".snapshot-*.png")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, w.Path(gameID))
}

func header(u session.Update) string {
	white, black := u.White, u.Black
	if white == "" {
		white = "White"
	}
	if black == "" {
		black = "Black"
	}
	return white + " vs " + black
}

func footer(u session.Update) string {
	if u.Over {
		if method := u.Method(); method != "" {
			return fmt.Sprintf("%s (%s)", u.Outcome().PGN(), method)
		}
		return u.Outcome().PGN()
	}
	turn := u.Snapshot.Turn.String()
	return fmt.Sprintf("%s to move | material %s", turn, view.FormatMaterial(u.Snapshot.Material()))
}
