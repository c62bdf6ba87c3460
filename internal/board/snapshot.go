package board

import (
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"
)

var (
	ranksTopDown   = []nchess.Rank{nchess.Rank8, nchess.Rank7, nchess.Rank6, nchess.Rank5, nchess.Rank4, nchess.Rank3, nchess.Rank2, nchess.Rank1}
	filesLeftRight = []nchess.File{nchess.FileA, nchess.FileB, nchess.FileC, nchess.FileD, nchess.FileE, nchess.FileF, nchess.FileG, nchess.FileH}
)

var (
	ecoOnce sync.Once
	ecoBook *opening.BookECO
)

func ecoLookup(game *nchess.Game) (string, string) {
	ecoOnce.Do(func() { ecoBook = opening.NewBookECO() })
	if ecoBook == nil || game == nil || len(game.Moves()) == 0 {
		return "", ""
	}
	if eco := ecoBook.Find(game.Moves()); eco != nil {
		return eco.Code(), eco.Title()
	}
	return "", ""
}

// Snapshot is an immutable copy of the board for rendering outside the lock.
// Squares holds FEN piece letters, rank 8 first and file a first; 0 is empty.
type Snapshot struct {
	FEN         string
	Moves       []string
	SAN         []string
	Turn        Color
	Outcome     Outcome
	Method      string
	LastMove    string
	Squares     [8][8]byte
	OpeningCode string
	OpeningName string
}

func (s Snapshot) Ply() int { return len(s.Moves) }

func (s Snapshot) IsGameOver() bool { return s.Outcome != InProgress }

func (b *Board) Snapshot() Snapshot {
	snap := Snapshot{
		FEN:     b.game.FEN(),
		Moves:   b.Moves(),
		Turn:    b.Turn(),
		Outcome: b.Result(),
		Method:  b.Method(),
	}
	if n := len(snap.Moves); n > 0 {
		snap.LastMove = snap.Moves[n-1]
	}

	positions := b.game.Positions()
	played := b.game.Moves()
	snap.SAN = make([]string, 0, len(played))
	for i, mv := range played {
		if i >= len(positions) {
			break
		}
		snap.SAN = append(snap.SAN, nchess.AlgebraicNotation{}.Encode(positions[i], mv))
	}

	squares := b.game.Position().Board().SquareMap()
	for row, rank := range ranksTopDown {
		for col, file := range filesLeftRight {
			piece := squares[nchess.NewSquare(file, rank)]
			if piece == nchess.NoPiece {
				continue
			}
			snap.Squares[row][col] = pieceLetter(piece)
		}
	}

	snap.OpeningCode, snap.OpeningName = ecoLookup(b.game)
	return snap
}

func pieceLetter(p nchess.Piece) byte {
	var c byte
	switch p.Type() {
	case nchess.King:
		c = 'k'
	case nchess.Queen:
		c = 'q'
	case nchess.Rook:
		c = 'r'
	case nchess.Bishop:
		c = 'b'
	case nchess.Knight:
		c = 'n'
	case nchess.Pawn:
		c = 'p'
	default:
		return 0
	}
	if p.Color() == nchess.White {
		c -= 'a' - 'A'
	}
	return c
}

// Diagram draws the position as text with the given side at the bottom.
func (s Snapshot) Diagram(bottom Color) string {
	rows := []int{0, 1, 2, 3, 4, 5, 6, 7}
	cols := []int{0, 1, 2, 3, 4, 5, 6, 7}
	if bottom == Black {
		for i, j := 0, 7; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
			cols[i], cols[j] = cols[j], cols[i]
		}
	}

	var b strings.Builder
	for _, r := range rows {
		b.WriteByte(byte('8' - r))
		b.WriteByte(' ')
		for i, c := range cols {
			if i > 0 {
				b.WriteByte(' ')
			}
			if p := s.Squares[r][c]; p != 0 {
				b.WriteByte(p)
			} else {
				b.WriteByte('.')
			}
		}
		b.WriteByte('\n')
	}
	b.WriteString("  ")
	for i, c := range cols {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteByte(byte('a' + c))
	}
	b.WriteByte('\n')
	return b.String()
}
