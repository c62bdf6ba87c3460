package view

import (
	"fmt"
	"strings"

	"github.com/park285/cheese-lichess/internal/board"
	"github.com/park285/cheese-lichess/internal/msgcat"
)

const recentMoveLimit = 4

// SummaryLines renders the text that accompanies a board: opening, last
// move, recent moves and the material balance.
func SummaryLines(snap board.Snapshot, msgs *msgcat.Catalog) []string {
	var lines []string
	if snap.OpeningCode != "" {
		lines = append(lines, msgs.Text("board.opening", map[string]any{"Code": snap.OpeningCode, "Name": snap.OpeningName}))
	}
	if n := len(snap.SAN); n > 0 {
		lines = append(lines,
			msgs.Text("board.last_move", map[string]any{"SAN": snap.SAN[n-1]}),
			msgs.Text("board.recent", map[string]any{"Moves": FormatRecentMoves(snap.SAN)}),
		)
	}
	if !snap.IsGameOver() {
		lines = append(lines, msgs.Text("board.turn", map[string]any{"Color": capitalize(snap.Turn.String())}))
	}
	byWhite, byBlack := snap.Captured()
	if byWhite != "" || byBlack != "" {
		lines = append(lines,
			msgs.Text("board.material", map[string]any{"Text": FormatMaterial(snap.Material())}),
			msgs.Text("board.captured", map[string]any{"Text": formatCaptured(byWhite, byBlack)}),
		)
	}
	return lines
}

// FormatRecentMoves keeps the tail of a move list short enough for one line.
func FormatRecentMoves(moves []string) string {
	if len(moves) == 0 {
		return "-"
	}
	if len(moves) <= recentMoveLimit {
		return strings.Join(moves, " ")
	}
	return "… " + strings.Join(moves[len(moves)-recentMoveLimit:], " ")
}

func FormatMaterial(m board.Material) string {
	switch lead := m.Lead(); {
	case lead > 0:
		return fmt.Sprintf("white +%d", lead)
	case lead < 0:
		return fmt.Sprintf("black +%d", -lead)
	default:
		return "even"
	}
}

func formatCaptured(byWhite, byBlack string) string {
	var parts []string
	if byWhite != "" {
		parts = append(parts, "white "+spaced(byWhite))
	}
	if byBlack != "" {
		parts = append(parts, "black "+spaced(byBlack))
	}
	return strings.Join(parts, " / ")
}

func spaced(letters string) string {
	return strings.Join(strings.Split(letters, ""), " ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
