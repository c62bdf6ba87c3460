package board

import (
	"fmt"
	"regexp"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

var (
	sanPattern    = regexp.MustCompile(`^([NBRQK]?[a-h]?[1-8]?x?[a-h][1-8](=?[NBRQnbrq])?|O-O(-O)?)[+#]?[!?]*$`)
	uciPattern    = regexp.MustCompile(`^[a-h][1-8][a-h][1-8][qrbn]?$`)
	castleReplace = strings.NewReplacer("0-0-0", "O-O-O", "0-0", "O-O")
)

// Move is a candidate validated against the position at Ply.
type Move struct {
	UCI string
	SAN string
	Ply int
}

// ParseMove reads SAN first and falls back to UCI coordinates. Text that is
// neither yields ErrInvalidNotation; well-formed text without a legal match
// yields ErrIllegalMove.
func (b *Board) ParseMove(notation string) (Move, error) {
	text := castleReplace.Replace(strings.TrimSpace(notation))
	if text == "" {
		return Move{}, ErrInvalidNotation
	}
	lower := strings.ToLower(text)
	isSAN := sanPattern.MatchString(text)
	isUCI := uciPattern.MatchString(lower)
	if !isSAN && !isUCI {
		return Move{}, fmt.Errorf("%w: %q", ErrInvalidNotation, notation)
	}
	if b.IsGameOver() {
		return Move{}, fmt.Errorf("%w: game is over", ErrIllegalMove)
	}

	pos := b.game.Position()
	if isSAN {
		if mv, err := (nchess.AlgebraicNotation{}).Decode(pos, text); err == nil && mv != nil {
			if uci := mv.String(); legalUCI(pos, uci) {
				return Move{UCI: uci, SAN: nchess.AlgebraicNotation{}.Encode(pos, mv), Ply: len(b.moves)}, nil
			}
		}
	}
	if isUCI && legalUCI(pos, lower) {
		if mv, err := (nchess.UCINotation{}).Decode(pos, lower); err == nil && mv != nil {
			return Move{UCI: lower, SAN: nchess.AlgebraicNotation{}.Encode(pos, mv), Ply: len(b.moves)}, nil
		}
	}
	return Move{}, fmt.Errorf("%w: %s", ErrIllegalMove, text)
}
