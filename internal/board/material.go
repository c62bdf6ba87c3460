package board

import "strings"

// FullMaterial is one side's piece value in the initial position.
const FullMaterial = 39

var (
	pieceValues  = map[byte]int{'p': 1, 'n': 3, 'b': 3, 'r': 5, 'q': 9}
	startCounts  = map[byte]int{'q': 1, 'r': 2, 'b': 2, 'n': 2, 'p': 8}
	captureOrder = []byte{'q', 'r', 'b', 'n', 'p'}
)

// Material is the piece value each side still has on the board.
type Material struct {
	White int
	Black int
}

// Lead is White's material advantage; negative favours Black.
func (m Material) Lead() int { return m.White - m.Black }

func (s Snapshot) Material() Material {
	var m Material
	for _, row := range s.Squares {
		for _, sq := range row {
			if sq == 0 {
				continue
			}
			v := pieceValues[lower(sq)]
			if sq >= 'A' && sq <= 'Z' {
				m.White += v
			} else {
				m.Black += v
			}
		}
	}
	return m
}

// Captured lists the pieces each side has taken, strongest first, as
// uppercase letters. Promotions can hide captures; counts never go negative.
func (s Snapshot) Captured() (byWhite, byBlack string) {
	white := map[byte]int{}
	black := map[byte]int{}
	for _, row := range s.Squares {
		for _, sq := range row {
			switch {
			case sq == 0:
			case sq >= 'A' && sq <= 'Z':
				white[lower(sq)]++
			default:
				black[sq]++
			}
		}
	}
	var w, b strings.Builder
	for _, p := range captureOrder {
		up := string(p - 'a' + 'A')
		for i := black[p]; i < startCounts[p]; i++ {
			w.WriteString(up)
		}
		for i := white[p]; i < startCounts[p]; i++ {
			b.WriteString(up)
		}
	}
	return w.String(), b.String()
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}
