package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"

	"github.com/park285/cheese-lichess/internal/board"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	squareSize   = 64
	boardSize    = squareSize * 8
	sideMargin   = 28
	topMargin    = 48
	bottomMargin = 56
)

var (
	lightSquare     = color.RGBA{233, 207, 163, 255}
	darkSquare      = color.RGBA{187, 136, 96, 255}
	backgroundColor = color.NRGBA{R: 28, G: 31, B: 46, A: 255}
	lastMoveFill    = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	textPrimary     = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	coordinateColor = color.NRGBA{R: 8, G: 214, B: 120, A: 255}
)

// Options carries the text drawn above and below the board.
type Options struct {
	Header string
	Footer string
}

// Render draws the position as a PNG with bottom's pieces nearest the viewer.
func Render(ctx context.Context, snap board.Snapshot, bottom board.Color, opts Options) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	width := boardSize + sideMargin*2
	height := boardSize + topMargin + bottomMargin
	origin := image.Point{X: sideMargin, Y: topMargin}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, draw.Src)

	drawer := &font.Drawer{Dst: img, Face: basicfont.Face7x13}

	drawSquares(img, bottom, origin)
	drawLastMove(img, snap.LastMove, bottom, origin)
	if err := drawPieces(img, snap, bottom, origin); err != nil {
		return nil, err
	}
	drawCoordinates(drawer, bottom, origin)

	drawer.Src = image.NewUniform(textPrimary)
	drawCenteredText(drawer, strings.TrimSpace(opts.Header), width/2, topMargin/2+5)
	drawCenteredText(drawer, strings.TrimSpace(opts.Footer), width/2, topMargin+boardSize+bottomMargin-14)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// screenCell maps a snapshot cell (row 0 is rank 8, col 0 is file a) to its
// on-screen position for the given orientation.
func screenCell(row, col int, bottom board.Color) (int, int) {
	if bottom == board.Black {
		return 7 - row, 7 - col
	}
	return row, col
}

func cellRect(row, col int, bottom board.Color, origin image.Point) image.Rectangle {
	sr, sc := screenCell(row, col, bottom)
	x := origin.X + sc*squareSize
	y := origin.Y + sr*squareSize
	return image.Rect(x, y, x+squareSize, y+squareSize)
}

func drawSquares(img *image.RGBA, bottom board.Color, origin image.Point) {
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			draw.Draw(img, cellRect(row, col, bottom, origin), image.NewUniform(squareColor(row, col)), image.Point{}, draw.Src)
		}
	}
}

// squareColor: a1 is dark.
func squareColor(row, col int) color.Color {
	rank := 7 - row
	if (col+rank)%2 == 0 {
		return darkSquare
	}
	return lightSquare
}

func drawLastMove(img *image.RGBA, uci string, bottom board.Color, origin image.Point) {
	if len(uci) < 4 {
		return
	}
	for _, sq := range []string{uci[0:2], uci[2:4]} {
		col := int(sq[0] - 'a')
		row := 7 - int(sq[1]-'1')
		if col < 0 || col > 7 || row < 0 || row > 7 {
			return
		}
		draw.Draw(img, cellRect(row, col, bottom, origin), image.NewUniform(lastMoveFill), image.Point{}, draw.Over)
	}
}

func drawPieces(img *image.RGBA, snap board.Snapshot, bottom board.Color, origin image.Point) error {
	for row, rank := range snap.Squares {
		for col, letter := range rank {
			if letter == 0 {
				continue
			}
			piece, err := renderPiece(letter, squareSize)
			if err != nil {
				return err
			}
			draw.Draw(img, cellRect(row, col, bottom, origin), piece, image.Point{}, draw.Over)
		}
	}
	return nil
}

func drawCoordinates(drawer *font.Drawer, bottom board.Color, origin image.Point) {
	drawer.Src = image.NewUniform(coordinateColor)
	ascent := drawer.Face.Metrics().Ascent.Ceil()
	for i := 0; i < 8; i++ {
		// rank labels on the left edge, file labels under the board
		cell := cellRect(i, i, bottom, origin)
		drawCenteredText(drawer, string(rune('8'-i)), origin.X-sideMargin/2, cell.Min.Y+squareSize/2+ascent/2)
		drawCenteredText(drawer, string(rune('a'+i)), cell.Min.X+squareSize/2, origin.Y+boardSize+ascent+4)
	}
}

func drawCenteredText(drawer *font.Drawer, text string, centerX, baseline int) {
	if text == "" {
		return
	}
	width := drawer.MeasureString(text).Round()
	drawer.Dot = fixed.P(centerX-width/2, baseline)
	drawer.DrawString(text)
}
