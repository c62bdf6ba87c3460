package snapshot

import (
	"bytes"
	"embed"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

//go:embed assets/pieces/*.svg
var pieceFiles embed.FS

// Piece shapes are shared by both colors; the fill and stroke placeholders
// are substituted per side.
var pieceStyles = map[bool][2]string{
	true:  {"#f8f6f0", "#1e1e1e"},
	false: {"#2a2a2a", "#0a0a0a"},
}

type pieceCacheKey struct {
	letter byte
	size   int
}

var (
	pieceCache   = map[pieceCacheKey]image.Image{}
	pieceCacheMu sync.RWMutex
)

// renderPiece rasterizes the piece for a FEN letter at size x size pixels.
func renderPiece(letter byte, size int) (image.Image, error) {
	key := pieceCacheKey{letter: letter, size: size}

	pieceCacheMu.RLock()
	if img, ok := pieceCache[key]; ok {
		pieceCacheMu.RUnlock()
		return img, nil
	}
	pieceCacheMu.RUnlock()

	white := letter >= 'A' && letter <= 'Z'
	shape := letter
	if !white {
		shape -= 'a' - 'A'
	}
	name := fmt.Sprintf("assets/pieces/%c.svg", shape)
	data, err := pieceFiles.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read piece asset %s: %w", name, err)
	}

	style := pieceStyles[white]
	data = bytes.ReplaceAll(data, []byte("FILL"), []byte(style[0]))
	data = bytes.ReplaceAll(data, []byte("STROKE"), []byte(style[1]))

	icon, err := oksvg.ReadIconStream(bytes.NewReader(sanitizeSVG(data)))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg %s: %w", name, err)
	}
	if icon.ViewBox.W <= 0 {
		icon.ViewBox.W = float64(size)
	}
	if icon.ViewBox.H <= 0 {
		icon.ViewBox.H = float64(size)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)

	pieceCacheMu.Lock()
	pieceCache[key] = img
	pieceCacheMu.Unlock()
	return img, nil
}

// sanitizeSVG fixes color notations oksvg refuses to parse.
func sanitizeSVG(svg []byte) []byte {
	fixed := bytes.ReplaceAll(svg, []byte("fill: #"), []byte("fill:#"))
	fixed = bytes.ReplaceAll(fixed, []byte("stroke: #"), []byte("stroke:#"))
	fixed = bytes.ReplaceAll(fixed, []byte("fill:000000"), []byte("fill:#000000"))
	return fixed
}
