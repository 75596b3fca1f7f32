package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/park285/battle-chess/internal/chess"
)

// Glyph outlines on a 45x45 canvas. Each entry is a list of SVG elements
// without paint attributes; paint is added per color.
var glyphShapes = map[chess.PieceType][]string{
	chess.Pawn: {
		`<circle cx="22.5" cy="13" r="5"/>`,
		`<path d="M 19 19 L 26 19 L 29 33 L 16 33 Z"/>`,
		`<path d="M 12 38 L 33 38 L 31 33 L 14 33 Z"/>`,
	},
	chess.Knight: {
		`<path d="M 12 38 L 34 38 L 33 30 C 33 20 30 12 22 9 L 20 6 L 18 10 C 14 13 10 18 10 22 L 13 24 L 17 21 L 20 22 C 16 27 13 31 12 38 Z"/>`,
	},
	chess.Bishop: {
		`<circle cx="22.5" cy="8" r="2.5"/>`,
		`<path d="M 22.5 11 C 16 16 15 24 18 28 L 27 28 C 30 24 29 16 22.5 11 Z"/>`,
		`<path d="M 17 28 L 28 28 L 28 33 L 17 33 Z"/>`,
		`<path d="M 12 38 L 33 38 L 31 33 L 14 33 Z"/>`,
	},
	chess.Rook: {
		`<path d="M 11 38 L 34 38 L 34 34 L 30 34 L 29 16 L 32 16 L 32 9 L 28 9 L 28 12 L 24.5 12 L 24.5 9 L 20.5 9 L 20.5 12 L 17 12 L 17 9 L 13 9 L 13 16 L 16 16 L 15 34 L 11 34 Z"/>`,
	},
	chess.Queen: {
		`<path d="M 9 14 L 14 30 L 31 30 L 36 14 L 29 24 L 27 10 L 22.5 23 L 18 10 L 16 24 Z"/>`,
		`<circle cx="9" cy="13" r="2"/>`,
		`<circle cx="18" cy="9.5" r="2"/>`,
		`<circle cx="27" cy="9.5" r="2"/>`,
		`<circle cx="36" cy="13" r="2"/>`,
		`<path d="M 13 30 L 32 30 L 33 38 L 12 38 Z"/>`,
	},
	chess.King: {
		`<path d="M 21 5 L 24 5 L 24 8 L 27 8 L 27 11 L 24 11 L 24 15 L 21 15 L 21 11 L 18 11 L 18 8 L 21 8 Z"/>`,
		`<path d="M 11 30 C 8 22 14 16 22.5 19 C 31 16 37 22 34 30 Z"/>`,
		`<path d="M 12 30 L 33 30 L 33 38 L 12 38 Z"/>`,
	},
}

type glyphPaint struct {
	fill   string
	stroke string
}

var glyphPaints = [2]glyphPaint{
	chess.White: {fill: "#f8f8f8", stroke: "#1a1a1a"},
	chess.Black: {fill: "#1f1f1f", stroke: "#000000"},
}

// pieceSVG builds the SVG document for p.
func pieceSVG(p chess.Piece) ([]byte, error) {
	shapes, ok := glyphShapes[p.Type]
	if !ok {
		return nil, fmt.Errorf("no glyph for piece %q", p.String())
	}
	paint := glyphPaints[p.Color]
	attrs := fmt.Sprintf(` fill="%s" stroke="%s" stroke-width="1.5" stroke-linejoin="round"/>`, paint.fill, paint.stroke)

	var b bytes.Buffer
	b.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" width="45" height="45" viewBox="0 0 45 45">`)
	for _, s := range shapes {
		b.WriteString(strings.TrimSuffix(s, "/>"))
		b.WriteString(attrs)
	}
	b.WriteString(`</svg>`)
	return b.Bytes(), nil
}

type pieceCacheKey struct {
	piece chess.Piece
	size  int
}

var (
	pieceCache   = map[pieceCacheKey]image.Image{}
	pieceCacheMu sync.RWMutex
)

func renderPieceImage(piece chess.Piece, size int) (image.Image, error) {
	key := pieceCacheKey{piece: piece, size: size}

	pieceCacheMu.RLock()
	if img, ok := pieceCache[key]; ok {
		pieceCacheMu.RUnlock()
		return img, nil
	}
	pieceCacheMu.RUnlock()

	data, err := pieceSVG(piece)
	if err != nil {
		return nil, err
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg: %w", err)
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
