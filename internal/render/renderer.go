// Package render draws a battle position as a PNG.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"strings"

	"golang.org/x/image/font"

	"github.com/park285/battle-chess/internal/chess"
)

const (
	squareSize   = 64
	boardSquares = 8
	boardSize    = squareSize * boardSquares
	leftMargin   = 32
	rightMargin  = 44
	topMargin    = 104
	bottomMargin = 72
	panelRadius  = 10
	headerHeight = 36
	statusHeight = 28
	footerHeight = 28
	panelGap     = 10
	evalBarWidth = 12
	evalBarGap   = 16
	shadowOffset = 5
)

// Options selects the overlays drawn on top of the position.
type Options struct {
	Flipped  bool
	LastMove *chess.Move
	Selected *chess.Square
	Targets  []chess.Square
	// Check marks a king square in check.
	Check  *chess.Square
	Header string
	Status string
	Footer string
	// EvalBar is the white share in percent. Zero hides the bar.
	EvalBar float64
}

// Renderer draws boards. The zero value is ready to use.
type Renderer struct{}

func New() *Renderer { return &Renderer{} }

// Size reports the dimensions of every rendered image.
func (r *Renderer) Size() image.Point {
	return image.Pt(leftMargin+boardSize+rightMargin, topMargin+boardSize+bottomMargin)
}

func (r *Renderer) RenderPNG(ctx context.Context, board chess.Board, opts Options) ([]byte, error) {
	img, err := r.Render(ctx, board, opts)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Render draws into a fresh RGBA image.
func (r *Renderer) Render(ctx context.Context, board chess.Board, opts Options) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	size := r.Size()
	img := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)

	g := geometry{
		origin:  image.Pt(leftMargin, topMargin),
		flipped: opts.Flipped,
	}

	faces := newFaces()
	defer faces.Close()

	drawHUD(img, g.boardRect(), faces, opts)
	drawBoardShadow(img, g.boardRect())
	drawSquares(img, g)
	if opts.LastMove != nil {
		drawLastMove(img, &board, g, *opts.LastMove)
	}
	if opts.Check != nil && opts.Check.Valid() {
		drawSquareOverlay(img, g.rect(*opts.Check), checkOverlayColor)
	}
	if opts.Selected != nil && opts.Selected.Valid() {
		drawSquareOverlay(img, g.rect(*opts.Selected), selectedOverlayColor)
	}
	if err := drawPieces(ctx, img, &board, g); err != nil {
		return nil, err
	}
	drawTargets(img, &board, g, opts.Targets)
	drawCoordinates(img, g, faces.caption)
	if opts.EvalBar > 0 {
		drawEvalBar(img, g.boardRect(), opts.EvalBar)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return img, nil
}

var (
	backgroundColor      = color.RGBA{R: 22, G: 24, B: 34, A: 255}
	lightSquare          = color.RGBA{233, 207, 163, 255}
	darkSquare           = color.RGBA{187, 136, 96, 255}
	lastMoveFill         = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	lastMoveArrow        = color.NRGBA{R: 148, G: 207, B: 255, A: 170}
	selectedOverlayColor = color.NRGBA{R: 120, G: 200, B: 120, A: 150}
	checkOverlayColor    = color.NRGBA{R: 230, G: 60, B: 60, A: 150}
	targetDotColor       = color.NRGBA{R: 20, G: 40, B: 20, A: 90}
	targetRingColor      = color.NRGBA{R: 200, G: 40, B: 40, A: 130}
	hudPanelColor        = color.NRGBA{R: 28, G: 31, B: 46, A: 250}
	hudStatusPanelColor  = color.NRGBA{R: 32, G: 35, B: 52, A: 245}
	hudShadowColor       = color.NRGBA{0, 0, 0, 50}
	hudTextPrimary       = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	hudTextSecondary     = color.NRGBA{R: 204, G: 210, B: 236, A: 255}
	boardShadowColor     = color.NRGBA{0, 0, 0, 60}
	coordinateTextColor  = color.NRGBA{R: 8, G: 214, B: 120, A: 255}
	evalWhiteColor       = color.RGBA{240, 240, 240, 255}
	evalBlackColor       = color.RGBA{40, 40, 40, 255}
)

// geometry maps board squares to pixels for one orientation.
type geometry struct {
	origin  image.Point
	flipped bool
}

func (g geometry) boardRect() image.Rectangle {
	return image.Rect(g.origin.X, g.origin.Y, g.origin.X+boardSize, g.origin.Y+boardSize)
}

// cell returns the on-screen row and column of sq.
func (g geometry) cell(sq chess.Square) (row, col int) {
	if g.flipped {
		return 7 - sq.Row, 7 - sq.Col
	}
	return sq.Row, sq.Col
}

func (g geometry) rect(sq chess.Square) image.Rectangle {
	row, col := g.cell(sq)
	x := g.origin.X + col*squareSize
	y := g.origin.Y + row*squareSize
	return image.Rect(x, y, x+squareSize, y+squareSize)
}

func (g geometry) center(sq chess.Square) image.Point {
	rc := g.rect(sq)
	return image.Pt(rc.Min.X+squareSize/2, rc.Min.Y+squareSize/2)
}

func drawBoardShadow(img *image.RGBA, boardRect image.Rectangle) {
	shadowRect := image.Rect(boardRect.Min.X+4, boardRect.Min.Y+8, boardRect.Max.X+8, boardRect.Max.Y+10)
	imagedraw.Draw(img, shadowRect, image.NewUniform(boardShadowColor), image.Point{}, imagedraw.Over)
}

func drawSquares(img *image.RGBA, g geometry) {
	for row := 0; row < boardSquares; row++ {
		for col := 0; col < boardSquares; col++ {
			sq := chess.Square{Row: row, Col: col}
			imagedraw.Draw(img, g.rect(sq), image.NewUniform(squareColor(sq)), image.Point{}, imagedraw.Src)
		}
	}
}

// a8 is light.
func squareColor(sq chess.Square) color.Color {
	if (sq.Row+sq.Col)%2 == 0 {
		return lightSquare
	}
	return darkSquare
}

func drawPieces(ctx context.Context, img *image.RGBA, board *chess.Board, g geometry) error {
	for row := 0; row < boardSquares; row++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for col := 0; col < boardSquares; col++ {
			sq := chess.Square{Row: row, Col: col}
			piece := board.Piece(sq)
			if piece.IsEmpty() {
				continue
			}
			glyph, err := renderPieceImage(piece, squareSize)
			if err != nil {
				return err
			}
			imagedraw.Draw(img, g.rect(sq), glyph, image.Point{}, imagedraw.Over)
		}
	}
	return nil
}

// drawLastMove fills both squares of a white move and draws an arrow for a
// black one.
func drawLastMove(img *image.RGBA, board *chess.Board, g geometry, m chess.Move) {
	if !m.From.Valid() || !m.To.Valid() {
		return
	}
	mover := board.Piece(m.To)
	if !mover.IsEmpty() && mover.Color == chess.White {
		drawSquareOverlay(img, g.rect(m.From), lastMoveFill)
		drawSquareOverlay(img, g.rect(m.To), lastMoveFill)
		return
	}
	drawArrow(img, g.center(m.From), g.center(m.To), squareSize, lastMoveArrow)
}

// drawTargets marks empty targets with a dot and captures with a ring.
func drawTargets(img *image.RGBA, board *chess.Board, g geometry, targets []chess.Square) {
	for _, sq := range targets {
		if !sq.Valid() {
			continue
		}
		if board.Piece(sq).IsEmpty() {
			drawDisc(img, g.center(sq), squareSize/7, targetDotColor)
			continue
		}
		drawRing(img, g.center(sq), squareSize/2-2, squareSize/2-7, targetRingColor)
	}
}

func drawCoordinates(img *image.RGBA, g geometry, caption font.Face) {
	drawer := &font.Drawer{Dst: img, Face: caption, Src: image.NewUniform(coordinateTextColor)}
	ascent := caption.Metrics().Ascent.Ceil()
	board := g.boardRect()

	for i := 0; i < boardSquares; i++ {
		sq := chess.Square{Row: i, Col: i}
		rc := g.rect(sq)
		rankY := rc.Min.Y + squareSize/2 + ascent/2
		drawCenteredText(drawer, string(sq.Rank()), board.Min.X-leftMargin/2, rankY)
		drawCenteredText(drawer, string(sq.File()), rc.Min.X+squareSize/2, board.Max.Y+ascent+4)
	}
}

func drawEvalBar(img *image.RGBA, board image.Rectangle, pct float64) {
	if pct > 100 {
		pct = 100
	}
	x := board.Max.X + evalBarGap
	bar := image.Rect(x, board.Min.Y, x+evalBarWidth, board.Max.Y)
	imagedraw.Draw(img, bar, image.NewUniform(evalBlackColor), image.Point{}, imagedraw.Src)
	whiteHeight := int(float64(bar.Dy())*pct/100 + 0.5)
	white := image.Rect(bar.Min.X, bar.Max.Y-whiteHeight, bar.Max.X, bar.Max.Y)
	imagedraw.Draw(img, white, image.NewUniform(evalWhiteColor), image.Point{}, imagedraw.Src)
}

// drawHUD stacks the header and status panels above the board and the
// footer panel below the file labels.
func drawHUD(img *image.RGBA, board image.Rectangle, faces textFaces, opts Options) {
	caption, title := faces.caption, faces.title

	header := strings.TrimSpace(opts.Header)
	if header == "" {
		header = "White vs Black"
	}
	statusBottom := board.Min.Y - 18
	statusRect := image.Rect(board.Min.X, statusBottom-statusHeight, board.Max.X, statusBottom)
	headerRect := image.Rect(board.Min.X, statusRect.Min.Y-panelGap-headerHeight, board.Max.X, statusRect.Min.Y-panelGap)

	drawPanel(img, headerRect, title, header, hudPanelColor, hudTextPrimary)
	if status := strings.TrimSpace(opts.Status); status != "" {
		drawPanel(img, statusRect, caption, status, hudStatusPanelColor, hudTextSecondary)
	}
	if footer := strings.TrimSpace(opts.Footer); footer != "" {
		top := board.Max.Y + bottomMargin - footerHeight - 8
		drawPanel(img, image.Rect(board.Min.X, top, board.Max.X, top+footerHeight), caption, footer, hudStatusPanelColor, hudTextSecondary)
	}
}

func drawPanel(img *image.RGBA, rect image.Rectangle, face font.Face, text string, fill, ink color.Color) {
	drawRoundedPanel(img, rect.Add(image.Pt(0, shadowOffset)), panelRadius, hudShadowColor)
	drawRoundedPanel(img, rect, panelRadius, fill)
	drawer := &font.Drawer{Dst: img, Face: face}
	drawCenteredString(drawer, rect, truncateWithEllipsis(face, text, rect.Dx()-32), ink)
}
