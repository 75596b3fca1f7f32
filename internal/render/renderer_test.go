package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/park285/battle-chess/internal/chess"
)

func TestRenderPNGDimensions(t *testing.T) {
	r := New()
	board := chess.InitialBoard()
	last := chess.Move{From: chess.Square{Row: 6, Col: 4}, To: chess.Square{Row: 4, Col: 4}}
	sel := chess.Square{Row: 7, Col: 6}

	data, err := r.RenderPNG(context.Background(), board, Options{
		LastMove: &last,
		Selected: &sel,
		Targets:  []chess.Square{{Row: 5, Col: 5}, {Row: 5, Col: 7}},
		Header:   "Engine vs Engine",
		Status:   "Battle in progress",
		Footer:   "White 10:00  Black 10:00  Eval 50%",
		EvalBar:  50,
	})
	if err != nil {
		t.Fatalf("RenderPNG: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got, want := img.Bounds().Size(), r.Size(); got != want {
		t.Errorf("size = %v, want %v", got, want)
	}
}

func TestRenderFlippedMirrorsSquares(t *testing.T) {
	r := New()
	var board chess.Board
	board.Set(chess.Square{Row: 7, Col: 0}, chess.Piece{Type: chess.Rook, Color: chess.White})

	normal, err := r.Render(context.Background(), board, Options{})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	flipped, err := r.Render(context.Background(), board, Options{Flipped: true})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	a1 := geometry{origin: image.Pt(leftMargin, topMargin)}.rect(chess.Square{Row: 7, Col: 0})
	h8 := geometry{origin: image.Pt(leftMargin, topMargin)}.rect(chess.Square{Row: 0, Col: 7})
	if !sameRegion(normal, a1, flipped, h8) {
		t.Errorf("a1 unflipped does not match the top-right cell flipped")
	}
	if sameRegion(normal, a1, flipped, a1) {
		t.Errorf("flipped board still shows the rook bottom-left")
	}
}

func sameRegion(a *image.RGBA, ra image.Rectangle, b *image.RGBA, rb image.Rectangle) bool {
	for y := 0; y < ra.Dy(); y++ {
		for x := 0; x < ra.Dx(); x++ {
			if a.RGBAAt(ra.Min.X+x, ra.Min.Y+y) != b.RGBAAt(rb.Min.X+x, rb.Min.Y+y) {
				return false
			}
		}
	}
	return true
}

func TestRenderHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().RenderPNG(ctx, chess.InitialBoard(), Options{}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestPieceImageCached(t *testing.T) {
	p := chess.Piece{Type: chess.Knight, Color: chess.Black}
	first, err := renderPieceImage(p, 40)
	if err != nil {
		t.Fatalf("renderPieceImage: %v", err)
	}
	second, err := renderPieceImage(p, 40)
	if err != nil {
		t.Fatalf("renderPieceImage: %v", err)
	}
	if first != second {
		t.Errorf("second call did not hit the cache")
	}
	if first.Bounds().Dx() != 40 {
		t.Errorf("width = %d", first.Bounds().Dx())
	}
}

func TestPieceGlyphsHaveInk(t *testing.T) {
	for _, c := range []chess.Color{chess.White, chess.Black} {
		for pt := chess.Pawn; pt <= chess.King; pt++ {
			p := chess.Piece{Type: pt, Color: c}
			img, err := renderPieceImage(p, 32)
			if err != nil {
				t.Fatalf("%s: %v", p, err)
			}
			if !hasOpaquePixel(img) {
				t.Errorf("%s glyph is blank", p)
			}
		}
	}
}

func hasOpaquePixel(img image.Image) bool {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a > 0x8000 {
				return true
			}
		}
	}
	return false
}

func TestBlendPixel(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.SetRGBA(0, 0, color.RGBA{R: 0, G: 0, B: 0, A: 255})
	blendPixel(img, 0, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 128})
	got := img.RGBAAt(0, 0)
	if got.A != 255 || got.R < 126 || got.R > 130 {
		t.Errorf("blended = %+v", got)
	}
	blendPixel(img, 5, 5, color.White)
}

func TestTruncateWithEllipsis(t *testing.T) {
	faces := newFaces()
	defer faces.Close()
	caption := faces.caption
	long := "Engine vs Engine in a very long header that cannot possibly fit"
	got := truncateWithEllipsis(caption, long, 80)
	if got == long || len(got) < 3 || got[len(got)-3:] != "..." {
		t.Errorf("truncate = %q", got)
	}
	if got := truncateWithEllipsis(caption, "  ok ", 200); got != "ok" {
		t.Errorf("short = %q", got)
	}
}

func TestRenderPNGConcurrent(t *testing.T) {
	r := New()
	board := chess.InitialBoard()
	opts := Options{Header: "Engine vs Engine", Status: "Battle in progress", Footer: "White 10:00  Black 10:00"}
	want, err := r.RenderPNG(context.Background(), board, opts)
	if err != nil {
		t.Fatalf("RenderPNG: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 3; j++ {
				got, err := r.RenderPNG(context.Background(), board, opts)
				if err != nil {
					errs <- err
					return
				}
				if !bytes.Equal(got, want) {
					errs <- errors.New("concurrent render differs from a sequential one")
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
