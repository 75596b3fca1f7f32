package render

import (
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

var (
	fontOnce    sync.Once
	regularFont *opentype.Font
	boldFont    *opentype.Font
)

// textFaces holds the faces of one render. opentype faces keep glyph buffers
// and must not be shared between goroutines; the parsed fonts can be.
type textFaces struct {
	caption font.Face
	title   font.Face
}

// newFaces builds caption and title faces from the Go fonts shipped with
// x/image, falling back to the fixed 7x13 face.
func newFaces() textFaces {
	fontOnce.Do(func() {
		regularFont, _ = opentype.Parse(goregular.TTF)
		boldFont, _ = opentype.Parse(gobold.TTF)
	})
	return textFaces{
		caption: newFace(regularFont, 13),
		title:   newFace(boldFont, 18),
	}
}

func newFace(f *opentype.Font, size float64) font.Face {
	if f == nil {
		return basicfont.Face7x13
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return basicfont.Face7x13
	}
	return face
}

func (t textFaces) Close() {
	_ = t.caption.Close()
	_ = t.title.Close()
}
