package render

import (
	"image"
	"image/color"
	imagedraw "image/draw"
	"math"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

type pointF struct {
	X, Y float64
}

func drawSquareOverlay(img *image.RGBA, rect image.Rectangle, clr color.Color) {
	imagedraw.Draw(img, rect, image.NewUniform(clr), image.Point{}, imagedraw.Over)
}

// drawArrow draws a shaft and head from start to end, both pixel centers.
func drawArrow(img *image.RGBA, start, end image.Point, unit int, clr color.Color) {
	if start == end {
		return
	}
	dx := float64(end.X - start.X)
	dy := float64(end.Y - start.Y)
	length := math.Hypot(dx, dy)
	dirX, dirY := dx/length, dy/length
	perpX, perpY := -dirY, dirX

	baseLength := length - float64(unit)*0.45
	if baseLength < float64(unit)*0.35 {
		baseLength = length * 0.6
	}
	halfWidth := float64(unit) * 0.16
	headHalf := float64(unit) * 0.16

	sx, sy := float64(start.X), float64(start.Y)
	bx, by := sx+dirX*baseLength, sy+dirY*baseLength

	fillQuad(img,
		pointF{sx - perpX*halfWidth/2, sy - perpY*halfWidth/2},
		pointF{sx + perpX*halfWidth/2, sy + perpY*halfWidth/2},
		pointF{bx + perpX*halfWidth/2, by + perpY*halfWidth/2},
		pointF{bx - perpX*halfWidth/2, by - perpY*halfWidth/2},
		clr)
	fillTriangleF(img,
		pointF{float64(end.X), float64(end.Y)},
		pointF{bx - perpX*headHalf, by - perpY*headHalf},
		pointF{bx + perpX*headHalf, by + perpY*headHalf},
		clr)
}

func drawRoundedPanel(img *image.RGBA, rect image.Rectangle, radius int, clr color.Color) {
	if rect.Empty() {
		return
	}
	radius = max(0, min(radius, rect.Dx()/2, rect.Dy()/2))
	fill := image.NewUniform(clr)
	if radius == 0 {
		imagedraw.Draw(img, rect, fill, image.Point{}, imagedraw.Over)
		return
	}

	// Cross of two rectangles, then the four corner discs.
	imagedraw.Draw(img, image.Rect(rect.Min.X+radius, rect.Min.Y, rect.Max.X-radius, rect.Max.Y), fill, image.Point{}, imagedraw.Over)
	imagedraw.Draw(img, image.Rect(rect.Min.X, rect.Min.Y+radius, rect.Min.X+radius, rect.Max.Y-radius), fill, image.Point{}, imagedraw.Over)
	imagedraw.Draw(img, image.Rect(rect.Max.X-radius, rect.Min.Y+radius, rect.Max.X, rect.Max.Y-radius), fill, image.Point{}, imagedraw.Over)

	for _, c := range []image.Point{
		{rect.Min.X + radius, rect.Min.Y + radius},
		{rect.Max.X - radius - 1, rect.Min.Y + radius},
		{rect.Min.X + radius, rect.Max.Y - radius - 1},
		{rect.Max.X - radius - 1, rect.Max.Y - radius - 1},
	} {
		drawQuarter(img, c, radius, rect, clr)
	}
}

// drawQuarter fills the part of a disc that lies outside the cross, so
// translucent panels are not blended twice.
func drawQuarter(img *image.RGBA, center image.Point, radius int, rect image.Rectangle, clr color.Color) {
	inner := image.Rect(rect.Min.X+radius, rect.Min.Y+radius, rect.Max.X-radius, rect.Max.Y-radius)
	r2 := radius * radius
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			if x*x+y*y > r2 {
				continue
			}
			p := image.Pt(center.X+x, center.Y+y)
			if !p.In(rect) {
				continue
			}
			inCross := (p.X >= inner.Min.X && p.X < inner.Max.X) || (p.Y >= inner.Min.Y && p.Y < inner.Max.Y)
			if inCross {
				continue
			}
			blendPixel(img, p.X, p.Y, clr)
		}
	}
}

func drawDisc(img *image.RGBA, center image.Point, radius int, clr color.Color) {
	drawRing(img, center, radius, -1, clr)
}

// drawRing fills the pixels whose distance from center lies in (inner, outer].
func drawRing(img *image.RGBA, center image.Point, outer, inner int, clr color.Color) {
	if outer <= 0 {
		blendPixel(img, center.X, center.Y, clr)
		return
	}
	o2 := outer * outer
	i2 := inner * inner
	if inner < 0 {
		i2 = -1
	}
	for y := -outer; y <= outer; y++ {
		for x := -outer; x <= outer; x++ {
			d := x*x + y*y
			if d > o2 || d <= i2 {
				continue
			}
			blendPixel(img, center.X+x, center.Y+y, clr)
		}
	}
}

// blendPixel composites clr over the pixel at (x, y).
func blendPixel(img *image.RGBA, x, y int, clr color.Color) {
	if !(image.Point{X: x, Y: y}).In(img.Bounds()) {
		return
	}
	sr, sg, sb, sa := clr.RGBA()
	if sa == 0 {
		return
	}
	// RGBA() is premultiplied, so "over" is dst*(1-a) + src.
	inv := 1 - float64(sa)/0xffff
	dst := img.RGBAAt(x, y)
	img.SetRGBA(x, y, color.RGBA{
		R: floatToUint8(float64(dst.R)*inv + float64(sr)/257),
		G: floatToUint8(float64(dst.G)*inv + float64(sg)/257),
		B: floatToUint8(float64(dst.B)*inv + float64(sb)/257),
		A: floatToUint8(float64(dst.A)*inv + float64(sa)/257),
	})
}

func floatToUint8(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}

func fillQuad(img *image.RGBA, p0, p1, p2, p3 pointF, clr color.Color) {
	fillTriangleF(img, p0, p1, p2, clr)
	fillTriangleF(img, p0, p2, p3, clr)
}

func fillTriangleF(img *image.RGBA, a, b, c pointF, clr color.Color) {
	minX := int(math.Floor(min(a.X, b.X, c.X)))
	maxX := int(math.Ceil(max(a.X, b.X, c.X)))
	minY := int(math.Floor(min(a.Y, b.Y, c.Y)))
	maxY := int(math.Ceil(max(a.Y, b.Y, c.Y)))

	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			if inTriangle(float64(x)+0.5, float64(y)+0.5, a, b, c) {
				blendPixel(img, x, y, clr)
			}
		}
	}
}

// inTriangle tests barycentric coordinates. Pixels on a shared edge of two
// triangles belong to exactly one of them.
func inTriangle(x, y float64, a, b, c pointF) bool {
	denom := (b.Y-c.Y)*(a.X-c.X) + (c.X-b.X)*(a.Y-c.Y)
	if denom == 0 {
		return false
	}
	alpha := ((b.Y-c.Y)*(x-c.X) + (c.X-b.X)*(y-c.Y)) / denom
	beta := ((c.Y-a.Y)*(x-c.X) + (a.X-c.X)*(y-c.Y)) / denom
	gamma := 1 - alpha - beta
	return alpha >= 0 && beta >= 0 && gamma > 0
}

func truncateWithEllipsis(face font.Face, text string, maxWidth int) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || maxWidth <= 0 {
		return trimmed
	}
	drawer := font.Drawer{Face: face}
	if drawer.MeasureString(trimmed).Round() <= maxWidth {
		return trimmed
	}
	const ellipsis = "..."
	if drawer.MeasureString(ellipsis).Round() > maxWidth {
		return ""
	}
	runes := []rune(trimmed)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := string(runes) + ellipsis
		if drawer.MeasureString(candidate).Round() <= maxWidth {
			return candidate
		}
	}
	return ellipsis
}

func drawCenteredString(drawer *font.Drawer, rect image.Rectangle, text string, clr color.Color) {
	if text == "" {
		return
	}
	metrics := drawer.Face.Metrics()
	width := drawer.MeasureString(text).Round()
	x := max(rect.Min.X, rect.Min.X+(rect.Dx()-width)/2)
	baseline := rect.Min.Y + (rect.Dy()+metrics.Ascent.Ceil()-metrics.Descent.Ceil())/2
	drawer.Src = image.NewUniform(clr)
	drawer.Dot = fixed.P(x, baseline)
	drawer.DrawString(text)
}

func drawCenteredText(drawer *font.Drawer, text string, centerX, baseline int) {
	if text == "" {
		return
	}
	width := drawer.MeasureString(text).Round()
	drawer.Dot = fixed.P(centerX-width/2, baseline)
	drawer.DrawString(text)
}
