package l1frames

import (
	"image/color"
	"math"

	"github.com/golang/geo/r2"
)

// Colours used by the synthetic renderer. The ball colour sits inside
// the detector's default HSV gate; court lines are bright but
// unsaturated, so they pass a brightness threshold without passing the
// colour gate.
var (
	BallColor       = color.RGBA{R: 200, G: 230, B: 50, A: 255}
	LineColor       = color.RGBA{R: 235, G: 235, B: 235, A: 255}
	BackgroundColor = color.RGBA{R: 40, G: 44, B: 52, A: 255}
)

// Fill paints the whole frame with c.
func Fill(f *Frame, c color.RGBA) {
	b := f.RGBA.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			f.RGBA.SetRGBA(x, y, c)
		}
	}
}

// DrawDisc paints a filled circle centred on a pixel position. Pixels
// outside the frame are skipped.
func DrawDisc(f *Frame, center r2.Point, radius float64, c color.RGBA) {
	b := f.RGBA.Bounds()
	x0 := int(math.Floor(center.X - radius))
	x1 := int(math.Ceil(center.X + radius))
	y0 := int(math.Floor(center.Y - radius))
	y1 := int(math.Ceil(center.Y + radius))
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			if x < b.Min.X || x >= b.Max.X || y < b.Min.Y || y >= b.Max.Y {
				continue
			}
			dx := float64(x) - center.X
			dy := float64(y) - center.Y
			if dx*dx+dy*dy <= radius*radius {
				f.RGBA.SetRGBA(x, y, c)
			}
		}
	}
}

// DrawSegment paints a straight stripe of the given width between two
// pixel positions.
func DrawSegment(f *Frame, a, b r2.Point, width float64, c color.RGBA) {
	half := width / 2
	bounds := f.RGBA.Bounds()
	x0 := int(math.Floor(math.Min(a.X, b.X) - half))
	x1 := int(math.Ceil(math.Max(a.X, b.X) + half))
	y0 := int(math.Floor(math.Min(a.Y, b.Y) - half))
	y1 := int(math.Ceil(math.Max(a.Y, b.Y) + half))
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			if x < bounds.Min.X || x >= bounds.Max.X || y < bounds.Min.Y || y >= bounds.Max.Y {
				continue
			}
			if distToSegment(r2.Point{X: float64(x), Y: float64(y)}, a, b) <= half {
				f.RGBA.SetRGBA(x, y, c)
			}
		}
	}
}

func distToSegment(p, a, b r2.Point) float64 {
	ab := b.Sub(a)
	lenSq := ab.X*ab.X + ab.Y*ab.Y
	if lenSq == 0 {
		return p.Sub(a).Norm()
	}
	t := (p.Sub(a).X*ab.X + p.Sub(a).Y*ab.Y) / lenSq
	t = math.Max(0, math.Min(1, t))
	closest := r2.Point{X: a.X + t*ab.X, Y: a.Y + t*ab.Y}
	return p.Sub(closest).Norm()
}
