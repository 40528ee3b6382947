package l1frames

import (
	"image"
	"testing"
	"time"

	"github.com/golang/geo/r2"
)

var defaultGate = HSVBounds{LowH: 25, LowS: 50, LowV: 50, HighH: 65, HighS: 255, HighV: 255}

func testFrameWithDisc(w, h int, center r2.Point, radius float64) *Frame {
	f := NewFrame(0, time.Time{}, "left", w, h)
	Fill(f, BackgroundColor)
	DrawDisc(f, center, radius, BallColor)
	return f
}

func TestInRangeHSV(t *testing.T) {
	f := testFrameWithDisc(64, 48, r2.Point{X: 30, Y: 20}, 6)
	m := InRangeHSV(f, defaultGate)

	if m.Pix[m.PixOffset(30, 20)] != 255 {
		t.Error("disc centre should be inside the gate")
	}
	if m.Pix[m.PixOffset(0, 0)] != 0 {
		t.Error("background corner should be outside the gate")
	}
	if m.Pix[m.PixOffset(30, 4)] != 0 {
		t.Error("background above the disc should be outside the gate")
	}
}

func TestErodeRemovesSpeckle(t *testing.T) {
	m := image.NewGray(image.Rect(0, 0, 16, 16))
	m.Pix[m.PixOffset(8, 8)] = 255

	if got := Erode(m, 1); got.Pix[got.PixOffset(8, 8)] != 0 {
		t.Error("a lone pixel should not survive erosion")
	}
}

func TestErodeDilatePreservesBlob(t *testing.T) {
	f := testFrameWithDisc(64, 64, r2.Point{X: 32, Y: 32}, 8)
	m := InRangeHSV(f, defaultGate)
	m = Dilate(Erode(m, 1), 2)

	comps := Components(m, 50)
	if len(comps) != 1 {
		t.Fatalf("got %d components after open, want 1", len(comps))
	}
	c := comps[0].Centroid
	if dx, dy := c.X-32, c.Y-32; dx*dx+dy*dy > 1 {
		t.Errorf("centroid drifted to (%g, %g), want near (32, 32)", c.X, c.Y)
	}
}

func TestDilateGrowsPixel(t *testing.T) {
	m := image.NewGray(image.Rect(0, 0, 16, 16))
	m.Pix[m.PixOffset(8, 8)] = 255

	d := Dilate(m, 1)
	count := 0
	for _, p := range d.Pix {
		if p != 0 {
			count++
		}
	}
	if count != 9 {
		t.Errorf("dilated pixel count = %d, want 9", count)
	}
}

func TestThreshold(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 3, 1))
	g.Pix[0], g.Pix[1], g.Pix[2] = 10, 180, 250

	m := Threshold(g, 180)
	want := []uint8{0, 255, 255}
	for i, w := range want {
		if m.Pix[i] != w {
			t.Errorf("threshold at %d: got %d, want %d", i, m.Pix[i], w)
		}
	}
}
