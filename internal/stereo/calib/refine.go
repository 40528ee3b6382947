package calib

import (
	"github.com/golang/geo/r2"

	"github.com/courtsight-data/linecall/internal/stereo/l1frames"
)

// RefineOptions controls white-line snapping of clicked points.
type RefineOptions struct {
	WindowRadiusPx int     // search half-width around the estimate
	MinBrightness  uint8   // luma floor for line pixels
	MaxAdjustPx    float64 // reject refinements that drift farther than this
	ConvergePx     float64 // stop once a step moves less than this
	MaxIterations  int
}

// DefaultRefineOptions matches the interactive calibration tool.
func DefaultRefineOptions() RefineOptions {
	return RefineOptions{
		WindowRadiusPx: 10,
		MinBrightness:  180,
		MaxAdjustPx:    12,
		ConvergePx:     2,
		MaxIterations:  5,
	}
}

// RefineToLine snaps a clicked point onto the brightness-weighted
// centroid of the nearby painted line. The click is returned unchanged
// when no line pixels are in reach or the refinement drifts past
// MaxAdjustPx.
func RefineToLine(f *l1frames.Frame, click r2.Point, opts RefineOptions) r2.Point {
	gray := f.Gray()
	b := gray.Bounds()

	cur := click
	for i := 0; i < opts.MaxIterations; i++ {
		var sumW, sumX, sumY float64
		cx, cy := int(cur.X+0.5), int(cur.Y+0.5)
		for dy := -opts.WindowRadiusPx; dy <= opts.WindowRadiusPx; dy++ {
			for dx := -opts.WindowRadiusPx; dx <= opts.WindowRadiusPx; dx++ {
				x, y := cx+dx, cy+dy
				if x < b.Min.X || x >= b.Max.X || y < b.Min.Y || y >= b.Max.Y {
					continue
				}
				v := gray.Pix[gray.PixOffset(x, y)]
				if v < opts.MinBrightness {
					continue
				}
				w := float64(v)
				sumW += w
				sumX += w * float64(x)
				sumY += w * float64(y)
			}
		}
		if sumW == 0 {
			return click
		}

		next := r2.Point{X: sumX / sumW, Y: sumY / sumW}
		step := next.Sub(cur).Norm()
		cur = next
		if step < opts.ConvergePx {
			break
		}
	}

	if cur.Sub(click).Norm() > opts.MaxAdjustPx {
		return click
	}
	return cur
}
