package l2detect

import (
	"image"
	"math"
	"sort"

	"github.com/golang/geo/r2"
)

// sobelEdgeMin gates edge pixels by unscaled Sobel magnitude
// (range 0 to ~1442).
const sobelEdgeMin = 120

// maxCircles caps how many fallback circles one frame may yield.
const maxCircles = 3

// Circle is a fitted circle from the gradient vote.
type Circle struct {
	Center  r2.Point
	Radius  float64
	Votes   int     // Accumulator count at the centre peak
	Support float64 // Fraction of the fitted perimeter backed by edge pixels
}

type edgePixel struct {
	x, y   int
	ux, uy float64 // Unit gradient direction
}

type accPeak struct {
	x, y, votes int
}

// FitCircles finds circular shapes with a two-stage gradient vote:
// edge pixels vote for centres along their gradient direction across
// the radius range, then each surviving centre peak picks its radius
// as the mode of the edge-pixel distance histogram. Results are capped
// and ordered by descending vote count.
func FitCircles(g *image.Gray, minR, maxR, accThreshold int) []Circle {
	if minR < 1 || maxR < minR || accThreshold < 1 {
		return nil
	}
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return nil
	}

	edges := sobelEdges(g)
	if len(edges) == 0 {
		return nil
	}

	acc := make([]int, w*h)
	for _, e := range edges {
		for r := minR; r <= maxR; r++ {
			fr := float64(r)
			for _, sign := range [2]float64{1, -1} {
				cx := e.x - b.Min.X + int(math.Round(sign*fr*e.ux))
				cy := e.y - b.Min.Y + int(math.Round(sign*fr*e.uy))
				if cx >= 0 && cx < w && cy >= 0 && cy < h {
					acc[cy*w+cx]++
				}
			}
		}
	}

	var out []Circle
	for _, p := range accumulatorPeaks(acc, w, h, accThreshold, minR) {
		if len(out) == maxCircles {
			break
		}
		c := fitRadius(edges, b, p, minR, maxR)
		if c.Support > 0 {
			out = append(out, c)
		}
	}
	return out
}

func sobelEdges(g *image.Gray) []edgePixel {
	b := g.Bounds()
	at := func(x, y int) int { return int(g.GrayAt(x, y).Y) }
	var edges []edgePixel
	for y := b.Min.Y + 1; y < b.Max.Y-1; y++ {
		for x := b.Min.X + 1; x < b.Max.X-1; x++ {
			gx := at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1) -
				at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1)
			gy := at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1) -
				at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1)
			mag := math.Hypot(float64(gx), float64(gy))
			if mag < sobelEdgeMin {
				continue
			}
			edges = append(edges, edgePixel{x: x, y: y, ux: float64(gx) / mag, uy: float64(gy) / mag})
		}
	}
	return edges
}

// accumulatorPeaks returns local maxima at or above threshold, at
// least minSep apart, ordered by descending votes with (y, x)
// tie-breaks. Plateaus keep their first cell in scan order.
func accumulatorPeaks(acc []int, w, h, threshold, minSep int) []accPeak {
	var cands []accPeak
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			v := acc[y*w+x]
			if v < threshold {
				continue
			}
			if v > acc[(y-1)*w+x-1] && v > acc[(y-1)*w+x] && v > acc[(y-1)*w+x+1] &&
				v > acc[y*w+x-1] &&
				v >= acc[y*w+x+1] &&
				v >= acc[(y+1)*w+x-1] && v >= acc[(y+1)*w+x] && v >= acc[(y+1)*w+x+1] {
				cands = append(cands, accPeak{x: x, y: y, votes: v})
			}
		}
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].votes != cands[j].votes {
			return cands[i].votes > cands[j].votes
		}
		if cands[i].y != cands[j].y {
			return cands[i].y < cands[j].y
		}
		return cands[i].x < cands[j].x
	})

	var peaks []accPeak
	for _, c := range cands {
		tooClose := false
		for _, p := range peaks {
			if abs(c.x-p.x) < minSep && abs(c.y-p.y) < minSep {
				tooClose = true
				break
			}
		}
		if !tooClose {
			peaks = append(peaks, c)
		}
	}
	return peaks
}

// fitRadius picks the peak's radius as the mode of the edge distance
// histogram, then refines the centre to the inlier-ring centroid.
func fitRadius(edges []edgePixel, b image.Rectangle, p accPeak, minR, maxR int) Circle {
	cx, cy := float64(p.x+b.Min.X), float64(p.y+b.Min.Y)
	hist := make([]int, maxR+1)
	for _, e := range edges {
		r := int(math.Round(math.Hypot(float64(e.x)-cx, float64(e.y)-cy)))
		if r >= minR && r <= maxR {
			hist[r]++
		}
	}
	bestR, bestN := 0, 0
	for r := minR; r <= maxR; r++ {
		if hist[r] > bestN {
			bestR, bestN = r, hist[r]
		}
	}
	if bestR == 0 {
		return Circle{}
	}

	var sx, sy float64
	n := 0
	for _, e := range edges {
		d := math.Hypot(float64(e.x)-cx, float64(e.y)-cy)
		if math.Abs(d-float64(bestR)) <= 1.5 {
			sx += float64(e.x)
			sy += float64(e.y)
			n++
		}
	}
	if n == 0 {
		return Circle{}
	}
	return Circle{
		Center:  r2.Point{X: sx / float64(n), Y: sy / float64(n)},
		Radius:  float64(bestR),
		Votes:   p.votes,
		Support: math.Min(1, float64(n)/(2*math.Pi*float64(bestR))),
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
