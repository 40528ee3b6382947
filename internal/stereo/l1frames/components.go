package l1frames

import (
	"image"
	"math"
	"sort"

	"github.com/golang/geo/r2"
)

// Component is a connected region of a binary mask.
type Component struct {
	Area      int
	Centroid  r2.Point
	Perimeter float64 // boundary pixel count
	BBox      image.Rectangle
}

// Circularity returns 4πA/P², clamped to [0, 1]. A filled disc scores
// close to 1, elongated or ragged regions lower.
func (c Component) Circularity() float64 {
	if c.Perimeter <= 0 {
		return 0
	}
	round := 4 * math.Pi * float64(c.Area) / (c.Perimeter * c.Perimeter)
	return math.Min(round, 1)
}

// Components labels the 8-connected regions of the mask and returns
// those with at least minArea pixels, ordered by descending area with
// ties broken by bounding-box position.
func Components(m *image.Gray, minArea int) []Component {
	b := m.Bounds()
	w, h := b.Dx(), b.Dy()
	visited := make([]bool, w*h)
	var queue []image.Point
	var out []Component

	for sy := 0; sy < h; sy++ {
		for sx := 0; sx < w; sx++ {
			if visited[sy*w+sx] || m.Pix[m.PixOffset(b.Min.X+sx, b.Min.Y+sy)] == 0 {
				continue
			}

			comp := Component{BBox: image.Rect(sx, sy, sx+1, sy+1)}
			var sumX, sumY float64
			visited[sy*w+sx] = true
			queue = append(queue[:0], image.Pt(sx, sy))

			for len(queue) > 0 {
				p := queue[len(queue)-1]
				queue = queue[:len(queue)-1]

				comp.Area++
				sumX += float64(p.X)
				sumY += float64(p.Y)
				comp.BBox = comp.BBox.Union(image.Rect(p.X, p.Y, p.X+1, p.Y+1))

				boundary := false
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						if dx == 0 && dy == 0 {
							continue
						}
						nx, ny := p.X+dx, p.Y+dy
						if nx < 0 || nx >= w || ny < 0 || ny >= h {
							if dx == 0 || dy == 0 {
								boundary = true
							}
							continue
						}
						on := m.Pix[m.PixOffset(b.Min.X+nx, b.Min.Y+ny)] != 0
						if !on {
							if dx == 0 || dy == 0 {
								boundary = true
							}
							continue
						}
						if !visited[ny*w+nx] {
							visited[ny*w+nx] = true
							queue = append(queue, image.Pt(nx, ny))
						}
					}
				}
				if boundary {
					comp.Perimeter++
				}
			}

			if comp.Area >= minArea {
				comp.Centroid = r2.Point{
					X: sumX / float64(comp.Area),
					Y: sumY / float64(comp.Area),
				}
				out = append(out, comp)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Area != out[j].Area {
			return out[i].Area > out[j].Area
		}
		if out[i].BBox.Min.Y != out[j].BBox.Min.Y {
			return out[i].BBox.Min.Y < out[j].BBox.Min.Y
		}
		return out[i].BBox.Min.X < out[j].BBox.Min.X
	})
	return out
}
