package calib

import (
	"fmt"
	"math"
	"sort"

	"github.com/golang/geo/r3"

	"github.com/courtsight-data/linecall/internal/stereo"
)

// ReferencePoint names a court location with known world coordinates.
type ReferencePoint struct {
	Label string
	World r3.Vector
}

// StandardLayout returns the twelve references of the far court half in
// the order an operator clicks them: five where the net line crosses the
// court markings, three on the service line, four on the baseline.
func StandardLayout() []ReferencePoint {
	const net = 0.0
	service := stereo.ServiceLineFromNetM
	base := stereo.HalfCourtLengthM
	sw := stereo.HalfSinglesWidthM
	dw := stereo.HalfDoublesWidthM
	return []ReferencePoint{
		{Label: "net-doubles-left", World: r3.Vector{X: -dw, Y: net}},
		{Label: "net-singles-left", World: r3.Vector{X: -sw, Y: net}},
		{Label: "net-center", World: r3.Vector{Y: net}},
		{Label: "net-singles-right", World: r3.Vector{X: sw, Y: net}},
		{Label: "net-doubles-right", World: r3.Vector{X: dw, Y: net}},
		{Label: "service-left", World: r3.Vector{X: -sw, Y: service}},
		{Label: "service-center", World: r3.Vector{Y: service}},
		{Label: "service-right", World: r3.Vector{X: sw, Y: service}},
		{Label: "baseline-doubles-left", World: r3.Vector{X: -dw, Y: base}},
		{Label: "baseline-singles-left", World: r3.Vector{X: -sw, Y: base}},
		{Label: "baseline-singles-right", World: r3.Vector{X: sw, Y: base}},
		{Label: "baseline-doubles-right", World: r3.Vector{X: dw, Y: base}},
	}
}

// AssignLayout labels pixel points against a reference layout. Points
// are clustered into horizontal rows with a 1-D k-means on pixel y and
// each row is ordered left to right; layout rows are keyed by world y,
// with farther rows sitting higher in the image. Returns relabelled
// copies; errors when the row shape does not match the layout.
func AssignLayout(points []CalibrationPoint, layout []ReferencePoint) ([]CalibrationPoint, error) {
	if len(points) != len(layout) {
		return nil, fmt.Errorf("layout expects %d points, have %d", len(layout), len(points))
	}
	refRows := layoutRows(layout)

	ys := make([]float64, len(points))
	for i, p := range points {
		ys[i] = p.Pixel.Y
	}
	pixRows, err := clusterRows(ys, len(refRows))
	if err != nil {
		return nil, err
	}

	// pixRows are top to bottom; the top image row is the farthest
	// reference row.
	out := make([]CalibrationPoint, 0, len(points))
	for i, idxs := range pixRows {
		refs := refRows[len(refRows)-1-i]
		if len(idxs) != len(refs) {
			return nil, fmt.Errorf("row %d has %d points, layout expects %d", i, len(idxs), len(refs))
		}
		sort.Slice(idxs, func(a, b int) bool {
			return points[idxs[a]].Pixel.X < points[idxs[b]].Pixel.X
		})
		for j, idx := range idxs {
			p := points[idx]
			p.Label = refs[j].Label
			out = append(out, p)
		}
	}

	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

// layoutRows groups references by world y, rows ordered near to far and
// each row ordered by world x.
func layoutRows(layout []ReferencePoint) [][]ReferencePoint {
	var rows [][]ReferencePoint
	for _, ref := range layout {
		placed := false
		for i, row := range rows {
			if math.Abs(row[0].World.Y-ref.World.Y) < 1e-9 {
				rows[i] = append(rows[i], ref)
				placed = true
				break
			}
		}
		if !placed {
			rows = append(rows, []ReferencePoint{ref})
		}
	}
	sort.Slice(rows, func(a, b int) bool { return rows[a][0].World.Y < rows[b][0].World.Y })
	for _, row := range rows {
		sort.Slice(row, func(a, b int) bool { return row[a].World.X < row[b].World.X })
	}
	return rows
}

// clusterRows splits the y values into k groups with a deterministic 1-D
// k-means, returning index groups ordered top to bottom.
func clusterRows(ys []float64, k int) ([][]int, error) {
	if len(ys) < k {
		return nil, fmt.Errorf("cannot split %d points into %d rows", len(ys), k)
	}
	if k == 1 {
		all := make([]int, len(ys))
		for i := range all {
			all[i] = i
		}
		return [][]int{all}, nil
	}
	min, max := ys[0], ys[0]
	for _, y := range ys {
		min = math.Min(min, y)
		max = math.Max(max, y)
	}
	centers := make([]float64, k)
	for i := range centers {
		centers[i] = min + (max-min)*float64(i)/float64(k-1)
	}

	assign := make([]int, len(ys))
	for iter := 0; iter < 50; iter++ {
		changed := false
		for i, y := range ys {
			best := 0
			for c := 1; c < k; c++ {
				if math.Abs(y-centers[c]) < math.Abs(y-centers[best]) {
					best = c
				}
			}
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}
		sums := make([]float64, k)
		counts := make([]int, k)
		for i, y := range ys {
			sums[assign[i]] += y
			counts[assign[i]]++
		}
		for c := range centers {
			if counts[c] > 0 {
				centers[c] = sums[c] / float64(counts[c])
			}
		}
	}

	groups := make([][]int, k)
	for i := range ys {
		groups[assign[i]] = append(groups[assign[i]], i)
	}
	order := make([]int, k)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return centers[order[a]] < centers[order[b]] })

	out := make([][]int, 0, k)
	for _, c := range order {
		if len(groups[c]) == 0 {
			return nil, fmt.Errorf("point rows are not separable into %d bands", k)
		}
		out = append(out, groups[c])
	}
	return out, nil
}

// ApplyLayout labels the camera's points against layout and stores the
// result.
func (s *PointStore) ApplyLayout(camera string, layout []ReferencePoint) error {
	labeled, err := AssignLayout(s.Points(camera), layout)
	if err != nil {
		return fmt.Errorf("label %s points: %w", camera, err)
	}
	s.setLabels(camera, labeled)
	return nil
}

// Correspondences pairs labelled points with their layout references.
// Unlabelled points and labels the layout does not know are errors.
func Correspondences(points []CalibrationPoint, layout []ReferencePoint) ([]Correspondence, error) {
	byLabel := map[string]r3.Vector{}
	for _, ref := range layout {
		byLabel[ref.Label] = ref.World
	}
	seen := map[string]bool{}
	out := make([]Correspondence, 0, len(points))
	for _, p := range points {
		if p.Label == "" {
			return nil, fmt.Errorf("point %d has no reference label", p.ID)
		}
		world, ok := byLabel[p.Label]
		if !ok {
			return nil, fmt.Errorf("point %d labelled %q, not in layout", p.ID, p.Label)
		}
		if seen[p.Label] {
			return nil, fmt.Errorf("label %q assigned twice", p.Label)
		}
		seen[p.Label] = true
		out = append(out, Correspondence{Pixel: p.Pixel, World: world, Label: p.Label})
	}
	return out, nil
}
