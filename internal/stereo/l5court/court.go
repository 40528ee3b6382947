package l5court

import (
	"math"

	"github.com/golang/geo/r2"

	"github.com/courtsight-data/linecall/internal/config"
	"github.com/courtsight-data/linecall/internal/stereo"
)

// DefaultLineWidthM is the painted band width assumed when no tuning
// value is set. ITF lines are 25 to 100 mm wide.
const DefaultLineWidthM = 0.05

// Line is one painted court line. A and B are the centreline endpoints
// in world metres on the court plane (z = 0).
type Line struct {
	Name string
	A, B r2.Point
}

// CourtModel holds the painted lines of a doubles court and the width
// of the painted band. Immutable after construction; safe to share
// across goroutines.
type CourtModel struct {
	Lines     []Line
	LineWidth float64 // Painted band width in metres

	halfWidth  float64
	halfLength float64
}

// NewCourtModel builds the standard doubles court in the world frame:
// origin at court centre on the net line, x across, y toward the far
// baseline. Line names follow the ITF rules of tennis.
func NewCourtModel(lineWidthM float64) *CourtModel {
	const (
		hw = stereo.HalfDoublesWidthM
		hs = stereo.HalfSinglesWidthM
		hl = stereo.HalfCourtLengthM
		sv = stereo.ServiceLineFromNetM
	)
	return &CourtModel{
		Lines: []Line{
			{"near baseline", r2.Point{X: -hw, Y: -hl}, r2.Point{X: hw, Y: -hl}},
			{"far baseline", r2.Point{X: -hw, Y: hl}, r2.Point{X: hw, Y: hl}},
			{"left doubles sideline", r2.Point{X: -hw, Y: -hl}, r2.Point{X: -hw, Y: hl}},
			{"right doubles sideline", r2.Point{X: hw, Y: -hl}, r2.Point{X: hw, Y: hl}},
			{"left singles sideline", r2.Point{X: -hs, Y: -hl}, r2.Point{X: -hs, Y: hl}},
			{"right singles sideline", r2.Point{X: hs, Y: -hl}, r2.Point{X: hs, Y: hl}},
			{"near service line", r2.Point{X: -hs, Y: -sv}, r2.Point{X: hs, Y: -sv}},
			{"far service line", r2.Point{X: -hs, Y: sv}, r2.Point{X: hs, Y: sv}},
			{"centre service line", r2.Point{X: 0, Y: -sv}, r2.Point{X: 0, Y: sv}},
		},
		LineWidth:  lineWidthM,
		halfWidth:  hw,
		halfLength: hl,
	}
}

// ModelFromTuning builds the standard court with the tuned line width.
func ModelFromTuning(cfg *config.TuningConfig) *CourtModel {
	return NewCourtModel(cfg.GetLineWidthM())
}

// Contains reports whether p lies inside the outer court rectangle.
// Points exactly on the boundary count as inside.
func (c *CourtModel) Contains(p r2.Point) bool {
	return math.Abs(p.X) <= c.halfWidth && math.Abs(p.Y) <= c.halfLength
}

// Nearest returns the court line closest to p and the distance to its
// centreline. Sidelines run the full court length, so a corner point
// ties between a baseline and a sideline; the earlier line in the
// model wins.
func (c *CourtModel) Nearest(p r2.Point) (Line, float64) {
	best := Line{}
	bestDist := math.Inf(1)
	for _, l := range c.Lines {
		if d := distanceToSegment(p, l.A, l.B); d < bestDist {
			best, bestDist = l, d
		}
	}
	return best, bestDist
}

func distanceToSegment(p, a, b r2.Point) float64 {
	ab := b.Sub(a)
	den := ab.Dot(ab)
	if den == 0 {
		return p.Sub(a).Norm()
	}
	t := p.Sub(a).Dot(ab) / den
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return p.Sub(a.Add(ab.Mul(t))).Norm()
}
