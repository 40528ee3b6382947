package l5court

import (
	"github.com/golang/geo/r2"

	"github.com/courtsight-data/linecall/internal/stereo"
)

// Judge calls a bounce in or out against the court. A bounce inside
// the outer rectangle, or within the line-width tolerance of any
// line, is in; a ball touching the line counts, so ties resolve to
// in. Judgment never fails: uncertain inputs only lower the verdict's
// confidence.
func Judge(bounce stereo.BounceEvent, court *CourtModel) stereo.Verdict {
	p := r2.Point{X: bounce.Position.X, Y: bounce.Position.Y}
	nearest, dist := court.Nearest(p)
	inside := court.Contains(p)

	signed := dist
	if inside {
		signed = -dist
	}

	conf := stereo.ConfidenceHigh
	if bounce.LowConfidence {
		conf = stereo.ConfidenceMedium
	}
	if bounce.Interpolated {
		conf = stereo.ConfidenceLow
	}

	return stereo.Verdict{
		FrameIndex:  bounce.FrameIndex,
		Time:        bounce.Time,
		Position:    bounce.Position,
		InBounds:    inside || dist <= court.LineWidth,
		NearestLine: nearest.Name,
		Distance:    signed,
		Confidence:  conf,
	}
}
