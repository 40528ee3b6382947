package l3stereo

import (
	"math"

	"github.com/courtsight-data/linecall/internal/config"
	"github.com/courtsight-data/linecall/internal/stereo"
)

// MatcherConfig gates which left/right detection pairs are acceptable.
type MatcherConfig struct {
	EpipolarTolerancePx float64 // Max row disagreement on a rectified rig
	MinDisparityPx      float64 // Disparity must be positive and inside these bounds
	MaxDisparityPx      float64
}

// DefaultMatcherConfig returns the matcher defaults.
func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfigFromTuning(config.EmptyTuningConfig())
}

// MatcherConfigFromTuning builds a MatcherConfig from a loaded
// TuningConfig.
func MatcherConfigFromTuning(cfg *config.TuningConfig) MatcherConfig {
	return MatcherConfig{
		EpipolarTolerancePx: cfg.GetEpipolarTolerancePx(),
		MinDisparityPx:      cfg.GetMinDisparityPx(),
		MaxDisparityPx:      cfg.GetMaxDisparityPx(),
	}
}

// Matcher pairs one left detection with one right detection per frame.
// Matching is deterministic and independent of input order.
type Matcher struct {
	cfg MatcherConfig
}

// NewMatcher returns a matcher with the given gates.
func NewMatcher(cfg MatcherConfig) *Matcher {
	return &Matcher{cfg: cfg}
}

// Match selects the correspondence for one frame index. With exactly
// one detection per side the pair is direct under the single-ball
// assumption. With multiple candidates the pair minimizing the
// epipolar residual wins among those inside the disparity gate and
// tolerance; ties prefer higher combined confidence, then (y, x)
// order. An empty side, or no pair within tolerance, yields a Missing
// pair that still carries the best available detections.
func (m *Matcher) Match(left, right []stereo.Detection, frameIndex int) stereo.CorrespondencePair {
	pair := stereo.CorrespondencePair{FrameIndex: frameIndex, Missing: true}
	if len(left) > 0 {
		l := left[0]
		pair.Left = &l
	}
	if len(right) > 0 {
		r := right[0]
		pair.Right = &r
	}
	if len(left) == 0 || len(right) == 0 {
		return pair
	}

	if len(left) == 1 && len(right) == 1 {
		pair.Missing = false
		pair.EpipolarResidual = math.Abs(left[0].Center.Y - right[0].Center.Y)
		return pair
	}

	best, found := pairScore{}, false
	for i := range left {
		for j := range right {
			s := pairScore{
				residual:   math.Abs(left[i].Center.Y - right[j].Center.Y),
				confidence: left[i].Confidence + right[j].Confidence,
				left:       &left[i],
				right:      &right[j],
			}
			disparity := left[i].Center.X - right[j].Center.X
			if s.residual > m.cfg.EpipolarTolerancePx ||
				disparity < m.cfg.MinDisparityPx || disparity > m.cfg.MaxDisparityPx {
				continue
			}
			if !found || s.better(best) {
				best, found = s, true
			}
		}
	}
	if !found {
		return pair
	}

	l, r := *best.left, *best.right
	return stereo.CorrespondencePair{
		FrameIndex:       frameIndex,
		Left:             &l,
		Right:            &r,
		EpipolarResidual: best.residual,
	}
}

type pairScore struct {
	residual    float64
	confidence  float64
	left, right *stereo.Detection
}

// better orders candidate pairs by ascending residual, then descending
// combined confidence, then detection coordinates.
func (s pairScore) better(o pairScore) bool {
	if s.residual != o.residual {
		return s.residual < o.residual
	}
	if s.confidence != o.confidence {
		return s.confidence > o.confidence
	}
	if s.left.Center.Y != o.left.Center.Y {
		return s.left.Center.Y < o.left.Center.Y
	}
	if s.left.Center.X != o.left.Center.X {
		return s.left.Center.X < o.left.Center.X
	}
	if s.right.Center.Y != o.right.Center.Y {
		return s.right.Center.Y < o.right.Center.Y
	}
	return s.right.Center.X < o.right.Center.X
}
