package l3stereo

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"

	"github.com/courtsight-data/linecall/internal/stereo"
)

func det(x, y, conf float64) stereo.Detection {
	return stereo.Detection{
		FrameIndex: 7,
		Center:     r2.Point{X: x, Y: y},
		Confidence: conf,
		Method:     stereo.MethodColor,
	}
}

func TestMatchSinglePair(t *testing.T) {
	m := NewMatcher(DefaultMatcherConfig())
	pair := m.Match(
		[]stereo.Detection{det(320, 240, 0.8)},
		[]stereo.Detection{det(300, 242, 0.7)},
		7,
	)
	if pair.Missing {
		t.Fatal("single detections should pair directly")
	}
	if pair.FrameIndex != 7 {
		t.Errorf("frame index = %d, want 7", pair.FrameIndex)
	}
	if pair.EpipolarResidual != 2 {
		t.Errorf("residual = %g, want 2", pair.EpipolarResidual)
	}
	if pair.Left.Center.X != 320 || pair.Right.Center.X != 300 {
		t.Errorf("pair carries %v / %v", pair.Left.Center, pair.Right.Center)
	}
}

func TestMatchSingleDirectDespiteGates(t *testing.T) {
	// The single-ball assumption pairs lone detections even when the
	// rows disagree beyond tolerance; downstream residuals handle it.
	m := NewMatcher(DefaultMatcherConfig())
	pair := m.Match(
		[]stereo.Detection{det(320, 200, 0.8)},
		[]stereo.Detection{det(300, 250, 0.7)},
		1,
	)
	if pair.Missing {
		t.Fatal("lone detections should still pair")
	}
	if pair.EpipolarResidual != 50 {
		t.Errorf("residual = %g, want 50", pair.EpipolarResidual)
	}
}

func TestMatchEmptySides(t *testing.T) {
	m := NewMatcher(DefaultMatcherConfig())

	pair := m.Match(nil, []stereo.Detection{det(300, 240, 0.9)}, 3)
	if !pair.Missing {
		t.Fatal("empty left side should be missing")
	}
	if pair.Left != nil || pair.Right == nil {
		t.Error("missing pair should carry the side that was present")
	}

	pair = m.Match(nil, nil, 4)
	if !pair.Missing || pair.Left != nil || pair.Right != nil {
		t.Error("two empty sides should give a bare missing pair")
	}
}

func TestMatchPicksMinimalResidual(t *testing.T) {
	m := NewMatcher(DefaultMatcherConfig())
	left := []stereo.Detection{det(320, 240, 0.8), det(340, 300, 0.7)}
	right := []stereo.Detection{det(300, 241, 0.6), det(318, 303, 0.5)}

	pair := m.Match(left, right, 9)
	if pair.Missing {
		t.Fatal("expected a match")
	}
	if pair.Left.Center.Y != 240 || pair.Right.Center.Y != 241 {
		t.Errorf("want the residual-1 pair, got %v / %v", pair.Left.Center, pair.Right.Center)
	}
	if pair.EpipolarResidual != 1 {
		t.Errorf("residual = %g, want 1", pair.EpipolarResidual)
	}
}

func TestMatchTieBreaksByConfidence(t *testing.T) {
	m := NewMatcher(DefaultMatcherConfig())
	// Both rows pair with residual 1; the high-confidence row wins.
	left := []stereo.Detection{det(320, 240, 0.9), det(340, 300, 0.4)}
	right := []stereo.Detection{det(300, 241, 0.8), det(318, 301, 0.3)}

	pair := m.Match(left, right, 2)
	if pair.Missing || pair.Left.Center.Y != 240 {
		t.Errorf("tie should resolve to the confident pair, got %+v", pair)
	}
}

func TestMatchDisparityGate(t *testing.T) {
	m := NewMatcher(DefaultMatcherConfig())
	// Two left candidates force the scored path; both disparities are
	// negative, so nothing is eligible.
	left := []stereo.Detection{det(300, 240, 0.8), det(290, 240, 0.7)}
	right := []stereo.Detection{det(320, 240, 0.6)}

	pair := m.Match(left, right, 5)
	if !pair.Missing {
		t.Fatal("negative disparity should never match")
	}
	if pair.Left == nil || pair.Right == nil {
		t.Error("missing pair should still carry the best candidates")
	}

	tight := NewMatcher(MatcherConfig{EpipolarTolerancePx: 10, MinDisparityPx: 1, MaxDisparityPx: 50})
	left = []stereo.Detection{det(200, 240, 0.8), det(190, 100, 0.7)}
	right = []stereo.Detection{det(100, 240, 0.6)}
	if pair := tight.Match(left, right, 6); !pair.Missing {
		t.Error("disparity beyond the maximum should not match")
	}
}

func TestMatchOrderIndependence(t *testing.T) {
	m := NewMatcher(DefaultMatcherConfig())
	left := []stereo.Detection{det(320, 240, 0.8), det(340, 300, 0.7), det(352, 120, 0.6)}
	right := []stereo.Detection{det(300, 241, 0.6), det(318, 303, 0.5), det(330, 121, 0.4)}

	forward := m.Match(left, right, 1)

	revLeft := []stereo.Detection{left[2], left[1], left[0]}
	revRight := []stereo.Detection{right[2], right[1], right[0]}
	reversed := m.Match(revLeft, revRight, 1)

	if forward.Missing || reversed.Missing {
		t.Fatal("expected matches in both orders")
	}
	if *forward.Left != *reversed.Left || *forward.Right != *reversed.Right {
		t.Errorf("order changed the match: %v/%v vs %v/%v",
			forward.Left.Center, forward.Right.Center, reversed.Left.Center, reversed.Right.Center)
	}
	if math.Abs(forward.EpipolarResidual-reversed.EpipolarResidual) > 1e-12 {
		t.Error("order changed the residual")
	}
}
