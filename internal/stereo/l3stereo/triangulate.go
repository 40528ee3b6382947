package l3stereo

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang/geo/r3"

	"github.com/courtsight-data/linecall/internal/config"
	"github.com/courtsight-data/linecall/internal/stereo"
)

// ErrDegenerate marks triangulation geometry that cannot yield a
// point: near-parallel rays or an intersection behind a camera.
var ErrDegenerate = errors.New("degenerate triangulation geometry")

// parallelRayTolerance is the minimum cross-product norm between the
// two ray directions.
const parallelRayTolerance = 1e-9

// Triangulator intersects matched pixel rays into world points.
type Triangulator struct {
	MaxResidualM float64 // Ray gap above this marks the point low confidence
}

// DefaultTriangulator returns a triangulator with the default residual
// limit.
func DefaultTriangulator() Triangulator {
	return TriangulatorFromTuning(config.EmptyTuningConfig())
}

// TriangulatorFromTuning builds a Triangulator from a loaded
// TuningConfig.
func TriangulatorFromTuning(cfg *config.TuningConfig) Triangulator {
	return Triangulator{MaxResidualM: cfg.GetMaxResidualM()}
}

// Triangulate back-projects both detections of a pair into rays in the
// reference camera frame, solves their closest approach, and maps the
// midpoint to world coordinates. The perpendicular gap between the
// rays is reported as the point's residual; a gap above MaxResidualM
// marks the point low confidence but keeps it, since a rough point
// still anchors interpolation.
func (tr Triangulator) Triangulate(pair stereo.CorrespondencePair, params *stereo.CameraParameters, at time.Time) (stereo.TrackPoint3D, error) {
	if pair.Left == nil || pair.Right == nil {
		return stereo.TrackPoint3D{}, fmt.Errorf("correspondence pair for frame %d is missing a detection", pair.FrameIndex)
	}

	// Both rays live in the reference (left) camera frame; the right
	// camera sits at (Baseline, 0, 0) with parallel axes.
	oL := r3.Vector{}
	oR := r3.Vector{X: params.Baseline}
	dL := params.PixelRay(pair.Left.Center)
	dR := params.PixelRay(pair.Right.Center)

	if dL.Cross(dR).Norm() < parallelRayTolerance {
		return stereo.TrackPoint3D{}, fmt.Errorf("frame %d: parallel rays: %w", pair.FrameIndex, ErrDegenerate)
	}

	// Closest approach of p = oL + s·dL and q = oR + u·dR.
	w0 := oL.Sub(oR)
	a := dL.Dot(dL)
	b := dL.Dot(dR)
	c := dR.Dot(dR)
	d := dL.Dot(w0)
	e := dR.Dot(w0)
	denom := a*c - b*b

	s := (b*e - c*d) / denom
	u := (a*e - b*d) / denom
	if s <= 0 || u <= 0 {
		return stereo.TrackPoint3D{}, fmt.Errorf("frame %d: intersection behind camera: %w", pair.FrameIndex, ErrDegenerate)
	}

	p := oL.Add(dL.Mul(s))
	q := oR.Add(dR.Mul(u))
	residual := p.Sub(q).Norm()
	mid := p.Add(q).Mul(0.5)

	return stereo.TrackPoint3D{
		FrameIndex:    pair.FrameIndex,
		Time:          at,
		Position:      params.CameraToWorld(mid),
		Residual:      residual,
		LowConfidence: residual > tr.MaxResidualM,
	}, nil
}
