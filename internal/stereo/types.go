package stereo

import (
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
)

// DetectionMethod records which detector stage produced a detection.
type DetectionMethod string

const (
	MethodColor  DetectionMethod = "color"  // HSV gate + morphology + components
	MethodMotion DetectionMethod = "motion" // Frame-difference candidate
	MethodShape  DetectionMethod = "shape"  // Circle-fit fallback
)

// Detection is a single ball candidate in one camera's frame.
// Values are never mutated after the detector returns them.
type Detection struct {
	FrameIndex int
	Camera     string
	Center     r2.Point // Pixel coordinates
	Confidence float64  // [0,1]
	Method     DetectionMethod

	// Diagnostics from the connected-component stage
	Area        int     // Pixel count
	Circularity float64 // 4πA/P², clamped to [0,1]
}

// CorrespondencePair pairs the chosen left and right detections for one
// frame index. Missing is set when either side had no acceptable
// candidate; a Missing pair carries whichever side was present.
type CorrespondencePair struct {
	FrameIndex       int
	Left             *Detection
	Right            *Detection
	Missing          bool
	EpipolarResidual float64 // |vL−vR| in pixels, 0 when Missing
}

// TrackPoint3D is one triangulated ball position in the world frame.
// Points are immutable once created.
type TrackPoint3D struct {
	FrameIndex    int
	Time          time.Time
	Position      r3.Vector // World metres
	Residual      float64   // Closest-approach gap between the two rays, metres
	Interpolated  bool      // Filled over a short detection gap
	LowConfidence bool      // Residual exceeded the triangulator's limit
}

// BounceEvent marks a detected court contact on a trajectory.
type BounceEvent struct {
	FrameIndex    int
	Time          time.Time
	Position      r3.Vector // World metres, z near the court plane
	Interpolated  bool      // True when the bounce-local points were interpolated
	LowConfidence bool      // True when the vertex point carried a high residual
}

// Trajectory is an ordered run of triangulated points for one ball
// flight. Segment numbers increase when a long detection gap splits
// a rally into separate flights.
type Trajectory struct {
	ID        uuid.UUID
	Segment   int
	Points    []TrackPoint3D
	Bounces   []BounceEvent
	Finalized bool
}

// Duration reports the time span covered by the trajectory's points.
func (t *Trajectory) Duration() time.Duration {
	if len(t.Points) < 2 {
		return 0
	}
	return t.Points[len(t.Points)-1].Time.Sub(t.Points[0].Time)
}

// PeakSpeed returns the fastest speed in m/s between consecutive
// measured points. Interpolated points are skipped because gap filling
// smooths the very spikes this is meant to report. Returns 0 when
// fewer than two measured points exist.
func PeakSpeed(points []TrackPoint3D) float64 {
	var peak float64
	have := false
	var prev TrackPoint3D
	for _, pt := range points {
		if pt.Interpolated {
			continue
		}
		if have {
			dt := pt.Time.Sub(prev.Time).Seconds()
			if dt > 0 {
				if v := pt.Position.Sub(prev.Position).Norm() / dt; v > peak {
					peak = v
				}
			}
		}
		prev = pt
		have = true
	}
	return peak
}

// Confidence grades how much a verdict should be trusted.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"   // Measured bounce point
	ConfidenceMedium Confidence = "medium" // Bounce point was low-confidence
	ConfidenceLow    Confidence = "low"    // Bounce point was interpolated
)

// Verdict is a line call for one bounce.
type Verdict struct {
	FrameIndex  int
	Time        time.Time
	Position    r3.Vector // World metres
	InBounds    bool
	NearestLine string  // Name of the closest court line
	Distance    float64 // Metres to the nearest line centre, positive outside the court
	Confidence  Confidence
}

// VerdictSink receives finalized verdicts. Implementations must not
// block the caller for long; the pipeline calls sinks inline.
type VerdictSink interface {
	EmitVerdict(v Verdict)
}

// VerdictSinkFunc adapts a function to the VerdictSink interface.
type VerdictSinkFunc func(v Verdict)

func (f VerdictSinkFunc) EmitVerdict(v Verdict) { f(v) }
