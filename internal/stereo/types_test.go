package stereo

import (
	"math"
	"testing"
	"time"

	"github.com/golang/geo/r3"
)

// pointAt builds a measured track point n frame intervals after base,
// moving along +y at the given speed in m/s.
func pointAt(base time.Time, n int, dt time.Duration, speed float64) TrackPoint3D {
	return TrackPoint3D{
		FrameIndex: n,
		Time:       base.Add(time.Duration(n) * dt),
		Position:   r3.Vector{Y: speed * float64(n) * dt.Seconds(), Z: 1},
	}
}

func TestTrajectoryDuration(t *testing.T) {
	base := time.Unix(1000, 0)
	tr := &Trajectory{}
	if tr.Duration() != 0 {
		t.Error("empty trajectory should have zero duration")
	}

	tr.Points = []TrackPoint3D{
		{Time: base},
		{Time: base.Add(33 * time.Millisecond)},
		{Time: base.Add(66 * time.Millisecond)},
	}
	if got := tr.Duration(); got != 66*time.Millisecond {
		t.Errorf("Duration() = %v, want 66ms", got)
	}
}

func TestPeakSpeed(t *testing.T) {
	base := time.Unix(1000, 0)
	dt := 100 * time.Millisecond

	// Constant 12 m/s except one faster hop between frames 2 and 3.
	points := []TrackPoint3D{
		pointAt(base, 0, dt, 12),
		pointAt(base, 1, dt, 12),
		pointAt(base, 2, dt, 12),
		pointAt(base, 3, dt, 12),
	}
	points[3].Position.Y += 0.8 // extra 0.8 m over 0.1 s adds 8 m/s

	if got := PeakSpeed(points); math.Abs(got-20) > 1e-9 {
		t.Errorf("PeakSpeed() = %g, want 20", got)
	}
}

func TestPeakSpeedSkipsInterpolated(t *testing.T) {
	base := time.Unix(1000, 0)
	dt := 100 * time.Millisecond

	// A gap-filled point far off the flight line must not register as a
	// speed spike. The measured pair around it spans 0.2 s.
	points := []TrackPoint3D{
		pointAt(base, 0, dt, 5),
		{
			FrameIndex:   1,
			Time:         base.Add(dt),
			Position:     r3.Vector{Y: 10, Z: 1},
			Interpolated: true,
		},
		pointAt(base, 2, dt, 5),
	}

	if got := PeakSpeed(points); math.Abs(got-5) > 1e-9 {
		t.Errorf("PeakSpeed() = %g, want 5", got)
	}
}

func TestPeakSpeedDegenerate(t *testing.T) {
	base := time.Unix(1000, 0)

	if got := PeakSpeed(nil); got != 0 {
		t.Errorf("PeakSpeed(nil) = %g, want 0", got)
	}
	if got := PeakSpeed([]TrackPoint3D{pointAt(base, 0, time.Second, 3)}); got != 0 {
		t.Errorf("single point PeakSpeed() = %g, want 0", got)
	}

	// All interpolated leaves nothing to measure.
	interp := []TrackPoint3D{
		{Time: base, Interpolated: true},
		{Time: base.Add(time.Second), Position: r3.Vector{Y: 40}, Interpolated: true},
	}
	if got := PeakSpeed(interp); got != 0 {
		t.Errorf("all-interpolated PeakSpeed() = %g, want 0", got)
	}

	// Duplicate timestamps cannot produce a finite speed.
	dup := []TrackPoint3D{
		{Time: base},
		{Time: base, Position: r3.Vector{Y: 2}},
	}
	if got := PeakSpeed(dup); got != 0 {
		t.Errorf("zero-dt PeakSpeed() = %g, want 0", got)
	}
}
