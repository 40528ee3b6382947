package l4tracks

import (
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/interp"

	"github.com/courtsight-data/linecall/internal/config"
	"github.com/courtsight-data/linecall/internal/stereo"
)

// Config holds the assembler tuning.
type Config struct {
	SegmentGapFrames     int     // Gap above this starts a new trajectory
	MaxInterpolateGap    int     // Interior gaps up to this many frames are filled
	BounceMinDownwardMps float64 // Required downward speed before a bounce
	BounceMaxHeightM     float64 // Bounce vertex must sit below this height
}

// DefaultConfig returns the assembler defaults.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		SegmentGapFrames:     cfg.GetSegmentGapFrames(),
		MaxInterpolateGap:    cfg.GetMaxInterpolateGap(),
		BounceMinDownwardMps: cfg.GetBounceMinDownwardMps(),
		BounceMaxHeightM:     cfg.GetBounceMaxHeightM(),
	}
}

// Assembler stitches triangulated points into trajectories. Appends
// must arrive in frame order; a long frame gap closes the active
// trajectory and hands it to the completion callback. The assembler
// itself is single-goroutine; finalization is a pure function of the
// collected points, so completed segments may be finalized
// concurrently with continued appends.
type Assembler struct {
	cfg        Config
	onComplete func(*stereo.Trajectory)

	points  []stereo.TrackPoint3D
	segment int
}

// NewAssembler returns an assembler. onComplete receives trajectories
// closed by segment gaps; it may be nil.
func NewAssembler(cfg Config, onComplete func(*stereo.Trajectory)) *Assembler {
	return &Assembler{cfg: cfg, onComplete: onComplete}
}

// Append adds a measured point to the active trajectory. A frame gap
// beyond SegmentGapFrames finalizes the active trajectory first and
// starts a new segment with this point. Out-of-order points are
// dropped.
func (a *Assembler) Append(pt stereo.TrackPoint3D) {
	if n := len(a.points); n > 0 {
		last := a.points[n-1].FrameIndex
		if pt.FrameIndex <= last {
			stereo.Diagf("tracks: dropping out-of-order point frame %d after %d", pt.FrameIndex, last)
			return
		}
		if pt.FrameIndex-last > a.cfg.SegmentGapFrames {
			if done := a.close(); done != nil && a.onComplete != nil {
				a.onComplete(done)
			}
		}
	}
	a.points = append(a.points, pt)
}

// Finalize closes and returns the active trajectory, or nil when no
// points were collected. The next trajectory continues the segment
// numbering.
func (a *Assembler) Finalize() *stereo.Trajectory {
	return a.close()
}

func (a *Assembler) close() *stereo.Trajectory {
	if len(a.points) == 0 {
		return nil
	}
	t := finalizeSegment(a.cfg, a.segment, a.points)
	a.points = nil
	a.segment++
	return t
}

// finalizeSegment interpolates interior gaps, detects bounces, and
// seals the trajectory. It reads only its arguments.
func finalizeSegment(cfg Config, segment int, measured []stereo.TrackPoint3D) *stereo.Trajectory {
	points := fillGaps(cfg, measured)
	t := &stereo.Trajectory{
		ID:        uuid.New(),
		Segment:   segment,
		Points:    points,
		Bounces:   detectBounces(cfg, points),
		Finalized: true,
	}
	stereo.Opsf("trajectory %s segment %d finalized: %d points (%d measured), %d bounces",
		t.ID, segment, len(points), len(measured), len(t.Bounces))
	return t
}

// fillGaps interpolates missing interior frames up to the configured
// gap, each coordinate independently over the frame axis. Natural
// cubic splines need at least three measured points; smaller
// trajectories fall back to linear interpolation.
func fillGaps(cfg Config, measured []stereo.TrackPoint3D) []stereo.TrackPoint3D {
	out := make([]stereo.TrackPoint3D, 0, len(measured))
	if len(measured) < 2 {
		return append(out, measured...)
	}

	frames := make([]float64, len(measured))
	coords := [3][]float64{}
	for i := range coords {
		coords[i] = make([]float64, len(measured))
	}
	for i, pt := range measured {
		frames[i] = float64(pt.FrameIndex)
		coords[0][i] = pt.Position.X
		coords[1][i] = pt.Position.Y
		coords[2][i] = pt.Position.Z
	}

	var preds [3]interp.FittablePredictor
	for i := range preds {
		if len(measured) >= 3 {
			preds[i] = &interp.NaturalCubic{}
		} else {
			preds[i] = &interp.PiecewiseLinear{}
		}
		if err := preds[i].Fit(frames, coords[i]); err != nil {
			// Duplicate frames cannot happen on ordered appends.
			stereo.Diagf("tracks: interpolator fit failed: %v", err)
			return append(out, measured...)
		}
	}

	for i, pt := range measured {
		out = append(out, pt)
		if i == len(measured)-1 {
			break
		}
		next := measured[i+1]
		gap := next.FrameIndex - pt.FrameIndex - 1
		if gap < 1 || gap > cfg.MaxInterpolateGap {
			continue
		}
		span := next.Time.Sub(pt.Time)
		for f := pt.FrameIndex + 1; f < next.FrameIndex; f++ {
			frac := float64(f-pt.FrameIndex) / float64(next.FrameIndex-pt.FrameIndex)
			out = append(out, stereo.TrackPoint3D{
				FrameIndex: f,
				Time:       pt.Time.Add(time.Duration(frac * float64(span))),
				Position: r3.Vector{
					X: preds[0].Predict(float64(f)),
					Y: preds[1].Predict(float64(f)),
					Z: preds[2].Predict(float64(f)),
				},
				Interpolated: true,
			})
		}
	}
	return out
}

// detectBounces scans the vertical component for downward-to-upward
// velocity sign changes. The vertex must have been falling at least
// BounceMinDownwardMps and sit below BounceMaxHeightM.
func detectBounces(cfg Config, points []stereo.TrackPoint3D) []stereo.BounceEvent {
	var bounces []stereo.BounceEvent
	for i := 1; i < len(points)-1; i++ {
		prev, cur, next := points[i-1], points[i], points[i+1]
		down := verticalVelocity(prev, cur)
		up := verticalVelocity(cur, next)
		if down >= 0 || up <= 0 {
			continue
		}
		if -down < cfg.BounceMinDownwardMps {
			continue
		}
		if cur.Position.Z >= cfg.BounceMaxHeightM {
			continue
		}
		bounces = append(bounces, stereo.BounceEvent{
			FrameIndex:    cur.FrameIndex,
			Time:          cur.Time,
			Position:      cur.Position,
			Interpolated:  prev.Interpolated || cur.Interpolated || next.Interpolated,
			LowConfidence: cur.LowConfidence,
		})
	}
	return bounces
}

func verticalVelocity(a, b stereo.TrackPoint3D) float64 {
	dt := b.Time.Sub(a.Time).Seconds()
	if dt <= 0 {
		return 0
	}
	return (b.Position.Z - a.Position.Z) / dt
}
