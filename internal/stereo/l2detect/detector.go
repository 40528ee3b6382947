package l2detect

import (
	"image"
	"math"
	"sort"

	"github.com/golang/geo/r2"

	"github.com/courtsight-data/linecall/internal/config"
	"github.com/courtsight-data/linecall/internal/stereo"
	"github.com/courtsight-data/linecall/internal/stereo/l1frames"
)

// referenceArea is the component area, in pixels, at which the area
// term of the confidence score saturates.
const referenceArea = 2000

// Config holds the detector tuning. Build one from the tuning file
// with ConfigFromTuning, or start from DefaultConfig.
type Config struct {
	Gate             l1frames.HSVBounds
	ErodeIterations  int
	DilateIterations int
	MinContourArea   int
	DiffThreshold    uint8   // Grayscale delta gating the motion mask
	MaxJumpPx        float64 // Plausible inter-frame ball travel

	// Circle-fit fallback, off unless enabled
	ShapeFallback        bool
	ShapeFallbackBelow   float64 // Run the fallback when the best confidence is below this
	MinRadiusPx          int
	MaxRadiusPx          int
	AccumulatorThreshold int
}

// DefaultConfig returns the detector defaults.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	low, high := cfg.GetHSVLow(), cfg.GetHSVHigh()
	return Config{
		Gate: l1frames.HSVBounds{
			LowH: uint8(low[0]), LowS: uint8(low[1]), LowV: uint8(low[2]),
			HighH: uint8(high[0]), HighS: uint8(high[1]), HighV: uint8(high[2]),
		},
		ErodeIterations:      cfg.GetErodeIterations(),
		DilateIterations:     cfg.GetDilateIterations(),
		MinContourArea:       cfg.GetMinContourArea(),
		DiffThreshold:        uint8(cfg.GetDiffThreshold()),
		MaxJumpPx:            cfg.GetMaxJumpPx(),
		ShapeFallback:        cfg.GetShapeFallback(),
		ShapeFallbackBelow:   cfg.GetShapeFallbackBelow(),
		MinRadiusPx:          cfg.GetMinRadiusPx(),
		MaxRadiusPx:          cfg.GetMaxRadiusPx(),
		AccumulatorThreshold: cfg.GetAccumulatorThreshold(),
	}
}

// Detector extracts ball candidates from one camera's frames. It
// remembers the previous best detection to score motion consistency,
// so each camera needs its own instance; a Detector is not safe for
// concurrent use.
type Detector struct {
	cfg Config

	lastCenter r2.Point
	hasLast    bool
}

// NewDetector returns a detector with the given tuning.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// Reset clears the detection history, for example between sessions.
func (d *Detector) Reset() {
	d.hasLast = false
}

// Detect runs the configured stages on one frame and returns candidates
// ranked by descending confidence, ties broken by (y, x). prev may be
// nil; without it no motion mask is built. An empty result means the
// ball was not seen, never an error.
func (d *Detector) Detect(frame, prev *l1frames.Frame, camera string) []stereo.Detection {
	if frame == nil {
		return nil
	}

	var diff *image.Gray
	if prev != nil {
		diff = l1frames.Threshold(l1frames.AbsDiff(frame.Gray(), prev.Gray()), d.cfg.DiffThreshold)
	}

	mask := l1frames.InRangeHSV(frame, d.cfg.Gate)
	mask = l1frames.Dilate(l1frames.Erode(mask, d.cfg.ErodeIterations), d.cfg.DilateIterations)

	var dets []stereo.Detection
	for _, c := range l1frames.Components(mask, d.cfg.MinContourArea) {
		overlap, hasOverlap := overlapFraction(mask, diff, c.BBox)
		dets = append(dets, stereo.Detection{
			FrameIndex:  frame.Index,
			Camera:      camera,
			Center:      c.Centroid,
			Confidence:  d.confidence(c.Centroid, c.Area, c.Circularity(), overlap, hasOverlap),
			Method:      stereo.MethodColor,
			Area:        c.Area,
			Circularity: c.Circularity(),
		})
	}

	// No colour candidates: fall back to the moving regions themselves.
	if len(dets) == 0 && diff != nil {
		for _, c := range l1frames.Components(diff, d.cfg.MinContourArea) {
			dets = append(dets, stereo.Detection{
				FrameIndex:  frame.Index,
				Camera:      camera,
				Center:      c.Centroid,
				Confidence:  d.confidence(c.Centroid, c.Area, c.Circularity(), 1, true),
				Method:      stereo.MethodMotion,
				Area:        c.Area,
				Circularity: c.Circularity(),
			})
		}
	}

	if d.cfg.ShapeFallback && bestConfidence(dets) < d.cfg.ShapeFallbackBelow {
		dets = append(dets, d.shapeCandidates(frame, camera)...)
	}

	rank(dets)
	if len(dets) > 0 {
		d.lastCenter = dets[0].Center
		d.hasLast = true
		stereo.Tracef("detect %s frame %d: %d candidates, best %.2f at (%.1f, %.1f)",
			camera, frame.Index, len(dets), dets[0].Confidence, dets[0].Center.X, dets[0].Center.Y)
	}
	return dets
}

// confidence scores a candidate from its area, circularity, and motion
// consistency. The motion term blends proximity to the previous best
// detection with the candidate's overlap against the motion mask, and
// stays neutral at 0.5 when neither signal exists.
func (d *Detector) confidence(center r2.Point, area int, circularity, overlap float64, hasOverlap bool) float64 {
	motion := 0.5
	prox := 0.0
	if d.hasLast && d.cfg.MaxJumpPx > 0 {
		dist := center.Sub(d.lastCenter).Norm()
		prox = math.Max(0, 1-dist/d.cfg.MaxJumpPx)
	}
	switch {
	case d.hasLast && hasOverlap:
		motion = (prox + overlap) / 2
	case d.hasLast:
		motion = prox
	case hasOverlap:
		motion = overlap
	}

	conf := 0.5*math.Min(1, float64(area)/referenceArea) + 0.3*circularity + 0.2*motion
	return math.Max(0, math.Min(1, conf))
}

func (d *Detector) shapeCandidates(frame *l1frames.Frame, camera string) []stereo.Detection {
	circles := FitCircles(frame.Gray(), d.cfg.MinRadiusPx, d.cfg.MaxRadiusPx, d.cfg.AccumulatorThreshold)
	dets := make([]stereo.Detection, 0, len(circles))
	for _, c := range circles {
		area := int(math.Round(math.Pi * c.Radius * c.Radius))
		dets = append(dets, stereo.Detection{
			FrameIndex:  frame.Index,
			Camera:      camera,
			Center:      c.Center,
			Confidence:  d.confidence(c.Center, area, c.Support, 0, false),
			Method:      stereo.MethodShape,
			Area:        area,
			Circularity: c.Support,
		})
	}
	return dets
}

// overlapFraction reports which share of the mask pixels inside bbox
// also sit in the motion mask. The second return is false when there
// is no motion mask or no mask pixels to compare.
func overlapFraction(mask, diff *image.Gray, bbox image.Rectangle) (float64, bool) {
	if diff == nil {
		return 0, false
	}
	var in, moving int
	for y := bbox.Min.Y; y < bbox.Max.Y; y++ {
		for x := bbox.Min.X; x < bbox.Max.X; x++ {
			if mask.GrayAt(x, y).Y == 0 {
				continue
			}
			in++
			if diff.GrayAt(x, y).Y != 0 {
				moving++
			}
		}
	}
	if in == 0 {
		return 0, false
	}
	return float64(moving) / float64(in), true
}

func bestConfidence(dets []stereo.Detection) float64 {
	best := 0.0
	for _, det := range dets {
		if det.Confidence > best {
			best = det.Confidence
		}
	}
	return best
}

func rank(dets []stereo.Detection) {
	sort.SliceStable(dets, func(i, j int) bool {
		if dets[i].Confidence != dets[j].Confidence {
			return dets[i].Confidence > dets[j].Confidence
		}
		if dets[i].Center.Y != dets[j].Center.Y {
			return dets[i].Center.Y < dets[j].Center.Y
		}
		return dets[i].Center.X < dets[j].Center.X
	})
}
