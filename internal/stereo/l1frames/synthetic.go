package l1frames

import (
	"context"
	"io"
	"math/rand"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/courtsight-data/linecall/internal/stereo"
)

const gravity = 9.81 // m/s²

// SyntheticConfig drives SimulateRally and the synthetic frame source.
type SyntheticConfig struct {
	Width, Height int
	FPS           float64
	Frames        int
	Params        *stereo.CameraParameters

	Start       r3.Vector // initial ball position, world metres
	Velocity    r3.Vector // initial ball velocity, m/s
	Restitution float64   // vertical energy retained per bounce

	BallRadiusPx float64
	NoisePx      float64        // σ of gaussian noise on projected centres
	DropEvery    int            // hide the ball from one camera every n-th frame; 0 disables
	WorldLines   [][2]r3.Vector // painted line segments, world metres
	Seed         int64
}

// DefaultRig returns the rig used by DefaultSyntheticConfig: a rectified
// pair 2.5 m up behind the near baseline, looking down court.
func DefaultRig(width, height int) *stereo.CameraParameters {
	p, err := stereo.LookAtParameters(
		r3.Vector{Y: -15, Z: 2.5},
		r3.Vector{Y: 2},
		600,
		r2.Point{X: float64(width) / 2, Y: float64(height) / 2},
		0.25,
	)
	if err != nil {
		panic(err) // fixed geometry
	}
	return p
}

// DefaultSyntheticConfig returns a 640×480, 30 fps serve that clears the
// net and bounces in the far service box.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		Width:        640,
		Height:       480,
		FPS:          30,
		Frames:       60,
		Params:       DefaultRig(640, 480),
		Start:        r3.Vector{X: -1.5, Y: -11, Z: 1.2},
		Velocity:     r3.Vector{X: 0.4, Y: 16, Z: 4.0},
		Restitution:  0.72,
		BallRadiusPx: 7,
	}
}

// SimulateRally integrates the ball flight and projects it through the
// rig, producing one rally-log entry per frame. A camera's mark is
// omitted when the projection leaves the frame or the dropout schedule
// hides it.
func SimulateRally(cfg SyntheticConfig) []RallyLogEntry {
	rng := rand.New(rand.NewSource(cfg.Seed))
	pos, vel := cfg.Start, cfg.Velocity
	dt := 1 / cfg.FPS

	entries := make([]RallyLogEntry, 0, cfg.Frames)
	for i := 0; i < cfg.Frames; i++ {
		e := RallyLogEntry{Frame: i, TNS: int64(float64(i) * dt * 1e9)}
		e.Left = cfg.mark(pos, stereo.CameraLeft, rng)
		e.Right = cfg.mark(pos, stereo.CameraRight, rng)
		if cfg.DropEvery > 0 && i > 0 && i%cfg.DropEvery == 0 {
			if (i/cfg.DropEvery)%2 == 0 {
				e.Left = nil
			} else {
				e.Right = nil
			}
		}
		entries = append(entries, e)

		vel.Z -= gravity * dt
		pos = pos.Add(vel.Mul(dt))
		if pos.Z < 0 {
			pos.Z = -pos.Z * cfg.Restitution
			vel.Z = -vel.Z * cfg.Restitution
		}
	}
	return entries
}

func (cfg SyntheticConfig) mark(pos r3.Vector, camera string, rng *rand.Rand) *PixelMark {
	px, ok := cfg.Params.Project(pos, camera)
	if !ok {
		return nil
	}
	if cfg.NoisePx > 0 {
		px.X += rng.NormFloat64() * cfg.NoisePx
		px.Y += rng.NormFloat64() * cfg.NoisePx
	}
	if px.X < 0 || px.X >= float64(cfg.Width) || px.Y < 0 || px.Y >= float64(cfg.Height) {
		return nil
	}
	return &PixelMark{X: px.X, Y: px.Y, R: cfg.BallRadiusPx}
}

// SyntheticSource renders a simulated rally frame pair by frame pair.
type SyntheticSource struct {
	cfg     SyntheticConfig
	entries []RallyLogEntry
	bg      map[string][]uint8
	next    int
}

var _ Source = (*SyntheticSource)(nil)

// NewSyntheticSource simulates the configured rally up front; frames are
// rendered lazily per Next call.
func NewSyntheticSource(cfg SyntheticConfig) *SyntheticSource {
	s := &SyntheticSource{
		cfg:     cfg,
		entries: SimulateRally(cfg),
		bg:      map[string][]uint8{},
	}
	for _, camera := range []string{stereo.CameraLeft, stereo.CameraRight} {
		s.bg[camera] = cfg.renderBackground(camera)
	}
	return s
}

func (cfg SyntheticConfig) renderBackground(camera string) []uint8 {
	f := NewFrame(0, time.Time{}, camera, cfg.Width, cfg.Height)
	Fill(f, BackgroundColor)
	for _, seg := range cfg.WorldLines {
		a, okA := cfg.Params.Project(seg[0], camera)
		b, okB := cfg.Params.Project(seg[1], camera)
		if okA && okB {
			DrawSegment(f, a, b, 3, LineColor)
		}
	}
	return f.RGBA.Pix
}

// Next renders the next frame pair, or io.EOF past the end of the rally.
func (s *SyntheticSource) Next(ctx context.Context) (*FramePair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.entries) {
		return nil, io.EOF
	}
	e := s.entries[s.next]
	s.next++

	t := time.Unix(0, e.TNS)
	return &FramePair{
		Index: e.Frame,
		Time:  t,
		Left:  renderMarkFrame(e.Frame, t, stereo.CameraLeft, s.cfg.Width, s.cfg.Height, s.bg[stereo.CameraLeft], e.Left),
		Right: renderMarkFrame(e.Frame, t, stereo.CameraRight, s.cfg.Width, s.cfg.Height, s.bg[stereo.CameraRight], e.Right),
	}, nil
}

// Close implements Source; a synthetic source holds no resources.
func (s *SyntheticSource) Close() error { return nil }

func renderMarkFrame(index int, t time.Time, camera string, width, height int, bg []uint8, mark *PixelMark) *Frame {
	f := NewFrame(index, t, camera, width, height)
	if bg != nil {
		copy(f.RGBA.Pix, bg)
	}
	if mark != nil {
		DrawDisc(f, r2.Point{X: mark.X, Y: mark.Y}, mark.R, BallColor)
	}
	return f
}
