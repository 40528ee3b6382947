package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtsight-data/linecall/internal/config"
	"github.com/courtsight-data/linecall/internal/stereo"
	"github.com/courtsight-data/linecall/internal/stereo/l1frames"
)

// collector captures sink deliveries. The pipeline delivers from one
// drain goroutine and Close synchronizes with it, so tests read the
// captured slices only after Close returns.
type collector struct {
	mu           sync.Mutex
	trajectories []*stereo.Trajectory
	verdicts     [][]stereo.Verdict
}

func (c *collector) EmitTrajectory(t *stereo.Trajectory, verdicts []stereo.Verdict) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trajectories = append(c.trajectories, t)
	c.verdicts = append(c.verdicts, verdicts)
}

func TestPipelineSyntheticServe(t *testing.T) {
	srcCfg := l1frames.DefaultSyntheticConfig()
	src := l1frames.NewSyntheticSource(srcCfg)
	defer src.Close()

	p := New(DefaultConfig(*srcCfg.Params))
	col := &collector{}
	p.AddSink(col)
	var perVerdict []stereo.Verdict
	p.AddVerdictSink(stereo.VerdictSinkFunc(func(v stereo.Verdict) {
		perVerdict = append(perVerdict, v)
	}))

	ctx := context.Background()
	require.NoError(t, p.Run(ctx, src))
	require.NoError(t, p.Close(ctx))

	require.Len(t, col.trajectories, 1, "one serve should yield one trajectory")
	tr := col.trajectories[0]
	assert.True(t, tr.Finalized)
	assert.Equal(t, 0, tr.Segment)
	assert.GreaterOrEqual(t, len(tr.Points), 40, "ball is visible for most of the rally")

	require.NotEmpty(t, tr.Bounces, "the serve lands in the far service box")
	b := tr.Bounces[0]
	assert.GreaterOrEqual(t, b.FrameIndex, 27)
	assert.LessOrEqual(t, b.FrameIndex, 35)
	assert.False(t, b.Interpolated)
	assert.Less(t, b.Position.Z, 0.3)
	assert.InDelta(t, -1.1, b.Position.X, 1.5)
	assert.InDelta(t, 5.5, b.Position.Y, 1.5)

	require.Len(t, col.verdicts, 1)
	verdicts := col.verdicts[0]
	require.Len(t, verdicts, len(tr.Bounces))
	v := verdicts[0]
	assert.True(t, v.InBounds, "serve bounce is metres inside the lines")
	assert.Negative(t, v.Distance)
	assert.Equal(t, stereo.ConfidenceHigh, v.Confidence)
	assert.Equal(t, b.FrameIndex, v.FrameIndex)
	assert.NotEmpty(t, v.NearestLine)

	assert.Equal(t, verdicts, perVerdict, "verdict sinks see the same calls")

	snap := p.Stats().GetAndReset()
	assert.Equal(t, int64(60), snap.Frames)
	assert.GreaterOrEqual(t, snap.Triangulated, int64(40))
	assert.Equal(t, snap.Frames, snap.Triangulated+snap.MissingPairs+snap.Degenerate,
		"every frame is triangulated, unpaired, or rejected")
	assert.Equal(t, int64(1), snap.Trajectories)
	assert.Equal(t, int64(len(tr.Bounces)), snap.Bounces)
	assert.Equal(t, int64(len(verdicts)), snap.Verdicts)
}

// cancelAfter cancels the run's context once n frame pairs have been
// served.
type cancelAfter struct {
	l1frames.Source
	n      int
	calls  int
	cancel context.CancelFunc
}

func (s *cancelAfter) Next(ctx context.Context) (*l1frames.FramePair, error) {
	if s.calls == s.n {
		s.cancel()
	}
	s.calls++
	return s.Source.Next(ctx)
}

func TestPipelineCancelDiscardsInFlight(t *testing.T) {
	srcCfg := l1frames.DefaultSyntheticConfig()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &cancelAfter{
		Source: l1frames.NewSyntheticSource(srcCfg),
		n:      40,
		cancel: cancel,
	}
	defer src.Close()

	p := New(DefaultConfig(*srcCfg.Params))
	emitted := 0
	p.AddSink(SinkFunc(func(*stereo.Trajectory, []stereo.Verdict) { emitted++ }))

	err := p.Run(ctx, src)
	require.ErrorIs(t, err, context.Canceled)
	require.NoError(t, p.Close(context.Background()))

	assert.Zero(t, emitted, "a cancelled run must not deliver the in-flight trajectory")
	snap := p.Stats().GetAndReset()
	assert.Equal(t, int64(40), snap.Frames)
	assert.Zero(t, snap.Trajectories)
}

func TestPipelineCloseIdempotent(t *testing.T) {
	p := New(DefaultConfig(*l1frames.DefaultRig(640, 480)))
	ctx := context.Background()
	require.NoError(t, p.Close(ctx))
	require.NoError(t, p.Close(ctx))
}

func TestConfigFromTuning(t *testing.T) {
	gap := 12
	width := 0.08
	tol := 2.5
	tc := &config.TuningConfig{
		Matching:   &config.MatchingSection{EpipolarTolerancePx: &tol},
		Trajectory: &config.TrajectorySection{MaxInterpolateGap: &gap},
		Judgment:   &config.JudgmentSection{LineWidthM: &width},
	}
	camera := *l1frames.DefaultRig(640, 480)

	cfg := ConfigFromTuning(tc, camera)
	assert.Equal(t, 12, cfg.Assembler.MaxInterpolateGap)
	assert.Equal(t, 2.5, cfg.Matcher.EpipolarTolerancePx)
	assert.Equal(t, 0.08, cfg.Court.LineWidth)
	assert.Equal(t, camera.FocalLength, cfg.Camera.FocalLength)

	def := DefaultConfig(camera)
	assert.Equal(t, def.Assembler.SegmentGapFrames, cfg.Assembler.SegmentGapFrames)
	assert.Equal(t, def.Detector, cfg.Detector)
	assert.Equal(t, def.Triangulator, cfg.Triangulator)
}

func TestConfigFromCanonicalDefaults(t *testing.T) {
	camera := *l1frames.DefaultRig(640, 480)
	cfg := ConfigFromTuning(config.MustLoadDefaultConfig(), camera)

	def := DefaultConfig(camera)
	assert.Equal(t, def.Detector, cfg.Detector)
	assert.Equal(t, def.Matcher, cfg.Matcher)
	assert.Equal(t, def.Triangulator, cfg.Triangulator)
	assert.Equal(t, def.Assembler, cfg.Assembler)
	assert.Equal(t, def.Court.LineWidth, cfg.Court.LineWidth)
}
