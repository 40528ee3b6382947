// Package pipeline composes the stereo layers into the full
// frames-to-verdicts loop: detect on both cameras, match, triangulate,
// assemble trajectories, and judge bounces against the court model.
//
// The pipeline owns the per-camera detector state and the trajectory
// assembler. Completed trajectories are handed to a drain goroutine so
// judgment and sink fan-out never stall frame processing.
//
// See docs/architecture/stereo-data-layer-model.md for the layer model.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/courtsight-data/linecall/internal/config"
	"github.com/courtsight-data/linecall/internal/stereo"
	"github.com/courtsight-data/linecall/internal/stereo/l1frames"
	"github.com/courtsight-data/linecall/internal/stereo/l2detect"
	"github.com/courtsight-data/linecall/internal/stereo/l3stereo"
	"github.com/courtsight-data/linecall/internal/stereo/l4tracks"
	"github.com/courtsight-data/linecall/internal/stereo/l5court"
)

// Sink receives each finalized trajectory together with the line calls
// for its bounces. Sinks run on the drain goroutine, one trajectory at
// a time, in completion order.
type Sink interface {
	EmitTrajectory(t *stereo.Trajectory, verdicts []stereo.Verdict)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(t *stereo.Trajectory, verdicts []stereo.Verdict)

func (f SinkFunc) EmitTrajectory(t *stereo.Trajectory, verdicts []stereo.Verdict) {
	f(t, verdicts)
}

// Config gathers the stage configurations and the calibrated rig.
type Config struct {
	Camera       stereo.CameraParameters
	Detector     l2detect.Config
	Matcher      l3stereo.MatcherConfig
	Triangulator l3stereo.Triangulator
	Assembler    l4tracks.Config
	Court        *l5court.CourtModel
}

// DefaultConfig returns a pipeline config with every stage at its
// defaults. The caller still has to supply calibrated camera
// parameters before the config is usable.
func DefaultConfig(camera stereo.CameraParameters) Config {
	return Config{
		Camera:       camera,
		Detector:     l2detect.DefaultConfig(),
		Matcher:      l3stereo.DefaultMatcherConfig(),
		Triangulator: l3stereo.DefaultTriangulator(),
		Assembler:    l4tracks.DefaultConfig(),
		Court:        l5court.NewCourtModel(l5court.DefaultLineWidthM),
	}
}

// ConfigFromTuning builds every stage config from one tuning file.
func ConfigFromTuning(cfg *config.TuningConfig, camera stereo.CameraParameters) Config {
	return Config{
		Camera:       camera,
		Detector:     l2detect.ConfigFromTuning(cfg),
		Matcher:      l3stereo.MatcherConfigFromTuning(cfg),
		Triangulator: l3stereo.TriangulatorFromTuning(cfg),
		Assembler:    l4tracks.ConfigFromTuning(cfg),
		Court:        l5court.ModelFromTuning(cfg),
	}
}

// Pipeline drives stereo frame pairs through the full processing
// chain. Construct with New, register sinks, call Run with a frame
// source, then Close to flush the drain goroutine.
type Pipeline struct {
	cfg Config

	left      *l2detect.Detector
	right     *l2detect.Detector
	matcher   *l3stereo.Matcher
	assembler *l4tracks.Assembler

	prevLeft  *l1frames.Frame
	prevRight *l1frames.Frame

	sinks        []Sink
	verdictSinks []stereo.VerdictSink

	stats *Stats

	completed chan *stereo.Trajectory
	done      chan struct{}
	closeOnce sync.Once
}

// New builds a pipeline and starts its drain goroutine. Sinks must be
// registered before Run is called.
func New(cfg Config) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		left:      l2detect.NewDetector(cfg.Detector),
		right:     l2detect.NewDetector(cfg.Detector),
		matcher:   l3stereo.NewMatcher(cfg.Matcher),
		stats:     NewStats(),
		completed: make(chan *stereo.Trajectory, 8),
		done:      make(chan struct{}),
	}
	p.assembler = l4tracks.NewAssembler(cfg.Assembler, p.enqueue)
	go p.drain()
	return p
}

// AddSink registers a trajectory sink. Not safe to call once Run has
// started.
func (p *Pipeline) AddSink(s Sink) {
	p.sinks = append(p.sinks, s)
}

// AddVerdictSink registers a per-verdict sink. Not safe to call once
// Run has started.
func (p *Pipeline) AddVerdictSink(s stereo.VerdictSink) {
	p.verdictSinks = append(p.verdictSinks, s)
}

// Stats returns the pipeline's counters.
func (p *Pipeline) Stats() *Stats {
	return p.stats
}

// Run consumes the source until it reports io.EOF or ctx is cancelled.
// At a normal end of stream the active trajectory is finalized and
// delivered; on cancellation it is discarded so no partial trajectory
// reaches the sinks. Run does not close the source.
func (p *Pipeline) Run(ctx context.Context, src l1frames.Source) error {
	for {
		pair, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				p.enqueue(p.assembler.Finalize())
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("frame source: %w", err)
		}
		p.process(pair)
	}
}

// process runs one frame pair through detect, match, triangulate, and
// append. Detection runs once per camera, in parallel.
func (p *Pipeline) process(pair *l1frames.FramePair) {
	p.stats.addFrame()

	var (
		wg        sync.WaitGroup
		leftDets  []stereo.Detection
		rightDets []stereo.Detection
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		if pair.Left != nil {
			leftDets = p.left.Detect(pair.Left, p.prevLeft, stereo.CameraLeft)
		}
	}()
	go func() {
		defer wg.Done()
		if pair.Right != nil {
			rightDets = p.right.Detect(pair.Right, p.prevRight, stereo.CameraRight)
		}
	}()
	wg.Wait()

	// History only advances on frames that actually arrived, so a
	// dropped frame on one camera does not blank the other's motion
	// reference.
	if pair.Left != nil {
		p.prevLeft = pair.Left
	}
	if pair.Right != nil {
		p.prevRight = pair.Right
	}

	p.stats.addDetections(len(leftDets) + len(rightDets))

	match := p.matcher.Match(leftDets, rightDets, pair.Index)
	if match.Missing {
		p.stats.addMissingPair()
		return
	}

	pt, err := p.cfg.Triangulator.Triangulate(match, &p.cfg.Camera, pair.Time)
	if err != nil {
		stereo.Diagf("frame %d: triangulation rejected: %v", pair.Index, err)
		p.stats.addDegenerate()
		return
	}
	p.stats.addTriangulated(pt.LowConfidence)
	p.assembler.Append(pt)
}

// enqueue hands a completed trajectory to the drain goroutine. The
// assembler calls it for mid-stream segment splits; Run calls it for
// the final segment.
func (p *Pipeline) enqueue(t *stereo.Trajectory) {
	if t == nil {
		return
	}
	p.completed <- t
}

// drain judges and emits completed trajectories until the channel is
// closed.
func (p *Pipeline) drain() {
	defer close(p.done)
	for t := range p.completed {
		p.judgeAndEmit(t)
	}
}

func (p *Pipeline) judgeAndEmit(t *stereo.Trajectory) {
	verdicts := make([]stereo.Verdict, 0, len(t.Bounces))
	for _, b := range t.Bounces {
		verdicts = append(verdicts, l5court.Judge(b, p.cfg.Court))
	}
	p.stats.addTrajectory(len(t.Bounces), len(verdicts))

	stereo.Opsf("trajectory %s segment %d: %d points, %d bounces, %d verdicts",
		t.ID, t.Segment, len(t.Points), len(t.Bounces), len(verdicts))

	for _, s := range p.sinks {
		s.EmitTrajectory(t, verdicts)
	}
	for _, v := range verdicts {
		for _, s := range p.verdictSinks {
			s.EmitVerdict(v)
		}
	}
}

// Close shuts down the drain goroutine after all queued trajectories
// have been delivered. Call it only after Run has returned; ctx bounds
// the wait for the queue to empty.
func (p *Pipeline) Close(ctx context.Context) error {
	p.closeOnce.Do(func() { close(p.completed) })
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
