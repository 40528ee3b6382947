package pipeline

import (
	"sync"
	"time"

	"github.com/courtsight-data/linecall/internal/stereo"
)

// Stats tracks pipeline counters with thread-safe operations. The
// daemon logs and resets them on a fixed interval.
type Stats struct {
	mu            sync.Mutex
	frames        int64
	detections    int64
	missingPairs  int64
	degenerate    int64
	triangulated  int64
	lowConfidence int64
	trajectories  int64
	bounces       int64
	verdicts      int64
	lastReset     time.Time
}

// NewStats creates a new Stats instance
func NewStats() *Stats {
	return &Stats{
		lastReset: time.Now(),
	}
}

// Snapshot is one interval of pipeline counters.
type Snapshot struct {
	Frames        int64
	Detections    int64
	MissingPairs  int64
	Degenerate    int64
	Triangulated  int64
	LowConfidence int64
	Trajectories  int64
	Bounces       int64
	Verdicts      int64
	Duration      time.Duration
}

func (s *Stats) addFrame() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
}

func (s *Stats) addDetections(count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detections += int64(count)
}

func (s *Stats) addMissingPair() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missingPairs++
}

func (s *Stats) addDegenerate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.degenerate++
}

func (s *Stats) addTriangulated(lowConfidence bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triangulated++
	if lowConfidence {
		s.lowConfidence++
	}
}

func (s *Stats) addTrajectory(bounces, verdicts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trajectories++
	s.bounces += int64(bounces)
	s.verdicts += int64(verdicts)
}

// GetAndReset returns current stats and resets counters
func (s *Stats) GetAndReset() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	snap := Snapshot{
		Frames:        s.frames,
		Detections:    s.detections,
		MissingPairs:  s.missingPairs,
		Degenerate:    s.degenerate,
		Triangulated:  s.triangulated,
		LowConfidence: s.lowConfidence,
		Trajectories:  s.trajectories,
		Bounces:       s.bounces,
		Verdicts:      s.verdicts,
		Duration:      now.Sub(s.lastReset),
	}

	s.frames = 0
	s.detections = 0
	s.missingPairs = 0
	s.degenerate = 0
	s.triangulated = 0
	s.lowConfidence = 0
	s.trajectories = 0
	s.bounces = 0
	s.verdicts = 0
	s.lastReset = now

	return snap
}

// LogStats logs one summary line for the interval and resets the
// counters. Quiet intervals are skipped.
func (s *Stats) LogStats() {
	snap := s.GetAndReset()
	if snap.Frames == 0 && snap.Trajectories == 0 {
		return
	}

	fps := float64(snap.Frames) / snap.Duration.Seconds()
	stereo.Opsf("pipeline stats: %.1f fps, %d frames, %d detections, %d missing pairs, %d triangulated (%d low confidence), %d trajectories, %d bounces, %d verdicts",
		fps, snap.Frames, snap.Detections, snap.MissingPairs, snap.Triangulated,
		snap.LowConfidence, snap.Trajectories, snap.Bounces, snap.Verdicts)
	if snap.Degenerate > 0 {
		stereo.Diagf("pipeline stats: %d degenerate pairs rejected", snap.Degenerate)
	}
}
