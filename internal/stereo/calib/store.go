package calib

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/golang/geo/r2"

	"github.com/courtsight-data/linecall/internal/stereo"
)

// MinCalibrationPoints is the smallest per-camera point count a solve
// will accept.
const MinCalibrationPoints = 6

// DefaultClusterRadiusPx is the merge radius for duplicate clicks.
const DefaultClusterRadiusPx = 8.0

// Points closer together than the cluster radius are duplicates, but a
// set squeezed under this spread along its narrow axis is degenerate.
const collinearMinSpreadPx = 0.5

// ErrInsufficientPoints reports too few calibration points, or a point
// set too close to a single line to constrain a solve.
var ErrInsufficientPoints = errors.New("insufficient calibration points")

// CalibrationPoint is one user-selected pixel in one camera's view.
// Points are value snapshots: the store replaces them, never mutates.
type CalibrationPoint struct {
	ID     int
	Camera string
	Pixel  r2.Point
	Label  string
}

// EventKind enumerates store change notifications.
type EventKind int

const (
	PointAdded EventKind = iota
	PointRemoved
	PointsClustered
	PointsLabeled
)

func (k EventKind) String() string {
	switch k {
	case PointAdded:
		return "added"
	case PointRemoved:
		return "removed"
	case PointsClustered:
		return "clustered"
	case PointsLabeled:
		return "labeled"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event describes one store mutation. Point is the affected point for
// add/remove events and the zero value for bulk events; Count is the
// number of points touched.
type Event struct {
	Kind   EventKind
	Camera string
	Point  CalibrationPoint
	Count  int
}

// PointStore holds the calibration points for both cameras. All methods
// are safe for concurrent use; observers run outside the store lock, so
// they may call back into the store.
type PointStore struct {
	mu        sync.Mutex
	points    []CalibrationPoint
	lastID    int
	radius    float64
	observers []func(Event)
}

// NewPointStore returns an empty store with the given duplicate-merge
// radius (DefaultClusterRadiusPx when zero or negative).
func NewPointStore(clusterRadiusPx float64) *PointStore {
	if clusterRadiusPx <= 0 {
		clusterRadiusPx = DefaultClusterRadiusPx
	}
	return &PointStore{radius: clusterRadiusPx}
}

// Subscribe registers an observer for store mutations. Observers stay
// registered for the life of the store.
func (s *PointStore) Subscribe(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *PointStore) emit(ev Event) {
	s.mu.Lock()
	obs := make([]func(Event), len(s.observers))
	copy(obs, s.observers)
	s.mu.Unlock()
	for _, fn := range obs {
		fn(ev)
	}
	stereo.Tracef("calibration points %s: camera=%s count=%d", ev.Kind, ev.Camera, ev.Count)
}

// AddPoint records a new point and returns the stored value.
func (s *PointStore) AddPoint(camera string, pixel r2.Point) (CalibrationPoint, error) {
	if camera != stereo.CameraLeft && camera != stereo.CameraRight {
		return CalibrationPoint{}, fmt.Errorf("unknown camera %q", camera)
	}
	s.mu.Lock()
	s.lastID++
	p := CalibrationPoint{ID: s.lastID, Camera: camera, Pixel: pixel}
	s.points = append(s.points, p)
	s.mu.Unlock()

	s.emit(Event{Kind: PointAdded, Camera: camera, Point: p, Count: 1})
	return p, nil
}

// RemovePoint deletes the point with the given ID, reporting whether it
// existed.
func (s *PointStore) RemovePoint(id int) bool {
	s.mu.Lock()
	for i, p := range s.points {
		if p.ID == id {
			s.points = append(s.points[:i], s.points[i+1:]...)
			s.mu.Unlock()
			s.emit(Event{Kind: PointRemoved, Camera: p.Camera, Point: p, Count: 1})
			return true
		}
	}
	s.mu.Unlock()
	return false
}

// Points returns the camera's points in insertion order. The slice is a
// copy; callers may keep it across later mutations.
func (s *PointStore) Points(camera string) []CalibrationPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []CalibrationPoint
	for _, p := range s.points {
		if p.Camera == camera {
			out = append(out, p)
		}
	}
	return out
}

// NearestPoint returns the camera's point closest to pixel within
// maxDist, for interactive hit-testing.
func (s *PointStore) NearestPoint(camera string, pixel r2.Point, maxDist float64) (CalibrationPoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	best := CalibrationPoint{}
	bestDist := maxDist
	found := false
	for _, p := range s.points {
		if p.Camera != camera {
			continue
		}
		if d := p.Pixel.Sub(pixel).Norm(); d <= bestDist {
			best, bestDist, found = p, d, true
		}
	}
	return best, found
}

// Cluster merges each camera's mutually close points (within the store
// radius) into their centroid, repeating until stable. The merged point
// keeps the lowest member ID, the first non-empty label, and the slice
// position of the earliest member. A second call is a no-op.
func (s *PointStore) Cluster() {
	s.mu.Lock()
	changed := map[string]int{}
	for {
		merged := s.clusterOnce(changed)
		if !merged {
			break
		}
	}
	s.mu.Unlock()

	for _, camera := range []string{stereo.CameraLeft, stereo.CameraRight} {
		if n := changed[camera]; n > 0 {
			s.emit(Event{Kind: PointsClustered, Camera: camera, Count: n})
		}
	}
}

// clusterOnce merges one round of proximity groups per camera and
// reports whether anything changed. Caller holds the lock.
func (s *PointStore) clusterOnce(changed map[string]int) bool {
	n := len(s.points)
	group := make([]int, n)
	for i := range group {
		group[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for group[i] != i {
			group[i] = group[group[i]]
			i = group[i]
		}
		return i
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra > rb {
			ra, rb = rb, ra
		}
		group[rb] = ra
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if s.points[i].Camera != s.points[j].Camera {
				continue
			}
			if s.points[i].Pixel.Sub(s.points[j].Pixel).Norm() <= s.radius {
				union(i, j)
			}
		}
	}

	members := map[int][]int{}
	for i := 0; i < n; i++ {
		r := find(i)
		members[r] = append(members[r], i)
	}

	merged := false
	var out []CalibrationPoint
	for i := 0; i < n; i++ {
		idxs, ok := members[find(i)]
		if !ok || idxs[0] != i {
			continue // not the earliest member, already folded in
		}
		if len(idxs) == 1 {
			out = append(out, s.points[i])
			continue
		}

		merged = true
		m := CalibrationPoint{ID: s.points[i].ID, Camera: s.points[i].Camera}
		var cx, cy float64
		for _, j := range idxs {
			p := s.points[j]
			cx += p.Pixel.X
			cy += p.Pixel.Y
			if p.ID < m.ID {
				m.ID = p.ID
			}
			if m.Label == "" {
				m.Label = p.Label
			}
		}
		m.Pixel = r2.Point{X: cx / float64(len(idxs)), Y: cy / float64(len(idxs))}
		out = append(out, m)
		changed[m.Camera] += len(idxs)
	}
	s.points = out
	return merged
}

// RequireSolvable errors unless the camera has enough non-degenerate
// points for a calibration solve.
func (s *PointStore) RequireSolvable(camera string) error {
	pts := s.Points(camera)
	if len(pts) < MinCalibrationPoints {
		return fmt.Errorf("%w: camera %s has %d points, need %d",
			ErrInsufficientPoints, camera, len(pts), MinCalibrationPoints)
	}
	pixels := make([]r2.Point, len(pts))
	for i, p := range pts {
		pixels[i] = p.Pixel
	}
	if pixelSpread(pixels) < collinearMinSpreadPx {
		return fmt.Errorf("%w: camera %s points are collinear", ErrInsufficientPoints, camera)
	}
	return nil
}

// setLabels replaces the labels of the camera's points, matching by ID.
func (s *PointStore) setLabels(camera string, labeled []CalibrationPoint) {
	s.mu.Lock()
	byID := map[int]string{}
	for _, p := range labeled {
		byID[p.ID] = p.Label
	}
	count := 0
	for i, p := range s.points {
		if p.Camera != camera {
			continue
		}
		if label, ok := byID[p.ID]; ok && label != p.Label {
			s.points[i].Label = label
			count++
		}
	}
	s.mu.Unlock()

	if count > 0 {
		s.emit(Event{Kind: PointsLabeled, Camera: camera, Count: count})
	}
}

// pixelSpread returns the standard deviation of the point set along its
// least-varied direction. Near zero means the points sit on one line.
func pixelSpread(pts []r2.Point) float64 {
	if len(pts) < 3 {
		return 0
	}
	var mx, my float64
	for _, p := range pts {
		mx += p.X
		my += p.Y
	}
	n := float64(len(pts))
	mx /= n
	my /= n

	var sxx, syy, sxy float64
	for _, p := range pts {
		dx, dy := p.X-mx, p.Y-my
		sxx += dx * dx
		syy += dy * dy
		sxy += dx * dy
	}
	sxx /= n
	syy /= n
	sxy /= n

	half := (sxx + syy) / 2
	root := math.Sqrt(math.Max(0, half*half-(sxx*syy-sxy*sxy)))
	return math.Sqrt(math.Max(0, half-root))
}
