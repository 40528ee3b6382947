package calib

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/golang/geo/r2"

	"github.com/courtsight-data/linecall/internal/stereo"
	"github.com/courtsight-data/linecall/internal/units"
)

// Resolution names a frame size in the point file format.
type Resolution struct {
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Named resolutions accepted in point files.
var (
	Resolution1080p = Resolution{Name: "1080p", Width: 1920, Height: 1080}
	Resolution480p  = Resolution{Name: "480p", Width: 640, Height: 480}
	Resolution280p  = Resolution{Name: "280p", Width: 480, Height: 280}
)

// ResolutionByName resolves a named resolution.
func ResolutionByName(name string) (Resolution, bool) {
	for _, r := range []Resolution{Resolution1080p, Resolution480p, Resolution280p} {
		if r.Name == name {
			return r, true
		}
	}
	return Resolution{}, false
}

// NormalizedPoint is a point file coordinate, normalized to [0, 1].
type NormalizedPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PointFile is the on-disk calibration point format: coordinates are
// resolution-normalized so files transfer between capture sizes.
type PointFile struct {
	Resolution  Resolution        `json:"resolution"`
	LeftCamera  []NormalizedPoint `json:"left_camera"`
	RightCamera []NormalizedPoint `json:"right_camera"`
}

// Pixels denormalizes one camera's points to pixel coordinates at the
// file's resolution.
func (f *PointFile) Pixels(camera string) []r2.Point {
	pts := f.LeftCamera
	if camera == stereo.CameraRight {
		pts = f.RightCamera
	}
	out := make([]r2.Point, len(pts))
	for i, p := range pts {
		out[i] = r2.Point{
			X: units.NormalizedToPixelX(p.X, f.Resolution.Width),
			Y: units.NormalizedToPixelY(p.Y, f.Resolution.Height),
		}
	}
	return out
}

// AddTo loads the file's points into a store, left camera first.
func (f *PointFile) AddTo(store *PointStore) error {
	for _, camera := range []string{stereo.CameraLeft, stereo.CameraRight} {
		for _, px := range f.Pixels(camera) {
			if _, err := store.AddPoint(camera, px); err != nil {
				return err
			}
		}
	}
	return nil
}

// LoadPointFile reads and validates a calibration point file.
func LoadPointFile(path string) (*PointFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read point file: %w", err)
	}
	var f PointFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse point file: %w", err)
	}
	if f.Resolution.Width <= 0 || f.Resolution.Height <= 0 {
		return nil, fmt.Errorf("point file %s: resolution %q has no usable size", path, f.Resolution.Name)
	}
	for _, pts := range [][]NormalizedPoint{f.LeftCamera, f.RightCamera} {
		for i, p := range pts {
			if !units.InUnitInterval(p.X) || !units.InUnitInterval(p.Y) {
				return nil, fmt.Errorf("point file %s: point %d (%g, %g) outside [0, 1]", path, i, p.X, p.Y)
			}
		}
	}
	return &f, nil
}

// SavePointFile writes the store's points normalized at the given
// resolution.
func SavePointFile(path string, store *PointStore, res Resolution) error {
	f := PointFile{Resolution: res}
	for _, p := range store.Points(stereo.CameraLeft) {
		f.LeftCamera = append(f.LeftCamera, normalize(p.Pixel, res))
	}
	for _, p := range store.Points(stereo.CameraRight) {
		f.RightCamera = append(f.RightCamera, normalize(p.Pixel, res))
	}

	data, err := json.MarshalIndent(&f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal point file: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write point file: %w", err)
	}
	return nil
}

func normalize(px r2.Point, res Resolution) NormalizedPoint {
	return NormalizedPoint{
		X: units.PixelToNormalizedX(px.X, res.Width),
		Y: units.PixelToNormalizedY(px.Y, res.Height),
	}
}
