package calib

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r2"

	"github.com/courtsight-data/linecall/internal/stereo"
)

func TestPointFileRoundTrip(t *testing.T) {
	s := NewPointStore(0)
	left := []r2.Point{{X: 100, Y: 200}, {X: 320, Y: 240}, {X: 12.5, Y: 400.25}}
	right := []r2.Point{{X: 90, Y: 201}}
	for _, p := range left {
		s.AddPoint(stereo.CameraLeft, p)
	}
	for _, p := range right {
		s.AddPoint(stereo.CameraRight, p)
	}

	path := filepath.Join(t.TempDir(), "points.json")
	if err := SavePointFile(path, s, Resolution480p); err != nil {
		t.Fatalf("SavePointFile: %v", err)
	}

	f, err := LoadPointFile(path)
	if err != nil {
		t.Fatalf("LoadPointFile: %v", err)
	}
	if f.Resolution != Resolution480p {
		t.Errorf("resolution = %+v, want 480p", f.Resolution)
	}

	restored := NewPointStore(0)
	if err := f.AddTo(restored); err != nil {
		t.Fatalf("AddTo: %v", err)
	}
	got := restored.Points(stereo.CameraLeft)
	if len(got) != len(left) {
		t.Fatalf("restored %d left points, want %d", len(got), len(left))
	}
	for i, want := range left {
		if d := got[i].Pixel.Sub(want).Norm(); d > 1e-9 {
			t.Errorf("left point %d = %v, want %v", i, got[i].Pixel, want)
		}
	}
	if got := restored.Points(stereo.CameraRight); len(got) != 1 ||
		got[0].Pixel.Sub(right[0]).Norm() > 1e-9 {
		t.Errorf("right points = %+v, want %v", got, right[0])
	}
}

func TestPointFileCrossResolution(t *testing.T) {
	// A point saved at 480p denormalizes to the same relative position
	// at 1080p.
	s := NewPointStore(0)
	s.AddPoint(stereo.CameraLeft, r2.Point{X: 320, Y: 240})
	path := filepath.Join(t.TempDir(), "points.json")
	if err := SavePointFile(path, s, Resolution480p); err != nil {
		t.Fatalf("SavePointFile: %v", err)
	}
	f, err := LoadPointFile(path)
	if err != nil {
		t.Fatalf("LoadPointFile: %v", err)
	}

	f.Resolution = Resolution1080p
	px := f.Pixels(stereo.CameraLeft)
	if len(px) != 1 {
		t.Fatalf("got %d points, want 1", len(px))
	}
	if math.Abs(px[0].X-960) > 1e-9 || math.Abs(px[0].Y-540) > 1e-9 {
		t.Errorf("rescaled point = %v, want (960, 540)", px[0])
	}
}

func TestLoadPointFileRejectsOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "points.json")
	body := `{"resolution": {"name": "480p", "width": 640, "height": 480},
	          "left_camera": [{"x": 1.5, "y": 0.5}], "right_camera": []}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPointFile(path); err == nil {
		t.Fatal("coordinates outside [0, 1] should be rejected")
	}
}

func TestLoadPointFileRejectsZeroResolution(t *testing.T) {
	path := filepath.Join(t.TempDir(), "points.json")
	body := `{"resolution": {"name": "custom", "width": 0, "height": 480},
	          "left_camera": [], "right_camera": []}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPointFile(path); err == nil {
		t.Fatal("a zero-width resolution should be rejected")
	}
}

func TestResolutionByName(t *testing.T) {
	if r, ok := ResolutionByName("1080p"); !ok || r.Width != 1920 || r.Height != 1080 {
		t.Errorf("1080p = %+v ok=%v", r, ok)
	}
	if _, ok := ResolutionByName("720p"); ok {
		t.Error("unknown resolution name should miss")
	}
}
