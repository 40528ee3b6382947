package stereo

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

func rotationAboutZ(rad float64) *mat.Dense {
	c, s := math.Cos(rad), math.Sin(rad)
	return mat.NewDense(3, 3, []float64{
		c, -s, 0,
		s, c, 0,
		0, 0, 1,
	})
}

func TestValidateDefaults(t *testing.T) {
	if err := DefaultCameraParameters().Validate(); err != nil {
		t.Fatalf("default parameters should validate: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CameraParameters)
	}{
		{"zero focal length", func(p *CameraParameters) { p.FocalLength = 0 }},
		{"negative focal length", func(p *CameraParameters) { p.FocalLength = -100 }},
		{"zero baseline", func(p *CameraParameters) { p.Baseline = 0 }},
		{"nil rotation", func(p *CameraParameters) { p.Rotation = nil }},
		{"wrong shape", func(p *CameraParameters) { p.Rotation = mat.NewDense(2, 2, nil) }},
		{"scaled rotation", func(p *CameraParameters) { p.Rotation.Scale(2, p.Rotation) }},
		{"reflection", func(p *CameraParameters) { p.Rotation.Set(2, 2, -1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultCameraParameters()
			tt.mutate(p)
			err := p.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !errors.Is(err, ErrInvalidParameters) {
				t.Errorf("error should wrap ErrInvalidParameters, got %v", err)
			}
		})
	}
}

func TestProjectPixelRayRoundTrip(t *testing.T) {
	p := DefaultCameraParameters()
	world := r3.Vector{X: 0.05, Y: 0.2, Z: 5.0}

	px, ok := p.Project(world, CameraLeft)
	if !ok {
		t.Fatal("point in front of the camera should project")
	}
	if math.Abs(px.X-10) > 1e-9 || math.Abs(px.Y-40) > 1e-9 {
		t.Errorf("projected pixel = (%g, %g), want (10, 40)", px.X, px.Y)
	}

	// Back-project at the known depth and recover the world point.
	dir := p.PixelRay(px)
	back := p.CameraToWorld(dir.Mul(world.Z))
	if back.Sub(world).Norm() > 1e-9 {
		t.Errorf("round trip landed at %v, want %v", back, world)
	}
}

func TestProjectBehindCamera(t *testing.T) {
	p := DefaultCameraParameters()
	if _, ok := p.Project(r3.Vector{X: 0, Y: 0, Z: -1}, CameraLeft); ok {
		t.Error("point behind the camera should not project")
	}
	if _, ok := p.Project(r3.Vector{}, CameraLeft); ok {
		t.Error("point on the image plane should not project")
	}
}

func TestStereoDisparity(t *testing.T) {
	p := DefaultCameraParameters()

	// Depth 5 m with a 0.1 m baseline and 1000 px focal length gives a
	// 20 px disparity.
	world := r3.Vector{X: 1.6, Y: 1.2, Z: 5.0}
	left, okL := p.Project(world, CameraLeft)
	right, okR := p.Project(world, CameraRight)
	if !okL || !okR {
		t.Fatal("point should project in both cameras")
	}
	if math.Abs(left.X-320) > 1e-9 || math.Abs(left.Y-240) > 1e-9 {
		t.Errorf("left pixel = (%g, %g), want (320, 240)", left.X, left.Y)
	}
	if disp := left.X - right.X; math.Abs(disp-20) > 1e-9 {
		t.Errorf("disparity = %g, want 20", disp)
	}
	if math.Abs(left.Y-right.Y) > 1e-12 {
		t.Errorf("rectified pair should have equal rows, got %g vs %g", left.Y, right.Y)
	}
}

func TestCenterWorld(t *testing.T) {
	p := DefaultCameraParameters()
	if c := p.CenterWorld(CameraLeft); c.Norm() > 1e-12 {
		t.Errorf("left center = %v, want origin", c)
	}
	if c := p.CenterWorld(CameraRight); c.Sub(r3.Vector{X: 0.1}).Norm() > 1e-12 {
		t.Errorf("right center = %v, want (0.1, 0, 0)", c)
	}

	// A translated rig moves both centers by the inverse transform.
	p.Translation = r3.Vector{Z: 2}
	if c := p.CenterWorld(CameraLeft); c.Sub(r3.Vector{Z: -2}).Norm() > 1e-12 {
		t.Errorf("translated left center = %v, want (0, 0, -2)", c)
	}
}

func TestWorldToCameraRotated(t *testing.T) {
	p := DefaultCameraParameters()
	p.Rotation = rotationAboutZ(math.Pi / 2)
	if err := p.Validate(); err != nil {
		t.Fatalf("rotated parameters should validate: %v", err)
	}

	// A 90° rotation about z maps world x onto camera y.
	c := p.WorldToCamera(r3.Vector{X: 1}, CameraLeft)
	if c.Sub(r3.Vector{Y: 1}).Norm() > 1e-12 {
		t.Errorf("rotated point = %v, want (0, 1, 0)", c)
	}

	back := p.CameraToWorld(c)
	if back.Sub(r3.Vector{X: 1}).Norm() > 1e-12 {
		t.Errorf("inverse transform = %v, want (1, 0, 0)", back)
	}
}

func TestParametersFileRoundTrip(t *testing.T) {
	p := &CameraParameters{
		FocalLength:    840.5,
		PrincipalPoint: r2.Point{X: 320, Y: 240},
		Rotation:       rotationAboutZ(0.1),
		Translation:    r3.Vector{X: 0.5, Y: -1.25, Z: 3},
		Baseline:       0.2,
	}
	path := filepath.Join(t.TempDir(), "cameras.json")
	if err := SaveParametersFile(path, p); err != nil {
		t.Fatalf("SaveParametersFile: %v", err)
	}

	got, err := LoadParametersFile(path)
	if err != nil {
		t.Fatalf("LoadParametersFile: %v", err)
	}
	if got.FocalLength != p.FocalLength || got.Baseline != p.Baseline {
		t.Errorf("intrinsics changed in round trip: %+v", got)
	}
	if got.PrincipalPoint != p.PrincipalPoint {
		t.Errorf("principal point = %v, want %v", got.PrincipalPoint, p.PrincipalPoint)
	}
	if got.Translation.Sub(p.Translation).Norm() > 1e-12 {
		t.Errorf("translation = %v, want %v", got.Translation, p.Translation)
	}
	if !mat.EqualApprox(got.Rotation, p.Rotation, 1e-12) {
		t.Errorf("rotation changed in round trip:\ngot %v\nwant %v",
			mat.Formatted(got.Rotation), mat.Formatted(p.Rotation))
	}
}

func TestLoadParametersFileRejectsInvalid(t *testing.T) {
	p := DefaultCameraParameters()
	p.Baseline = -1
	path := filepath.Join(t.TempDir(), "cameras.json")
	if err := SaveParametersFile(path, p); err != nil {
		t.Fatalf("SaveParametersFile: %v", err)
	}
	if _, err := LoadParametersFile(path); err == nil {
		t.Fatal("loading an invalid rig should fail validation")
	}
}
