package stereo

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Camera identifiers used throughout the pipeline and in persisted records.
const (
	CameraLeft  = "left"
	CameraRight = "right"
)

// ErrInvalidParameters reports camera parameters that violate the
// orthonormality or positivity invariants.
var ErrInvalidParameters = errors.New("invalid camera parameters")

// OrthonormalityTolerance bounds how far the rotation may drift from a pure
// rotation before Validate rejects it.
const OrthonormalityTolerance = 1e-6

// CameraParameters describes the calibrated stereo rig. The model is a
// rectified pair: both cameras share intrinsics and orientation, with the
// right camera displaced by Baseline along the reference (left) camera's
// x-axis. Rotation and Translation map world coordinates into the reference
// camera frame: x_cam = R·x_world + t.
//
// Parameters are read-only once committed; the pipeline shares a single
// instance across stages without locking.
type CameraParameters struct {
	FocalLength    float64
	PrincipalPoint r2.Point
	Rotation       *mat.Dense // 3×3, world → reference camera
	Translation    r3.Vector
	Baseline       float64 // camera separation, metres
}

// DefaultCameraParameters returns the rig defaults used before a calibration
// has been solved: 0.1 m baseline, 1000 px focal length, principal point at
// the origin, camera axes aligned with the world frame.
func DefaultCameraParameters() *CameraParameters {
	return &CameraParameters{
		FocalLength: 1000,
		Baseline:    0.1,
		Rotation:    IdentityRotation(),
	}
}

// IdentityRotation returns a new 3×3 identity matrix.
func IdentityRotation() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})
}

// Validate checks the orthonormality and positivity invariants. It returns
// an error wrapping ErrInvalidParameters describing the first violation
// found, or nil if the parameters are usable for triangulation.
func (p *CameraParameters) Validate() error {
	if p.FocalLength <= 0 {
		return fmt.Errorf("%w: focal length must be positive, got %g", ErrInvalidParameters, p.FocalLength)
	}
	if p.Baseline <= 0 {
		return fmt.Errorf("%w: baseline must be positive, got %g", ErrInvalidParameters, p.Baseline)
	}
	if p.Rotation == nil {
		return fmt.Errorf("%w: rotation matrix is nil", ErrInvalidParameters)
	}
	rows, cols := p.Rotation.Dims()
	if rows != 3 || cols != 3 {
		return fmt.Errorf("%w: rotation must be 3x3, got %dx%d", ErrInvalidParameters, rows, cols)
	}

	// R·Rᵀ must be the identity within tolerance.
	var rrt mat.Dense
	rrt.Mul(p.Rotation, p.Rotation.T())
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if math.Abs(rrt.At(i, j)-want) > OrthonormalityTolerance {
				return fmt.Errorf("%w: rotation is not orthonormal (RRt[%d,%d]=%g)",
					ErrInvalidParameters, i, j, rrt.At(i, j))
			}
		}
	}
	if det := mat.Det(p.Rotation); math.Abs(det-1) > OrthonormalityTolerance {
		return fmt.Errorf("%w: rotation determinant %g, want 1 (reflection or scale)",
			ErrInvalidParameters, det)
	}
	return nil
}

// WorldToCamera maps a world point into the named camera's frame.
func (p *CameraParameters) WorldToCamera(w r3.Vector, camera string) r3.Vector {
	c := rotate(p.Rotation, w).Add(p.Translation)
	if camera == CameraRight {
		c.X -= p.Baseline
	}
	return c
}

// CameraToWorld maps a point in the reference (left) camera frame back to
// world coordinates.
func (p *CameraParameters) CameraToWorld(c r3.Vector) r3.Vector {
	return rotateT(p.Rotation, c.Sub(p.Translation))
}

// Project maps a world point to a pixel in the named camera. The second
// return is false when the point lies on or behind the image plane.
func (p *CameraParameters) Project(w r3.Vector, camera string) (r2.Point, bool) {
	c := p.WorldToCamera(w, camera)
	if c.Z <= 0 {
		return r2.Point{}, false
	}
	return r2.Point{
		X: p.FocalLength*c.X/c.Z + p.PrincipalPoint.X,
		Y: p.FocalLength*c.Y/c.Z + p.PrincipalPoint.Y,
	}, true
}

// PixelRay returns the ray direction through a pixel in the camera frame.
// The direction is unnormalized with Z fixed at 1, so ray points are
// center + s·dir with s equal to depth.
func (p *CameraParameters) PixelRay(px r2.Point) r3.Vector {
	return r3.Vector{
		X: (px.X - p.PrincipalPoint.X) / p.FocalLength,
		Y: (px.Y - p.PrincipalPoint.Y) / p.FocalLength,
		Z: 1,
	}
}

// CenterWorld returns the optical center of the named camera in world
// coordinates.
func (p *CameraParameters) CenterWorld(camera string) r3.Vector {
	c := r3.Vector{}
	if camera == CameraRight {
		c.X = p.Baseline
	}
	return p.CameraToWorld(c)
}

func rotate(m *mat.Dense, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z,
		Y: m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z,
		Z: m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z,
	}
}

func rotateT(m *mat.Dense, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m.At(0, 0)*v.X + m.At(1, 0)*v.Y + m.At(2, 0)*v.Z,
		Y: m.At(0, 1)*v.X + m.At(1, 1)*v.Y + m.At(2, 1)*v.Z,
		Z: m.At(0, 2)*v.X + m.At(1, 2)*v.Y + m.At(2, 2)*v.Z,
	}
}

// CameraParametersRecord is the JSON shape of the persisted
// camera_parameters block, shared with the surrounding application's
// configuration schema.
type CameraParametersRecord struct {
	Baseline       float64       `json:"baseline"`
	FocalLength    float64       `json:"focal_length"`
	PrincipalPoint [2]float64    `json:"principal_point"`
	Rotation       [3][3]float64 `json:"rotation"`
	Translation    [3]float64    `json:"translation"`
}

// Record converts the parameters to their JSON record form.
func (p *CameraParameters) Record() CameraParametersRecord {
	rec := CameraParametersRecord{
		Baseline:       p.Baseline,
		FocalLength:    p.FocalLength,
		PrincipalPoint: [2]float64{p.PrincipalPoint.X, p.PrincipalPoint.Y},
		Translation:    [3]float64{p.Translation.X, p.Translation.Y, p.Translation.Z},
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rec.Rotation[i][j] = p.Rotation.At(i, j)
		}
	}
	return rec
}

// ParametersFromRecord builds CameraParameters from a JSON record. The
// result is not validated; call Validate before committing it.
func ParametersFromRecord(rec CameraParametersRecord) *CameraParameters {
	rot := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rot.Set(i, j, rec.Rotation[i][j])
		}
	}
	return &CameraParameters{
		FocalLength:    rec.FocalLength,
		PrincipalPoint: r2.Point{X: rec.PrincipalPoint[0], Y: rec.PrincipalPoint[1]},
		Rotation:       rot,
		Translation:    r3.Vector{X: rec.Translation[0], Y: rec.Translation[1], Z: rec.Translation[2]},
		Baseline:       rec.Baseline,
	}
}

type parametersFile struct {
	CameraParameters CameraParametersRecord `json:"camera_parameters"`
}

// SaveParametersFile writes the camera_parameters block to a JSON file.
func SaveParametersFile(path string, p *CameraParameters) error {
	data, err := json.MarshalIndent(parametersFile{CameraParameters: p.Record()}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal camera parameters: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write camera parameters: %w", err)
	}
	return nil
}

// LoadParametersFile reads a camera_parameters block from a JSON file and
// validates it.
func LoadParametersFile(path string) (*CameraParameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read camera parameters: %w", err)
	}
	var f parametersFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse camera parameters: %w", err)
	}
	p := ParametersFromRecord(f.CameraParameters)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
