package stereo

import (
	"fmt"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// LookAtParameters builds rig parameters for a reference camera at eye
// aimed at target, using the world z-axis as the up reference. The
// camera x-axis stays horizontal and the target projects to the
// principal point. The right camera sits baseline metres along the
// camera x-axis, as everywhere else in the rectified model.
func LookAtParameters(eye, target r3.Vector, focal float64, principal r2.Point, baseline float64) (*CameraParameters, error) {
	forward := target.Sub(eye)
	if forward.Norm() < 1e-12 {
		return nil, fmt.Errorf("%w: eye and target coincide", ErrInvalidParameters)
	}
	z := forward.Normalize()

	up := r3.Vector{Z: 1}
	x := z.Cross(up)
	if x.Norm() < 1e-9 {
		return nil, fmt.Errorf("%w: viewing direction is vertical", ErrInvalidParameters)
	}
	x = x.Normalize()
	y := z.Cross(x) // image y points down

	p := &CameraParameters{
		FocalLength:    focal,
		PrincipalPoint: principal,
		Rotation: mat.NewDense(3, 3, []float64{
			x.X, x.Y, x.Z,
			y.X, y.Y, y.Z,
			z.X, z.Y, z.Z,
		}),
		Baseline: baseline,
	}
	p.Translation = rotate(p.Rotation, eye).Mul(-1)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
