package calib

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/courtsight-data/linecall/internal/stereo"
)

// FitError reports a solve whose reprojection residual exceeded the
// acceptance threshold. The solved parameters are discarded.
type FitError struct {
	RMSPixels float64
	LimitPx   float64
}

func (e *FitError) Error() string {
	return fmt.Sprintf("poor calibration fit: rms reprojection error %.3f px exceeds %.2f px",
		e.RMSPixels, e.LimitPx)
}

// Correspondence pairs an image point with its world reference.
type Correspondence struct {
	Pixel r2.Point
	World r3.Vector
	Label string
}

// Calibrator solves rig parameters from per-camera correspondences.
// Solves are deterministic: identical inputs produce identical output.
type Calibrator struct {
	MaxReprojectionErrPx float64
	FocalPrior           float64  // seed focal when a planar solve is ambiguous
	PrincipalPrior       r2.Point // pinned principal point for planar reference sets
	RefineIterations     int
	RefineTolerance      float64
}

// DefaultCalibrator returns the standard acceptance and refinement
// settings.
func DefaultCalibrator() *Calibrator {
	return &Calibrator{
		MaxReprojectionErrPx: 2.0,
		FocalPrior:           1000,
		RefineIterations:     50,
		RefineTolerance:      1e-10,
	}
}

// Report carries solve diagnostics for operator display and storage.
type Report struct {
	RMSPixels               float64
	LeftRMSPx               float64
	RightRMSPx              float64
	PointCount              int
	BaselineM               float64
	RotationDisagreementDeg float64
	PerPoint                []PointResidual
}

// PointResidual is one correspondence's reprojection error.
type PointResidual struct {
	Camera      string
	Label       string
	Pixel       r2.Point
	Reprojected r2.Point
	ErrPx       float64
}

// Calibrate solves both cameras and combines them into rectified rig
// parameters: shared intrinsics averaged across the cameras, extrinsics
// from the left (reference) camera, baseline from the camera centre
// separation. The report is returned even when the fit is rejected.
func (c *Calibrator) Calibrate(left, right []Correspondence) (*stereo.CameraParameters, *Report, error) {
	ls, err := c.solveCamera(left, stereo.CameraLeft)
	if err != nil {
		return nil, nil, fmt.Errorf("left camera: %w", err)
	}
	rs, err := c.solveCamera(right, stereo.CameraRight)
	if err != nil {
		return nil, nil, fmt.Errorf("right camera: %w", err)
	}

	centerL := mulVecT(ls.R, ls.t).Mul(-1)
	centerR := mulVecT(rs.R, rs.t).Mul(-1)
	sep := centerR.Sub(centerL)
	baseline := sep.Norm()

	sepCam := mulVec(ls.R, sep)
	if off := math.Hypot(sepCam.Y, sepCam.Z); baseline > 0 && off > 0.05*baseline {
		stereo.Diagf("calibration: right camera sits %.3f m off the reference x-axis (baseline %.3f m), rig is not rectified", off, baseline)
	}
	disagree := rotationAngleDeg(ls.R, rs.R)
	if disagree > 2 {
		stereo.Diagf("calibration: camera rotations disagree by %.2f°, rig is not rectified", disagree)
	}

	rms := math.Sqrt((ls.sumSq + rs.sumSq) / float64(ls.n+rs.n))
	report := &Report{
		RMSPixels:               rms,
		LeftRMSPx:               math.Sqrt(ls.sumSq / float64(ls.n)),
		RightRMSPx:              math.Sqrt(rs.sumSq / float64(rs.n)),
		PointCount:              ls.n + rs.n,
		BaselineM:               baseline,
		RotationDisagreementDeg: disagree,
		PerPoint:                append(ls.perPoint, rs.perPoint...),
	}
	if rms > c.MaxReprojectionErrPx {
		return nil, report, &FitError{RMSPixels: rms, LimitPx: c.MaxReprojectionErrPx}
	}

	params := &stereo.CameraParameters{
		FocalLength:    (ls.f + rs.f) / 2,
		PrincipalPoint: r2.Point{X: (ls.pp.X + rs.pp.X) / 2, Y: (ls.pp.Y + rs.pp.Y) / 2},
		Rotation:       ls.R,
		Translation:    ls.t,
		Baseline:       baseline,
	}
	if err := params.Validate(); err != nil {
		return nil, report, err
	}
	stereo.Opsf("calibration solved: f=%.1f px baseline=%.3f m rms=%.3f px over %d points",
		params.FocalLength, params.Baseline, rms, report.PointCount)
	return params, report, nil
}

// CalibrateStore solves directly from a labelled point store.
func (c *Calibrator) CalibrateStore(store *PointStore, layout []ReferencePoint) (*stereo.CameraParameters, *Report, error) {
	var corrs [2][]Correspondence
	for i, camera := range []string{stereo.CameraLeft, stereo.CameraRight} {
		if err := store.RequireSolvable(camera); err != nil {
			return nil, nil, err
		}
		cs, err := Correspondences(store.Points(camera), layout)
		if err != nil {
			return nil, nil, fmt.Errorf("%s camera: %w", camera, err)
		}
		corrs[i] = cs
	}
	return c.Calibrate(corrs[0], corrs[1])
}

type cameraSolve struct {
	f        float64
	pp       r2.Point
	R        *mat.Dense
	t        r3.Vector
	perPoint []PointResidual
	sumSq    float64
	n        int
}

func (c *Calibrator) solveCamera(corrs []Correspondence, camera string) (*cameraSolve, error) {
	if len(corrs) < MinCalibrationPoints {
		return nil, fmt.Errorf("%w: %d correspondences, need %d",
			ErrInsufficientPoints, len(corrs), MinCalibrationPoints)
	}
	pixels := make([]r2.Point, len(corrs))
	for i, co := range corrs {
		pixels[i] = co.Pixel
	}
	if pixelSpread(pixels) < collinearMinSpreadPx {
		return nil, fmt.Errorf("%w: image points are collinear", ErrInsufficientPoints)
	}

	maxAbsZ, worldPlaneSpread := 0.0, worldSpread(corrs)
	for _, co := range corrs {
		maxAbsZ = math.Max(maxAbsZ, math.Abs(co.World.Z))
	}
	if worldPlaneSpread < 1e-6 {
		return nil, fmt.Errorf("%w: world references are collinear", ErrInsufficientPoints)
	}

	var s *cameraSolve
	var err error
	planar := maxAbsZ < 1e-9
	if planar {
		s, err = c.initPlanar(corrs)
	} else {
		s, err = c.initDLT(corrs)
	}
	if err != nil {
		return nil, err
	}

	c.refine(s, corrs, planar)

	s.perPoint = make([]PointResidual, 0, len(corrs))
	s.sumSq = 0
	s.n = len(corrs)
	for _, co := range corrs {
		proj := projectSolve(s, co.World)
		d := proj.Sub(co.Pixel).Norm()
		s.sumSq += d * d
		s.perPoint = append(s.perPoint, PointResidual{
			Camera:      camera,
			Label:       co.Label,
			Pixel:       co.Pixel,
			Reprojected: proj,
			ErrPx:       d,
		})
	}
	return s, nil
}

// initDLT estimates a camera from non-coplanar references by direct
// linear transform: the projection matrix is the smallest singular
// vector of the 2N×12 design matrix, then split into intrinsics and
// pose with an RQ decomposition.
func (c *Calibrator) initDLT(corrs []Correspondence) (*cameraSolve, error) {
	n := len(corrs)
	a := mat.NewDense(2*n, 12, nil)
	for i, co := range corrs {
		X, Y, Z := co.World.X, co.World.Y, co.World.Z
		u, v := co.Pixel.X, co.Pixel.Y
		a.SetRow(2*i, []float64{X, Y, Z, 1, 0, 0, 0, 0, -u * X, -u * Y, -u * Z, -u})
		a.SetRow(2*i+1, []float64{0, 0, 0, 0, X, Y, Z, 1, -v * X, -v * Y, -v * Z, -v})
	}

	p, err := smallestSingularVector(a)
	if err != nil {
		return nil, err
	}
	P := mat.NewDense(3, 4, p)

	// Scale so the rotation part of the last row is unit, and point the
	// optical axis toward the references.
	m3 := r3.Vector{X: P.At(2, 0), Y: P.At(2, 1), Z: P.At(2, 2)}
	scale := 1 / m3.Norm()
	w0 := P.At(2, 0)*corrs[0].World.X + P.At(2, 1)*corrs[0].World.Y +
		P.At(2, 2)*corrs[0].World.Z + P.At(2, 3)
	if w0 < 0 {
		scale = -scale
	}
	P.Scale(scale, P)

	K, R, err := rqDecompose(P.Slice(0, 3, 0, 3).(*mat.Dense))
	if err != nil {
		return nil, err
	}
	p4 := mat.NewVecDense(3, []float64{P.At(0, 3), P.At(1, 3), P.At(2, 3)})
	if mat.Det(R) < 0 {
		R.Scale(-1, R)
		p4.ScaleVec(-1, p4)
	}

	var tv mat.VecDense
	if err := tv.SolveVec(K, p4); err != nil {
		return nil, fmt.Errorf("projection decomposition: %w", err)
	}

	return &cameraSolve{
		f:  (K.At(0, 0) + K.At(1, 1)) / 2,
		pp: r2.Point{X: K.At(0, 2), Y: K.At(1, 2)},
		R:  orthonormalize(R),
		t:  r3.Vector{X: tv.AtVec(0), Y: tv.AtVec(1), Z: tv.AtVec(2)},
	}, nil
}

// initPlanar estimates a camera from references on the court plane
// (z = 0). A single-plane view cannot constrain the principal point, so
// it stays pinned at the prior; the focal length comes from the
// homography's orthogonality constraints, falling back to the prior
// when both are degenerate.
func (c *Calibrator) initPlanar(corrs []Correspondence) (*cameraSolve, error) {
	n := len(corrs)
	a := mat.NewDense(2*n, 9, nil)
	for i, co := range corrs {
		X, Y := co.World.X, co.World.Y
		u := co.Pixel.X - c.PrincipalPrior.X
		v := co.Pixel.Y - c.PrincipalPrior.Y
		a.SetRow(2*i, []float64{X, Y, 1, 0, 0, 0, -u * X, -u * Y, -u})
		a.SetRow(2*i+1, []float64{0, 0, 0, X, Y, 1, -v * X, -v * Y, -v})
	}
	h, err := smallestSingularVector(a)
	if err != nil {
		return nil, err
	}
	H := mat.NewDense(3, 3, h)

	a1, b1, c1 := H.At(0, 0), H.At(1, 0), H.At(2, 0)
	a2, b2, c2 := H.At(0, 1), H.At(1, 1), H.At(2, 1)

	var f2s []float64
	if d := c1 * c2; math.Abs(d) > 1e-12 {
		if f2 := -(a1*a2 + b1*b2) / d; f2 > 0 {
			f2s = append(f2s, f2)
		}
	}
	if d := c2*c2 - c1*c1; math.Abs(d) > 1e-12 {
		if f2 := (a1*a1 + b1*b1 - a2*a2 - b2*b2) / d; f2 > 0 {
			f2s = append(f2s, f2)
		}
	}
	f := c.FocalPrior
	if len(f2s) > 0 {
		sum := 0.0
		for _, f2 := range f2s {
			sum += math.Sqrt(f2)
		}
		f = sum / float64(len(f2s))
	}

	v1 := r3.Vector{X: a1 / f, Y: b1 / f, Z: c1}
	v2 := r3.Vector{X: a2 / f, Y: b2 / f, Z: c2}
	lambda := 2 / (v1.Norm() + v2.Norm())
	r1 := v1.Mul(lambda)
	r2v := v2.Mul(lambda)
	t := r3.Vector{X: H.At(0, 2) / f, Y: H.At(1, 2) / f, Z: H.At(2, 2)}.Mul(lambda)
	if t.Z < 0 {
		r1, r2v, t = r1.Mul(-1), r2v.Mul(-1), t.Mul(-1)
	}
	r3v := r1.Cross(r2v)

	R := mat.NewDense(3, 3, []float64{
		r1.X, r2v.X, r3v.X,
		r1.Y, r2v.Y, r3v.Y,
		r1.Z, r2v.Z, r3v.Z,
	})

	return &cameraSolve{
		f:  f,
		pp: c.PrincipalPrior,
		R:  orthonormalize(R),
		t:  t,
	}, nil
}

// refine polishes the estimate with damped Gauss-Newton on reprojection
// error. Planar solves keep the principal point pinned.
func (c *Calibrator) refine(s *cameraSolve, corrs []Correspondence, planar bool) {
	theta := []float64{s.f, s.pp.X, s.pp.Y, 0, 0, 0, s.t.X, s.t.Y, s.t.Z}
	rod := rodriguesVector(s.R)
	theta[3], theta[4], theta[5] = rod.X, rod.Y, rod.Z

	free := []int{0, 1, 2, 3, 4, 5, 6, 7, 8}
	if planar {
		free = []int{0, 3, 4, 5, 6, 7, 8}
	}

	res := func(th []float64) []float64 {
		out := make([]float64, 2*len(corrs))
		R := rodriguesMatrix(r3.Vector{X: th[3], Y: th[4], Z: th[5]})
		t := r3.Vector{X: th[6], Y: th[7], Z: th[8]}
		for i, co := range corrs {
			p := mulVec(R, co.World).Add(t)
			if p.Z < 1e-9 {
				out[2*i], out[2*i+1] = 1e6, 1e6
				continue
			}
			out[2*i] = th[0]*p.X/p.Z + th[1] - co.Pixel.X
			out[2*i+1] = th[0]*p.Y/p.Z + th[2] - co.Pixel.Y
		}
		return out
	}
	cost := func(r []float64) float64 {
		sum := 0.0
		for _, v := range r {
			sum += v * v
		}
		return sum
	}

	lambda := 1e-3
	r0 := res(theta)
	c0 := cost(r0)
	for iter := 0; iter < c.RefineIterations; iter++ {
		m := len(r0)
		jac := mat.NewDense(m, len(free), nil)
		for jf, j := range free {
			h := 1e-6 * math.Max(1, math.Abs(theta[j]))
			bumped := append([]float64(nil), theta...)
			bumped[j] += h
			rb := res(bumped)
			for i := 0; i < m; i++ {
				jac.Set(i, jf, (rb[i]-r0[i])/h)
			}
		}

		var jtj mat.Dense
		jtj.Mul(jac.T(), jac)
		for i := 0; i < len(free); i++ {
			jtj.Set(i, i, jtj.At(i, i)+lambda)
		}
		rv := mat.NewVecDense(m, r0)
		var jtr mat.VecDense
		jtr.MulVec(jac.T(), rv)

		var delta mat.VecDense
		if err := delta.SolveVec(&jtj, &jtr); err != nil {
			break
		}

		trial := append([]float64(nil), theta...)
		for jf, j := range free {
			trial[j] -= delta.AtVec(jf)
		}
		rt := res(trial)
		ct := cost(rt)
		if ct < c0 {
			improved := c0 - ct
			theta, r0, c0 = trial, rt, ct
			lambda = math.Max(lambda/3, 1e-12)
			if improved < c.RefineTolerance*(1+c0) {
				break
			}
		} else {
			lambda *= 10
			if lambda > 1e12 {
				break
			}
		}
	}

	s.f = theta[0]
	s.pp = r2.Point{X: theta[1], Y: theta[2]}
	s.R = rodriguesMatrix(r3.Vector{X: theta[3], Y: theta[4], Z: theta[5]})
	s.t = r3.Vector{X: theta[6], Y: theta[7], Z: theta[8]}
}

func projectSolve(s *cameraSolve, world r3.Vector) r2.Point {
	p := mulVec(s.R, world).Add(s.t)
	if p.Z < 1e-9 {
		return r2.Point{X: math.Inf(1), Y: math.Inf(1)}
	}
	return r2.Point{
		X: s.f*p.X/p.Z + s.pp.X,
		Y: s.f*p.Y/p.Z + s.pp.Y,
	}
}

// smallestSingularVector returns the right singular vector for the
// smallest singular value of a.
func smallestSingularVector(a *mat.Dense) ([]float64, error) {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, fmt.Errorf("svd did not converge")
	}
	var v mat.Dense
	svd.VTo(&v)
	_, cols := v.Dims()
	out := make([]float64, 0, cols)
	rows, _ := v.Dims()
	for i := 0; i < rows; i++ {
		out = append(out, v.At(i, cols-1))
	}
	return out, nil
}

// rqDecompose splits a 3×3 matrix into an upper-triangular K with
// positive diagonal and an orthogonal R, via QR of the row-reversed
// transpose.
func rqDecompose(m *mat.Dense) (K, R *mat.Dense, err error) {
	e := mat.NewDense(3, 3, []float64{0, 0, 1, 0, 1, 0, 1, 0, 0})
	var rev mat.Dense
	rev.Mul(e, m)

	var qr mat.QR
	qr.Factorize(rev.T())
	var q, u mat.Dense
	qr.QTo(&q)
	qr.RTo(&u)

	K = mat.NewDense(3, 3, nil)
	var kt mat.Dense
	kt.Mul(e, u.T())
	K.Mul(&kt, e)
	R = mat.NewDense(3, 3, nil)
	R.Mul(e, q.T())

	// Flip signs so the intrinsic diagonal is positive.
	for i := 0; i < 3; i++ {
		if K.At(i, i) < 0 {
			for r := 0; r < 3; r++ {
				K.Set(r, i, -K.At(r, i))
				R.Set(i, r, -R.At(i, r))
			}
		}
	}
	if math.Abs(K.At(2, 2)) < 1e-12 {
		return nil, nil, fmt.Errorf("projection decomposition: singular intrinsics")
	}
	K.Scale(1/K.At(2, 2), K)
	return K, R, nil
}

// orthonormalize projects a near-rotation onto the closest true rotation
// through its SVD.
func orthonormalize(m *mat.Dense) *mat.Dense {
	var svd mat.SVD
	svd.Factorize(m, mat.SVDFull)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	var r mat.Dense
	r.Mul(&u, v.T())
	if mat.Det(&r) < 0 {
		// Flip the weakest direction to stay in SO(3).
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		r.Mul(&u, v.T())
	}
	out := mat.NewDense(3, 3, nil)
	out.Copy(&r)
	return out
}

// rodriguesMatrix builds the rotation for an axis-angle vector.
func rodriguesMatrix(v r3.Vector) *mat.Dense {
	theta := v.Norm()
	if theta < 1e-12 {
		return stereo.IdentityRotation()
	}
	k := v.Mul(1 / theta)
	c, s := math.Cos(theta), math.Sin(theta)
	ic := 1 - c
	return mat.NewDense(3, 3, []float64{
		c + k.X*k.X*ic, k.X*k.Y*ic - k.Z*s, k.X*k.Z*ic + k.Y*s,
		k.Y*k.X*ic + k.Z*s, c + k.Y*k.Y*ic, k.Y*k.Z*ic - k.X*s,
		k.Z*k.X*ic - k.Y*s, k.Z*k.Y*ic + k.X*s, c + k.Z*k.Z*ic,
	})
}

// rodriguesVector extracts the axis-angle vector of a rotation.
func rodriguesVector(R *mat.Dense) r3.Vector {
	tr := R.At(0, 0) + R.At(1, 1) + R.At(2, 2)
	cosT := math.Max(-1, math.Min(1, (tr-1)/2))
	theta := math.Acos(cosT)
	if theta < 1e-9 {
		return r3.Vector{}
	}
	if math.Pi-theta < 1e-6 {
		// Near a half turn the skew part vanishes; recover the axis
		// from the diagonal.
		x := math.Sqrt(math.Max(0, (R.At(0, 0)+1)/2))
		y := math.Sqrt(math.Max(0, (R.At(1, 1)+1)/2))
		z := math.Sqrt(math.Max(0, (R.At(2, 2)+1)/2))
		if R.At(0, 1)+R.At(1, 0) < 0 {
			y = -y
		}
		if R.At(0, 2)+R.At(2, 0) < 0 {
			z = -z
		}
		return r3.Vector{X: x, Y: y, Z: z}.Mul(theta)
	}
	s := 2 * math.Sin(theta)
	return r3.Vector{
		X: (R.At(2, 1) - R.At(1, 2)) / s,
		Y: (R.At(0, 2) - R.At(2, 0)) / s,
		Z: (R.At(1, 0) - R.At(0, 1)) / s,
	}.Mul(theta)
}

// rotationAngleDeg is the relative rotation angle between two rotations.
func rotationAngleDeg(a, b *mat.Dense) float64 {
	var rel mat.Dense
	rel.Mul(a.T(), b)
	tr := rel.At(0, 0) + rel.At(1, 1) + rel.At(2, 2)
	cosT := math.Max(-1, math.Min(1, (tr-1)/2))
	return math.Acos(cosT) * 180 / math.Pi
}

func mulVec(m *mat.Dense, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z,
		Y: m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z,
		Z: m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z,
	}
}

func mulVecT(m *mat.Dense, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m.At(0, 0)*v.X + m.At(1, 0)*v.Y + m.At(2, 0)*v.Z,
		Y: m.At(0, 1)*v.X + m.At(1, 1)*v.Y + m.At(2, 1)*v.Z,
		Z: m.At(0, 2)*v.X + m.At(1, 2)*v.Y + m.At(2, 2)*v.Z,
	}
}

// worldSpread is the spread of the world references along their second
// principal axis, ignoring z. Near zero means a single line of points,
// which cannot constrain a solve.
func worldSpread(corrs []Correspondence) float64 {
	pts := make([]r2.Point, len(corrs))
	for i, co := range corrs {
		pts[i] = r2.Point{X: co.World.X, Y: co.World.Y}
	}
	return pixelSpread(pts)
}
