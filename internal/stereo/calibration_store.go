package stereo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// CalibrationRecord is one stored stereo solve, flattened for the
// database and the API.
type CalibrationRecord struct {
	ID          int64         `json:"id"`
	SolvedAt    time.Time     `json:"solved_at"`
	FocalLength float64       `json:"focal_length"`
	PrincipalX  float64       `json:"principal_x"`
	PrincipalY  float64       `json:"principal_y"`
	BaselineM   float64       `json:"baseline_m"`
	Rotation    [3][3]float64 `json:"rotation"`
	Translation [3]float64    `json:"translation"`
	RMSPixels   float64       `json:"rms_px"`
	PointCount  int           `json:"point_count"`
	Accepted    bool          `json:"accepted"`
}

// RecordFromParameters flattens solved camera parameters into a
// record ready to save.
func RecordFromParameters(p CameraParameters, rmsPx float64, pointCount int, solvedAt time.Time) CalibrationRecord {
	rec := CalibrationRecord{
		SolvedAt:    solvedAt,
		FocalLength: p.FocalLength,
		PrincipalX:  p.PrincipalPoint.X,
		PrincipalY:  p.PrincipalPoint.Y,
		BaselineM:   p.Baseline,
		Translation: [3]float64{p.Translation.X, p.Translation.Y, p.Translation.Z},
		RMSPixels:   rmsPx,
		PointCount:  pointCount,
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rec.Rotation[i][j] = p.Rotation.At(i, j)
		}
	}
	return rec
}

// Parameters rebuilds the camera parameters stored in the record.
func (r *CalibrationRecord) Parameters() CameraParameters {
	rot := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rot.Set(i, j, r.Rotation[i][j])
		}
	}
	return CameraParameters{
		FocalLength:    r.FocalLength,
		PrincipalPoint: r2.Point{X: r.PrincipalX, Y: r.PrincipalY},
		Rotation:       rot,
		Translation:    r3.Vector{X: r.Translation[0], Y: r.Translation[1], Z: r.Translation[2]},
		Baseline:       r.BaselineM,
	}
}

// CalibrationPointRecord is one stored reference pixel.
type CalibrationPointRecord struct {
	ID        int64     `json:"id"`
	Camera    string    `json:"camera"`
	Px        float64   `json:"px"`
	Py        float64   `json:"py"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
}

// CalibrationStore persists solves and the clicked reference points
// behind them.
type CalibrationStore struct {
	db *sql.DB
}

func NewCalibrationStore(db *sql.DB) *CalibrationStore {
	return &CalibrationStore{db: db}
}

// SaveCalibration inserts the record and fills in its ID.
func (s *CalibrationStore) SaveCalibration(ctx context.Context, rec *CalibrationRecord) error {
	rotJSON, err := json.Marshal(rec.Rotation)
	if err != nil {
		return fmt.Errorf("failed to encode rotation: %w", err)
	}
	transJSON, err := json.Marshal(rec.Translation)
	if err != nil {
		return fmt.Errorf("failed to encode translation: %w", err)
	}
	if rec.SolvedAt.IsZero() {
		rec.SolvedAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO calibrations (solved_at_ns, focal_length, principal_x, principal_y,
			baseline_m, rotation_json, translation_json, rms_px, point_count, accepted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SolvedAt.UnixNano(), rec.FocalLength, rec.PrincipalX, rec.PrincipalY,
		rec.BaselineM, string(rotJSON), string(transJSON), rec.RMSPixels,
		rec.PointCount, rec.Accepted,
	)
	if err != nil {
		return fmt.Errorf("failed to save calibration: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get calibration ID: %w", err)
	}
	rec.ID = id
	return nil
}

// LatestCalibration returns the most recent solve.
func (s *CalibrationStore) LatestCalibration(ctx context.Context) (*CalibrationRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, solved_at_ns, focal_length, principal_x, principal_y,
			baseline_m, rotation_json, translation_json, rms_px, point_count, accepted
		FROM calibrations ORDER BY solved_at_ns DESC, id DESC LIMIT 1`)

	var (
		rec       CalibrationRecord
		solvedNs  int64
		rotJSON   string
		transJSON string
	)
	err := row.Scan(&rec.ID, &solvedNs, &rec.FocalLength, &rec.PrincipalX, &rec.PrincipalY,
		&rec.BaselineM, &rotJSON, &transJSON, &rec.RMSPixels, &rec.PointCount, &rec.Accepted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("calibration: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest calibration: %w", err)
	}

	rec.SolvedAt = time.Unix(0, solvedNs)
	if err := json.Unmarshal([]byte(rotJSON), &rec.Rotation); err != nil {
		return nil, fmt.Errorf("bad rotation_json: %w", err)
	}
	if err := json.Unmarshal([]byte(transJSON), &rec.Translation); err != nil {
		return nil, fmt.Errorf("bad translation_json: %w", err)
	}
	return &rec, nil
}

// AddPoint stores one clicked reference pixel.
func (s *CalibrationStore) AddPoint(ctx context.Context, camera string, pixel r2.Point, label string) (CalibrationPointRecord, error) {
	rec := CalibrationPointRecord{
		Camera:    camera,
		Px:        pixel.X,
		Py:        pixel.Y,
		Label:     label,
		CreatedAt: time.Now(),
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO calibration_points (camera, px, py, label, created_at_ns)
		VALUES (?, ?, ?, ?, ?)`,
		rec.Camera, rec.Px, rec.Py, rec.Label, rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return rec, fmt.Errorf("failed to add calibration point: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return rec, fmt.Errorf("failed to get point ID: %w", err)
	}
	rec.ID = id
	return rec, nil
}

// Points lists stored reference pixels, optionally filtered by camera.
func (s *CalibrationStore) Points(ctx context.Context, camera string) ([]CalibrationPointRecord, error) {
	query := `SELECT id, camera, px, py, label, created_at_ns FROM calibration_points`
	var args []any
	if camera != "" {
		query += ` WHERE camera = ?`
		args = append(args, camera)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list calibration points: %w", err)
	}
	defer rows.Close()

	var points []CalibrationPointRecord
	for rows.Next() {
		var (
			rec       CalibrationPointRecord
			createdNs int64
		)
		if err := rows.Scan(&rec.ID, &rec.Camera, &rec.Px, &rec.Py, &rec.Label, &createdNs); err != nil {
			return nil, fmt.Errorf("failed to scan calibration point: %w", err)
		}
		rec.CreatedAt = time.Unix(0, createdNs)
		points = append(points, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

// ClearPoints removes stored reference pixels, optionally only one
// camera's.
func (s *CalibrationStore) ClearPoints(ctx context.Context, camera string) error {
	query := `DELETE FROM calibration_points`
	var args []any
	if camera != "" {
		query += ` WHERE camera = ?`
		args = append(args, camera)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to clear calibration points: %w", err)
	}
	return nil
}
