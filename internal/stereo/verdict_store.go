package stereo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// VerdictRecord is one stored line call.
type VerdictRecord struct {
	ID           int64      `json:"id"`
	SessionID    string     `json:"session_id"`
	TrajectoryID uuid.UUID  `json:"trajectory_id"`
	FrameIndex   int        `json:"frame_index"`
	Time         time.Time  `json:"time"`
	X            float64    `json:"x"`
	Y            float64    `json:"y"`
	Z            float64    `json:"z"`
	InBounds     bool       `json:"in_bounds"`
	NearestLine  string     `json:"nearest_line"`
	DistanceM    float64    `json:"distance_m"`
	Confidence   Confidence `json:"confidence"`
	CreatedAt    time.Time  `json:"created_at"`
}

// VerdictStore persists line calls.
type VerdictStore struct {
	db *sql.DB
}

func NewVerdictStore(db *sql.DB) *VerdictStore {
	return &VerdictStore{db: db}
}

// SaveVerdict records one line call against its session and
// trajectory.
func (s *VerdictStore) SaveVerdict(ctx context.Context, sessionID string, trajectoryID uuid.UUID, v Verdict) (*VerdictRecord, error) {
	rec := &VerdictRecord{
		SessionID:    sessionID,
		TrajectoryID: trajectoryID,
		FrameIndex:   v.FrameIndex,
		Time:         v.Time,
		X:            v.Position.X,
		Y:            v.Position.Y,
		Z:            v.Position.Z,
		InBounds:     v.InBounds,
		NearestLine:  v.NearestLine,
		DistanceM:    v.Distance,
		Confidence:   v.Confidence,
		CreatedAt:    time.Now(),
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO verdicts (session_id, trajectory_id, frame_index, t_ns,
			x, y, z, in_bounds, nearest_line, distance_m, confidence, created_at_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.TrajectoryID.String(), rec.FrameIndex, rec.Time.UnixNano(),
		rec.X, rec.Y, rec.Z, rec.InBounds, rec.NearestLine, rec.DistanceM,
		string(rec.Confidence), rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save verdict: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get verdict ID: %w", err)
	}
	rec.ID = id
	return rec, nil
}

// ListBySession returns a session's verdicts in time order.
func (s *VerdictStore) ListBySession(ctx context.Context, sessionID string) ([]VerdictRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, trajectory_id, frame_index, t_ns,
			x, y, z, in_bounds, nearest_line, distance_m, confidence, created_at_ns
		FROM verdicts WHERE session_id = ? ORDER BY t_ns, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list verdicts: %w", err)
	}
	defer rows.Close()

	var verdicts []VerdictRecord
	for rows.Next() {
		var (
			rec          VerdictRecord
			trajectoryID string
			tNs          int64
			createdNs    int64
			confidence   string
		)
		err := rows.Scan(&rec.ID, &rec.SessionID, &trajectoryID, &rec.FrameIndex, &tNs,
			&rec.X, &rec.Y, &rec.Z, &rec.InBounds, &rec.NearestLine, &rec.DistanceM,
			&confidence, &createdNs)
		if err != nil {
			return nil, fmt.Errorf("failed to scan verdict: %w", err)
		}
		parsed, err := uuid.Parse(trajectoryID)
		if err != nil {
			return nil, fmt.Errorf("bad trajectory id %q: %w", trajectoryID, err)
		}
		rec.TrajectoryID = parsed
		rec.Time = time.Unix(0, tNs)
		rec.CreatedAt = time.Unix(0, createdNs)
		rec.Confidence = Confidence(confidence)
		verdicts = append(verdicts, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return verdicts, nil
}
