package stereo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TrajectorySummary is the stored header row of a trajectory; the
// points and bounces hang off it by ID.
type TrajectorySummary struct {
	ID          uuid.UUID `json:"id"`
	SessionID   string    `json:"session_id"`
	Segment     int       `json:"segment"`
	StartFrame  int       `json:"start_frame"`
	EndFrame    int       `json:"end_frame"`
	PointCount  int       `json:"point_count"`
	FinalizedAt time.Time `json:"finalized_at"`
}

// TrajectoryStore persists finalized trajectories with their points
// and bounces.
type TrajectoryStore struct {
	db *sql.DB
}

func NewTrajectoryStore(db *sql.DB) *TrajectoryStore {
	return &TrajectoryStore{db: db}
}

// Save upserts the trajectory header, points, and bounces in one
// transaction. Re-saving the same trajectory replaces its rows, so a
// crash between finalization and save can be retried safely.
func (s *TrajectoryStore) Save(ctx context.Context, sessionID string, t *Trajectory) error {
	if len(t.Points) == 0 {
		return fmt.Errorf("trajectory %s has no points", t.ID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	first, last := t.Points[0], t.Points[len(t.Points)-1]
	_, err = tx.ExecContext(ctx, `
		INSERT INTO trajectories (id, session_id, segment, start_frame, end_frame, point_count, finalized_at_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			session_id = excluded.session_id,
			segment = excluded.segment,
			start_frame = excluded.start_frame,
			end_frame = excluded.end_frame,
			point_count = excluded.point_count,
			finalized_at_ns = excluded.finalized_at_ns`,
		t.ID.String(), sessionID, t.Segment, first.FrameIndex, last.FrameIndex,
		len(t.Points), time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert trajectory: %w", err)
	}

	pointStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO track_points (trajectory_id, frame_index, t_ns, x, y, z, residual, interpolated, low_confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trajectory_id, frame_index) DO UPDATE SET
			t_ns = excluded.t_ns,
			x = excluded.x, y = excluded.y, z = excluded.z,
			residual = excluded.residual,
			interpolated = excluded.interpolated,
			low_confidence = excluded.low_confidence`)
	if err != nil {
		return fmt.Errorf("failed to prepare point upsert: %w", err)
	}
	defer pointStmt.Close()

	for _, p := range t.Points {
		_, err := pointStmt.ExecContext(ctx,
			t.ID.String(), p.FrameIndex, p.Time.UnixNano(),
			p.Position.X, p.Position.Y, p.Position.Z,
			p.Residual, p.Interpolated, p.LowConfidence,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert point %d: %w", p.FrameIndex, err)
		}
	}

	bounceStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bounces (trajectory_id, frame_index, t_ns, x, y, z, interpolated, low_confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trajectory_id, frame_index) DO UPDATE SET
			t_ns = excluded.t_ns,
			x = excluded.x, y = excluded.y, z = excluded.z,
			interpolated = excluded.interpolated,
			low_confidence = excluded.low_confidence`)
	if err != nil {
		return fmt.Errorf("failed to prepare bounce upsert: %w", err)
	}
	defer bounceStmt.Close()

	for _, b := range t.Bounces {
		_, err := bounceStmt.ExecContext(ctx,
			t.ID.String(), b.FrameIndex, b.Time.UnixNano(),
			b.Position.X, b.Position.Y, b.Position.Z,
			b.Interpolated, b.LowConfidence,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert bounce %d: %w", b.FrameIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trajectory: %w", err)
	}
	return nil
}

// Get fetches one trajectory header.
func (s *TrajectoryStore) Get(ctx context.Context, id uuid.UUID) (*TrajectorySummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, segment, start_frame, end_frame, point_count, finalized_at_ns
		FROM trajectories WHERE id = ?`, id.String())

	sum, err := scanTrajectory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("trajectory %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trajectory: %w", err)
	}
	return sum, nil
}

// ListBySession returns a session's trajectory headers in segment
// order.
func (s *TrajectoryStore) ListBySession(ctx context.Context, sessionID string) ([]TrajectorySummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, segment, start_frame, end_frame, point_count, finalized_at_ns
		FROM trajectories WHERE session_id = ? ORDER BY segment, start_frame`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trajectories: %w", err)
	}
	defer rows.Close()

	var sums []TrajectorySummary
	for rows.Next() {
		sum, err := scanTrajectory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trajectory: %w", err)
		}
		sums = append(sums, *sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sums, nil
}

// Points returns a trajectory's points in frame order.
func (s *TrajectoryStore) Points(ctx context.Context, id uuid.UUID) ([]TrackPoint3D, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT frame_index, t_ns, x, y, z, residual, interpolated, low_confidence
		FROM track_points WHERE trajectory_id = ? ORDER BY frame_index`, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query points: %w", err)
	}
	defer rows.Close()

	var points []TrackPoint3D
	for rows.Next() {
		var (
			p   TrackPoint3D
			tNs int64
		)
		err := rows.Scan(&p.FrameIndex, &tNs, &p.Position.X, &p.Position.Y, &p.Position.Z,
			&p.Residual, &p.Interpolated, &p.LowConfidence)
		if err != nil {
			return nil, fmt.Errorf("failed to scan point: %w", err)
		}
		p.Time = time.Unix(0, tNs)
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

// Bounces returns a trajectory's bounce events in frame order.
func (s *TrajectoryStore) Bounces(ctx context.Context, id uuid.UUID) ([]BounceEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT frame_index, t_ns, x, y, z, interpolated, low_confidence
		FROM bounces WHERE trajectory_id = ? ORDER BY frame_index`, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query bounces: %w", err)
	}
	defer rows.Close()

	var bounces []BounceEvent
	for rows.Next() {
		var (
			b   BounceEvent
			tNs int64
		)
		err := rows.Scan(&b.FrameIndex, &tNs, &b.Position.X, &b.Position.Y, &b.Position.Z,
			&b.Interpolated, &b.LowConfidence)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bounce: %w", err)
		}
		b.Time = time.Unix(0, tNs)
		bounces = append(bounces, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bounces, nil
}

func scanTrajectory(row rowScanner) (*TrajectorySummary, error) {
	var (
		sum         TrajectorySummary
		id          string
		finalizedNs int64
	)
	err := row.Scan(&id, &sum.SessionID, &sum.Segment, &sum.StartFrame, &sum.EndFrame,
		&sum.PointCount, &finalizedNs)
	if err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("bad trajectory id %q: %w", id, err)
	}
	sum.ID = parsed
	sum.FinalizedAt = time.Unix(0, finalizedNs)
	return &sum, nil
}
