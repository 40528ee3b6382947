package stereo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by store lookups when no row matches.
var ErrNotFound = errors.New("not found")

// Session groups the trajectories and verdicts recorded by one run of
// the pipeline.
type Session struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Source    string     `json:"source"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	FPS       float64    `json:"fps"`
	Notes     string     `json:"notes"`
}

// SessionStore persists sessions.
type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

// Create inserts the session, assigning an ID and start time when the
// caller left them empty.
func (s *SessionStore) Create(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now()
	}

	var endedNs *int64
	if sess.EndedAt != nil {
		ns := sess.EndedAt.UnixNano()
		endedNs = &ns
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, name, source, started_at_ns, ended_at_ns, fps, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Name, sess.Source, sess.StartedAt.UnixNano(), endedNs, sess.FPS, sess.Notes,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// End stamps the session's end time.
func (s *SessionStore) End(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at_ns = ? WHERE id = ?`, at.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check session update: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

// Get fetches one session by ID.
func (s *SessionStore) Get(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, source, started_at_ns, ended_at_ns, fps, notes
		FROM sessions WHERE id = ?`, id)

	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return sess, nil
}

// List returns the most recent sessions, newest first.
func (s *SessionStore) List(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, source, started_at_ns, ended_at_ns, fps, notes
		FROM sessions ORDER BY started_at_ns DESC LIMIT 100`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		sess      Session
		startedNs int64
		endedNs   sql.NullInt64
	)
	err := row.Scan(&sess.ID, &sess.Name, &sess.Source, &startedNs, &endedNs, &sess.FPS, &sess.Notes)
	if err != nil {
		return nil, err
	}
	sess.StartedAt = time.Unix(0, startedNs)
	if endedNs.Valid {
		t := time.Unix(0, endedNs.Int64)
		sess.EndedAt = &t
	}
	return &sess, nil
}
