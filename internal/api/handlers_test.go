package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"

	"github.com/courtsight-data/linecall/internal/config"
	"github.com/courtsight-data/linecall/internal/db"
	"github.com/courtsight-data/linecall/internal/stereo"
	"github.com/courtsight-data/linecall/internal/stereo/calib"
	"github.com/courtsight-data/linecall/internal/timeutil"
)

func setupTestServer(t *testing.T) (*Server, *db.DB) {
	t.Helper()

	d, err := db.Open(filepath.Join(t.TempDir(), "api_test.db"))
	if err != nil {
		t.Fatalf("failed to open test DB: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := d.MigrateUp(); err != nil {
		t.Fatalf("failed to migrate test DB: %v", err)
	}

	return NewServer(d.DB, nil), d
}

// seedTrajectory stores one session with a six-point trajectory and a
// verdict, returning the session and trajectory IDs.
func seedTrajectory(t *testing.T, d *db.DB) (string, uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	sessions := stereo.NewSessionStore(d.DB)
	sess := &stereo.Session{Name: "api test", Source: "synthetic"}
	if err := sessions.Create(ctx, sess); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	base := time.Unix(2000, 0)
	tr := &stereo.Trajectory{ID: uuid.New(), Finalized: true}
	for i := 0; i < 6; i++ {
		tr.Points = append(tr.Points, stereo.TrackPoint3D{
			FrameIndex: 20 + i,
			Time:       base.Add(time.Duration(i) * 33 * time.Millisecond),
			Position:   r3.Vector{X: -0.4, Y: float64(i) * 1.5, Z: 1.2 - 0.18*float64(i)},
			Residual:   0.005 * float64(i),
		})
	}
	tr.Bounces = []stereo.BounceEvent{{
		FrameIndex: 24,
		Time:       base.Add(132 * time.Millisecond),
		Position:   r3.Vector{X: -0.4, Y: 6, Z: 0.04},
	}}
	if err := stereo.NewTrajectoryStore(d.DB).Save(ctx, sess.ID, tr); err != nil {
		t.Fatalf("failed to save trajectory: %v", err)
	}

	_, err := stereo.NewVerdictStore(d.DB).SaveVerdict(ctx, sess.ID, tr.ID, stereo.Verdict{
		FrameIndex:  24,
		Time:        tr.Bounces[0].Time,
		Position:    tr.Bounces[0].Position,
		InBounds:    true,
		NearestLine: "centre service line",
		Distance:    -0.3,
		Confidence:  stereo.ConfidenceHigh,
	})
	if err != nil {
		t.Fatalf("failed to save verdict: %v", err)
	}

	return sess.ID, tr.ID
}

func TestHandleHealth(t *testing.T) {
	server, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()

	server.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var health map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if health["status"] != "ok" {
		t.Errorf("Expected status 'ok', got %v", health["status"])
	}
	if health["service"] != "linecall" {
		t.Errorf("Expected service 'linecall', got %v", health["service"])
	}
}

func TestHandleHealth_Uptime(t *testing.T) {
	server, _ := setupTestServer(t)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	server.started = base
	server.clock = timeutil.NewMockClock(base.Add(90 * time.Second))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()

	server.handleHealth(w, req)

	var health map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got := health["uptime_s"]; got != float64(90) {
		t.Errorf("Expected uptime_s 90, got %v", got)
	}
	if got := health["timestamp"]; got != "2026-03-01T09:01:30Z" {
		t.Errorf("Expected mock clock timestamp, got %v", got)
	}
}

func TestListSessions_Empty(t *testing.T) {
	server, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	w := httptest.NewRecorder()

	server.listSessions(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	// Empty result must still be a JSON array, not null.
	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Errorf("Expected empty array, got %s", body)
	}
}

func TestListSessions(t *testing.T) {
	server, d := setupTestServer(t)
	seedTrajectory(t, d)
	seedTrajectory(t, d)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	w := httptest.NewRecorder()

	server.listSessions(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var sessions []stereo.Session
	if err := json.NewDecoder(w.Body).Decode(&sessions); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(sessions) != 2 {
		t.Errorf("Expected 2 sessions, got %d", len(sessions))
	}
}

func TestListSessions_MethodNotAllowed(t *testing.T) {
	server, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", nil)
	w := httptest.NewRecorder()

	server.listSessions(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

func TestHandleSessionByID(t *testing.T) {
	server, d := setupTestServer(t)
	sessionID, trajID := seedTrajectory(t, d)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/"+sessionID, nil)
	w := httptest.NewRecorder()

	server.handleSessionByID(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d. Body: %s", w.Code, w.Body.String())
	}

	var sess stereo.Session
	if err := json.NewDecoder(w.Body).Decode(&sess); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if sess.ID != sessionID {
		t.Errorf("Expected session %s, got %s", sessionID, sess.ID)
	}
	if sess.Name != "api test" {
		t.Errorf("Expected name 'api test', got %s", sess.Name)
	}

	// Trajectories subresource.
	req = httptest.NewRequest(http.MethodGet, "/api/sessions/"+sessionID+"/trajectories", nil)
	w = httptest.NewRecorder()

	server.handleSessionByID(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d. Body: %s", w.Code, w.Body.String())
	}

	var summaries []stereo.TrajectorySummary
	if err := json.NewDecoder(w.Body).Decode(&summaries); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("Expected 1 trajectory, got %d", len(summaries))
	}
	if summaries[0].ID != trajID {
		t.Errorf("Expected trajectory %s, got %s", trajID, summaries[0].ID)
	}
	if summaries[0].PointCount != 6 {
		t.Errorf("Expected 6 points, got %d", summaries[0].PointCount)
	}
}

func TestHandleSessionByID_Errors(t *testing.T) {
	server, _ := setupTestServer(t)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"missing id", "/api/sessions/", http.StatusBadRequest},
		{"unknown id", "/api/sessions/no-such-session", http.StatusNotFound},
		{"unknown subresource", "/api/sessions/no-such-session/events", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			w := httptest.NewRecorder()

			server.handleSessionByID(w, req)

			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestHandleTrajectoryByID(t *testing.T) {
	server, d := setupTestServer(t)
	_, trajID := seedTrajectory(t, d)

	req := httptest.NewRequest(http.MethodGet, "/api/trajectories/"+trajID.String(), nil)
	w := httptest.NewRecorder()

	server.handleTrajectoryByID(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d. Body: %s", w.Code, w.Body.String())
	}

	var summary stereo.TrajectorySummary
	if err := json.NewDecoder(w.Body).Decode(&summary); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if summary.ID != trajID {
		t.Errorf("Expected trajectory %s, got %s", trajID, summary.ID)
	}
	if summary.StartFrame != 20 || summary.EndFrame != 25 {
		t.Errorf("Expected frames [20,25], got [%d,%d]", summary.StartFrame, summary.EndFrame)
	}
}

func TestTrajectoryPoints(t *testing.T) {
	server, d := setupTestServer(t)
	_, trajID := seedTrajectory(t, d)

	req := httptest.NewRequest(http.MethodGet, "/api/trajectories/"+trajID.String()+"/points", nil)
	w := httptest.NewRecorder()

	server.handleTrajectoryByID(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d. Body: %s", w.Code, w.Body.String())
	}

	var points []trackPointAPI
	if err := json.NewDecoder(w.Body).Decode(&points); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(points) != 6 {
		t.Fatalf("Expected 6 points, got %d", len(points))
	}
	if points[0].FrameIndex != 20 {
		t.Errorf("Expected first frame 20, got %d", points[0].FrameIndex)
	}
	if points[5].Z >= points[0].Z {
		t.Errorf("Expected descending heights, got %f -> %f", points[0].Z, points[5].Z)
	}
}

func TestTrajectoryExportCSV(t *testing.T) {
	server, d := setupTestServer(t)
	_, trajID := seedTrajectory(t, d)

	req := httptest.NewRequest(http.MethodGet, "/api/trajectories/"+trajID.String()+"/export.csv", nil)
	w := httptest.NewRecorder()

	server.handleTrajectoryByID(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Expected Content-Type text/csv, got %s", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "linecall_track_") {
		t.Errorf("Expected attachment filename, got %s", cd)
	}

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 7 {
		t.Fatalf("Expected header plus 6 rows, got %d lines", len(lines))
	}
	if lines[0] != "frame_index,t_ns,x,y,z,residual,interpolated,low_confidence" {
		t.Errorf("Unexpected CSV header: %s", lines[0])
	}
}

func TestHandleTrajectoryByID_Errors(t *testing.T) {
	server, _ := setupTestServer(t)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"missing id", "/api/trajectories/", http.StatusBadRequest},
		{"invalid id", "/api/trajectories/not-a-uuid", http.StatusBadRequest},
		{"unknown id", "/api/trajectories/" + uuid.NewString(), http.StatusNotFound},
		{"unknown subresource", "/api/trajectories/" + uuid.NewString() + "/frames", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			w := httptest.NewRecorder()

			server.handleTrajectoryByID(w, req)

			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestListVerdicts(t *testing.T) {
	server, d := setupTestServer(t)
	sessionID, trajID := seedTrajectory(t, d)

	req := httptest.NewRequest(http.MethodGet, "/api/verdicts?session_id="+sessionID, nil)
	w := httptest.NewRecorder()

	server.listVerdicts(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d. Body: %s", w.Code, w.Body.String())
	}

	var verdicts []stereo.VerdictRecord
	if err := json.NewDecoder(w.Body).Decode(&verdicts); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(verdicts) != 1 {
		t.Fatalf("Expected 1 verdict, got %d", len(verdicts))
	}
	if verdicts[0].TrajectoryID != trajID {
		t.Errorf("Expected trajectory %s, got %s", trajID, verdicts[0].TrajectoryID)
	}
	if !verdicts[0].InBounds {
		t.Error("Expected an in-bounds verdict")
	}
}

func TestListVerdicts_MissingSession(t *testing.T) {
	server, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/verdicts", nil)
	w := httptest.NewRecorder()

	server.listVerdicts(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestListVerdicts_UnknownSession(t *testing.T) {
	server, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/verdicts?session_id=nope", nil)
	w := httptest.NewRecorder()

	server.listVerdicts(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Errorf("Expected empty array, got %s", body)
	}
}

func TestCalibrationPoints(t *testing.T) {
	server, _ := setupTestServer(t)

	// Add a point.
	body, _ := json.Marshal(addPointRequest{Camera: stereo.CameraLeft, X: 120.5, Y: 340.25, Label: "net-center"})
	req := httptest.NewRequest(http.MethodPost, "/api/calibration/points", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	server.handleCalibrationPoints(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", w.Code, w.Body.String())
	}
	var created stereo.CalibrationPointRecord
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if created.ID == 0 {
		t.Error("Expected point ID to be set")
	}
	if created.Px != 120.5 || created.Py != 340.25 {
		t.Errorf("Expected pixel (120.5, 340.25), got (%f, %f)", created.Px, created.Py)
	}

	// List it back.
	req = httptest.NewRequest(http.MethodGet, "/api/calibration/points?camera=left", nil)
	w = httptest.NewRecorder()

	server.handleCalibrationPoints(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	var points []stereo.CalibrationPointRecord
	if err := json.NewDecoder(w.Body).Decode(&points); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("Expected 1 point, got %d", len(points))
	}
	if points[0].Label != "net-center" {
		t.Errorf("Expected label 'net-center', got %s", points[0].Label)
	}

	// The other camera has none.
	req = httptest.NewRequest(http.MethodGet, "/api/calibration/points?camera=right", nil)
	w = httptest.NewRecorder()

	server.handleCalibrationPoints(w, req)

	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Errorf("Expected empty array for right camera, got %s", body)
	}

	// Clear and verify.
	req = httptest.NewRequest(http.MethodDelete, "/api/calibration/points", nil)
	w = httptest.NewRecorder()

	server.handleCalibrationPoints(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/calibration/points", nil)
	w = httptest.NewRecorder()

	server.handleCalibrationPoints(w, req)

	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Errorf("Expected empty array after clear, got %s", body)
	}
}

func TestCalibrationPoints_Errors(t *testing.T) {
	server, _ := setupTestServer(t)

	// Unknown camera on POST.
	body, _ := json.Marshal(addPointRequest{Camera: "middle", X: 1, Y: 2})
	req := httptest.NewRequest(http.MethodPost, "/api/calibration/points", bytes.NewReader(body))
	w := httptest.NewRecorder()

	server.handleCalibrationPoints(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}

	// Unknown camera on GET.
	req = httptest.NewRequest(http.MethodGet, "/api/calibration/points?camera=middle", nil)
	w = httptest.NewRecorder()

	server.handleCalibrationPoints(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}

	// Malformed body.
	req = httptest.NewRequest(http.MethodPost, "/api/calibration/points", strings.NewReader("{"))
	w = httptest.NewRecorder()

	server.handleCalibrationPoints(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}

	// Unsupported method.
	req = httptest.NewRequest(http.MethodPut, "/api/calibration/points", nil)
	w = httptest.NewRecorder()

	server.handleCalibrationPoints(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

// testRig returns the reference rig the solve tests project the court
// layout through.
func testRig(t *testing.T) *stereo.CameraParameters {
	t.Helper()
	p, err := stereo.LookAtParameters(
		r3.Vector{Y: -14, Z: 2.2},
		r3.Vector{Y: 1},
		900,
		r2.Point{X: 320, Y: 240},
		0.3,
	)
	if err != nil {
		t.Fatalf("LookAtParameters: %v", err)
	}
	return p
}

// seedLayoutPoints stores one pixel per standard layout reference for
// both cameras. A non-zero perturb zigzags the left camera's
// service-row pixels vertically, which no projective fit can absorb.
func seedLayoutPoints(t *testing.T, d *db.DB, rig *stereo.CameraParameters, perturb float64) {
	t.Helper()
	ctx := context.Background()
	store := stereo.NewCalibrationStore(d.DB)

	sign := 1.0
	for _, camera := range []string{stereo.CameraLeft, stereo.CameraRight} {
		for _, ref := range calib.StandardLayout() {
			px, ok := rig.Project(ref.World, camera)
			if !ok {
				t.Fatalf("reference %s does not project in the %s camera", ref.Label, camera)
			}
			if camera == stereo.CameraLeft && strings.HasPrefix(ref.Label, "service-") {
				px.Y += sign * perturb
				sign = -sign
			}
			if _, err := store.AddPoint(ctx, camera, px, ""); err != nil {
				t.Fatalf("failed to store point %s: %v", ref.Label, err)
			}
		}
	}
}

func TestSolveCalibration(t *testing.T) {
	server, d := setupTestServer(t)
	seedLayoutPoints(t, d, testRig(t), 0)

	req := httptest.NewRequest(http.MethodPost, "/api/calibration/solve", nil)
	w := httptest.NewRecorder()

	server.solveCalibration(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", w.Code, w.Body.String())
	}

	var rec stereo.CalibrationRecord
	if err := json.NewDecoder(w.Body).Decode(&rec); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !rec.Accepted {
		t.Error("Expected an accepted solve")
	}
	if rec.RMSPixels > 0.1 {
		t.Errorf("Expected near-zero rms on exact data, got %f", rec.RMSPixels)
	}
	if math.Abs(rec.FocalLength-900) > 1 {
		t.Errorf("Expected focal length 900, got %f", rec.FocalLength)
	}
	if math.Abs(rec.BaselineM-0.3) > 0.01 {
		t.Errorf("Expected baseline 0.3, got %f", rec.BaselineM)
	}
	if rec.PointCount != 24 {
		t.Errorf("Expected 24 points, got %d", rec.PointCount)
	}

	// The solve must be retrievable as the latest calibration.
	req = httptest.NewRequest(http.MethodGet, "/api/calibration/latest", nil)
	w = httptest.NewRecorder()

	server.latestCalibration(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", w.Code, w.Body.String())
	}
	var latest stereo.CalibrationRecord
	if err := json.NewDecoder(w.Body).Decode(&latest); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if latest.ID != rec.ID {
		t.Errorf("Expected latest calibration %d, got %d", rec.ID, latest.ID)
	}
}

func TestSolveCalibration_NoPoints(t *testing.T) {
	server, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/calibration/solve", nil)
	w := httptest.NewRecorder()

	server.solveCalibration(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d. Body: %s", w.Code, w.Body.String())
	}
}

func TestSolveCalibration_PoorFit(t *testing.T) {
	server, d := setupTestServer(t)
	seedLayoutPoints(t, d, testRig(t), 25)

	req := httptest.NewRequest(http.MethodPost, "/api/calibration/solve", nil)
	w := httptest.NewRecorder()

	server.solveCalibration(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected status 422, got %d. Body: %s", w.Code, w.Body.String())
	}

	// Nothing may have been stored.
	req = httptest.NewRequest(http.MethodGet, "/api/calibration/latest", nil)
	w = httptest.NewRecorder()

	server.latestCalibration(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 after rejected solve, got %d", w.Code)
	}
}

func TestLatestCalibration_None(t *testing.T) {
	server, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/calibration/latest", nil)
	w := httptest.NewRecorder()

	server.latestCalibration(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestHandleConfig_Get(t *testing.T) {
	server, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	w := httptest.NewRecorder()

	server.handleConfig(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var cfg config.TuningConfig
	if err := json.NewDecoder(w.Body).Decode(&cfg); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	// The effective config has every section populated.
	if cfg.Camera == nil || cfg.Camera.Width == nil || *cfg.Camera.Width != 640 {
		t.Error("Expected camera.width 640 in effective config")
	}
	if cfg.Judgment == nil || cfg.Judgment.LineWidthM == nil || *cfg.Judgment.LineWidthM != 0.05 {
		t.Error("Expected judgment.line_width_m 0.05 in effective config")
	}
}

func TestHandleConfig_Patch(t *testing.T) {
	server, _ := setupTestServer(t)

	body := `{"matching": {"epipolar_tolerance_px": 3.5}}`
	req := httptest.NewRequest(http.MethodPatch, "/api/config", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	server.handleConfig(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", w.Code, w.Body.String())
	}

	var cfg config.TuningConfig
	if err := json.NewDecoder(w.Body).Decode(&cfg); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got := cfg.GetEpipolarTolerancePx(); got != 3.5 {
		t.Errorf("Expected epipolar tolerance 3.5, got %f", got)
	}
	// Untouched fields keep their defaults.
	if got := cfg.GetMaxDisparityPx(); got != 400 {
		t.Errorf("Expected max disparity 400, got %f", got)
	}

	// The server now applies the patched value.
	if got := server.Tuning().GetEpipolarTolerancePx(); got != 3.5 {
		t.Errorf("Expected server tuning 3.5, got %f", got)
	}
}

func TestHandleConfig_PatchInvalid(t *testing.T) {
	server, _ := setupTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"matching":`},
		{"negative tolerance", `{"matching": {"epipolar_tolerance_px": -1}}`},
		{"disparity order", `{"matching": {"min_disparity_px": 500}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPatch, "/api/config", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			server.handleConfig(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d. Body: %s", w.Code, w.Body.String())
			}

			// A rejected patch must not change the active config.
			if got := server.Tuning().GetEpipolarTolerancePx(); got != 10 {
				t.Errorf("Expected tuning untouched at 10, got %f", got)
			}
		})
	}
}

func TestHandleConfig_MethodNotAllowed(t *testing.T) {
	server, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/config", nil)
	w := httptest.NewRecorder()

	server.handleConfig(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

func TestWriteJSONError(t *testing.T) {
	server, _ := setupTestServer(t)

	w := httptest.NewRecorder()
	server.writeJSONError(w, http.StatusBadRequest, "test error")

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}

	var errResp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&errResp); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	if errResp["error"] != "test error" {
		t.Errorf("Expected error message 'test error', got '%s'", errResp["error"])
	}
}

func TestServeMuxRoutes(t *testing.T) {
	server, d := setupTestServer(t)
	sessionID, _ := seedTrajectory(t, d)

	mux := server.ServeMux()

	paths := []string{
		"/api/health",
		"/api/sessions",
		"/api/sessions/" + sessionID,
		"/api/verdicts?session_id=" + sessionID,
		"/api/calibration/points",
		"/api/config",
	}
	for _, path := range paths {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()

		mux.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("GET %s: expected status 200, got %d. Body: %s", path, w.Code, w.Body.String())
		}
	}
}

func TestLoggingMiddleware(t *testing.T) {
	handler := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		fmt.Fprint(w, "short and stout")
	}))

	req := httptest.NewRequest(http.MethodGet, "/teapot", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusTeapot {
		t.Errorf("Expected status 418 to pass through, got %d", w.Code)
	}
	if w.Body.String() != "short and stout" {
		t.Errorf("Expected body to pass through, got %q", w.Body.String())
	}
}
