package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang/geo/r2"
	"github.com/google/uuid"

	"github.com/courtsight-data/linecall/internal/config"
	"github.com/courtsight-data/linecall/internal/security"
	"github.com/courtsight-data/linecall/internal/stereo"
	"github.com/courtsight-data/linecall/internal/stereo/calib"
	"github.com/courtsight-data/linecall/internal/version"
)

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "linecall", "version": %q, "uptime_s": %.0f, "timestamp": %q}`,
		version.Version, s.clock.Since(s.started).Seconds(), s.clock.Now().UTC().Format(time.RFC3339))
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	sessions, err := s.sessions.List(r.Context())
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list sessions: %v", err))
		return
	}
	if sessions == nil {
		sessions = []stereo.Session{}
	}
	s.writeJSON(w, sessions)
}

// handleSessionByID serves /api/sessions/{id} and
// /api/sessions/{id}/trajectories.
func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if parts[0] == "" {
		s.writeJSONError(w, http.StatusBadRequest, "session id is required")
		return
	}

	switch {
	case len(parts) == 1:
		s.getSession(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "trajectories":
		s.listSessionTrajectories(w, r, parts[0])
	default:
		s.writeJSONError(w, http.StatusNotFound, "unknown session resource")
	}
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request, id string) {
	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, stereo.ErrNotFound) {
			s.writeJSONError(w, http.StatusNotFound, "session not found")
			return
		}
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load session: %v", err))
		return
	}
	s.writeJSON(w, sess)
}

func (s *Server) listSessionTrajectories(w http.ResponseWriter, r *http.Request, id string) {
	trajectories, err := s.trajectories.ListBySession(r.Context(), id)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list trajectories: %v", err))
		return
	}
	if trajectories == nil {
		trajectories = []stereo.TrajectorySummary{}
	}
	s.writeJSON(w, trajectories)
}

// handleTrajectoryByID serves /api/trajectories/{id},
// /api/trajectories/{id}/points, and /api/trajectories/{id}/export.csv.
func (s *Server) handleTrajectoryByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/trajectories/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if parts[0] == "" {
		s.writeJSONError(w, http.StatusBadRequest, "trajectory id is required")
		return
	}
	id, err := uuid.Parse(parts[0])
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid trajectory id: %v", err))
		return
	}

	switch {
	case len(parts) == 1:
		s.getTrajectory(w, r, id)
	case len(parts) == 2 && parts[1] == "points":
		s.listTrajectoryPoints(w, r, id)
	case len(parts) == 2 && parts[1] == "export.csv":
		s.exportTrajectoryCSV(w, r, id)
	default:
		s.writeJSONError(w, http.StatusNotFound, "unknown trajectory resource")
	}
}

func (s *Server) getTrajectory(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	summary, err := s.trajectories.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, stereo.ErrNotFound) {
			s.writeJSONError(w, http.StatusNotFound, "trajectory not found")
			return
		}
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load trajectory: %v", err))
		return
	}
	s.writeJSON(w, summary)
}

// trackPointAPI controls the JSON shape of one exported track point.
type trackPointAPI struct {
	FrameIndex    int     `json:"frame_index"`
	TNS           int64   `json:"t_ns"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	Z             float64 `json:"z"`
	Residual      float64 `json:"residual"`
	Interpolated  bool    `json:"interpolated"`
	LowConfidence bool    `json:"low_confidence"`
}

func (s *Server) listTrajectoryPoints(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	points, err := s.trajectories.Points(r.Context(), id)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load points: %v", err))
		return
	}
	apiPoints := make([]trackPointAPI, len(points))
	for i, pt := range points {
		apiPoints[i] = trackPointAPI{
			FrameIndex:    pt.FrameIndex,
			TNS:           pt.Time.UnixNano(),
			X:             pt.Position.X,
			Y:             pt.Position.Y,
			Z:             pt.Position.Z,
			Residual:      pt.Residual,
			Interpolated:  pt.Interpolated,
			LowConfidence: pt.LowConfidence,
		}
	}
	s.writeJSON(w, apiPoints)
}

func (s *Server) exportTrajectoryCSV(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	summary, err := s.trajectories.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, stereo.ErrNotFound) {
			s.writeJSONError(w, http.StatusNotFound, "trajectory not found")
			return
		}
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load trajectory: %v", err))
		return
	}
	points, err := s.trajectories.Points(r.Context(), id)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load points: %v", err))
		return
	}

	filename := fmt.Sprintf("linecall_track_%s_seg%d.csv",
		security.SanitizeFilename(summary.ID.String()), summary.Segment)
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	if err := stereo.WriteTrackCSV(w, points); err != nil {
		// Headers are gone; all we can do is log.
		stereo.Diagf("csv export of %s failed mid-stream: %v", id, err)
	}
}

func (s *Server) listVerdicts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		s.writeJSONError(w, http.StatusBadRequest, "missing 'session_id' parameter")
		return
	}
	verdicts, err := s.verdicts.ListBySession(r.Context(), sessionID)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list verdicts: %v", err))
		return
	}
	if verdicts == nil {
		verdicts = []stereo.VerdictRecord{}
	}
	s.writeJSON(w, verdicts)
}

// addPointRequest is the POST /api/calibration/points body.
type addPointRequest struct {
	Camera string  `json:"camera"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Label  string  `json:"label"`
}

func validCamera(camera string) bool {
	return camera == stereo.CameraLeft || camera == stereo.CameraRight
}

// handleCalibrationPoints lists, adds, or clears stored calibration
// points. GET and DELETE accept an optional camera filter; POST
// requires one.
func (s *Server) handleCalibrationPoints(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		camera := r.URL.Query().Get("camera")
		if camera != "" && !validCamera(camera) {
			s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown camera %q", camera))
			return
		}
		points, err := s.calibrations.Points(r.Context(), camera)
		if err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list points: %v", err))
			return
		}
		if points == nil {
			points = []stereo.CalibrationPointRecord{}
		}
		s.writeJSON(w, points)

	case http.MethodPost:
		var req addPointRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		if !validCamera(req.Camera) {
			s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown camera %q", req.Camera))
			return
		}
		rec, err := s.calibrations.AddPoint(r.Context(), req.Camera, r2.Point{X: req.X, Y: req.Y}, req.Label)
		if err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to add point: %v", err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(rec)

	case http.MethodDelete:
		camera := r.URL.Query().Get("camera")
		if camera != "" && !validCamera(camera) {
			s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown camera %q", camera))
			return
		}
		if err := s.calibrations.ClearPoints(r.Context(), camera); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to clear points: %v", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// solveCalibration clusters and auto-labels the stored points against
// the standard reference layout, solves the rig, and records the
// accepted solve.
func (s *Server) solveCalibration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ctx := r.Context()

	records, err := s.calibrations.Points(ctx, "")
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load points: %v", err))
		return
	}
	if len(records) == 0 {
		s.writeJSONError(w, http.StatusBadRequest, "no calibration points stored")
		return
	}

	pointStore := calib.NewPointStore(0)
	for _, rec := range records {
		if _, err := pointStore.AddPoint(rec.Camera, r2.Point{X: rec.Px, Y: rec.Py}); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("stored point %d: %v", rec.ID, err))
			return
		}
	}
	pointStore.Cluster()

	layout := calib.StandardLayout()
	for _, camera := range []string{stereo.CameraLeft, stereo.CameraRight} {
		if err := pointStore.ApplyLayout(camera, layout); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("%s camera: %v", camera, err))
			return
		}
	}

	// The court layout is planar, so the solve pins the principal point
	// at the configured frame centre.
	tuning := s.Tuning()
	calibrator := calib.DefaultCalibrator()
	calibrator.PrincipalPrior = r2.Point{
		X: float64(tuning.GetFrameWidth()) / 2,
		Y: float64(tuning.GetFrameHeight()) / 2,
	}
	params, report, err := calibrator.CalibrateStore(pointStore, layout)
	if err != nil {
		var fitErr *calib.FitError
		switch {
		case errors.As(err, &fitErr):
			s.writeJSONError(w, http.StatusUnprocessableEntity, fitErr.Error())
		case errors.Is(err, calib.ErrInsufficientPoints):
			s.writeJSONError(w, http.StatusBadRequest, err.Error())
		default:
			s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("calibration failed: %v", err))
		}
		return
	}

	rec := stereo.RecordFromParameters(*params, report.RMSPixels, report.PointCount, time.Now())
	rec.Accepted = true
	if err := s.calibrations.SaveCalibration(ctx, &rec); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to save calibration: %v", err))
		return
	}
	s.writeJSON(w, rec)
}

func (s *Server) latestCalibration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rec, err := s.calibrations.LatestCalibration(r.Context())
	if err != nil {
		if errors.Is(err, stereo.ErrNotFound) {
			s.writeJSONError(w, http.StatusNotFound, "no calibration solved yet")
			return
		}
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load calibration: %v", err))
		return
	}
	s.writeJSON(w, rec)
}

// handleConfig serves the effective tuning config and accepts partial
// updates. GET returns every field populated (defaults merged under
// the active overrides); PATCH overlays the request body onto the
// active config after validation.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, config.DefaultTuningConfig().Merge(s.Tuning()))

	case http.MethodPatch:
		var patch config.TuningConfig
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		s.mu.Lock()
		merged := s.tuning.Merge(&patch)
		// Cross-field checks only fire when both fields are set, so
		// validate the effective config rather than the sparse one.
		if err := config.DefaultTuningConfig().Merge(merged).Validate(); err != nil {
			s.mu.Unlock()
			s.writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.tuning = merged
		s.mu.Unlock()
		stereo.Opsf("tuning config updated via api")
		s.writeJSON(w, config.DefaultTuningConfig().Merge(merged))

	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
