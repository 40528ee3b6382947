// Package api serves the JSON API for sessions, trajectories,
// verdicts, calibration, and tuning configuration.
package api

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/courtsight-data/linecall/internal/config"
	"github.com/courtsight-data/linecall/internal/stereo"
	"github.com/courtsight-data/linecall/internal/timeutil"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// colorEnabled is resolved once at startup: request logs are colored
// only when stdout is a terminal.
var colorEnabled = func() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}()

// Server answers the /api routes. Tuning updates arrive through
// PATCH /api/config, so reads of the current tuning go through Tuning.
type Server struct {
	sessions     *stereo.SessionStore
	trajectories *stereo.TrajectoryStore
	verdicts     *stereo.VerdictStore
	calibrations *stereo.CalibrationStore

	mu     sync.RWMutex
	tuning *config.TuningConfig

	clock   timeutil.Clock
	started time.Time
}

// NewServer builds a Server over the open database. tuning may be nil
// for an all-defaults configuration.
func NewServer(db *sql.DB, tuning *config.TuningConfig) *Server {
	if tuning == nil {
		tuning = config.EmptyTuningConfig()
	}
	clock := timeutil.RealClock{}
	return &Server{
		sessions:     stereo.NewSessionStore(db),
		trajectories: stereo.NewTrajectoryStore(db),
		verdicts:     stereo.NewVerdictStore(db),
		calibrations: stereo.NewCalibrationStore(db),
		tuning:       tuning,
		clock:        clock,
		started:      clock.Now(),
	}
}

// Tuning returns the currently active tuning config.
func (s *Server) Tuning() *config.TuningConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tuning
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	if !colorEnabled {
		return strconv.Itoa(statusCode)
	}
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		cyan, reset := colorCyan, colorReset
		if !colorEnabled {
			cyan, reset = "", ""
		}
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			cyan, r.RequestURI, reset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/sessions/", s.handleSessionByID)
	mux.HandleFunc("/api/trajectories/", s.handleTrajectoryByID)
	mux.HandleFunc("/api/verdicts", s.listVerdicts)
	mux.HandleFunc("/api/calibration/points", s.handleCalibrationPoints)
	mux.HandleFunc("/api/calibration/solve", s.solveCalibration)
	mux.HandleFunc("/api/calibration/latest", s.latestCalibration)
	mux.HandleFunc("/api/config", s.handleConfig)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "failed to write response")
	}
}
