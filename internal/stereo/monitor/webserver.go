// Package monitor serves the debugging web pages for the stereo
// pipeline: interactive trajectory and residual charts rendered with
// go-echarts, a court diagram PNG rendered with gonum/plot, and a
// latest-call banner. These endpoints are debugging-only (no auth) and
// read straight from the stores.
package monitor

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/courtsight-data/linecall/internal/config"
	"github.com/courtsight-data/linecall/internal/stereo"
	"github.com/courtsight-data/linecall/internal/stereo/l5court"
)

// Monitor holds the stores and tuning needed by the debug handlers.
type Monitor struct {
	trajectories *stereo.TrajectoryStore
	verdicts     *stereo.VerdictStore
	court        *l5court.CourtModel
	tuning       *config.TuningConfig
}

// Config wires a Monitor.
type Config struct {
	DB     *sql.DB
	Court  *l5court.CourtModel
	Tuning *config.TuningConfig
}

// New creates a Monitor over the given database. A nil Court falls
// back to the standard court; a nil Tuning falls back to defaults.
func New(cfg Config) *Monitor {
	court := cfg.Court
	if court == nil {
		court = l5court.NewCourtModel(l5court.DefaultLineWidthM)
	}
	tuning := cfg.Tuning
	if tuning == nil {
		tuning = config.EmptyTuningConfig()
	}
	return &Monitor{
		trajectories: stereo.NewTrajectoryStore(cfg.DB),
		verdicts:     stereo.NewVerdictStore(cfg.DB),
		court:        court,
		tuning:       tuning,
	}
}

// Register attaches the debug chart routes to mux.
func (m *Monitor) Register(mux *http.ServeMux) {
	mux.HandleFunc("/debug/trajectory", m.handleTrajectoryChart)
	mux.HandleFunc("/debug/residuals", m.handleResidualsChart)
	mux.HandleFunc("/debug/court", m.handleCourtPlot)
	mux.HandleFunc("/debug/latest", m.handleLatestCall)
}

func (m *Monitor) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
