package monitor

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/google/uuid"

	"github.com/courtsight-data/linecall/internal/stereo"
	"github.com/courtsight-data/linecall/internal/units"
)

// echartsAssetsPrefix is where chart pages load the echarts JS bundle
// from. The public CDN keeps the binary self-contained.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// viridis is the shared visual-map palette for scatter charts.
var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// handleTrajectoryChart renders one trajectory as an HTML page with a
// top-down scatter (colored by height) and a height-over-frame line.
// Query params:
//   - id (required): trajectory UUID
//   - units (optional): peak speed units, default kph
func (m *Monitor) handleTrajectoryChart(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("id")
	if raw == "" {
		m.writeJSONError(w, http.StatusBadRequest, "missing 'id' parameter")
		return
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		m.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid trajectory id: %v", err))
		return
	}
	unit := r.URL.Query().Get("units")
	if unit == "" {
		unit = units.KPH
	}
	if !units.IsValid(unit) {
		m.writeJSONError(w, http.StatusBadRequest,
			fmt.Sprintf("invalid units %q; valid units are: %s", unit, units.GetValidUnitsString()))
		return
	}

	ctx := r.Context()
	summary, err := m.trajectories.Get(ctx, id)
	if err != nil {
		if errors.Is(err, stereo.ErrNotFound) {
			m.writeJSONError(w, http.StatusNotFound, "trajectory not found")
			return
		}
		m.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load trajectory: %v", err))
		return
	}
	points, err := m.trajectories.Points(ctx, id)
	if err != nil {
		m.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load points: %v", err))
		return
	}
	if len(points) == 0 {
		m.writeJSONError(w, http.StatusNotFound, "trajectory has no points")
		return
	}
	bounces, err := m.trajectories.Bounces(ctx, id)
	if err != nil {
		m.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load bounces: %v", err))
		return
	}

	data := make([]opts.ScatterData, 0, len(points))
	maxZ := 0.0
	for _, pt := range points {
		if pt.Position.Z > maxZ {
			maxZ = pt.Position.Z
		}
		data = append(data, opts.ScatterData{Value: []interface{}{pt.Position.X, pt.Position.Y, pt.Position.Z}})
	}
	if maxZ == 0 {
		maxZ = 1
	}
	bounceData := make([]opts.ScatterData, 0, len(bounces))
	for _, b := range bounces {
		bounceData = append(bounceData, opts.ScatterData{Value: []interface{}{b.Position.X, b.Position.Y, b.Position.Z}})
	}

	peak := units.ConvertSpeed(stereo.PeakSpeed(points), unit)
	subtitle := fmt.Sprintf("id=%s segment=%d frames=%d..%d points=%d bounces=%d peak=%.1f %s",
		summary.ID, summary.Segment, summary.StartFrame, summary.EndFrame, len(points), len(bounces), peak, unit)

	// Axis ranges cover the court plus run-off so every point is
	// visible in court coordinates.
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Trajectory", Theme: "dark", Width: "600px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Trajectory (top-down)", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -8, Max: 8, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -15, Max: 15, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxZ),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries("track", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	if len(bounceData) > 0 {
		scatter.AddSeries("bounces", bounceData,
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 14}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ff5252"}),
		)
	}

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(scatter, heightLine(*summary, points))

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		m.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// heightLine builds the height-over-frame chart for one trajectory.
func heightLine(summary stereo.TrajectorySummary, points []stereo.TrackPoint3D) *charts.Line {
	frames := make([]string, 0, len(points))
	heights := make([]opts.LineData, 0, len(points))
	for _, pt := range points {
		frames = append(frames, strconv.Itoa(pt.FrameIndex))
		heights = append(heights, opts.LineData{Value: pt.Position.Z})
	}
	height := charts.NewLine()
	height.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "400px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Height profile segment %d", summary.Segment),
			Subtitle: fmt.Sprintf("id=%s frames=%d..%d", summary.ID, summary.StartFrame, summary.EndFrame),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "frame"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Z (m)"}),
	)
	height.SetXAxis(frames).AddSeries("height", heights)
	return height
}

// residualLine builds the residual-over-frame chart for one trajectory,
// with the acceptance threshold drawn as a reference series.
func residualLine(summary stereo.TrajectorySummary, points []stereo.TrackPoint3D, maxResidual float64) *charts.Line {
	frames := make([]string, 0, len(points))
	residuals := make([]opts.LineData, 0, len(points))
	threshold := make([]opts.LineData, 0, len(points))
	for _, pt := range points {
		frames = append(frames, strconv.Itoa(pt.FrameIndex))
		residuals = append(residuals, opts.LineData{Value: pt.Residual})
		threshold = append(threshold, opts.LineData{Value: maxResidual})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "300px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Residuals segment %d", summary.Segment),
			Subtitle: fmt.Sprintf("id=%s frames=%d..%d", summary.ID, summary.StartFrame, summary.EndFrame),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "frame"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "residual (m)"}),
	)
	line.SetXAxis(frames).
		AddSeries("residual", residuals).
		AddSeries("max residual", threshold)
	return line
}

// maxResidualCharts caps how many trajectories one residual page loads.
const maxResidualCharts = 12

// handleResidualsChart renders a residual-over-frame line chart per
// trajectory of a session, each with the acceptance threshold drawn as
// a reference series.
// Query params:
//   - session_id (required)
func (m *Monitor) handleResidualsChart(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		m.writeJSONError(w, http.StatusBadRequest, "missing 'session_id' parameter")
		return
	}

	ctx := r.Context()
	summaries, err := m.trajectories.ListBySession(ctx, sessionID)
	if err != nil {
		m.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list trajectories: %v", err))
		return
	}
	if len(summaries) == 0 {
		m.writeJSONError(w, http.StatusNotFound, "no trajectories for session")
		return
	}
	if len(summaries) > maxResidualCharts {
		summaries = summaries[:maxResidualCharts]
	}

	maxResidual := m.tuning.GetMaxResidualM()

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)

	for _, summary := range summaries {
		points, err := m.trajectories.Points(ctx, summary.ID)
		if err != nil {
			m.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load points: %v", err))
			return
		}
		page.AddCharts(residualLine(summary, points, maxResidual))
	}

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		m.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
