package monitor

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/courtsight-data/linecall/internal/stereo"
	"github.com/courtsight-data/linecall/internal/units"
)

// maxReportSegments caps how many per-segment chart pairs one report
// renders. The overview scatter always covers the whole session.
const maxReportSegments = 12

// WriteSessionReport renders a session's trajectories and verdicts as
// one self-contained HTML page: a top-down overview of every segment
// with verdict markers, then a height profile and residual chart per
// segment.
func (m *Monitor) WriteSessionReport(ctx context.Context, sess *stereo.Session, w io.Writer) error {
	summaries, err := m.trajectories.ListBySession(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("list trajectories: %w", err)
	}
	if len(summaries) == 0 {
		return fmt.Errorf("session %s has no trajectories", sess.ID)
	}
	verdicts, err := m.verdicts.ListBySession(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("list verdicts: %w", err)
	}

	type segment struct {
		summary stereo.TrajectorySummary
		points  []stereo.TrackPoint3D
	}
	segments := make([]segment, 0, len(summaries))
	var peakMPS float64
	for _, summary := range summaries {
		points, err := m.trajectories.Points(ctx, summary.ID)
		if err != nil {
			return fmt.Errorf("load points for %s: %w", summary.ID, err)
		}
		if p := stereo.PeakSpeed(points); p > peakMPS {
			peakMPS = p
		}
		segments = append(segments, segment{summary: summary, points: points})
	}

	subtitle := fmt.Sprintf("session=%s source=%s started=%s segments=%d verdicts=%d peak=%.0f kph",
		sess.ID, sess.Source, sess.StartedAt.Format(time.RFC3339), len(summaries), len(verdicts),
		units.ConvertSpeed(peakMPS, units.KPH))

	overview := charts.NewScatter()
	overview.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: fmt.Sprintf("Session %s", sess.Name), Theme: "dark", Width: "600px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("Session %q (top-down)", sess.Name), Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -8, Max: 8, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -15, Max: 15, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
	)

	for _, seg := range segments {
		data := make([]opts.ScatterData, 0, len(seg.points))
		for _, pt := range seg.points {
			data = append(data, opts.ScatterData{Value: []interface{}{pt.Position.X, pt.Position.Y}})
		}
		overview.AddSeries(fmt.Sprintf("segment %d", seg.summary.Segment), data,
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 5}))
	}

	var in, out []opts.ScatterData
	for _, v := range verdicts {
		d := opts.ScatterData{Value: []interface{}{v.X, v.Y}}
		if v.InBounds {
			in = append(in, d)
		} else {
			out = append(out, d)
		}
	}
	if len(in) > 0 {
		overview.AddSeries("in", in,
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 14}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: m.tuning.GetInBoundsColor()}),
		)
	}
	if len(out) > 0 {
		overview.AddSeries("out", out,
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 14}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: m.tuning.GetOutBoundsColor()}),
		)
	}

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(overview)

	if len(segments) > maxReportSegments {
		segments = segments[:maxReportSegments]
	}
	maxResidual := m.tuning.GetMaxResidualM()
	for _, seg := range segments {
		page.AddCharts(heightLine(seg.summary, seg.points), residualLine(seg.summary, seg.points, maxResidual))
	}

	if err := page.Render(w); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}
