package monitor

import (
	"context"
	"fmt"
	"image/color"
	"io"
	"net/http"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/courtsight-data/linecall/internal/stereo"
)

// courtPlot builds the court-line plot with one marker per verdict,
// colored by the in/out call using the analysis tuning colors.
func (m *Monitor) courtPlot(title string, verdicts []stereo.VerdictRecord) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"
	p.X.Min, p.X.Max = -8, 8
	p.Y.Min, p.Y.Max = -14, 14

	for _, line := range m.court.Lines {
		seg, err := plotter.NewLine(plotter.XYs{
			{X: line.A.X, Y: line.A.Y},
			{X: line.B.X, Y: line.B.Y},
		})
		if err != nil {
			return nil, fmt.Errorf("draw court: %w", err)
		}
		seg.Color = color.Gray{Y: 96}
		seg.Width = vg.Points(1.5)
		p.Add(seg)
	}

	var in, out plotter.XYs
	for _, v := range verdicts {
		pt := plotter.XY{X: v.X, Y: v.Y}
		if v.InBounds {
			in = append(in, pt)
		} else {
			out = append(out, pt)
		}
	}

	if len(in) > 0 {
		sc, err := plotter.NewScatter(in)
		if err != nil {
			return nil, fmt.Errorf("plot bounces: %w", err)
		}
		sc.GlyphStyle.Color = parseHexColor(m.tuning.GetInBoundsColor(), color.RGBA{G: 255, A: 255})
		sc.GlyphStyle.Radius = vg.Points(4)
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(sc)
		p.Legend.Add("in", sc)
	}
	if len(out) > 0 {
		sc, err := plotter.NewScatter(out)
		if err != nil {
			return nil, fmt.Errorf("plot bounces: %w", err)
		}
		sc.GlyphStyle.Color = parseHexColor(m.tuning.GetOutBoundsColor(), color.RGBA{R: 255, A: 255})
		sc.GlyphStyle.Radius = vg.Points(4)
		sc.GlyphStyle.Shape = draw.PyramidGlyph{}
		p.Add(sc)
		p.Legend.Add("out", sc)
	}
	p.Legend.Top = true

	return p, nil
}

// WriteCourtPNG renders the court plot of a session's verdicts to w.
func (m *Monitor) WriteCourtPNG(ctx context.Context, sessionID string, w io.Writer) error {
	verdicts, err := m.verdicts.ListBySession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("list verdicts: %w", err)
	}
	p, err := m.courtPlot(fmt.Sprintf("Bounces for session %s", sessionID), verdicts)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(6*vg.Inch, 10*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("render court plot: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write court plot: %w", err)
	}
	return nil
}

// handleCourtPlot renders a PNG of the court lines with one marker per
// verdict.
// Query params:
//   - session_id (required)
func (m *Monitor) handleCourtPlot(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		m.writeJSONError(w, http.StatusBadRequest, "missing 'session_id' parameter")
		return
	}

	verdicts, err := m.verdicts.ListBySession(r.Context(), sessionID)
	if err != nil {
		m.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list verdicts: %v", err))
		return
	}

	p, err := m.courtPlot(fmt.Sprintf("Bounces for session %s", sessionID), verdicts)
	if err != nil {
		m.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to %v", err))
		return
	}

	wt, err := p.WriterTo(6*vg.Inch, 10*vg.Inch, "png")
	if err != nil {
		m.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render court plot: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := wt.WriteTo(w); err != nil {
		return
	}
}

// parseHexColor converts "#RRGGBB" to a color, falling back when the
// string does not parse. Tuning validation normally rejects bad colors
// before they get here.
func parseHexColor(s string, fallback color.RGBA) color.RGBA {
	if len(s) != 7 || s[0] != '#' {
		return fallback
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return fallback
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}
}
