package monitor

import (
	"fmt"
	"html"
	"math"
	"net/http"
)

// handleLatestCall serves a self-refreshing page showing the most
// recent line call of a session as a colored banner. In-bounds calls
// show solid, out-of-bounds calls blink at the tuned rate.
// Query params:
//   - session_id (required)
func (m *Monitor) handleLatestCall(w http.ResponseWriter, r *http.Request) {
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

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if len(verdicts) == 0 {
		writeCallPage(w, "#808080", "NO CALL", fmt.Sprintf("no calls yet for session %s", html.EscapeString(sessionID)), 0)
		return
	}

	v := verdicts[len(verdicts)-1]
	label, bg := "IN", m.tuning.GetInBoundsColor()
	blinkHz := 0.0
	if !v.InBounds {
		label, bg = "OUT", m.tuning.GetOutBoundsColor()
		blinkHz = m.tuning.GetBlinkRate()
	}
	detail := fmt.Sprintf("%s, %.0f mm from %s, %s confidence, frame %d",
		label, 1000*math.Abs(v.DistanceM), html.EscapeString(v.NearestLine), v.Confidence, v.FrameIndex)
	writeCallPage(w, bg, label, detail, blinkHz)
}

// writeCallPage renders the banner page. A blinkHz of 0 disables the
// blink; otherwise one on/off cycle takes 1/blinkHz seconds, like the
// hardware indicator this page stands in for.
func writeCallPage(w http.ResponseWriter, bg, label, detail string, blinkHz float64) {
	class := "banner"
	style := fmt.Sprintf("background: %s", bg)
	if blinkHz > 0 {
		class = "banner blink"
		style += fmt.Sprintf("; animation-duration: %.3fs", 1/blinkHz)
	}
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
<title>latest call</title>
<meta http-equiv="refresh" content="2">
<style>
	body { margin: 0; font-family: sans-serif; }
	.banner { height: 60vh; display: flex; align-items: center; justify-content: center;
		font-size: 18vh; font-weight: bold; color: white; }
	.detail { padding: 2em; font-size: 1.2em; color: #333; }
	@keyframes blink { 50%% { visibility: hidden; } }
	.blink { animation: blink 1s step-start infinite; }
</style>
</head>
<body>
	<div class=%q style=%q>%s</div>
	<div class="detail">%s</div>
</body>
</html>`, class, style, label, detail)
}
