package stereo

import (
	"encoding/csv"
	"io"
	"strconv"
)

// WriteTrackCSV writes a trajectory's points as CSV with a header
// row. Times are Unix nanoseconds, coordinates metres.
func WriteTrackCSV(w io.Writer, points []TrackPoint3D) error {
	cw := csv.NewWriter(w)

	header := []string{"frame_index", "t_ns", "x", "y", "z", "residual", "interpolated", "low_confidence"}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, p := range points {
		row := []string{
			strconv.Itoa(p.FrameIndex),
			strconv.FormatInt(p.Time.UnixNano(), 10),
			strconv.FormatFloat(p.Position.X, 'g', -1, 64),
			strconv.FormatFloat(p.Position.Y, 'g', -1, 64),
			strconv.FormatFloat(p.Position.Z, 'g', -1, 64),
			strconv.FormatFloat(p.Residual, 'g', -1, 64),
			strconv.FormatBool(p.Interpolated),
			strconv.FormatBool(p.LowConfidence),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
