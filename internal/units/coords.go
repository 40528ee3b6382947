package units

// Calibration point files store pixel coordinates normalized to [0,1] so the
// same point set can be applied to footage at different resolutions. These
// helpers convert between normalized and absolute pixel space for a given
// frame size.

// NormalizedToPixelX converts a normalized x coordinate to pixels.
func NormalizedToPixelX(nx float64, width int) float64 {
	return nx * float64(width)
}

// NormalizedToPixelY converts a normalized y coordinate to pixels.
func NormalizedToPixelY(ny float64, height int) float64 {
	return ny * float64(height)
}

// PixelToNormalizedX converts an absolute pixel x coordinate to [0,1].
// Width must be positive; a zero width returns 0 rather than dividing by zero.
func PixelToNormalizedX(px float64, width int) float64 {
	if width <= 0 {
		return 0
	}
	return px / float64(width)
}

// PixelToNormalizedY converts an absolute pixel y coordinate to [0,1].
func PixelToNormalizedY(py float64, height int) float64 {
	if height <= 0 {
		return 0
	}
	return py / float64(height)
}

// InUnitInterval reports whether v lies in [0,1] with a small slack for
// points clicked on the last row/column of the frame.
func InUnitInterval(v float64) bool {
	const slack = 1e-9
	return v >= -slack && v <= 1+slack
}
