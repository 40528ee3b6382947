package stereo

// Standard tennis court dimensions in metres. The world frame puts the
// origin at court centre on the net line, x across the court, y along it
// toward the far baseline, z up.
const (
	CourtLengthM        = 23.77
	SinglesWidthM       = 8.23
	DoublesWidthM       = 10.97
	ServiceLineFromNetM = 6.40

	HalfCourtLengthM  = CourtLengthM / 2
	HalfSinglesWidthM = SinglesWidthM / 2
	HalfDoublesWidthM = DoublesWidthM / 2
)
