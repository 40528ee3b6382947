package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig is the root configuration for detection and judgment
// tuning. The schema matches the /api/config endpoint so the same
// JSON serves startup configuration and runtime updates. Every field
// is an optional pointer; the Get* methods fall back to the
// documented defaults, so partial configs are safe.
type TuningConfig struct {
	Camera        *CameraSection        `json:"camera,omitempty"`
	Detection     *DetectionSection     `json:"detection,omitempty"`
	Matching      *MatchingSection      `json:"matching,omitempty"`
	Triangulation *TriangulationSection `json:"triangulation,omitempty"`
	Trajectory    *TrajectorySection    `json:"trajectory,omitempty"`
	Judgment      *JudgmentSection      `json:"judgment,omitempty"`
	Analysis      *AnalysisSection      `json:"analysis,omitempty"`
}

// CameraSection describes the expected frame geometry.
type CameraSection struct {
	Width  *int     `json:"width,omitempty"`
	Height *int     `json:"height,omitempty"`
	FPS    *float64 `json:"fps,omitempty"`
}

// DetectionSection tunes the per-camera ball detector.
type DetectionSection struct {
	HSVLow               *[3]int  `json:"hsv_low,omitempty"`  // H∈[0,180), S,V∈[0,255]
	HSVHigh              *[3]int  `json:"hsv_high,omitempty"` // Inclusive upper bounds
	ErodeIterations      *int     `json:"erode_iterations,omitempty"`
	DilateIterations     *int     `json:"dilate_iterations,omitempty"`
	MinContourArea       *int     `json:"min_contour_area,omitempty"`
	DiffThreshold        *int     `json:"diff_threshold,omitempty"` // Grayscale delta for motion candidates
	MaxJumpPx            *float64 `json:"max_jump_px,omitempty"`    // Plausible inter-frame travel
	ShapeFallback        *bool    `json:"shape_fallback,omitempty"`
	ShapeFallbackBelow   *float64 `json:"shape_fallback_below,omitempty"`
	MinRadiusPx          *int     `json:"min_radius_px,omitempty"`
	MaxRadiusPx          *int     `json:"max_radius_px,omitempty"`
	AccumulatorThreshold *int     `json:"accumulator_threshold,omitempty"`
}

// MatchingSection tunes left/right correspondence.
type MatchingSection struct {
	EpipolarTolerancePx *float64 `json:"epipolar_tolerance_px,omitempty"`
	MinDisparityPx      *float64 `json:"min_disparity_px,omitempty"`
	MaxDisparityPx      *float64 `json:"max_disparity_px,omitempty"`
}

// TriangulationSection tunes ray intersection acceptance.
type TriangulationSection struct {
	MaxResidualM *float64 `json:"max_residual_m,omitempty"` // Ray gap above this marks low confidence
}

// TrajectorySection tunes segmenting, interpolation, and bounce
// detection.
type TrajectorySection struct {
	SegmentGapFrames     *int     `json:"segment_gap_frames,omitempty"`
	MaxInterpolateGap    *int     `json:"max_interpolate_gap,omitempty"`
	BounceMinDownwardMps *float64 `json:"bounce_min_downward_mps,omitempty"`
	BounceMaxHeightM     *float64 `json:"bounce_max_height_m,omitempty"`
}

// JudgmentSection tunes line calling.
type JudgmentSection struct {
	LineWidthM *float64 `json:"line_width_m,omitempty"`
}

// AnalysisSection carries presentation thresholds used by the monitor
// and API consumers.
type AnalysisSection struct {
	DetectionThreshold *float64 `json:"detection_threshold,omitempty"` // Hide detections below this confidence
	InBoundsColor      *string  `json:"in_bounds_color,omitempty"`     // #RRGGBB
	OutBoundsColor     *string  `json:"out_bounds_color,omitempty"`    // #RRGGBB
	BlinkRate          *float64 `json:"blink_rate,omitempty"`          // Hz, verdict display flash
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrHSV(h, s, v int) *[3]int    { return &[3]int{h, s, v} }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated
// with its default. The values here and in config/tuning.defaults.json
// must agree; TestDefaultsFileMatchesCode keeps them honest.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		Camera: &CameraSection{
			Width:  ptrInt(640),
			Height: ptrInt(480),
			FPS:    ptrFloat64(30),
		},
		Detection: &DetectionSection{
			HSVLow:               ptrHSV(25, 50, 50),
			HSVHigh:              ptrHSV(65, 255, 255),
			ErodeIterations:      ptrInt(1),
			DilateIterations:     ptrInt(2),
			MinContourArea:       ptrInt(50),
			DiffThreshold:        ptrInt(30),
			MaxJumpPx:            ptrFloat64(80),
			ShapeFallback:        ptrBool(false),
			ShapeFallbackBelow:   ptrFloat64(0.3),
			MinRadiusPx:          ptrInt(5),
			MaxRadiusPx:          ptrInt(50),
			AccumulatorThreshold: ptrInt(18),
		},
		Matching: &MatchingSection{
			EpipolarTolerancePx: ptrFloat64(10),
			MinDisparityPx:      ptrFloat64(1),
			MaxDisparityPx:      ptrFloat64(400),
		},
		Triangulation: &TriangulationSection{
			MaxResidualM: ptrFloat64(0.15),
		},
		Trajectory: &TrajectorySection{
			SegmentGapFrames:     ptrInt(30),
			MaxInterpolateGap:    ptrInt(5),
			BounceMinDownwardMps: ptrFloat64(0.5),
			BounceMaxHeightM:     ptrFloat64(0.3),
		},
		Judgment: &JudgmentSection{
			LineWidthM: ptrFloat64(0.05),
		},
		Analysis: &AnalysisSection{
			DetectionThreshold: ptrFloat64(0.75),
			InBoundsColor:      ptrString("#00FF00"),
			OutBoundsColor:     ptrString("#FF0000"),
			BlinkRate:          ptrFloat64(10),
		},
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under
// the max file size. Fields omitted from the JSON file retain their
// default values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath. It searches for the file in the current directory
// and common parent directories. Panics if the file cannot be loaded,
// intended for test setup and binary startup after flag parsing.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from internal/stereo/l2detect/ and siblings
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run from repository root")
}

// Validate checks that the configuration values are consistent.
func (c *TuningConfig) Validate() error {
	if s := c.Camera; s != nil {
		if s.Width != nil && *s.Width <= 0 {
			return fmt.Errorf("camera.width must be positive, got %d", *s.Width)
		}
		if s.Height != nil && *s.Height <= 0 {
			return fmt.Errorf("camera.height must be positive, got %d", *s.Height)
		}
		if s.FPS != nil && *s.FPS <= 0 {
			return fmt.Errorf("camera.fps must be positive, got %f", *s.FPS)
		}
	}
	if s := c.Detection; s != nil {
		if err := validateHSV("detection.hsv_low", s.HSVLow); err != nil {
			return err
		}
		if err := validateHSV("detection.hsv_high", s.HSVHigh); err != nil {
			return err
		}
		if s.HSVLow != nil && s.HSVHigh != nil {
			for i := 0; i < 3; i++ {
				if s.HSVLow[i] > s.HSVHigh[i] {
					return fmt.Errorf("detection.hsv_low[%d]=%d exceeds hsv_high[%d]=%d",
						i, s.HSVLow[i], i, s.HSVHigh[i])
				}
			}
		}
		if s.ErodeIterations != nil && *s.ErodeIterations < 0 {
			return fmt.Errorf("detection.erode_iterations must be non-negative, got %d", *s.ErodeIterations)
		}
		if s.DilateIterations != nil && *s.DilateIterations < 0 {
			return fmt.Errorf("detection.dilate_iterations must be non-negative, got %d", *s.DilateIterations)
		}
		if s.MinContourArea != nil && *s.MinContourArea < 1 {
			return fmt.Errorf("detection.min_contour_area must be at least 1, got %d", *s.MinContourArea)
		}
		if s.DiffThreshold != nil && (*s.DiffThreshold < 0 || *s.DiffThreshold > 255) {
			return fmt.Errorf("detection.diff_threshold must be in [0,255], got %d", *s.DiffThreshold)
		}
		if s.MaxJumpPx != nil && *s.MaxJumpPx <= 0 {
			return fmt.Errorf("detection.max_jump_px must be positive, got %f", *s.MaxJumpPx)
		}
		if s.ShapeFallbackBelow != nil && (*s.ShapeFallbackBelow < 0 || *s.ShapeFallbackBelow > 1) {
			return fmt.Errorf("detection.shape_fallback_below must be in [0,1], got %f", *s.ShapeFallbackBelow)
		}
		if s.MinRadiusPx != nil && s.MaxRadiusPx != nil && *s.MinRadiusPx > *s.MaxRadiusPx {
			return fmt.Errorf("detection.min_radius_px=%d exceeds max_radius_px=%d", *s.MinRadiusPx, *s.MaxRadiusPx)
		}
	}
	if s := c.Matching; s != nil {
		if s.EpipolarTolerancePx != nil && *s.EpipolarTolerancePx <= 0 {
			return fmt.Errorf("matching.epipolar_tolerance_px must be positive, got %f", *s.EpipolarTolerancePx)
		}
		if s.MinDisparityPx != nil && *s.MinDisparityPx <= 0 {
			return fmt.Errorf("matching.min_disparity_px must be positive, got %f", *s.MinDisparityPx)
		}
		if s.MinDisparityPx != nil && s.MaxDisparityPx != nil && *s.MinDisparityPx >= *s.MaxDisparityPx {
			return fmt.Errorf("matching.min_disparity_px=%f must be below max_disparity_px=%f",
				*s.MinDisparityPx, *s.MaxDisparityPx)
		}
	}
	if s := c.Triangulation; s != nil {
		if s.MaxResidualM != nil && *s.MaxResidualM <= 0 {
			return fmt.Errorf("triangulation.max_residual_m must be positive, got %f", *s.MaxResidualM)
		}
	}
	if s := c.Trajectory; s != nil {
		if s.SegmentGapFrames != nil && *s.SegmentGapFrames < 1 {
			return fmt.Errorf("trajectory.segment_gap_frames must be at least 1, got %d", *s.SegmentGapFrames)
		}
		if s.MaxInterpolateGap != nil && *s.MaxInterpolateGap < 0 {
			return fmt.Errorf("trajectory.max_interpolate_gap must be non-negative, got %d", *s.MaxInterpolateGap)
		}
		if s.BounceMinDownwardMps != nil && *s.BounceMinDownwardMps < 0 {
			return fmt.Errorf("trajectory.bounce_min_downward_mps must be non-negative, got %f", *s.BounceMinDownwardMps)
		}
		if s.BounceMaxHeightM != nil && *s.BounceMaxHeightM <= 0 {
			return fmt.Errorf("trajectory.bounce_max_height_m must be positive, got %f", *s.BounceMaxHeightM)
		}
	}
	if s := c.Judgment; s != nil {
		if s.LineWidthM != nil && *s.LineWidthM < 0 {
			return fmt.Errorf("judgment.line_width_m must be non-negative, got %f", *s.LineWidthM)
		}
	}
	if s := c.Analysis; s != nil {
		if s.DetectionThreshold != nil && (*s.DetectionThreshold < 0 || *s.DetectionThreshold > 1) {
			return fmt.Errorf("analysis.detection_threshold must be in [0,1], got %f", *s.DetectionThreshold)
		}
		if err := validateColor("analysis.in_bounds_color", s.InBoundsColor); err != nil {
			return err
		}
		if err := validateColor("analysis.out_bounds_color", s.OutBoundsColor); err != nil {
			return err
		}
		if s.BlinkRate != nil && *s.BlinkRate <= 0 {
			return fmt.Errorf("analysis.blink_rate must be positive, got %f", *s.BlinkRate)
		}
	}
	return nil
}

func validateHSV(name string, v *[3]int) error {
	if v == nil {
		return nil
	}
	if v[0] < 0 || v[0] > 179 {
		return fmt.Errorf("%s hue must be in [0,179], got %d", name, v[0])
	}
	for i := 1; i < 3; i++ {
		if v[i] < 0 || v[i] > 255 {
			return fmt.Errorf("%s component %d must be in [0,255], got %d", name, i, v[i])
		}
	}
	return nil
}

func validateColor(name string, c *string) error {
	if c == nil {
		return nil
	}
	s := *c
	if len(s) != 7 || s[0] != '#' {
		return fmt.Errorf("%s must be #RRGGBB, got %q", name, s)
	}
	for _, r := range s[1:] {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return fmt.Errorf("%s must be #RRGGBB, got %q", name, s)
		}
	}
	return nil
}

// GetFrameWidth returns the camera.width value or the default.
func (c *TuningConfig) GetFrameWidth() int {
	if c.Camera == nil || c.Camera.Width == nil {
		return 640
	}
	return *c.Camera.Width
}

// GetFrameHeight returns the camera.height value or the default.
func (c *TuningConfig) GetFrameHeight() int {
	if c.Camera == nil || c.Camera.Height == nil {
		return 480
	}
	return *c.Camera.Height
}

// GetFPS returns the camera.fps value or the default.
func (c *TuningConfig) GetFPS() float64 {
	if c.Camera == nil || c.Camera.FPS == nil {
		return 30
	}
	return *c.Camera.FPS
}

// GetHSVLow returns the detection.hsv_low value or the default.
func (c *TuningConfig) GetHSVLow() [3]int {
	if c.Detection == nil || c.Detection.HSVLow == nil {
		return [3]int{25, 50, 50}
	}
	return *c.Detection.HSVLow
}

// GetHSVHigh returns the detection.hsv_high value or the default.
func (c *TuningConfig) GetHSVHigh() [3]int {
	if c.Detection == nil || c.Detection.HSVHigh == nil {
		return [3]int{65, 255, 255}
	}
	return *c.Detection.HSVHigh
}

// GetErodeIterations returns the detection.erode_iterations value or the default.
func (c *TuningConfig) GetErodeIterations() int {
	if c.Detection == nil || c.Detection.ErodeIterations == nil {
		return 1
	}
	return *c.Detection.ErodeIterations
}

// GetDilateIterations returns the detection.dilate_iterations value or the default.
func (c *TuningConfig) GetDilateIterations() int {
	if c.Detection == nil || c.Detection.DilateIterations == nil {
		return 2
	}
	return *c.Detection.DilateIterations
}

// GetMinContourArea returns the detection.min_contour_area value or the default.
func (c *TuningConfig) GetMinContourArea() int {
	if c.Detection == nil || c.Detection.MinContourArea == nil {
		return 50
	}
	return *c.Detection.MinContourArea
}

// GetDiffThreshold returns the detection.diff_threshold value or the default.
func (c *TuningConfig) GetDiffThreshold() int {
	if c.Detection == nil || c.Detection.DiffThreshold == nil {
		return 30
	}
	return *c.Detection.DiffThreshold
}

// GetMaxJumpPx returns the detection.max_jump_px value or the default.
func (c *TuningConfig) GetMaxJumpPx() float64 {
	if c.Detection == nil || c.Detection.MaxJumpPx == nil {
		return 80
	}
	return *c.Detection.MaxJumpPx
}

// GetShapeFallback returns the detection.shape_fallback value or the default.
func (c *TuningConfig) GetShapeFallback() bool {
	if c.Detection == nil || c.Detection.ShapeFallback == nil {
		return false
	}
	return *c.Detection.ShapeFallback
}

// GetShapeFallbackBelow returns the detection.shape_fallback_below value or the default.
func (c *TuningConfig) GetShapeFallbackBelow() float64 {
	if c.Detection == nil || c.Detection.ShapeFallbackBelow == nil {
		return 0.3
	}
	return *c.Detection.ShapeFallbackBelow
}

// GetMinRadiusPx returns the detection.min_radius_px value or the default.
func (c *TuningConfig) GetMinRadiusPx() int {
	if c.Detection == nil || c.Detection.MinRadiusPx == nil {
		return 5
	}
	return *c.Detection.MinRadiusPx
}

// GetMaxRadiusPx returns the detection.max_radius_px value or the default.
func (c *TuningConfig) GetMaxRadiusPx() int {
	if c.Detection == nil || c.Detection.MaxRadiusPx == nil {
		return 50
	}
	return *c.Detection.MaxRadiusPx
}

// GetAccumulatorThreshold returns the detection.accumulator_threshold value or the default.
func (c *TuningConfig) GetAccumulatorThreshold() int {
	if c.Detection == nil || c.Detection.AccumulatorThreshold == nil {
		return 18
	}
	return *c.Detection.AccumulatorThreshold
}

// GetEpipolarTolerancePx returns the matching.epipolar_tolerance_px value or the default.
func (c *TuningConfig) GetEpipolarTolerancePx() float64 {
	if c.Matching == nil || c.Matching.EpipolarTolerancePx == nil {
		return 10
	}
	return *c.Matching.EpipolarTolerancePx
}

// GetMinDisparityPx returns the matching.min_disparity_px value or the default.
func (c *TuningConfig) GetMinDisparityPx() float64 {
	if c.Matching == nil || c.Matching.MinDisparityPx == nil {
		return 1
	}
	return *c.Matching.MinDisparityPx
}

// GetMaxDisparityPx returns the matching.max_disparity_px value or the default.
func (c *TuningConfig) GetMaxDisparityPx() float64 {
	if c.Matching == nil || c.Matching.MaxDisparityPx == nil {
		return 400
	}
	return *c.Matching.MaxDisparityPx
}

// GetMaxResidualM returns the triangulation.max_residual_m value or the default.
func (c *TuningConfig) GetMaxResidualM() float64 {
	if c.Triangulation == nil || c.Triangulation.MaxResidualM == nil {
		return 0.15
	}
	return *c.Triangulation.MaxResidualM
}

// GetSegmentGapFrames returns the trajectory.segment_gap_frames value or the default.
func (c *TuningConfig) GetSegmentGapFrames() int {
	if c.Trajectory == nil || c.Trajectory.SegmentGapFrames == nil {
		return 30
	}
	return *c.Trajectory.SegmentGapFrames
}

// GetMaxInterpolateGap returns the trajectory.max_interpolate_gap value or the default.
func (c *TuningConfig) GetMaxInterpolateGap() int {
	if c.Trajectory == nil || c.Trajectory.MaxInterpolateGap == nil {
		return 5
	}
	return *c.Trajectory.MaxInterpolateGap
}

// GetBounceMinDownwardMps returns the trajectory.bounce_min_downward_mps value or the default.
func (c *TuningConfig) GetBounceMinDownwardMps() float64 {
	if c.Trajectory == nil || c.Trajectory.BounceMinDownwardMps == nil {
		return 0.5
	}
	return *c.Trajectory.BounceMinDownwardMps
}

// GetBounceMaxHeightM returns the trajectory.bounce_max_height_m value or the default.
func (c *TuningConfig) GetBounceMaxHeightM() float64 {
	if c.Trajectory == nil || c.Trajectory.BounceMaxHeightM == nil {
		return 0.3
	}
	return *c.Trajectory.BounceMaxHeightM
}

// GetLineWidthM returns the judgment.line_width_m value or the default.
func (c *TuningConfig) GetLineWidthM() float64 {
	if c.Judgment == nil || c.Judgment.LineWidthM == nil {
		return 0.05
	}
	return *c.Judgment.LineWidthM
}

// GetDetectionThreshold returns the analysis.detection_threshold value or the default.
func (c *TuningConfig) GetDetectionThreshold() float64 {
	if c.Analysis == nil || c.Analysis.DetectionThreshold == nil {
		return 0.75
	}
	return *c.Analysis.DetectionThreshold
}

// GetInBoundsColor returns the analysis.in_bounds_color value or the default.
func (c *TuningConfig) GetInBoundsColor() string {
	if c.Analysis == nil || c.Analysis.InBoundsColor == nil {
		return "#00FF00"
	}
	return *c.Analysis.InBoundsColor
}

// GetOutBoundsColor returns the analysis.out_bounds_color value or the default.
func (c *TuningConfig) GetOutBoundsColor() string {
	if c.Analysis == nil || c.Analysis.OutBoundsColor == nil {
		return "#FF0000"
	}
	return *c.Analysis.OutBoundsColor
}

// GetBlinkRate returns the analysis.blink_rate value or the default.
func (c *TuningConfig) GetBlinkRate() float64 {
	if c.Analysis == nil || c.Analysis.BlinkRate == nil {
		return 10
	}
	return *c.Analysis.BlinkRate
}

// Merge overlays non-nil sections and fields from other onto a copy of
// c and returns the merged config. Used by the PATCH config endpoint.
func (c *TuningConfig) Merge(other *TuningConfig) *TuningConfig {
	out := *c
	if other == nil {
		return &out
	}
	out.Camera = mergeSection(out.Camera, other.Camera, func(dst, src *CameraSection) {
		if src.Width != nil {
			dst.Width = src.Width
		}
		if src.Height != nil {
			dst.Height = src.Height
		}
		if src.FPS != nil {
			dst.FPS = src.FPS
		}
	})
	out.Detection = mergeSection(out.Detection, other.Detection, func(dst, src *DetectionSection) {
		if src.HSVLow != nil {
			dst.HSVLow = src.HSVLow
		}
		if src.HSVHigh != nil {
			dst.HSVHigh = src.HSVHigh
		}
		if src.ErodeIterations != nil {
			dst.ErodeIterations = src.ErodeIterations
		}
		if src.DilateIterations != nil {
			dst.DilateIterations = src.DilateIterations
		}
		if src.MinContourArea != nil {
			dst.MinContourArea = src.MinContourArea
		}
		if src.DiffThreshold != nil {
			dst.DiffThreshold = src.DiffThreshold
		}
		if src.MaxJumpPx != nil {
			dst.MaxJumpPx = src.MaxJumpPx
		}
		if src.ShapeFallback != nil {
			dst.ShapeFallback = src.ShapeFallback
		}
		if src.ShapeFallbackBelow != nil {
			dst.ShapeFallbackBelow = src.ShapeFallbackBelow
		}
		if src.MinRadiusPx != nil {
			dst.MinRadiusPx = src.MinRadiusPx
		}
		if src.MaxRadiusPx != nil {
			dst.MaxRadiusPx = src.MaxRadiusPx
		}
		if src.AccumulatorThreshold != nil {
			dst.AccumulatorThreshold = src.AccumulatorThreshold
		}
	})
	out.Matching = mergeSection(out.Matching, other.Matching, func(dst, src *MatchingSection) {
		if src.EpipolarTolerancePx != nil {
			dst.EpipolarTolerancePx = src.EpipolarTolerancePx
		}
		if src.MinDisparityPx != nil {
			dst.MinDisparityPx = src.MinDisparityPx
		}
		if src.MaxDisparityPx != nil {
			dst.MaxDisparityPx = src.MaxDisparityPx
		}
	})
	out.Triangulation = mergeSection(out.Triangulation, other.Triangulation, func(dst, src *TriangulationSection) {
		if src.MaxResidualM != nil {
			dst.MaxResidualM = src.MaxResidualM
		}
	})
	out.Trajectory = mergeSection(out.Trajectory, other.Trajectory, func(dst, src *TrajectorySection) {
		if src.SegmentGapFrames != nil {
			dst.SegmentGapFrames = src.SegmentGapFrames
		}
		if src.MaxInterpolateGap != nil {
			dst.MaxInterpolateGap = src.MaxInterpolateGap
		}
		if src.BounceMinDownwardMps != nil {
			dst.BounceMinDownwardMps = src.BounceMinDownwardMps
		}
		if src.BounceMaxHeightM != nil {
			dst.BounceMaxHeightM = src.BounceMaxHeightM
		}
	})
	out.Judgment = mergeSection(out.Judgment, other.Judgment, func(dst, src *JudgmentSection) {
		if src.LineWidthM != nil {
			dst.LineWidthM = src.LineWidthM
		}
	})
	out.Analysis = mergeSection(out.Analysis, other.Analysis, func(dst, src *AnalysisSection) {
		if src.DetectionThreshold != nil {
			dst.DetectionThreshold = src.DetectionThreshold
		}
		if src.InBoundsColor != nil {
			dst.InBoundsColor = src.InBoundsColor
		}
		if src.OutBoundsColor != nil {
			dst.OutBoundsColor = src.OutBoundsColor
		}
		if src.BlinkRate != nil {
			dst.BlinkRate = src.BlinkRate
		}
	})
	return &out
}

func mergeSection[S any](dst, src *S, overlay func(dst, src *S)) *S {
	if src == nil {
		return dst
	}
	if dst == nil {
		merged := *src
		return &merged
	}
	merged := *dst
	overlay(&merged, src)
	return &merged
}
