// Package l2detect owns Layer 2 (Detection) of the stereo data model.
//
// Responsibilities: per-camera ball candidate extraction from colour
// segmentation, frame differencing, and the circle-fit fallback;
// candidate confidence scoring and deterministic ranking.
// Key types: Detector, Config, Circle.
//
// Dependency rule: L2 may depend on L1 and the parent stereo package,
// but never on L3+.
//
// See docs/architecture/stereo-data-layer-model.md for the full layer
// model.
package l2detect
