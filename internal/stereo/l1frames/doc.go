// Package l1frames owns Layer 1 (Frames) of the stereo data model.
//
// Responsibilities: the RGBA frame and frame-pair model, colour space
// conversion (grayscale, HSV), binary masks and morphology, connected
// component extraction, frame rendering, and frame sources (synthetic
// rally simulation, rally-log replay).
// Key types: Frame, FramePair, Source, Component.
//
// Dependency rule: L1 may depend on the parent stereo package, but
// never on L2+.
//
// See docs/architecture/stereo-data-layer-model.md for the full layer
// model.
package l1frames
