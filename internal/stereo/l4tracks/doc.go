// Package l4tracks owns Layer 4 (Tracks) of the stereo data model.
//
// Responsibilities: stitching triangulated points into time-ordered
// trajectories, segment splitting on long gaps, spline gap filling,
// and bounce detection on the vertical component.
// Key types: Assembler, Config.
//
// Dependency rule: L4 may depend on L1–L3 and the parent stereo
// package, but never on L5+.
//
// See docs/architecture/stereo-data-layer-model.md for the full layer
// model.
package l4tracks
