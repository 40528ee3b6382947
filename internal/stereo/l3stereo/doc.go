// Package l3stereo owns Layer 3 (Stereo) of the stereo data model.
//
// Responsibilities: left/right correspondence matching under the
// rectified epipolar constraint, disparity gating, and ray-midpoint
// triangulation of matched pairs into world coordinates.
// Key types: Matcher, Triangulator.
//
// Dependency rule: L3 may depend on L1–L2 and the parent stereo
// package, but never on L4+.
//
// See docs/architecture/stereo-data-layer-model.md for the full layer
// model.
package l3stereo
