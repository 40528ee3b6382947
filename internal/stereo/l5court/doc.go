// Package l5court owns Layer 5 (Court) of the stereo data model.
//
// Responsibilities: the court line geometry in world coordinates and
// the in/out judgment of bounce events against it.
// Key types: CourtModel, Line; Judge is the single operation.
//
// Dependency rule: L5 may depend on L1–L4 and the parent stereo
// package; it is the top of the model.
//
// See docs/architecture/stereo-data-layer-model.md for the full layer
// model.
package l5court
