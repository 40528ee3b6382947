// Package calib implements the setup phase of the stereo pipeline:
// collecting user-selected calibration points, clustering and labelling
// them against a court reference layout, snapping clicks onto painted
// lines, persisting point files, and solving the rig parameters that
// the runtime layers consume.
//
// Dependency rule: calib may depend on the parent stereo package and on
// L1 (frames), but never on L2+. Solve results flow forward only, as
// immutable stereo.CameraParameters.
//
// See docs/architecture/stereo-data-layer-model.md for the full layer
// model.
package calib
