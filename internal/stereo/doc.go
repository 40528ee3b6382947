// Package stereo holds the shared camera model and logging streams for the
// stereo ball-tracking and line-calling pipeline.
//
// The pipeline is organised into dependency-ordered layer packages:
//
//	l1frames  frame supply: RGBA frames, binary masks, synthetic/replay sources
//	l2detect  per-camera ball candidate detection
//	l3stereo  cross-camera correspondence and triangulation
//	l4tracks  trajectory assembly, gap interpolation, bounce detection
//	l5court   court model and in/out judgment
//
// Each layer imports only lower layers and this package. calib/ runs in the
// setup phase and feeds CameraParameters into l3stereo. pipeline/ is the
// composition root; the SQL stores in this package own persistence; monitor/
// serves debug charts. None of those are imported by the layers.
package stereo
