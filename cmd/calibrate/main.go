// Command calibrate solves stereo rig parameters from a calibration
// point file and writes the camera_parameters JSON used for replay.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/golang/geo/r2"

	"github.com/courtsight-data/linecall/internal/db"
	"github.com/courtsight-data/linecall/internal/stereo"
	"github.com/courtsight-data/linecall/internal/stereo/calib"
)

func main() {
	var pointsFile string
	var outFile string
	var dbPath string
	var clusterRadius float64
	var maxErr float64

	flag.StringVar(&pointsFile, "points", "", "calibration point file (JSON, normalized coordinates)")
	flag.StringVar(&outFile, "o", "camera_parameters.json", "output camera parameters file")
	flag.StringVar(&dbPath, "db", "", "also record the solve in this database")
	flag.Float64Var(&clusterRadius, "cluster", 0, "merge clicks within this pixel radius before labeling (0 disables)")
	flag.Float64Var(&maxErr, "max-err", 2.0, "maximum rms reprojection error in pixels")
	flag.Parse()

	if pointsFile == "" {
		log.Fatalf("a -points file is required")
	}

	f, err := calib.LoadPointFile(pointsFile)
	if err != nil {
		log.Fatalf("load points: %v", err)
	}
	fmt.Printf("Loaded %d left and %d right points at %s (%dx%d)\n",
		len(f.LeftCamera), len(f.RightCamera), f.Resolution.Name, f.Resolution.Width, f.Resolution.Height)

	store := calib.NewPointStore(clusterRadius)
	if err := f.AddTo(store); err != nil {
		log.Fatalf("stage points: %v", err)
	}
	store.Cluster()

	layout := calib.StandardLayout()
	for _, camera := range []string{stereo.CameraLeft, stereo.CameraRight} {
		if err := store.ApplyLayout(camera, layout); err != nil {
			log.Fatalf("label %s camera points: %v", camera, err)
		}
	}

	calibrator := calib.DefaultCalibrator()
	calibrator.MaxReprojectionErrPx = maxErr
	// The court references are coplanar, so the planar solve pins the
	// principal point at the prior. Use the file's frame centre.
	calibrator.PrincipalPrior = r2.Point{
		X: float64(f.Resolution.Width) / 2,
		Y: float64(f.Resolution.Height) / 2,
	}

	params, report, err := calibrator.CalibrateStore(store, layout)
	if report != nil {
		fmt.Printf("\nSolved %d correspondences: rms %.3f px (left %.3f, right %.3f)\n",
			report.PointCount, report.RMSPixels, report.LeftRMSPx, report.RightRMSPx)
		fmt.Printf("Baseline %.3f m, rotation disagreement %.2f deg\n",
			report.BaselineM, report.RotationDisagreementDeg)
		fmt.Println("\nPer-point reprojection residuals:")
		for _, pr := range report.PerPoint {
			fmt.Printf("  %-5s  %-24s (%7.1f, %7.1f) -> (%7.1f, %7.1f)  %6.3f px\n",
				pr.Camera, pr.Label, pr.Pixel.X, pr.Pixel.Y, pr.Reprojected.X, pr.Reprojected.Y, pr.ErrPx)
		}
	}
	if err != nil {
		log.Fatalf("calibration failed: %v", err)
	}

	fmt.Printf("\nFocal %.1f px, principal (%.1f, %.1f)\n",
		params.FocalLength, params.PrincipalPoint.X, params.PrincipalPoint.Y)
	pos := params.CenterWorld(stereo.CameraLeft)
	fmt.Printf("Reference camera at (%.2f, %.2f, %.2f) m\n", pos.X, pos.Y, pos.Z)

	if err := stereo.SaveParametersFile(outFile, params); err != nil {
		log.Fatalf("write parameters: %v", err)
	}
	fmt.Printf("Wrote %s\n", outFile)

	if dbPath != "" {
		d, err := db.Open(dbPath)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer d.Close()
		if err := d.MigrateUp(); err != nil {
			log.Fatalf("migrate db: %v", err)
		}
		rec := stereo.RecordFromParameters(*params, report.RMSPixels, report.PointCount, time.Now())
		rec.Accepted = true
		if err := stereo.NewCalibrationStore(d.DB).SaveCalibration(context.Background(), &rec); err != nil {
			log.Fatalf("record solve: %v", err)
		}
		fmt.Printf("Recorded solve %d in %s\n", rec.ID, dbPath)
	}
}
