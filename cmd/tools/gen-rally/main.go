// Command gen-rally generates sample rally logs for testing replay.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/golang/geo/r3"

	"github.com/courtsight-data/linecall/internal/stereo"
	"github.com/courtsight-data/linecall/internal/stereo/l1frames"
)

func parseVec(s string) (r3.Vector, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return r3.Vector{}, fmt.Errorf("want x,y,z, got %q", s)
	}
	var v [3]float64
	for i, p := range parts {
		if _, err := fmt.Sscanf(strings.TrimSpace(p), "%g", &v[i]); err != nil {
			return r3.Vector{}, fmt.Errorf("component %d of %q: %w", i, s, err)
		}
	}
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}, nil
}

func main() {
	output := flag.String("o", "rally.jsonl.gz", "output path")
	paramsOut := flag.String("params", "", "also write the generation rig as a camera parameters file")
	frames := flag.Int("n", 0, "number of frames (0 keeps the default)")
	fps := flag.Float64("fps", 0, "frame rate (0 keeps the default)")
	width := flag.Int("width", 640, "frame width in pixels")
	height := flag.Int("height", 480, "frame height in pixels")
	start := flag.String("start", "", "initial ball position x,y,z in metres")
	velocity := flag.String("velocity", "", "initial ball velocity x,y,z in m/s")
	restitution := flag.Float64("restitution", 0, "vertical energy retained per bounce (0 keeps the default)")
	noise := flag.Float64("noise", 0, "gaussian pixel noise sigma on ball centres")
	drop := flag.Int("drop", 0, "hide the ball from one camera every n-th frame (0 disables)")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	cfg := l1frames.DefaultSyntheticConfig()
	cfg.Width = *width
	cfg.Height = *height
	cfg.Params = l1frames.DefaultRig(*width, *height)
	cfg.NoisePx = *noise
	cfg.DropEvery = *drop
	cfg.Seed = *seed
	if *frames > 0 {
		cfg.Frames = *frames
	}
	if *fps > 0 {
		cfg.FPS = *fps
	}
	if *restitution > 0 {
		cfg.Restitution = *restitution
	}
	if *start != "" {
		v, err := parseVec(*start)
		if err != nil {
			log.Fatalf("invalid -start: %v", err)
		}
		cfg.Start = v
	}
	if *velocity != "" {
		v, err := parseVec(*velocity)
		if err != nil {
			log.Fatalf("invalid -velocity: %v", err)
		}
		cfg.Velocity = v
	}

	entries := l1frames.SimulateRally(cfg)
	seen := 0
	for _, e := range entries {
		if e.Left != nil || e.Right != nil {
			seen++
		}
	}

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("create output: %v", err)
	}
	if err := l1frames.WriteRallyLog(f, entries); err != nil {
		f.Close()
		log.Fatalf("write rally log: %v", err)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("close output: %v", err)
	}
	log.Printf("✓ Created: %s (%d frames, ball visible in %d)", *output, len(entries), seen)

	if *paramsOut != "" {
		if err := stereo.SaveParametersFile(*paramsOut, cfg.Params); err != nil {
			log.Fatalf("write camera parameters: %v", err)
		}
		log.Printf("✓ Created: %s", *paramsOut)
	}
}
