package l1frames

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func shortSyntheticConfig() SyntheticConfig {
	cfg := DefaultSyntheticConfig()
	cfg.Frames = 20
	return cfg
}

func TestSimulateRallyDeterminism(t *testing.T) {
	cfg := shortSyntheticConfig()
	cfg.NoisePx = 0.5
	a := SimulateRally(cfg)
	b := SimulateRally(cfg)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("same seed should reproduce the rally (-first +second):\n%s", diff)
	}
}

func TestSimulateRallyVisibility(t *testing.T) {
	entries := SimulateRally(shortSyntheticConfig())
	if len(entries) != 20 {
		t.Fatalf("got %d entries, want 20", len(entries))
	}
	both := 0
	for _, e := range entries {
		if e.Left != nil && e.Right != nil {
			both++
		}
		for _, m := range []*PixelMark{e.Left, e.Right} {
			if m == nil {
				continue
			}
			if m.X < 0 || m.X >= 640 || m.Y < 0 || m.Y >= 480 {
				t.Errorf("frame %d mark (%g, %g) out of bounds", e.Frame, m.X, m.Y)
			}
		}
	}
	if both < 16 {
		t.Errorf("ball visible in both cameras on %d/20 frames, want ≥ 16", both)
	}
}

func TestSimulateRallyDropout(t *testing.T) {
	cfg := shortSyntheticConfig()
	cfg.DropEvery = 5
	entries := SimulateRally(cfg)
	for _, i := range []int{5, 10, 15} {
		e := entries[i]
		if e.Left != nil && e.Right != nil {
			t.Errorf("frame %d should have a dropped camera", i)
		}
	}
	if e := entries[7]; e.Left == nil || e.Right == nil {
		t.Error("frame 7 is off the dropout schedule and should keep both marks")
	}
}

func TestSyntheticSourceRendersBall(t *testing.T) {
	cfg := shortSyntheticConfig()
	src := NewSyntheticSource(cfg)
	defer src.Close()

	ctx := context.Background()
	count := 0
	for {
		pair, err := src.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if pair.Index != count {
			t.Fatalf("frame index = %d, want %d", pair.Index, count)
		}

		// The rendered ball must pass the colour gate where simulated.
		e := SimulateRally(cfg)[pair.Index]
		if e.Left != nil {
			m := InRangeHSV(pair.Left, defaultGate)
			if m.Pix[m.PixOffset(int(e.Left.X), int(e.Left.Y))] != 255 {
				t.Errorf("frame %d: no ball pixels at the simulated centre", pair.Index)
			}
		}
		count++
	}
	if count != cfg.Frames {
		t.Errorf("source yielded %d frames, want %d", count, cfg.Frames)
	}
}

func TestSyntheticSourceContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewSyntheticSource(shortSyntheticConfig()).Next(ctx); err == nil {
		t.Error("Next with a cancelled context should fail")
	}
}

func TestRallyLogRoundTrip(t *testing.T) {
	cfg := shortSyntheticConfig()
	cfg.DropEvery = 7
	entries := SimulateRally(cfg)

	var buf bytes.Buffer
	if err := WriteRallyLog(&buf, entries); err != nil {
		t.Fatalf("WriteRallyLog: %v", err)
	}
	got, err := ReadRallyLog(&buf)
	if err != nil {
		t.Fatalf("ReadRallyLog: %v", err)
	}
	if diff := cmp.Diff(entries, got); diff != "" {
		t.Errorf("rally log round trip (-wrote +read):\n%s", diff)
	}
}

func TestReplayMatchesSynthetic(t *testing.T) {
	cfg := shortSyntheticConfig()
	entries := SimulateRally(cfg)
	replay := NewReplaySource(entries, cfg.Width, cfg.Height)

	pair, err := replay.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	e := entries[0]
	if e.Left == nil {
		t.Fatal("first frame should have a left mark")
	}
	m := InRangeHSV(pair.Left, defaultGate)
	if m.Pix[m.PixOffset(int(e.Left.X), int(e.Left.Y))] != 255 {
		t.Error("replayed frame should render the ball at the logged position")
	}
}
