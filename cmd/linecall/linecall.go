package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/courtsight-data/linecall/internal/api"
	"github.com/courtsight-data/linecall/internal/config"
	"github.com/courtsight-data/linecall/internal/db"
	"github.com/courtsight-data/linecall/internal/stereo"
	"github.com/courtsight-data/linecall/internal/stereo/l1frames"
	"github.com/courtsight-data/linecall/internal/stereo/monitor"
	"github.com/courtsight-data/linecall/internal/stereo/pipeline"
	"github.com/courtsight-data/linecall/internal/version"
)

var (
	listen      = flag.String("listen", ":8080", "HTTP listen address")
	dbFile      = flag.String("db", "linecall.db", "Path to the SQLite database file")
	tuningFile  = flag.String("tuning", "", "Tuning config JSON file (built-in defaults when empty)")
	calibFile   = flag.String("calibration", "", "Camera parameters JSON file (default: latest solve in the database)")
	replayFile  = flag.String("replay", "", "Replay a gzipped rally log written by gen-rally")
	synthetic   = flag.Bool("synthetic", false, "Track a built-in synthetic rally instead of a replay")
	fps         = flag.Float64("fps", 0, "Frame rate override for the source (0 keeps the tuning value)")
	sessionName = flag.String("session-name", "", "Recorded session name (default derives from the source)")
	logInterval = flag.Int("log-interval", 10, "Statistics logging interval in seconds")
	diagLog     = flag.Bool("diag", false, "Enable diagnostic logging")
	traceLog    = flag.Bool("trace", false, "Enable per-frame trace logging")
)

// applyEnvDefaults overrides flags still at their default with LINECALL_*
// environment values, so a .env file can configure the daemon without a
// command line. Explicit flags always win.
func applyEnvDefaults() {
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	for name, env := range map[string]string{
		"listen":      "LINECALL_LISTEN",
		"db":          "LINECALL_DB",
		"tuning":      "LINECALL_TUNING",
		"calibration": "LINECALL_CALIBRATION",
		"replay":      "LINECALL_REPLAY",
	} {
		if set[name] {
			continue
		}
		if v := os.Getenv(env); v != "" {
			if err := flag.Set(name, v); err != nil {
				log.Fatalf("Invalid %s value %q: %v", env, v, err)
			}
		}
	}
}

// loadCalibration resolves camera parameters from the -calibration file
// or the latest solve recorded in the database.
func loadCalibration(d *db.DB) (*stereo.CameraParameters, error) {
	if *calibFile != "" {
		return stereo.LoadParametersFile(*calibFile)
	}
	rec, err := stereo.NewCalibrationStore(d.DB).LatestCalibration(context.Background())
	if err != nil {
		if errors.Is(err, stereo.ErrNotFound) {
			return nil, errors.New("no calibration in the database; solve one via the API or pass -calibration <file>")
		}
		return nil, err
	}
	if !rec.Accepted {
		log.Printf("Warning: latest calibration %d was not accepted (rms %.2f px)", rec.ID, rec.RMSPixels)
	}
	p := rec.Parameters()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func main() {
	if err := godotenv.Load(); err == nil {
		log.Print("Loaded environment from .env")
	}
	flag.Parse()
	applyEnvDefaults()

	log.Printf("Starting %s", version.String())

	writers := stereo.LogWriters{Ops: os.Stderr}
	if *diagLog {
		writers.Diag = os.Stderr
	}
	if *traceLog {
		writers.Trace = os.Stderr
	}
	stereo.SetLogWriters(writers)

	if *listen == "" {
		log.Fatal("HTTP listen address is required")
	}
	if *synthetic && *replayFile != "" {
		log.Fatal("-synthetic and -replay are mutually exclusive")
	}

	tuning := config.EmptyTuningConfig()
	if *tuningFile != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*tuningFile)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
		log.Printf("Loaded tuning config from %s", *tuningFile)
	}

	d, err := db.Open(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer d.Close()
	if err := d.MigrateUp(); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	effFPS := tuning.GetFPS()
	if *fps > 0 {
		effFPS = *fps
	}

	// Frame source and the rig it was recorded with.
	var (
		src    l1frames.Source
		camera *stereo.CameraParameters
		source string
		name   string
	)
	switch {
	case *synthetic:
		srcCfg := l1frames.DefaultSyntheticConfig()
		srcCfg.Width = tuning.GetFrameWidth()
		srcCfg.Height = tuning.GetFrameHeight()
		srcCfg.FPS = effFPS
		srcCfg.Params = l1frames.DefaultRig(srcCfg.Width, srcCfg.Height)
		src = l1frames.NewSyntheticSource(srcCfg)
		camera = srcCfg.Params
		source = "synthetic"
		name = "synthetic rally"
		log.Printf("Tracking a synthetic rally at %dx%d, %.1f fps", srcCfg.Width, srcCfg.Height, effFPS)
	case *replayFile != "":
		camera, err = loadCalibration(d)
		if err != nil {
			log.Fatalf("Failed to load calibration: %v", err)
		}
		src, err = l1frames.OpenReplay(*replayFile, tuning.GetFrameWidth(), tuning.GetFrameHeight())
		if err != nil {
			log.Fatalf("Failed to open replay: %v", err)
		}
		source = "replay"
		name = "replay " + filepath.Base(*replayFile)
		log.Printf("Replaying rally log %s", *replayFile)
	default:
		log.Fatal("A frame source is required: -synthetic or -replay <file>")
	}
	defer src.Close()
	if *sessionName != "" {
		name = *sessionName
	}

	sessions := stereo.NewSessionStore(d.DB)
	sess := &stereo.Session{Name: name, Source: source, FPS: effFPS}
	if err := sessions.Create(context.Background(), sess); err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}
	log.Printf("Recording session %s (%s)", sess.ID, name)

	pcfg := pipeline.ConfigFromTuning(tuning, *camera)
	pipe := pipeline.New(pcfg)

	// Persist every finalized trajectory and its verdicts. Runs on the
	// pipeline's drain goroutine with its own context so segments
	// completing during shutdown still land in the database.
	trajectories := stereo.NewTrajectoryStore(d.DB)
	verdicts := stereo.NewVerdictStore(d.DB)
	pipe.AddSink(pipeline.SinkFunc(func(t *stereo.Trajectory, vs []stereo.Verdict) {
		saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := trajectories.Save(saveCtx, sess.ID, t); err != nil {
			stereo.Opsf("failed to save trajectory %s: %v", t.ID, err)
			return
		}
		for _, v := range vs {
			if _, err := verdicts.SaveVerdict(saveCtx, sess.ID, t.ID, v); err != nil {
				stereo.Opsf("failed to save verdict for trajectory %s: %v", t.ID, err)
			}
		}
	}))

	// Announce each call as it is judged.
	pipe.AddVerdictSink(stereo.VerdictSinkFunc(func(v stereo.Verdict) {
		call := "IN"
		if !v.InBounds {
			call = "OUT"
		}
		stereo.Opsf("line call: %s, %.0f mm from %s, %s confidence (frame %d)",
			call, 1000*math.Abs(v.Distance), v.NearestLine, v.Confidence, v.FrameIndex)
	}))

	apiServer := api.NewServer(d.DB, tuning)
	mux := apiServer.ServeMux()
	monitor.New(monitor.Config{DB: d.DB, Court: pcfg.Court, Tuning: tuning}).Register(mux)
	d.AttachAdminRoutes(mux)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `
<!DOCTYPE html>
<html>
<head><title>linecall</title></head>
<body>
	<h1>linecall</h1>
	<p>%s</p>
	<p>Session %s (%s)</p>
	<ul>
		<li><a href="/api/health">Health check</a></li>
		<li><a href="/api/sessions">Sessions</a></li>
		<li><a href="/debug/">Debug index</a></li>
	</ul>
</body>
</html>`, version.String(), sess.ID, name)
	})

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Pipeline routine. A finite source ends with io.EOF; the daemon
	// keeps serving HTTP so the run can be inspected afterwards.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := pipe.Run(ctx, src); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Pipeline error: %v", err)
		}
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := pipe.Close(closeCtx); err != nil {
			log.Printf("Pipeline close error: %v", err)
		}
		pipe.Stats().LogStats()
		if err := sessions.End(context.Background(), sess.ID, time.Now()); err != nil {
			log.Printf("Failed to end session: %v", err)
		}
		log.Print("Pipeline routine terminated")
	}()

	// Periodic statistics logging.
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(time.Duration(*logInterval) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pipe.Stats().LogStats()
			}
		}
	}()

	// HTTP server routine.
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("Starting HTTP server on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
