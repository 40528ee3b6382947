// Command session-report renders a recorded session into a standalone
// HTML report and a court PNG.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/courtsight-data/linecall/internal/config"
	"github.com/courtsight-data/linecall/internal/db"
	"github.com/courtsight-data/linecall/internal/security"
	"github.com/courtsight-data/linecall/internal/stereo"
	"github.com/courtsight-data/linecall/internal/stereo/monitor"
)

// createOutput validates a user-supplied output path and creates the
// file. Outputs are restricted to the working directory and the temp
// directory.
func createOutput(path string) (*os.File, error) {
	if err := security.ValidateExportPath(path); err != nil {
		return nil, fmt.Errorf("output path %s: %w", path, err)
	}
	return os.Create(path)
}

func main() {
	var dbPath string
	var sessionID string
	var htmlOut string
	var pngOut string
	var tuningFile string

	flag.StringVar(&dbPath, "db", "linecall.db", "path to sqlite db")
	flag.StringVar(&sessionID, "session", "", "session id (default: most recent)")
	flag.StringVar(&htmlOut, "html", "report.html", "output HTML report")
	flag.StringVar(&pngOut, "png", "court.png", "output court PNG")
	flag.StringVar(&tuningFile, "tuning", "", "tuning config JSON, for thresholds and marker colors")
	flag.Parse()

	tuning := config.EmptyTuningConfig()
	if tuningFile != "" {
		var err error
		tuning, err = config.LoadTuningConfig(tuningFile)
		if err != nil {
			log.Fatalf("load tuning config: %v", err)
		}
	}

	d, err := db.Open(dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer d.Close()
	if err := d.MigrateUp(); err != nil {
		log.Fatalf("migrate db: %v", err)
	}

	ctx := context.Background()
	sessions := stereo.NewSessionStore(d.DB)
	var sess *stereo.Session
	if sessionID != "" {
		sess, err = sessions.Get(ctx, sessionID)
		if err != nil {
			log.Fatalf("load session: %v", err)
		}
	} else {
		all, err := sessions.List(ctx)
		if err != nil {
			log.Fatalf("list sessions: %v", err)
		}
		if len(all) == 0 {
			log.Fatalf("no sessions in %s", dbPath)
		}
		sess = &all[0]
		fmt.Printf("Using most recent session %s (%q)\n", sess.ID, sess.Name)
	}

	m := monitor.New(monitor.Config{DB: d.DB, Tuning: tuning})

	hf, err := createOutput(htmlOut)
	if err != nil {
		log.Fatalf("create report: %v", err)
	}
	if err := m.WriteSessionReport(ctx, sess, hf); err != nil {
		hf.Close()
		log.Fatalf("write report: %v", err)
	}
	if err := hf.Close(); err != nil {
		log.Fatalf("close report: %v", err)
	}
	fmt.Printf("Wrote %s\n", htmlOut)

	pf, err := createOutput(pngOut)
	if err != nil {
		log.Fatalf("create court plot: %v", err)
	}
	if err := m.WriteCourtPNG(ctx, sess.ID, pf); err != nil {
		pf.Close()
		log.Fatalf("write court plot: %v", err)
	}
	if err := pf.Close(); err != nil {
		log.Fatalf("close court plot: %v", err)
	}
	fmt.Printf("Wrote %s\n", pngOut)
}
