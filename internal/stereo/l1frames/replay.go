package l1frames

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/courtsight-data/linecall/internal/stereo"
)

// PixelMark is a rendered ball position in one camera.
type PixelMark struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	R float64 `json:"r"`
}

// RallyLogEntry is one line of a rally log: the ball's pixel position in
// each camera, or absent when that camera lost the ball.
type RallyLogEntry struct {
	Frame int        `json:"frame"`
	TNS   int64      `json:"t_ns"`
	Left  *PixelMark `json:"left,omitempty"`
	Right *PixelMark `json:"right,omitempty"`
}

// WriteRallyLog writes entries as gzipped JSON lines.
func WriteRallyLog(w io.Writer, entries []RallyLogEntry) error {
	gz := gzip.NewWriter(w)
	enc := json.NewEncoder(gz)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("encode rally entry %d: %w", e.Frame, err)
		}
	}
	return gz.Close()
}

// ReadRallyLog parses an entire gzipped JSON-lines rally log.
func ReadRallyLog(r io.Reader) ([]RallyLogEntry, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open rally log: %w", err)
	}
	defer gz.Close()

	var entries []RallyLogEntry
	sc := bufio.NewScanner(gz)
	for sc.Scan() {
		var e RallyLogEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("parse rally entry %d: %w", len(entries), err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read rally log: %w", err)
	}
	return entries, nil
}

// ReplaySource renders frame pairs from a recorded rally log.
type ReplaySource struct {
	width, height int
	entries       []RallyLogEntry
	bg            []uint8
	next          int
	closer        io.Closer
}

var _ Source = (*ReplaySource)(nil)

// NewReplaySource replays the given entries at the given frame size.
func NewReplaySource(entries []RallyLogEntry, width, height int) *ReplaySource {
	f := NewFrame(0, time.Time{}, "", width, height)
	Fill(f, BackgroundColor)
	return &ReplaySource{
		width:   width,
		height:  height,
		entries: entries,
		bg:      f.RGBA.Pix,
	}
}

// OpenReplay opens a rally log file for replay.
func OpenReplay(path string, width, height int) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rally log: %w", err)
	}
	entries, err := ReadRallyLog(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	s := NewReplaySource(entries, width, height)
	s.closer = f
	return s, nil
}

// Next renders the next recorded frame pair, or io.EOF at the end of the
// log.
func (s *ReplaySource) Next(ctx context.Context) (*FramePair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.entries) {
		return nil, io.EOF
	}
	e := s.entries[s.next]
	s.next++

	t := time.Unix(0, e.TNS)
	return &FramePair{
		Index: e.Frame,
		Time:  t,
		Left:  renderMarkFrame(e.Frame, t, stereo.CameraLeft, s.width, s.height, s.bg, e.Left),
		Right: renderMarkFrame(e.Frame, t, stereo.CameraRight, s.width, s.height, s.bg, e.Right),
	}, nil
}

// Close releases the underlying log file, if any.
func (s *ReplaySource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
