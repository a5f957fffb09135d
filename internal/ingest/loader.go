// Package ingest loads the engine's inputs: historical L2 snapshot files
// from disk and the funding-rate history from the Hyperliquid info API.
//
// Event files are laid out one per (coin, hour) as
// <events-root>/<COIN>/YYYYMMDD-HH.jsonl, one snapshot JSON object per line.
// Files are read and decoded concurrently up to a bounded parallelism, then
// stitched back together in hour order so the engine sees a strictly
// time-ordered stream.
package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/franalgaba/hyperliquid-backtesting/pkg/types"
)

// DefaultIOConcurrency bounds parallel event-file reads when the config
// does not say otherwise.
const DefaultIOConcurrency = 8

// maxLineBytes caps a single snapshot line; deep books serialize large.
const maxLineBytes = 16 << 20

// Loader reads per-hour snapshot files for one coin.
type Loader struct {
	root        string
	concurrency int
	logger      *slog.Logger
}

// NewLoader creates a loader rooted at the events directory.
func NewLoader(root string, concurrency int, logger *slog.Logger) *Loader {
	if concurrency <= 0 {
		concurrency = DefaultIOConcurrency
	}
	return &Loader{
		root:        root,
		concurrency: concurrency,
		logger:      logger.With("component", "loader"),
	}
}

// Load reads every hour file overlapping [startMs, endMs], decodes the
// snapshots, filters them to the range, and returns them in time order.
// Missing files and corrupt lines are warnings; zero events overall is an
// error.
func (l *Loader) Load(coin string, startMs, endMs uint64) ([]types.SnapshotEvent, error) {
	if err := types.ValidateCoin(coin); err != nil {
		return nil, err
	}
	if endMs < startMs {
		return nil, fmt.Errorf("end %d before start %d", endMs, startMs)
	}

	hours := hourRange(startMs, endMs)
	batches := make([][]types.SnapshotEvent, len(hours))

	var g errgroup.Group
	g.SetLimit(l.concurrency)
	for i, h := range hours {
		g.Go(func() error {
			path := filepath.Join(l.root, coin, h.Format("20060102-15")+".jsonl")
			events, err := l.readFile(path, startMs, endMs)
			if err != nil {
				return err
			}
			batches[i] = events
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total int
	for _, b := range batches {
		total += len(b)
	}
	if total == 0 {
		return nil, fmt.Errorf("no events for %s in [%d, %d] under %s", coin, startMs, endMs, l.root)
	}

	out := make([]types.SnapshotEvent, 0, total)
	for _, b := range batches {
		out = append(out, b...)
	}
	l.logger.Info("events loaded", "coin", coin, "hours", len(hours), "events", total)
	return out, nil
}

// readFile decodes one hour file. A missing file logs a warning and returns
// no events; a corrupt line is skipped with a warning naming the line.
func (l *Loader) readFile(path string, startMs, endMs uint64) ([]types.SnapshotEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			l.logger.Warn("event file missing, skipping", "path", path)
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var events []types.SnapshotEvent
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64<<10), maxLineBytes)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev types.SnapshotEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			l.logger.Warn("corrupt snapshot line, skipping",
				"path", path, "line", lineNo, "error", err)
			continue
		}
		if ev.TsMs < startMs || ev.TsMs > endMs {
			continue
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return events, nil
}

// hourRange enumerates the UTC hours whose files can contain events in
// [startMs, endMs].
func hourRange(startMs, endMs uint64) []time.Time {
	start := time.UnixMilli(int64(startMs)).UTC().Truncate(time.Hour)
	end := time.UnixMilli(int64(endMs)).UTC()

	var hours []time.Time
	for h := start; !h.After(end); h = h.Add(time.Hour) {
		hours = append(hours, h)
	}
	return hours
}
