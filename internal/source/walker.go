package source

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/charlievieth/fastwalk"

	"seriesd/internal/logging"
)

// WalkStats summarizes one walk.
type WalkStats struct {
	Files   int64
	Skipped int64
	Errors  int64
	Elapsed time.Duration
}

// FilesPerSecond returns the ingest rate of the walk.
func (s WalkStats) FilesPerSecond() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Files) / s.Elapsed.Seconds()
}

// Walker scans a directory tree once. The sink is called concurrently from
// fastwalk's worker goroutines.
type Walker struct {
	filter *Filter
	follow bool
	logger *slog.Logger
}

func NewWalker(filter *Filter, followSymlinks bool, logger *slog.Logger) *Walker {
	return &Walker{
		filter: filter,
		follow: followSymlinks,
		logger: logging.NewComponentLogger(logger, "walker"),
	}
}

// Walk visits every file under the filter root and passes matches to sink.
func (w *Walker) Walk(ctx context.Context, sink Sink) (WalkStats, error) {
	var files, skipped, errs atomic.Int64
	root := w.filter.Root()
	started := time.Now()

	info, err := os.Stat(root)
	if err != nil {
		return WalkStats{}, fmt.Errorf("walk %s: %w", root, err)
	}
	if !info.IsDir() {
		return WalkStats{}, fmt.Errorf("walk %s: not a directory", root)
	}

	w.logger.Info("walking source directory",
		logging.String(logging.FieldEventType, "walk_started"),
		logging.String("root", root),
	)

	conf := fastwalk.Config{Follow: w.follow}
	err = fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			errs.Add(1)
			w.logger.Warn("walk entry failed",
				logging.String(logging.FieldPath, path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "walk_entry_failed"),
				logging.String(logging.FieldImpact, "entry skipped"),
			)
			return nil
		}
		if d.IsDir() {
			if path != root && w.filter.SkipDir(path) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() && !(w.follow && d.Type()&fs.ModeSymlink != 0) {
			skipped.Add(1)
			return nil
		}
		if !w.filter.Match(path) {
			skipped.Add(1)
			return nil
		}
		files.Add(1)
		sink(ctx, path)
		return nil
	})

	stats := WalkStats{
		Files:   files.Load(),
		Skipped: skipped.Load(),
		Errors:  errs.Load(),
		Elapsed: time.Since(started),
	}
	w.logger.Info("walk complete",
		logging.String(logging.FieldEventType, "walk_complete"),
		logging.Int64("files", stats.Files),
		logging.Int64("skipped", stats.Skipped),
		logging.Int64("errors", stats.Errors),
		logging.Duration("elapsed", stats.Elapsed),
		logging.Float64("files_per_sec", stats.FilesPerSecond()),
	)
	if err != nil {
		return stats, fmt.Errorf("walk %s: %w", root, err)
	}
	return stats, nil
}
