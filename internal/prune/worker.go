// Package prune periodically removes old hl-node data files.
package prune

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Stats summarizes one pruning pass.
type Stats struct {
	Files int
	Dirs  int
	Bytes int64
}

type Worker struct {
	clock  clock.Clock
	logger *zap.Logger
}

func NewWorker(clk clock.Clock, logger *zap.Logger) *Worker {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{clock: clk, logger: logger.Named("prune")}
}

// Run prunes dir once immediately and then on every tick until ctx ends.
// A dir that does not exist yet is checked again on the next tick, since
// hl-node creates its data directory only after it starts. Failures inside
// a pass are logged and do not stop the loop.
func (w *Worker) Run(ctx context.Context, dir string, interval, maxAge time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("prune interval must be positive, got %s", interval)
	}
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		return fmt.Errorf("prune directory %s is not a directory", dir)
	}

	w.logger.Info("starting prune worker",
		zap.String("dir", dir),
		zap.Duration("interval", interval),
		zap.Duration("older_than", maxAge),
	)

	ticker := w.clock.Ticker(interval)
	defer ticker.Stop()

	w.pass(dir, maxAge)
	for {
		select {
		case <-ticker.C:
			w.pass(dir, maxAge)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *Worker) pass(dir string, maxAge time.Duration) {
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		w.logger.Debug("prune directory does not exist yet", zap.String("dir", dir))
		return
	case err != nil:
		w.logger.Warn("unable to stat prune directory", zap.String("dir", dir), zap.Error(err))
		return
	case !info.IsDir():
		w.logger.Warn("prune directory is not a directory", zap.String("dir", dir))
		return
	}

	stats, err := w.PruneOnce(dir, maxAge)
	if err != nil {
		w.logger.Warn("prune pass had errors", zap.String("dir", dir), zap.Error(err))
	}
	if stats.Files > 0 || stats.Dirs > 0 {
		w.logger.Info("pruned data",
			zap.String("dir", dir),
			zap.Int("files", stats.Files),
			zap.Int("dirs", stats.Dirs),
			zap.Int64("bytes", stats.Bytes),
		)
	}
}

// PruneOnce deletes regular files under dir last modified before
// now-maxAge, then removes subdirectories that are empty afterwards and
// were not modified within maxAge before the pass.
// dir itself is never removed.
func (w *Worker) PruneOnce(dir string, maxAge time.Duration) (Stats, error) {
	var (
		stats   Stats
		errs    error
		subdirs []string
	)
	// Directory mtimes as seen before this pass removed anything from them.
	dirTimes := make(map[string]time.Time)
	cutoff := w.clock.Now().Add(-maxAge)

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			errs = multierr.Append(errs, err)
			if d != nil && d.IsDir() && path != dir {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path == dir {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				errs = multierr.Append(errs, err)
				return nil
			}
			subdirs = append(subdirs, path)
			dirTimes[path] = info.ModTime()
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			errs = multierr.Append(errs, err)
			return nil
		}
		if !info.ModTime().Before(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			errs = multierr.Append(errs, err)
			return nil
		}
		w.logger.Debug("removed file", zap.String("path", path), zap.Time("mtime", info.ModTime()))
		stats.Files++
		stats.Bytes += info.Size()
		return nil
	})
	errs = multierr.Append(errs, walkErr)

	// Deepest first so parents emptied by this pass go too.
	slices.Reverse(subdirs)
	for _, sub := range subdirs {
		if !dirTimes[sub].Before(cutoff) {
			continue
		}
		removed, err := removeIfEmpty(sub)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if removed {
			stats.Dirs++
		}
	}
	return stats, errs
}

func removeIfEmpty(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) > 0 {
		return false, err
	}
	if err := os.Remove(dir); err != nil {
		return false, err
	}
	return true, nil
}
