package sap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// mtimeEpsilon is how much newer than the baseline a file must be to count as modified.
	mtimeEpsilon = time.Microsecond
	// DefaultSkewTolerance absorbs filesystem timestamp granularity and clock skew.
	DefaultSkewTolerance = time.Second
)

// Snapshot maps absolute file paths to their modification time.
type Snapshot map[string]time.Time

// WatcherConfig configures an ExportWatcher.
type WatcherConfig struct {
	Dir           string
	Pattern       string
	Timeout       time.Duration
	PollInterval  time.Duration
	SkewTolerance time.Duration
	// DisableNotify turns off fsnotify wake-ups; polling alone is then used.
	DisableNotify bool
}

// ExportWatcher detects the file a GUI export writes into a directory.
type ExportWatcher struct {
	cfg    WatcherConfig
	logger *slog.Logger
}

func NewExportWatcher(cfg WatcherConfig, logger *slog.Logger) *ExportWatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.SkewTolerance <= 0 {
		cfg.SkewTolerance = DefaultSkewTolerance
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ExportWatcher{cfg: cfg, logger: logger}
}

// Dir is the watched directory.
func (w *ExportWatcher) Dir() string { return w.cfg.Dir }

// Snapshot captures the files currently matching the configured pattern.
func (w *ExportWatcher) Snapshot() (Snapshot, error) {
	return w.SnapshotPattern(w.cfg.Pattern)
}

// SnapshotPattern captures the files currently matching pattern.
func (w *ExportWatcher) SnapshotPattern(pattern string) (Snapshot, error) {
	snap := make(Snapshot)
	err := w.scan(pattern, func(path string, mtime time.Time) {
		snap[path] = mtime
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Latest returns the most recently modified file matching pattern that is new or
// modified relative to baseline and not older than started minus the tolerance.
func (w *ExportWatcher) Latest(pattern string, baseline Snapshot, started time.Time) (string, bool, error) {
	var (
		best     string
		bestTime time.Time
	)
	floor := started.Add(-w.cfg.SkewTolerance)
	err := w.scan(pattern, func(path string, mtime time.Time) {
		prev, known := baseline[path]
		changed := !known || mtime.Sub(prev) > mtimeEpsilon
		if !changed || mtime.Before(floor) {
			return
		}
		if best == "" || mtime.After(bestTime) {
			best, bestTime = path, mtime
		}
	})
	if err != nil {
		return "", false, err
	}
	return best, best != "", nil
}

// WaitForExport polls until a qualifying file shows up or the timeout elapses.
// Expiry returns an error matching ErrExportTimeout.
func (w *ExportWatcher) WaitForExport(ctx context.Context, baseline Snapshot, started time.Time) (string, error) {
	events, stop := w.notifications(ctx)
	defer stop()

	deadline := time.Now().Add(w.cfg.Timeout)
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	timer := time.NewTimer(w.cfg.Timeout)
	defer timer.Stop()

	for {
		path, ok, err := w.Latest(w.cfg.Pattern, baseline, started)
		if err != nil {
			w.logger.WarnContext(ctx, "scan export directory", "dir", w.cfg.Dir, "err", err)
		}
		if ok {
			w.logger.InfoContext(ctx, "export file detected", "path", path)
			return path, nil
		}
		if !time.Now().Before(deadline) {
			return "", w.timeoutErr()
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
			// One last scan at the deadline.
			if path, ok, _ := w.Latest(w.cfg.Pattern, baseline, started); ok {
				return path, nil
			}
			return "", w.timeoutErr()
		case <-ticker.C:
		case <-events:
		}
	}
}

func (w *ExportWatcher) timeoutErr() error {
	return newError(KindExportTimeout, nil, "no file matching %q appeared in %s within %s",
		w.cfg.Pattern, w.cfg.Dir, w.cfg.Timeout)
}

// notifications delivers a signal whenever the directory changes. A nil channel
// is returned when notifications are disabled or unavailable.
func (w *ExportWatcher) notifications(ctx context.Context) (<-chan struct{}, func()) {
	if w.cfg.DisableNotify {
		return nil, func() {}
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.DebugContext(ctx, "fsnotify unavailable, polling only", "err", err)
		return nil, func() {}
	}
	if err := fw.Add(w.cfg.Dir); err != nil {
		fw.Close()
		w.logger.DebugContext(ctx, "watch export directory, polling only", "dir", w.cfg.Dir, "err", err)
		return nil, func() {}
	}
	out := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				select {
				case out <- struct{}{}:
				default:
				}
			case _, ok := <-fw.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return out, func() {
		close(done)
		fw.Close()
	}
}

// scan calls fn for every regular file in the directory whose base name matches
// pattern, compared case-insensitively.
func (w *ExportWatcher) scan(pattern string, fn func(path string, mtime time.Time)) error {
	entries, err := os.ReadDir(w.cfg.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	lowered := strings.ToLower(pattern)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ok, err := filepath.Match(lowered, strings.ToLower(entry.Name()))
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path, err := filepath.Abs(filepath.Join(w.cfg.Dir, entry.Name()))
		if err != nil {
			continue
		}
		fn(path, info.ModTime())
	}
	return nil
}
