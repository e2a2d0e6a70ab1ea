// Package watch observes the course catalog file and fires a callback
// when its contents change. It pairs fsnotify events with a periodic
// content-hash check, since editors and network mounts don't always
// deliver reliable events.
package watch

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/coursemate/coursemate/internal/log"
)

// Config tunes the watcher.
type Config struct {
	// Path is the file to watch.
	Path string
	// Interval is the hash-check fallback period; zero means 5 minutes.
	Interval time.Duration
	// Debounce collapses bursts of write events; zero means 2 seconds.
	Debounce time.Duration
}

// Watcher fires a callback when the watched file's content hash changes.
type Watcher struct {
	cfg      Config
	logger   log.Logger
	lastHash [sha256.Size]byte
}

// New creates a Watcher. logger may be nil.
func New(cfg Config, logger log.Logger) *Watcher {
	if logger == nil {
		logger = log.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * time.Second
	}
	return &Watcher{cfg: cfg, logger: logger}
}

// Run watches until ctx is canceled, invoking onChange after each
// content change. Callback errors are logged, not fatal; a broken rebuild
// shouldn't stop further updates from being noticed.
func (w *Watcher) Run(ctx context.Context, onChange func(context.Context) error) error {
	hash, err := fileHash(w.cfg.Path)
	if err != nil {
		return fmt.Errorf("hashing %s: %w", w.cfg.Path, err)
	}
	w.lastHash = hash

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	// Watch the directory: editors that replace the file (write to temp,
	// rename over) would otherwise drop the watch.
	dir := filepath.Dir(w.cfg.Path)
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	w.logger.Info("watching course file", "path", w.cfg.Path, "interval", w.cfg.Interval)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	// Debounce timer, armed on the first relevant event.
	debounce := time.NewTimer(w.cfg.Debounce)
	if !debounce.Stop() {
		<-debounce.C
	}

	target := filepath.Clean(w.cfg.Path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return fmt.Errorf("file watcher closed")
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				debounce.Reset(w.cfg.Debounce)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return fmt.Errorf("file watcher closed")
			}
			w.logger.Warn("file watcher error", "error", err)

		case <-debounce.C:
			w.checkAndNotify(ctx, onChange)

		case <-ticker.C:
			w.checkAndNotify(ctx, onChange)
		}
	}
}

func (w *Watcher) checkAndNotify(ctx context.Context, onChange func(context.Context) error) {
	hash, err := fileHash(w.cfg.Path)
	if err != nil {
		w.logger.Warn("hashing course file", "error", err)
		return
	}
	if hash == w.lastHash {
		return
	}
	w.lastHash = hash

	w.logger.Info("course file changed", "path", w.cfg.Path)
	if err := onChange(ctx); err != nil {
		w.logger.Error("handling course file change", "error", err)
	}
}

func fileHash(path string) ([sha256.Size]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return [sha256.Size]byte{}, err
	}
	return sha256.Sum256(data), nil
}
