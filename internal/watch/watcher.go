package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"dvrflow/internal/logging"
	"dvrflow/internal/naming"
)

// Handler processes one settled recording.
type Handler func(ctx context.Context, path string)

type observation struct {
	size    int64
	modTime time.Time
	since   time.Time
}

// Watcher hands settled recordings in one directory to a Handler.
type Watcher struct {
	dir        string
	extensions []string
	settle     time.Duration
	handler    Handler
	logger     *slog.Logger

	pending map[string]observation
	handled map[string]time.Time
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithExtensions limits the watcher to recordings with these extensions.
func WithExtensions(exts ...string) Option {
	return func(w *Watcher) { w.extensions = exts }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New builds a watcher for dir.
func New(dir string, settle time.Duration, handler Handler, opts ...Option) *Watcher {
	w := &Watcher{
		dir:     dir,
		settle:  settle,
		handler: handler,
		logger:  logging.NewNop(),
		pending: make(map[string]observation),
		handled: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = logging.NewComponentLogger(w.logger, "watch")
	return w
}

// Run watches until ctx is cancelled. Recordings already present when Run
// starts are treated as new arrivals. A file is handled again only if it is
// modified after it was handled.
func (w *Watcher) Run(ctx context.Context) error {
	if w.handler == nil {
		return fmt.Errorf("watch: no handler configured")
	}
	if w.settle <= 0 {
		return fmt.Errorf("watch: settle period must be positive")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()
	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watch directory %s: %w", w.dir, err)
	}

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read directory %s: %w", w.dir, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			w.observe(filepath.Join(w.dir, entry.Name()))
		}
	}

	w.logger.Info("watching for recordings",
		logging.String(logging.FieldEventType, "watch_start"),
		logging.String("dir", w.dir),
		logging.Duration("settle", w.settle))

	ticker := time.NewTicker(w.pollInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopped", logging.String(logging.FieldEventType, "watch_stop"))
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return fmt.Errorf("watcher event channel closed")
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Chmod) != 0 {
				w.observe(event.Name)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			logging.WarnWithContext(w.logger, "filesystem watcher error", "watch_warning",
				logging.Error(err),
				logging.String(logging.FieldImpact, "some arrivals may be picked up late"))
		case now := <-ticker.C:
			for _, path := range w.settled(now) {
				if ctx.Err() != nil {
					return nil
				}
				w.logger.Info("recording settled",
					logging.String(logging.FieldEventType, "watch_dispatch"),
					logging.String("path", path))
				w.handler(ctx, path)
			}
		}
	}
}

func (w *Watcher) pollInterval() time.Duration {
	interval := w.settle / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	if interval > time.Second {
		interval = time.Second
	}
	return interval
}

func (w *Watcher) observe(path string) {
	if !w.accepts(path) {
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	if last, ok := w.handled[path]; ok && !info.ModTime().After(last) {
		return
	}
	prev, ok := w.pending[path]
	if ok && prev.size == info.Size() && prev.modTime.Equal(info.ModTime()) {
		return
	}
	w.pending[path] = observation{size: info.Size(), modTime: info.ModTime(), since: time.Now()}
}

// settled removes and returns, sorted, every pending file unchanged for the
// settle period.
func (w *Watcher) settled(now time.Time) []string {
	var ready []string
	for path, obs := range w.pending {
		info, err := os.Stat(path)
		if err != nil {
			delete(w.pending, path)
			continue
		}
		if info.Size() != obs.size || !info.ModTime().Equal(obs.modTime) {
			w.pending[path] = observation{size: info.Size(), modTime: info.ModTime(), since: now}
			continue
		}
		if now.Sub(obs.since) < w.settle || info.Size() == 0 {
			continue
		}
		delete(w.pending, path)
		w.handled[path] = info.ModTime()
		ready = append(ready, path)
	}
	slices.Sort(ready)
	return ready
}

func (w *Watcher) accepts(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || naming.IsPartial(name) {
		return false
	}
	if len(w.extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	return slices.ContainsFunc(w.extensions, func(candidate string) bool {
		return strings.ToLower(candidate) == ext
	})
}
