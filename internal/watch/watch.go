// Package watch reruns a build whenever one of the files it read changes.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/jward/cderive/internal/logger"
)

// DefaultDebounce coalesces the bursts of events editors produce on save.
const DefaultDebounce = 200 * time.Millisecond

// BuildFunc runs one build and returns the files it read. Files are
// returned even when the build fails, so fixing any of them retriggers it.
type BuildFunc func(ctx context.Context) ([]string, error)

// Watcher watches the files of the last build.
type Watcher struct {
	logger   *zap.SugaredLogger
	debounce time.Duration

	mu    sync.Mutex
	files map[string]bool
	dirs  map[string]bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger for change and error events.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(w *Watcher) {
		w.logger = l
	}
}

// WithDebounce sets how long the watcher waits for events to settle.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// New creates a Watcher.
func New(opts ...Option) *Watcher {
	w := &Watcher{
		logger:   logger.Nop(),
		debounce: DefaultDebounce,
		files:    make(map[string]bool),
		dirs:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run builds once, then rebuilds after every change to a file the latest
// build read, until ctx is done. Build errors are logged and do not stop
// the loop. Directories are watched rather than files so editors that save
// by renaming are seen.
func (w *Watcher) Run(ctx context.Context, build BuildFunc) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: creating fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	w.rebuild(ctx, fsw, build)

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debugw("Watched file changed",
				logger.FieldFile, event.Name,
				"op", event.Op.String())
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			w.rebuild(ctx, fsw, build)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warnw("Watcher error", logger.FieldError, err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files[filepath.Clean(event.Name)]
}

func (w *Watcher) rebuild(ctx context.Context, fsw *fsnotify.Watcher, build BuildFunc) {
	start := time.Now()
	files, err := build(ctx)
	if err != nil {
		w.logger.Warnw("Build failed", logger.FieldError, err)
	} else {
		w.logger.Infow("Build finished",
			logger.FieldFiles, len(files),
			logger.FieldDurationMS, time.Since(start).Milliseconds())
	}
	if len(files) > 0 {
		w.track(fsw, files)
	}
}

// track replaces the watched file set, adding directories as needed.
// Directories from earlier builds stay watched; their events are filtered
// out by name.
func (w *Watcher) track(fsw *fsnotify.Watcher, files []string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.files = make(map[string]bool, len(files))
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			abs = f
		}
		abs = filepath.Clean(abs)
		w.files[abs] = true

		dir := filepath.Dir(abs)
		if w.dirs[dir] {
			continue
		}
		if err := fsw.Add(dir); err != nil {
			w.logger.Warnw("Cannot watch directory", logger.FieldPath, dir, logger.FieldError, err)
			continue
		}
		w.dirs[dir] = true
	}
}

// Files returns the files currently watched.
func (w *Watcher) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.files))
	for f := range w.files {
		out = append(out, f)
	}
	return out
}
