// Package watch provides the drain-then-watch monitor each stage worker
// runs over its stage directory.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/singleflight"

	"github.com/smizuno/caplog/internal/lock"
	"github.com/smizuno/caplog/internal/logging"
	"github.com/smizuno/caplog/internal/stage"
)

// Handler processes one new entry in a watched directory. Handlers must be
// idempotent: event systems can redeliver creations, and a periodic rescan
// revisits anything still present.
type Handler func(path string) error

// Watcher monitors one directory for entries matching a pattern set. Event
// delivery and periodic rescans funnel through a singleflight group keyed by
// path, so a redelivered event never runs a handler concurrently with itself.
type Watcher struct {
	dir          string
	patterns     []string
	handler      Handler
	logger       *logging.Logger
	lockMap      *lock.MutexMap
	group        singleflight.Group
	debounce     time.Duration
	scanInterval time.Duration
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce delays event-driven handling to let the producing write
// settle. Drain passes are not delayed.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithScanInterval sets the periodic rescan cadence.
func WithScanInterval(d time.Duration) Option {
	return func(w *Watcher) { w.scanInterval = d }
}

// New creates a watcher over dir for entries matching patterns.
func New(dir string, patterns []string, handler Handler, lockMap *lock.MutexMap, logger *logging.Logger, opts ...Option) *Watcher {
	w := &Watcher{
		dir:          dir,
		patterns:     patterns,
		handler:      handler,
		logger:       logger,
		lockMap:      lockMap,
		debounce:     500 * time.Millisecond,
		scanInterval: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// DrainExisting synchronously processes everything currently present, in
// lexical (close-to-chronological) order. Records written while no watcher
// was running are picked up here before event-based watching begins.
func (w *Watcher) DrainExisting() {
	w.lockMap.Lock(w.dir)
	defer w.lockMap.Unlock(w.dir)

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warnf("drain read dir=%s error=%v", w.dir, err)
		}
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !w.wants(entry.Name()) {
			continue
		}
		w.invoke(filepath.Join(w.dir, entry.Name()))
	}
}

// Run drains once, then blocks processing filesystem events and periodic
// rescans until ctx is cancelled. A failing handler never stops the loop.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("ensure watch dir %s: %w", w.dir, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	w.DrainExisting()

	ticker := time.NewTicker(w.scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			name := filepath.Base(event.Name)
			if !w.wants(name) {
				continue
			}
			w.logger.Debugf("fsnotify op=%s file=%s", event.Op, name)
			if w.debounce > 0 {
				time.Sleep(w.debounce)
			}
			w.lockMap.Lock(w.dir)
			w.invoke(event.Name)
			w.lockMap.Unlock(w.dir)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Errorf("fsnotify error=%v", err)

		case <-ticker.C:
			w.logger.Debugf("periodic rescan dir=%s", w.dir)
			w.DrainExisting()
		}
	}
}

// wants filters out temp files and non-matching names.
func (w *Watcher) wants(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	return stage.MatchAny(name, w.patterns)
}

// invoke runs the handler for path at-most-once-concurrently, containing
// panics and swallowing the already-gone case.
func (w *Watcher) invoke(path string) {
	_, _, _ = w.group.Do(path, func() (any, error) {
		defer func() {
			if r := recover(); r != nil {
				w.logger.Errorf("handler panic file=%s: %v", filepath.Base(path), r)
			}
		}()

		if _, err := os.Stat(path); os.IsNotExist(err) {
			// Already handled by an earlier delivery.
			return nil, nil
		}

		if err := w.handler(path); err != nil && err != stage.ErrGone {
			// The entry stays in its stage directory for the next drain.
			w.logger.Errorf("handler file=%s error=%v", filepath.Base(path), err)
		}
		return nil, nil
	})
}
