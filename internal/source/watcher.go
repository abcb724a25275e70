package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charlievieth/fastwalk"
	"github.com/fsnotify/fsnotify"

	"seriesd/internal/logging"
)

// Watcher follows a directory tree and emits files once they have been quiet
// for the settle delay. New subdirectories are watched as they appear.
type Watcher struct {
	filter *Filter
	settle time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*settleTimer
	fires   sync.WaitGroup
	closed  bool
}

type settleTimer struct {
	timer *time.Timer
}

func NewWatcher(filter *Filter, settle time.Duration, logger *slog.Logger) *Watcher {
	return &Watcher{
		filter:  filter,
		settle:  settle,
		logger:  logging.NewComponentLogger(logger, "watcher"),
		pending: make(map[string]*settleTimer),
	}
}

// Run watches until ctx ends. Files already present when Run starts are not
// emitted; use a Walker for those.
func (w *Watcher) Run(ctx context.Context, sink Sink) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	root := w.filter.Root()
	if err := w.addTree(fsw, root); err != nil {
		return err
	}
	w.logger.Info("watching source directory",
		logging.String(logging.FieldEventType, "watch_started"),
		logging.String("root", root),
		logging.Duration("settle", w.settle),
	)

	defer w.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return errors.New("watcher event stream closed")
			}
			w.handleEvent(ctx, fsw, event, sink)
		case err, ok := <-fsw.Errors:
			if !ok {
				return errors.New("watcher error stream closed")
			}
			logging.WarnWithContext(w.logger, "file watch error", "watch_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "raise fs.inotify.max_user_watches if the tree is large"),
				logging.String(logging.FieldImpact, "some file events may have been missed"),
			)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, fsw *fsnotify.Watcher, event fsnotify.Event, sink Sink) {
	path := event.Name
	switch {
	case event.Has(fsnotify.Create):
		info, err := os.Lstat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			if w.filter.SkipDir(path) {
				return
			}
			if err := w.addTree(fsw, path); err != nil {
				w.logger.Warn("failed to watch new directory",
					logging.String(logging.FieldPath, path),
					logging.Error(err),
					logging.String(logging.FieldEventType, "watch_add_failed"),
					logging.String(logging.FieldImpact, "files in this directory will not be ingested"),
				)
				return
			}
			// Files may have landed before the watch was in place.
			w.scheduleExisting(ctx, path, sink)
			return
		}
		w.schedule(ctx, path, sink)
	case event.Has(fsnotify.Write):
		w.schedule(ctx, path, sink)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.cancel(path)
	}
}

func (w *Watcher) addTree(fsw *fsnotify.Watcher, root string) error {
	conf := fastwalk.Config{Follow: false}
	return fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.filter.SkipDir(path) {
			return fs.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		w.logger.Debug("watching directory", logging.String(logging.FieldPath, path))
		return nil
	})
}

func (w *Watcher) scheduleExisting(ctx context.Context, dir string, sink Sink) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && w.filter.SkipDir(path) {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			w.schedule(ctx, path, sink)
		}
		return nil
	})
}

// schedule arms or re-arms the settle timer for path.
func (w *Watcher) schedule(ctx context.Context, path string, sink Sink) {
	if !w.filter.Match(path) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if st, ok := w.pending[path]; ok && st.timer.Stop() {
		st.timer.Reset(w.settle)
		return
	}
	st := &settleTimer{}
	w.fires.Add(1)
	st.timer = time.AfterFunc(w.settle, func() {
		defer w.fires.Done()
		w.mu.Lock()
		if w.pending[path] != st {
			w.mu.Unlock()
			return
		}
		delete(w.pending, path)
		w.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		sink(ctx, path)
	})
	w.pending[path] = st
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if st, ok := w.pending[path]; ok && st.timer.Stop() {
		delete(w.pending, path)
		w.fires.Done()
	}
}

// shutdown drops pending files and waits for in-flight sink calls.
func (w *Watcher) shutdown() {
	w.mu.Lock()
	w.closed = true
	dropped := 0
	for path, st := range w.pending {
		if st.timer.Stop() {
			w.fires.Done()
			dropped++
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()
	if dropped > 0 {
		w.logger.Info("dropped unsettled files on shutdown", logging.Int("files", dropped))
	}
	w.fires.Wait()
}

// Pending returns the number of files waiting to settle.
func (w *Watcher) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}
