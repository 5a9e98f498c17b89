package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// NoteWatcher watches a directory tree for note changes using fsnotify.
type NoteWatcher struct {
	opts      Options
	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer
	logger    *slog.Logger

	root    string
	events  chan []FileEvent
	errors  chan error
	stopCh  chan struct{}
	mu      sync.RWMutex
	stopped bool
}

// New creates a watcher. Call Start to begin watching and Stop to release
// the underlying inotify/kqueue handles.
func New(opts Options) (*NoteWatcher, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid watcher options: %w", err)
	}
	opts = opts.WithDefaults()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &NoteWatcher{
		opts:      opts,
		fsWatcher: fsw,
		debouncer: NewDebouncer(opts.DebounceWindow, opts.EventBufferSize),
		logger:    slog.Default(),
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}, nil
}

// Start watches root recursively and blocks until Stop is called or ctx is
// done. Cancelling ctx stops the watcher.
func (w *NoteWatcher) Start(ctx context.Context, root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return fmt.Errorf("stat watch root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch root is not a directory: %s", absRoot)
	}

	w.mu.Lock()
	w.root = absRoot
	w.mu.Unlock()

	if err := w.addRecursive(absRoot); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}

	go w.forward()

	w.logger.Info("watcher_started", slog.String("root", absRoot))

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *NoteWatcher) handle(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || rel == "." {
		return
	}
	rel = filepath.ToSlash(rel)
	if IsHidden(rel) || Ignored(rel, w.opts.Ignore) {
		return
	}

	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			w.addNewDir(ev.Name)
			return
		}
	}

	if !IsNote(rel, w.opts.Extensions) {
		return
	}

	var op Operation
	switch {
	case ev.Op&fsnotify.Create != 0:
		op = OpCreate
	case ev.Op&fsnotify.Write != 0:
		op = OpModify
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		op = OpDelete
	default:
		return
	}

	w.debouncer.Add(FileEvent{Path: rel, Operation: op, Timestamp: time.Now()})
}

// addNewDir watches a directory that appeared after Start and reports the
// notes already inside it, which were written before the watch existed.
func (w *NoteWatcher) addNewDir(dir string) {
	if err := w.addRecursive(dir); err != nil {
		w.emitError(fmt.Errorf("watch new directory %s: %w", dir, err))
		return
	}

	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(w.root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if IsHidden(rel) || Ignored(rel, w.opts.Ignore) || !IsNote(rel, w.opts.Extensions) {
			return nil
		}
		w.debouncer.Add(FileEvent{Path: rel, Operation: OpCreate, Timestamp: time.Now()})
		return nil
	})
}

// addRecursive adds dir and every non-hidden directory below it.
func (w *NoteWatcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip entries we can't access
		}
		if !d.IsDir() {
			return nil
		}
		if path == w.root {
			return w.fsWatcher.Add(path)
		}
		if len(d.Name()) > 1 && d.Name()[0] == '.' {
			return filepath.SkipDir
		}
		if rel, err := filepath.Rel(w.root, path); err == nil && Ignored(filepath.ToSlash(rel), w.opts.Ignore) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

func (w *NoteWatcher) forward() {
	for {
		select {
		case <-w.stopCh:
			return
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			w.emit(batch)
		}
	}
}

func (w *NoteWatcher) emit(batch []FileEvent) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.stopped {
		return
	}
	select {
	case w.events <- batch:
	default:
		w.logger.Warn("watcher_batch_dropped", slog.Int("batch_size", len(batch)))
	}
}

func (w *NoteWatcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.stopped {
		return
	}
	select {
	case w.errors <- err:
	default:
	}
}

// Events returns the channel of debounced batches.
// The channel is closed when the watcher stops.
func (w *NoteWatcher) Events() <-chan []FileEvent {
	return w.events
}

// Errors returns non-fatal watcher errors.
// The channel is closed when the watcher stops.
func (w *NoteWatcher) Errors() <-chan error {
	return w.errors
}

// Flush emits pending events without waiting for the debounce window.
func (w *NoteWatcher) Flush() {
	w.debouncer.Flush()
}

// Stop stops watching and closes the Events and Errors channels.
// Safe to call multiple times.
func (w *NoteWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)

	w.debouncer.Stop()
	err := w.fsWatcher.Close()

	close(w.events)
	close(w.errors)
	return err
}
