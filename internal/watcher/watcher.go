// Package watcher observes a directory tree and reports newly created entries.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Event describes a single observed creation.
//
// Paths are reported exactly as the operating system delivered them. No
// filtering or existence check happens here: the entry may be a directory,
// and it may already be gone by the time a consumer looks at it. Consumers
// own that judgment.
type Event struct {
	// Path is the created entry.
	Path string
}

// Watcher monitors a directory tree for file creations.
type Watcher struct {
	logger  *slog.Logger
	watcher *fsnotify.Watcher

	events chan Event
	errors chan error
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// New creates a new file watcher.
func New(logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		logger:  logger,
		watcher: fsw,
		events:  make(chan Event, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Watch subscribes to a directory and everything below it.
// The root must exist and be a directory; failing to subscribe to the
// root is an error, while unreadable subdirectories are logged and skipped.
func (w *Watcher) Watch(root string) error {
	root = filepath.Clean(root)

	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("failed to stat path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", root)
	}

	if err := w.watcher.Add(root); err != nil {
		return fmt.Errorf("failed to add watch: %w", err)
	}

	// Register directories that already exist below the root. The root
	// subscription stands even if parts of the tree are unreadable.
	w.watchDir(root)
	return nil
}

// watchDir recursively registers path and every directory below it.
// Individual failures are logged and skipped.
func (w *Watcher) watchDir(path string) {
	_ = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			w.logger.Warn("failed to access path", "path", p, "error", err)
			return nil
		}

		if !info.IsDir() {
			return nil
		}

		if err := w.watcher.Add(p); err != nil {
			w.logger.Error("failed to add watch", "path", p, "error", err)
			return nil
		}

		w.logger.Debug("added watch", "path", p)
		return nil
	})
}

// Start begins delivering events.
// This method blocks until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	w.wg.Add(1)
	go w.processEvents(ctx)

	<-ctx.Done()
	return nil
}

// processEvents pumps fsnotify events into the watcher's channels.
func (w *Watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.emitError(err)
		}
	}
}

// handleEvent forwards creation events. Every created path is reported,
// directories included. A new directory additionally extends the watched
// tree so files appearing below it are seen too.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) {
		return
	}

	// The stat is advisory: an entry that vanished before we could look
	// at it is still reported like any other creation.
	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		w.watchDir(event.Name)
	}

	w.emit(Event{Path: event.Name})
}

// emit sends an event unless the watcher is shutting down.
func (w *Watcher) emit(event Event) {
	select {
	case w.events <- event:
	case <-w.done:
	}
}

// emitError sends an error unless the watcher is shutting down.
func (w *Watcher) emitError(err error) {
	select {
	case w.errors <- err:
	case <-w.done:
	}
}

// Events returns the channel for receiving creation events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel for receiving errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Stop stops the watcher and releases resources. Safe to call twice.
func (w *Watcher) Stop() error {
	w.once.Do(func() {
		close(w.done)
		w.watcher.Close()
		w.wg.Wait()
		close(w.events)
		close(w.errors)
	})
	return nil
}
