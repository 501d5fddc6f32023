// Package watch imports bundle files dropped into an inbox directory.
//
// The watcher:
//  1. Queues every *.json file already in the inbox
//  2. Watches the inbox for created or rewritten *.json files
//  3. Hands each file to the handler once it has been quiet for the
//     debounce interval, so half-written files are not read
//  4. Moves handled files to the archive directory, if one is set
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a file must be quiet before it is handled.
const DefaultDebounce = 500 * time.Millisecond

// Handler imports one bundle file.
type Handler func(ctx context.Context, path string) error

// Config holds watcher configuration.
type Config struct {
	// Debounce is how long to wait after the last write to a file.
	Debounce time.Duration

	// ArchiveDir receives handled files. Empty leaves them in place; a
	// file that is not moved is handled again only when it changes.
	ArchiveDir string

	Logger *slog.Logger
}

// DefaultConfig returns the defaults.
func DefaultConfig() *Config {
	return &Config{
		Debounce: DefaultDebounce,
		Logger:   slog.New(slog.DiscardHandler),
	}
}

// Watcher feeds inbox files to a Handler.
type Watcher struct {
	dir     string
	handler Handler
	config  *Config

	watcher *fsnotify.Watcher
	queue   map[string]time.Time // path -> last event
	queueMu sync.Mutex

	statsMu  sync.Mutex
	handled  int
	failures int

	wg sync.WaitGroup
}

// New creates a watcher for dir. Run starts it.
func New(dir string, handler Handler, config *Config) (*Watcher, error) {
	if dir == "" {
		return nil, fmt.Errorf("inbox directory cannot be empty")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &Watcher{
		dir:     dir,
		handler: handler,
		config:  config,
		watcher: w,
		queue:   make(map[string]time.Time),
	}, nil
}

// Run watches until ctx is cancelled. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create inbox %s: %w", w.dir, err)
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch inbox %s: %w", w.dir, err)
	}
	if err := w.scan(); err != nil {
		return err
	}
	w.config.Logger.Info("watching inbox", "dir", w.dir)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w.wg.Add(2)
	go w.watchEvents(ctx)
	go w.processQueue(ctx)

	<-ctx.Done()
	w.config.Logger.Info("inbox watcher stopping")
	w.watcher.Close()
	w.wg.Wait()
	return nil
}

// Stats reports how many files were handled and how many failed.
func (w *Watcher) Stats() (handled, failures int) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return w.handled, w.failures
}

// scan queues files already present in the inbox.
func (w *Watcher) scan() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to read inbox: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() && isBundleName(e.Name()) {
			w.enqueue(filepath.Join(w.dir, e.Name()))
		}
	}
	return nil
}

// isBundleName filters out non-JSON files and hidden or temp files.
func isBundleName(name string) bool {
	return filepath.Ext(name) == ".json" && !strings.HasPrefix(name, ".")
}

func (w *Watcher) watchEvents(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// Only care about Create and Write
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !isBundleName(filepath.Base(event.Name)) {
				continue
			}
			w.config.Logger.Debug("inbox event", "op", event.Op.String(), "path", event.Name)
			w.enqueue(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.config.Logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) enqueue(path string) {
	w.queueMu.Lock()
	defer w.queueMu.Unlock()
	w.queue[path] = time.Now()
}

func (w *Watcher) processQueue(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.Debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processPending(ctx)
		}
	}
}

// processPending handles files that have been quiet long enough.
func (w *Watcher) processPending(ctx context.Context) {
	now := time.Now()

	w.queueMu.Lock()
	var ready []string
	for path, queuedAt := range w.queue {
		if now.Sub(queuedAt) < w.config.Debounce {
			continue
		}
		ready = append(ready, path)
		delete(w.queue, path)
	}
	w.queueMu.Unlock()

	for _, path := range ready {
		if ctx.Err() != nil {
			return
		}
		w.handle(ctx, path)
	}
}

func (w *Watcher) handle(ctx context.Context, path string) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return
	}

	w.config.Logger.Info("importing inbox file", "path", path)
	err := w.handler(ctx, path)

	w.statsMu.Lock()
	if err != nil {
		w.failures++
	} else {
		w.handled++
	}
	w.statsMu.Unlock()

	if err != nil {
		w.config.Logger.Error("inbox import failed", "path", path, "error", err)
		return
	}
	if w.config.ArchiveDir == "" {
		return
	}
	if err := archive(path, w.config.ArchiveDir); err != nil {
		w.config.Logger.Warn("failed to archive inbox file", "path", path, "error", err)
	}
}

// archive moves path into dir, adding a timestamp when the name is taken.
func archive(path, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	dest := filepath.Join(dir, filepath.Base(path))
	if _, err := os.Stat(dest); err == nil {
		ext := filepath.Ext(dest)
		dest = fmt.Sprintf("%s-%s%s", strings.TrimSuffix(dest, ext), time.Now().UTC().Format("20060102T150405.000"), ext)
	}
	return os.Rename(path, dest)
}
