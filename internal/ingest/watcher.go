package ingest

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceInterval coalesces the burst of fsnotify events one copy or
// rename produces before handing paths to the workers.
const debounceInterval = 200 * time.Millisecond

// maxConcurrentImports bounds how many snapshots import in parallel.
const maxConcurrentImports = 5

// queueSize must exceed maxConcurrentImports so a directory full of
// drops appearing at once does not block the debounce flush.
const queueSize = 200

// Watcher watches a drop directory for new snapshot files.
//
// Producers must write atomically: write to a .tmp name, then rename to
// .json. Partial .tmp writes are never picked up.
type Watcher struct {
	dir      string
	handler  func(path string)
	debounce time.Duration
	logger   *slog.Logger
}

// NewWatcher creates a watcher for the snapshot drop directory.
func NewWatcher(dir string, handler func(path string), logger *slog.Logger) *Watcher {
	return &Watcher{
		dir:      dir,
		handler:  handler,
		debounce: debounceInterval,
		logger:   logger,
	}
}

// Run watches the drop directory until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(w.dir); err != nil {
		return err
	}

	// Paths that passed debounce accumulate in ready; a single timer
	// resets on each event and flushes the whole batch when it fires.
	// One timer, one map: no per-file goroutines even when a hundred
	// snapshots land at once.
	var mu sync.Mutex
	ready := make(map[string]bool)

	queue := make(chan string, queueSize)

	// Fixed worker pool, the only goroutines besides this loop. A
	// panicking handler takes down one import, not the watcher.
	var wg sync.WaitGroup
	for i := 0; i < maxConcurrentImports; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range queue {
				func() {
					defer func() {
						if r := recover(); r != nil {
							w.logger.Error("snapshot handler panicked", "path", path, "panic", r)
						}
					}()
					w.handler(path)
				}()
			}
		}()
	}

	flush := func() {
		mu.Lock()
		batch := make([]string, 0, len(ready))
		for p := range ready {
			batch = append(batch, p)
		}
		ready = make(map[string]bool)
		mu.Unlock()

		for _, p := range batch {
			select {
			case queue <- p:
			case <-ctx.Done():
				return
			}
		}
	}

	// Initialized stopped; the first event starts it.
	debounceTimer := time.NewTimer(w.debounce)
	debounceTimer.Stop()

	defer func() {
		debounceTimer.Stop()
		flush()
		close(queue)
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-debounceTimer.C:
			flush()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			if !isSnapshot(event.Name) {
				continue
			}

			mu.Lock()
			ready[event.Name] = true
			mu.Unlock()

			if !debounceTimer.Stop() {
				select {
				case <-debounceTimer.C:
				default:
				}
			}
			debounceTimer.Reset(w.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "dir", w.dir, "error", err)
		}
	}
}

// ScanExisting hands any snapshot files already sitting in dir to the
// handler. Called at startup to pick up drops that arrived while the
// server was down.
func ScanExisting(dir string, handler func(path string)) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if isSnapshot(path) {
			handler(path)
		}
	}
	return nil
}

// isSnapshot reports whether path names a snapshot file rather than a
// partial .tmp write.
func isSnapshot(path string) bool {
	name := filepath.Base(path)
	return strings.HasSuffix(name, ".json") && !strings.HasSuffix(name, ".tmp")
}
