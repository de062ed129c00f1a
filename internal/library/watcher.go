package library

import (
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher records audio files that disappear from the source tree while a
// mix is being assembled. Callers drain the recorded paths synchronously.
type Watcher struct {
	scanner *Scanner
	watcher *fsnotify.Watcher
	logger  *log.Logger

	mu      sync.Mutex
	removed map[string]struct{}

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// NewWatcher starts watching every directory below the scanner's root.
func NewWatcher(scanner *Scanner, logger *log.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = log.Default()
	}

	w := &Watcher{
		scanner: scanner,
		watcher: fw,
		logger:  logger,
		removed: make(map[string]struct{}),
		done:    make(chan struct{}),
	}

	w.addWatchRecursive(scanner.Root())

	w.wg.Add(1)
	go w.run()

	return w, nil
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)
		w.closeErr = w.watcher.Close()
		w.wg.Wait()
	})
	return w.closeErr
}

// Drain returns the absolute paths removed since the previous call, sorted.
func (w *Watcher) Drain() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.removed) == 0 {
		return nil
	}

	paths := make([]string, 0, len(w.removed))
	for p := range w.removed {
		paths = append(paths, p)
	}
	w.removed = make(map[string]struct{})

	sort.Strings(paths)
	return paths
}

func (w *Watcher) run() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Printf("watcher error: %v", err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.addWatchRecursive(event.Name)
		}
		return
	}

	if event.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if !w.scanner.IsAllowed(event.Name) {
		return
	}

	abs, err := filepath.Abs(event.Name)
	if err != nil {
		abs = event.Name
	}

	w.mu.Lock()
	w.removed[abs] = struct{}{}
	w.mu.Unlock()
}

func (w *Watcher) addWatchRecursive(path string) {
	filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			w.logger.Printf("walk error for %s: %v", p, err)
			return nil
		}

		if d.IsDir() {
			if err := w.watcher.Add(p); err != nil {
				w.logger.Printf("watcher add failure for %s: %v", p, err)
			}
		}
		return nil
	})
}
