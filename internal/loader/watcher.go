package loader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a changed file is reported.
// Editors typically emit several events per save.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reports rule files that changed on disk.
// Directories are watched for any rule file; individual files are watched
// through their parent directory so atomic-rename saves are seen.
type Watcher struct {
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	debounce time.Duration

	mu     sync.Mutex
	dirs   map[string]bool // watched for every rule file
	files  map[string]bool // watched individually
	timers map[string]*time.Timer
	fired  chan string
	done   chan struct{}
}

// NewWatcher creates a watcher. A non-positive debounce uses DefaultDebounce.
func NewWatcher(debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &Watcher{
		watcher:  fw,
		logger:   logger,
		debounce: debounce,
		dirs:     make(map[string]bool),
		files:    make(map[string]bool),
		timers:   make(map[string]*time.Timer),
		fired:    make(chan string, 16),
		done:     make(chan struct{}),
	}, nil
}

// Add registers a rule file or a directory of rule files.
func (w *Watcher) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	dir := abs
	w.mu.Lock()
	if info.IsDir() {
		w.dirs[abs] = true
	} else {
		w.files[abs] = true
		dir = filepath.Dir(abs)
	}
	w.mu.Unlock()

	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	w.logger.Debug("watching rule path", "path", abs)
	return nil
}

// Run delivers changed rule file paths to onChange until ctx is cancelled.
// onChange is called from Run's goroutine, one path at a time.
func (w *Watcher) Run(ctx context.Context, onChange func(path string)) error {
	defer close(w.done)
	defer w.stopTimers()

	for {
		select {
		case <-ctx.Done():
			return nil

		case path := <-w.fired:
			onChange(path)

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if w.relevant(event) {
				w.schedule(event.Name)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("file watcher error", "error", err)
		}
	}
}

// Close releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	if !IsRuleFile(event.Name) {
		return false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files[abs] || w.dirs[filepath.Dir(abs)]
}

// schedule (re)starts the debounce timer for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()

		select {
		case w.fired <- path:
		case <-w.done:
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}
