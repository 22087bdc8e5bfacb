package curriculum

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/blogpad/launchpad/internal/guide"
)

// Watcher serves the curriculum of an override directory and reloads it
// whenever the override file changes. Without an override file the embedded
// curriculum is served. An override that fails validation is logged and the
// previous catalog stays in effect.
type Watcher struct {
	watcher *fsnotify.Watcher
	dir     string
	path    string
	base    *Catalog
	logger  *zap.Logger

	reloads chan *Catalog
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup

	mu      sync.RWMutex
	current *Catalog
	running bool
}

// NewWatcher creates a watcher for dir. base is served whenever dir has no
// override file. The watcher must be started with Start before it reloads.
func NewWatcher(dir string, base *Catalog, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		watcher: fsw,
		dir:     dir,
		path:    filepath.Join(dir, FileName),
		base:    base,
		logger:  logger,
		reloads: make(chan *Catalog, 10),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
		current: base,
	}
	if c, err := w.load(); err == nil {
		w.current = c
	} else {
		logger.Warn("curriculum override ignored", zap.String("path", w.path), zap.Error(err))
	}
	return w, nil
}

// Start begins watching the override directory.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch curriculum directory %s: %w", w.dir, err)
	}

	w.running = true
	w.wg.Add(1)
	go w.processEvents()
	return nil
}

// Stop stops watching and blocks until the event loop has exited. The
// Reloads and Errors channels are closed afterwards. A watcher that was
// never started only releases its fsnotify handle.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	wasRunning := w.running
	w.running = false
	w.mu.Unlock()

	if !wasRunning {
		return w.watcher.Close()
	}

	close(w.done)
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	w.wg.Wait()

	close(w.reloads)
	close(w.errors)
	return nil
}

// Reloads emits every catalog that replaced the current one.
func (w *Watcher) Reloads() <-chan *Catalog {
	return w.reloads
}

// Errors emits fsnotify errors and rejected override files.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Catalog returns the catalog in effect.
func (w *Watcher) Catalog() *Catalog {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Task looks up a task in the current catalog.
func (w *Watcher) Task(id string) (Task, bool) {
	return w.Catalog().Task(id)
}

// Guide looks up a guide in the current catalog.
func (w *Watcher) Guide(id string) (*guide.Definition, bool) {
	return w.Catalog().Guide(id)
}

// load returns the override catalog, or base when no override exists.
func (w *Watcher) load() (*Catalog, error) {
	c, err := LoadFile(w.path)
	if errors.Is(err, os.ErrNotExist) {
		return w.base, nil
	}
	return c, err
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.emitError(err)
		}
	}
}

func (w *Watcher) reload() {
	c, err := w.load()
	if err != nil {
		w.logger.Warn("curriculum reload rejected", zap.String("path", w.path), zap.Error(err))
		w.emitError(err)
		return
	}

	w.mu.Lock()
	if c == w.current {
		w.mu.Unlock()
		return
	}
	w.current = c
	w.mu.Unlock()

	w.logger.Info("curriculum reloaded",
		zap.String("path", w.path), zap.Int("tasks", len(c.tasks)), zap.Int("guides", len(c.guides)))

	select {
	case w.reloads <- c:
	case <-w.done:
	}
}

func (w *Watcher) emitError(err error) {
	select {
	case w.errors <- err:
	case <-w.done:
	}
}

// IsRunning reports whether the watcher has been started and not stopped.
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}
