package host

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/xraph/locator/logger"
)

// Watcher keeps the host in step with a directory of modules. Every
// immediate subdirectory is one module, named after the directory.
type Watcher struct {
	host    *Host
	dir     string
	logger  logger.Logger
	watcher *fsnotify.Watcher

	mu         sync.Mutex
	debouncers map[string]*debouncer
	delay      time.Duration
}

// NewWatcher watches dir for module changes. Changes to one module within
// delay of each other are applied once.
func NewWatcher(h *Host, dir string, delay time.Duration, l logger.Logger) (*Watcher, error) {
	if l == nil {
		l = logger.NewNoopLogger()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		host:       h,
		dir:        dir,
		logger:     l.Named("watcher"),
		watcher:    watcher,
		debouncers: make(map[string]*debouncer),
		delay:      delay,
	}

	if err := w.addWatchRecursive(dir); err != nil {
		watcher.Close()

		return nil, err
	}
	return w, nil
}

// Scan attaches every module currently present in the directory.
func (w *Watcher) Scan() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("reading modules directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() || skipName(entry.Name()) {
			continue
		}
		w.sync(entry.Name())
	}
	return nil
}

// Run applies changes until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			name, ok := w.moduleOf(event.Name)
			if !ok {
				continue
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addWatchRecursive(event.Name); err != nil {
						w.logger.Warn("failed to watch directory", logger.String("path", event.Name), logger.Error(err))
					}
				}
			}
			w.debouncer(name).Debounce(func() {
				w.sync(name)
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", logger.Error(err))
		}
	}
}

// Close stops watching. Pending debounced changes are dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	for _, d := range w.debouncers {
		d.Stop()
	}
	w.mu.Unlock()

	return w.watcher.Close()
}

// sync attaches, re-attaches or detaches module name to match the disk.
func (w *Watcher) sync(name string) {
	path := filepath.Join(w.dir, name)
	info, err := os.Stat(path)

	switch {
	case err == nil && info.IsDir():
		if err := w.host.Reattach(Module{Name: name, FS: os.DirFS(path)}); err != nil {
			w.logger.Error("failed to attach module", logger.Module(name), logger.Error(err))
		}
	case w.host.Attached(name):
		if err := w.host.Detach(name); err != nil {
			w.logger.Error("failed to detach module", logger.Module(name), logger.Error(err))
		}
	}
}

// moduleOf maps a changed path to the module containing it.
func (w *Watcher) moduleOf(path string) (string, bool) {
	rel, err := filepath.Rel(w.dir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	name, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	if skipName(name) || skipName(filepath.Base(path)) {
		return "", false
	}
	return name, true
}

func (w *Watcher) debouncer(name string) *debouncer {
	w.mu.Lock()
	defer w.mu.Unlock()
	d, ok := w.debouncers[name]
	if !ok {
		d = newDebouncer(w.delay)
		w.debouncers[name] = d
	}
	return d
}

func (w *Watcher) addWatchRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipName(d.Name()) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// skipName reports editor temporaries and hidden entries.
func skipName(name string) bool {
	return strings.HasPrefix(name, ".") ||
		strings.HasSuffix(name, "~") ||
		strings.Contains(name, ".swp")
}

// debouncer prevents rapid successive calls.
type debouncer struct {
	mu    sync.Mutex
	timer *time.Timer
	delay time.Duration
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{delay: delay}
}

// Debounce runs fn once delay has passed without another call.
func (d *debouncer) Debounce(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.delay, fn)
}

func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
}
