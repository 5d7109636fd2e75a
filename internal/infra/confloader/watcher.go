package confloader

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/yndnr/gridmesh-go/internal/telemetry/logger"
)

// DefaultSettle is how long a watched file must stay quiet before its
// change is reported.
const DefaultSettle = 200 * time.Millisecond

// Watcher reports changes to a set of files. A burst of events for one file,
// such as an editor's write-and-rename or a certificate replaced next to its
// key, is coalesced into a single callback once the file settles.
type Watcher struct {
	settle time.Duration
	log    logger.Logger

	mu       sync.Mutex
	files    map[string]struct{}
	pending  map[string]*time.Timer
	onChange []func(path string)
	stopped  bool
}

// NewWatcher creates a watcher. settle <= 0 uses DefaultSettle.
func NewWatcher(log logger.Logger, settle time.Duration) *Watcher {
	if log == nil {
		log = logger.Default()
	}
	if settle <= 0 {
		settle = DefaultSettle
	}
	return &Watcher{
		settle:  settle,
		log:     log,
		files:   make(map[string]struct{}),
		pending: make(map[string]*time.Timer),
	}
}

// Watch adds a file. Call it before Run.
func (w *Watcher) Watch(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.files[filepath.Clean(path)] = struct{}{}
}

// OnChange registers fn to run with the path of each changed file.
func (w *Watcher) OnChange(fn func(path string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, fn)
}

// Run watches until ctx ends. It watches the files' directories, not the
// files, so replacement by rename is seen.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("confloader: create watcher: %w", err)
	}
	defer fsw.Close()
	defer w.stop()

	w.mu.Lock()
	dirs := make(map[string]struct{})
	for path := range w.files {
		dirs[filepath.Dir(path)] = struct{}{}
	}
	w.mu.Unlock()
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			return fmt.Errorf("confloader: watch %s: %w", dir, err)
		}
	}
	w.log.Debug("file watcher started", "dirs", len(dirs))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				w.schedule(filepath.Clean(ev.Name))
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("file watcher error", "error", err)
		}
	}
}

// schedule arms or re-arms the settle timer of a watched path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.files[path]; !ok || w.stopped {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Reset(w.settle)
		return
	}
	w.pending[path] = time.AfterFunc(w.settle, func() { w.fire(path) })
}

func (w *Watcher) fire(path string) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	delete(w.pending, path)
	callbacks := append([]func(string){}, w.onChange...)
	w.mu.Unlock()

	w.log.Debug("watched file changed", "file", path)
	for _, fn := range callbacks {
		fn(path)
	}
}

func (w *Watcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}
