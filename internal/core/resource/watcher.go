package resource

import (
	"path/filepath"
	"slices"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/zeusync/jackal/internal/core/observability/log"
)

// Watcher collects host files that changed on disk. It never reloads anything
// itself: the main loop drains the queue between ticks and hands the paths to
// Manager.ApplyReloads, so payload swaps happen on the thread that owns them.
type Watcher struct {
	fsw *fsnotify.Watcher
	log log.Log

	mu      sync.Mutex
	dirs    map[string]struct{}
	pending map[string]struct{}

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

func NewWatcher(l log.Log) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fsw:     fsw,
		log:     log.OrNop(l).Named("watcher"),
		dirs:    make(map[string]struct{}),
		pending: make(map[string]struct{}),
		done:    make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Watch starts watching the directory holding hostPath. Directories are
// watched instead of files so editors that save by rename are still seen.
func (w *Watcher) Watch(hostPath string) error {
	dir := filepath.Dir(filepath.Clean(hostPath))

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.dirs[dir]; ok {
		return nil
	}
	if err := w.fsw.Add(dir); err != nil {
		return err
	}
	w.dirs[dir] = struct{}{}
	w.log.Debug("watching", log.String("dir", dir))
	return nil
}

// Pending reports how many changed paths are queued.
func (w *Watcher) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Drain returns the queued paths, sorted, and empties the queue.
func (w *Watcher) Drain() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) == 0 {
		return nil
	}
	out := make([]string, 0, len(w.pending))
	for p := range w.pending {
		out = append(out, p)
	}
	clear(w.pending)
	slices.Sort(out)
	return out
}

func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)
		w.closeErr = w.fsw.Close()
		w.wg.Wait()
	})
	return w.closeErr
}

func (w *Watcher) queue(path string) {
	w.mu.Lock()
	w.pending[filepath.Clean(path)] = struct{}{}
	w.mu.Unlock()
}

func (w *Watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				w.queue(ev.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", log.Error(err))
		}
	}
}
