package workspace

import (
	"sync"

	"github.com/fsnotify/fsnotify"
)

// WriteWatcher observes writable context paths during the final-presentation
// write window (spec §4.1) with an fsnotify watcher, complementing the
// mtime-index diff so writes are observed even when mtimes do not advance
// within filesystem timestamp resolution.
type WriteWatcher struct {
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	written map[string]bool
	done    chan struct{}
}

// NewWriteWatcher starts watching every writable context path on ws. The
// caller must call Close to release the underlying fsnotify watcher.
func NewWriteWatcher(ws *Workspace) (*WriteWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, path := range writablePaths(ws) {
		// Best-effort: a context path that does not exist yet is simply
		// not watched; the mtime-index diff still catches files created
		// under it once EnableWriteAccess has run.
		_ = w.Add(path)
	}

	ww := &WriteWatcher{watcher: w, written: make(map[string]bool), done: make(chan struct{})}
	go ww.run()
	return ww, nil
}

func (ww *WriteWatcher) run() {
	for {
		select {
		case event, ok := <-ww.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				ww.mu.Lock()
				ww.written[event.Name] = true
				ww.mu.Unlock()
			}
		case _, ok := <-ww.watcher.Errors:
			if !ok {
				return
			}
		case <-ww.done:
			return
		}
	}
}

// WrittenFiles returns every path observed as written or created since the
// watcher started.
func (ww *WriteWatcher) WrittenFiles() []string {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	out := make([]string, 0, len(ww.written))
	for path := range ww.written {
		out = append(out, path)
	}
	return out
}

// Close stops the watcher and releases its resources.
func (ww *WriteWatcher) Close() error {
	close(ww.done)
	return ww.watcher.Close()
}
