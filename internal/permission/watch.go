package permission

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/relaydev/clauder/internal/event"
	"github.com/relaydev/clauder/internal/logging"
)

// Watcher observes the persistent store file and publishes a
// store-changed event when it is rewritten, possibly by another process.
// Long-running serve processes use it to surface grants made elsewhere
// without a restart.
type Watcher struct {
	watcher  *fsnotify.Watcher
	store    *Store
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	started  bool
	lastMod  time.Time
	mu       sync.Mutex
}

// NewWatcher creates a watcher for the store's file. The watch sits on
// the containing directory: atomic saves replace the file by rename, and
// a watch on the file itself is lost after the first save.
func NewWatcher(store *Store) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(store.Path())
	if err := os.MkdirAll(dir, 0755); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}

	return &Watcher{
		watcher: w,
		store:   store,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start begins delivering store changes in the background.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	base := filepath.Base(w.store.Path())
	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			w.checkStoreChange()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Error().Err(err).Msg("permission store watcher error")
		}
	}
}

func (w *Watcher) checkStoreChange() {
	info, err := os.Stat(w.store.Path())
	if err != nil {
		return
	}

	w.mu.Lock()
	changed := !info.ModTime().Equal(w.lastMod)
	if changed {
		w.lastMod = info.ModTime()
	}
	w.mu.Unlock()

	if !changed {
		return
	}

	records, err := w.store.All(context.Background())
	if err != nil {
		logging.Warn().Err(err).Msg("failed to reload permission store")
		return
	}

	logging.Debug().
		Int("count", len(records)).
		Str("path", w.store.Path()).
		Msg("permission store changed")

	event.PublishSync(event.Event{
		Type: event.PermissionStoreChanged,
		Data: event.PermissionStoreChangedData{
			Path:  w.store.Path(),
			Count: len(records),
		},
	})
}

// Stop stops the watcher. Safe to call more than once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	w.stopOnce.Do(func() { close(w.stopCh) })

	if started {
		<-w.doneCh
	}

	return w.watcher.Close()
}
