package particlesource

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/scalfmm-go/fmm/internal/logger"
)

// Watcher reloads a local particle dataset file whenever it changes on
// disk, debouncing bursts of writes (many tools write a dataset in
// several chunks) into a single reload.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	debounce time.Duration
	reload  chan *InMemory
	errs    chan error
}

// NewWatcher starts watching path's containing directory (fsnotify
// watches directories, not files, so a editor's atomic rename-over
// still fires an event) and debounces reloads by debounce.
func NewWatcher(path string, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}
	w := &Watcher{
		watcher:  fw,
		path:     path,
		debounce: debounce,
		reload:   make(chan *InMemory, 1),
		errs:     make(chan error, 1),
	}
	return w, nil
}

// Run watches until ctx is cancelled, decoding path and pushing the
// result to Reload() after every debounced burst of changes.
func (w *Watcher) Run(ctx context.Context) {
	var pending *time.Timer
	fire := make(chan struct{})
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			if pending != nil {
				pending.Stop()
			}
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != filepath.Base(w.path) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(w.debounce, func() { fire <- struct{}{} })
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			default:
			}
		case <-fire:
			data, err := NewLocalBackend("").Get(ctx, w.path)
			if err != nil {
				logger.Debug("particlesource: watch reload of %s failed: %v", w.path, err)
				select {
				case w.errs <- err:
				default:
				}
				continue
			}
			decoded, err := Decode(data)
			if err != nil {
				select {
				case w.errs <- err:
				default:
				}
				continue
			}
			select {
			case w.reload <- decoded:
			default:
				<-w.reload
				w.reload <- decoded
			}
		}
	}
}

// Reload receives the latest decoded dataset after each debounced
// change. Buffered to 1: a caller that is slow to drain only ever sees
// the most recent version, never a backlog of stale ones.
func (w *Watcher) Reload() <-chan *InMemory { return w.reload }

// Errors receives decode/read failures encountered while watching.
func (w *Watcher) Errors() <-chan error { return w.errs }
