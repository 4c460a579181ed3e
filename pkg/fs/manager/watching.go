package manager

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/marmos91/arcfs/internal/logger"
	"github.com/marmos91/arcfs/pkg/fs/controller"
	"github.com/marmos91/arcfs/pkg/fs/driver"
	"github.com/marmos91/arcfs/pkg/fs/mountpoint"
)

// changeOps are the events that replace or drop a backing file.
const changeOps = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

// Watching invalidates controllers when their backing file on the host
// changes. It watches the directory of every top-level archive, since
// atomic replacement renames a new file over the old one.
//
// Dirty controllers refuse invalidation and keep their changes; the refusal
// is logged.
type Watching struct {
	*Decorating

	watcher *fsnotify.Watcher

	mu   sync.Mutex
	dirs map[string]struct{}

	done chan struct{}
	once sync.Once
}

// NewWatching wraps m and starts watching. Call Close to stop.
func NewWatching(m Manager) (*Watching, error) {
	d, err := NewDecorating(m)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watching{
		Decorating: d,
		watcher:    watcher,
		dirs:       make(map[string]struct{}),
		done:       make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watching) isNil() bool { return w == nil || w.Decorating == nil }

func (w *Watching) Controller(ctx context.Context, mp mountpoint.MountPoint, d driver.CompositeDriver) (controller.Controller, error) {
	c, err := w.Decorating.Controller(ctx, mp, d)
	if err != nil {
		return nil, err
	}
	if err := w.watch(hostPath(mp)); err != nil {
		logger.WarnCtx(ctx, "Cannot watch archive for external changes",
			logger.KeyMountPoint, mp.String(),
			logger.KeyError, err)
	}
	return c, nil
}

// Close stops watching.
func (w *Watching) Close() error {
	var err error
	w.once.Do(func() {
		err = w.watcher.Close()
		<-w.done
	})
	return err
}

func (w *Watching) watch(file string) error {
	dir := filepath.Dir(file)

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.dirs[dir]; ok {
		return nil
	}
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	w.dirs[dir] = struct{}{}
	logger.Debug("Watching directory", logger.KeyHostPath, dir)
	return nil
}

func (w *Watching) loop() {
	defer close(w.done)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(context.Background(), event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("File watcher error", logger.KeyError, err)
		}
	}
}

// handle invalidates every controller stored in the changed file, deeper
// mount points first.
func (w *Watching) handle(ctx context.Context, event fsnotify.Event) int {
	if event.Op&changeOps == 0 {
		return 0
	}
	changed := filepath.Clean(event.Name)

	invalidated := 0
	for _, c := range w.Controllers() {
		if hostPath(c.MountPoint()) != changed || !c.Mounted() {
			continue
		}
		if err := c.Invalidate(ctx); err != nil {
			logger.WarnCtx(ctx, "Archive changed externally while holding unsynchronized changes",
				logger.KeyMountPoint, c.MountPoint().String(),
				logger.KeyEvent, event.Op.String(),
				logger.KeyError, err)
			continue
		}
		invalidated++
		logger.InfoCtx(ctx, "Archive changed externally, invalidated",
			logger.KeyMountPoint, c.MountPoint().String(),
			logger.KeyEvent, event.Op.String())
	}
	return invalidated
}

// hostPath returns the host file holding mp and its ancestors.
func hostPath(mp mountpoint.MountPoint) string {
	return filepath.Clean(filepath.FromSlash(mp.Root().Path()))
}
