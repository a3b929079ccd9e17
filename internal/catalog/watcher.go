package catalog

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	customerrors "github.com/bavix/scanbridge/internal/errors"
)

const (
	debounceDelay = 200 * time.Millisecond
	rewatchDelay  = 50 * time.Millisecond
)

// Watcher reloads a catalogue file into a Catalog when the file changes.
type Watcher struct {
	catalog *Catalog
	path    string

	fsWatcher *fsnotify.Watcher
	callbacks []func()
	mu        sync.RWMutex

	debounce   *time.Timer
	debounceMu sync.Mutex

	started bool
}

// NewWatcher creates a watcher that feeds path into c.
func NewWatcher(c *Catalog, path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{catalog: c, path: filepath.Clean(path), fsWatcher: fsw}, nil
}

// OnReload registers a callback run after every successful reload.
func (w *Watcher) OnReload(callback func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.callbacks = append(w.callbacks, callback)
}

// Watch starts watching until ctx is done. A second call fails.
func (w *Watcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()

		return customerrors.ErrFileWatcherAlreadyEnabled
	}

	w.started = true
	w.mu.Unlock()

	logger := zerolog.Ctx(ctx)

	if err := w.fsWatcher.Add(w.path); err != nil {
		logger.Warn().Err(err).Str("file", w.path).Msg("failed to watch catalog file")
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = w.fsWatcher.Close()

				return

			case event, ok := <-w.fsWatcher.Events:
				if !ok {
					return
				}

				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
					!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
					continue
				}

				logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("catalog change detected")

				w.schedule(ctx)

				// Editors replace files atomically; the watch goes with the old inode.
				if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
					time.Sleep(rewatchDelay)

					_ = w.fsWatcher.Add(w.path)
				}

			case err, ok := <-w.fsWatcher.Errors:
				if !ok {
					return
				}

				logger.Warn().Err(err).Msg("fsnotify error")
			}
		}
	}()

	return nil
}

// Reload loads the file now. A broken file leaves the current table in place.
func (w *Watcher) Reload(ctx context.Context) error {
	products, err := Load(w.path)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("file", w.path).Msg("catalog reload failed")

		return err
	}

	w.catalog.Replace(products)

	zerolog.Ctx(ctx).Info().Str("file", w.path).Int("products", w.catalog.Len()).Msg("catalog reloaded")

	w.mu.RLock()
	callbacks := w.callbacks
	w.mu.RUnlock()

	for _, cb := range callbacks {
		cb()
	}

	return nil
}

func (w *Watcher) schedule(ctx context.Context) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}

	w.debounce = time.AfterFunc(debounceDelay, func() {
		if ctx.Err() != nil {
			return
		}

		_ = w.Reload(ctx)
	})
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.fsWatcher.Close()
}
