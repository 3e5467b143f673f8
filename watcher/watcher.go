package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultDebounce is the quiet time after the last event for a file before
// it gets warmed.
const DefaultDebounce = 500 * time.Millisecond

// Watcher warms the versions of source images as they are created or
// changed below a directory.
type Watcher struct {
	dir    string
	warmer *Warmer
	urlFor func(path string) (string, error)
	fs     *fsnotify.Watcher

	Debounce time.Duration
	Logger   logrus.FieldLogger

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

// New watches dir and all its subdirectories. urlFor maps a file path to
// the url known to the warmer's router.
func New(dir string, warmer *Warmer, urlFor func(path string) (string, error)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}
	w := &Watcher{
		dir:      dir,
		warmer:   warmer,
		urlFor:   urlFor,
		fs:       fsw,
		Debounce: DefaultDebounce,
		Logger:   logrus.StandardLogger(),
		pending:  map[string]*time.Timer{},
	}
	if err := w.addTree(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && hidden(path) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			return errors.Wrapf(err, "failed to watch %s", path)
		}
		w.Logger.WithField("dir", path).Debug("watching")
		return nil
	})
}

// Run processes events until ctx is done or the watcher is closed. Pending
// warm ups are waited for before it returns.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.wg.Wait()
	defer w.stopPending()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, event)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.Logger.WithError(err).Warn("watcher error")
		}
	}
}

func (w *Watcher) Close() error {
	return w.fs.Close()
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if hidden(event.Name) {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	fi, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if fi.IsDir() {
		if event.Has(fsnotify.Create) {
			if err := w.addTree(event.Name); err != nil {
				w.Logger.WithError(err).Warn("watching new directory")
			}
		}
		return
	}

	w.schedule(ctx, event.Name)
}

// schedule warms path once no event arrived for it for Debounce.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok && t.Stop() {
		w.wg.Done()
	}
	w.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.Debounce, func() {
		defer w.wg.Done()

		w.mu.Lock()
		if w.pending[path] == t {
			delete(w.pending, path)
		}
		w.mu.Unlock()

		w.warm(ctx, path)
	})
	w.pending[path] = t
}

func (w *Watcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
}

func (w *Watcher) warm(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	log := w.Logger.WithField("path", path)

	url, err := w.urlFor(path)
	if err != nil {
		log.WithError(err).Warn("no url for source")
		return
	}
	n, err := w.warmer.Warm(ctx, url)
	if err != nil {
		log.WithError(err).Warn("failed to warm source")
		return
	}
	log.WithField("versions", n).Info("warmed source")
}

func hidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
