// Package watch triggers rebuilds when inputs change or on a fixed interval.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	derrors "git.home.luguber.info/inful/seqbuild/internal/errors"
	"git.home.luguber.info/inful/seqbuild/internal/logfields"
)

// DefaultDebounce is used when a non-positive debounce is given.
const DefaultDebounce = 300 * time.Millisecond

// TriggerFunc is invoked once per burst of relevant file events. path is the
// last file that changed.
type TriggerFunc func(ctx context.Context, path string)

// Watcher monitors a fixed set of files through their parent directories.
type Watcher struct {
	files    map[string]bool
	watcher  *fsnotify.Watcher
	debounce time.Duration
	trigger  TriggerFunc
}

// NewWatcher starts watching the parent directory of every path. Events are
// only delivered once Run is called.
func NewWatcher(paths []string, debounce time.Duration, trigger TriggerFunc) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, derrors.WatchFailed("create file watcher", err)
	}

	files := make(map[string]bool, len(paths))
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			_ = fw.Close()
			return nil, derrors.WatchFailed("resolve "+p, err)
		}
		files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}

	// Watching directories survives editors that replace files on save.
	sorted := make([]string, 0, len(dirs))
	for d := range dirs {
		sorted = append(sorted, d)
	}
	sort.Strings(sorted)
	for _, d := range sorted {
		if err := fw.Add(d); err != nil {
			_ = fw.Close()
			return nil, derrors.WatchFailed("watch "+d, err).WithContext("path", d)
		}
	}

	return &Watcher{files: files, watcher: fw, debounce: debounce, trigger: trigger}, nil
}

// Run delivers debounced triggers until ctx is cancelled, then releases the
// underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() {
		if err := w.watcher.Close(); err != nil {
			slog.Error("Error closing file watcher", logfields.Error(err))
		}
	}()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	var pending string
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			slog.Debug("Input change detected", logfields.Path(event.Name), slog.String("op", event.Op.String()))
			pending = filepath.Clean(event.Name)
			timer.Reset(w.debounce)

		case <-timer.C:
			if pending == "" {
				continue
			}
			path := pending
			pending = ""
			w.trigger(ctx, path)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("File watcher error", logfields.Error(err))
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !w.files[filepath.Clean(event.Name)] {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove)
}
