package stop

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// FileWatch fires when a file at a path is created, written or touched.
// Touching the file from another shell stops the recording. A fired trigger
// file is removed on Close so the next run starts clean.
type FileWatch struct {
	path    string
	watcher *fsnotify.Watcher
	fired   atomic.Bool
	done    chan struct{}
	log     *logrus.Logger
}

// FileAppears watches the parent directory of path.
func FileAppears(path string, log *logrus.Logger) (*FileWatch, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	fw := &FileWatch{path: abs, watcher: w, done: make(chan struct{}), log: log}
	go fw.loop()
	return fw, nil
}

func (f *FileWatch) loop() {
	defer close(f.done)
	for {
		select {
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != f.path {
				continue
			}
			// touch on an existing file only changes its times, which arrives as Chmod.
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Chmod) {
				f.fired.Store(true)
			}
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			if f.log != nil {
				f.log.WithError(err).Warn("stop file watcher error")
			}
		}
	}
}

func (f *FileWatch) Evaluate() bool { return f.fired.Load() }

// Close stops watching and removes the trigger file if it fired.
func (f *FileWatch) Close() error {
	err := f.watcher.Close()
	<-f.done
	if f.fired.Load() {
		if rerr := os.Remove(f.path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) && f.log != nil {
			f.log.WithError(rerr).Warn("remove stop file")
		}
	}
	return err
}
