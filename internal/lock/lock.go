// Package lock keeps a single whispercli instance running per user.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"whispercli/internal/fault"
)

// Guard is a held lock marker. Release deletes the marker exactly once.
type Guard struct {
	path    string
	pid     int
	created time.Time

	once     sync.Once
	err      error
	removals atomic.Int32
}

// Acquire atomically creates the marker at path holding our PID.
//
// An existing marker, or any I/O failure creating it, yields
// fault.ErrAlreadyRunning. With reclaimStale, a marker naming a process that
// no longer exists is removed and creation is retried once.
func Acquire(path string, reclaimStale bool) (*Guard, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("%w: lock dir: %v", fault.ErrAlreadyRunning, err)
	}
	g, err := create(path)
	if err == nil {
		return g, nil
	}
	if !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("%w: create %s: %v", fault.ErrAlreadyRunning, path, err)
	}
	holder, ok := readPID(path)
	if !reclaimStale || !ok || processRunning(holder) {
		if ok {
			return nil, fmt.Errorf("%w: pid %d holds %s", fault.ErrAlreadyRunning, holder, path)
		}
		return nil, fmt.Errorf("%w: %s exists", fault.ErrAlreadyRunning, path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: remove stale %s: %v", fault.ErrAlreadyRunning, path, err)
	}
	g, err = create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", fault.ErrAlreadyRunning, path, err)
	}
	return g, nil
}

func create(path string) (*Guard, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	pid := os.Getpid()
	_, werr := fmt.Fprintf(f, "%d\n", pid)
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	return &Guard{path: path, pid: pid, created: time.Now()}, nil
}

func readPID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// Path of the marker.
func (g *Guard) Path() string { return g.path }

// Created is when the marker was written.
func (g *Guard) Created() time.Time { return g.created }

// Release removes the marker. Later calls return the first call's result.
// A marker that now names another process is left alone.
func (g *Guard) Release() error {
	if g == nil {
		return nil
	}
	g.once.Do(func() {
		if pid, ok := readPID(g.path); ok && pid != g.pid {
			return
		}
		if err := os.Remove(g.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			g.err = fmt.Errorf("%w: remove lock %s: %v", fault.ErrIO, g.path, err)
			return
		}
		g.removals.Add(1)
	})
	return g.err
}

// Removals is how many times Release actually deleted the marker.
func (g *Guard) Removals() int { return int(g.removals.Load()) }
