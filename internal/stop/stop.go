// Package stop decides when live capture ends.
//
// A Condition is polled by the coordinator on a fixed cadence. Evaluate must
// return immediately; variants that wait on I/O do so on their own goroutine.
package stop

import (
	"context"
	"sync"
	"time"
)

// Condition is polled until it first returns true.
type Condition interface {
	Evaluate() bool
}

type predicate func() bool

func (p predicate) Evaluate() bool { return p() }

// Predicate wraps a closure.
func Predicate(fn func() bool) Condition { return predicate(fn) }

type cancellation struct{ ctx context.Context }

func (c cancellation) Evaluate() bool { return c.ctx.Err() != nil }

// Cancellation fires once ctx is done. Used for stop tokens that end recording
// normally, as opposed to the process context which aborts the run.
func Cancellation(ctx context.Context) Condition { return cancellation{ctx: ctx} }

type after struct {
	d     time.Duration
	now   func() time.Time
	once  sync.Once
	start time.Time
}

func (a *after) Evaluate() bool {
	a.once.Do(func() { a.start = a.now() })
	return a.now().Sub(a.start) >= a.d
}

// After fires d after its first evaluation.
func After(d time.Duration) Condition { return &after{d: d, now: time.Now} }

type anyOf []Condition

func (a anyOf) Evaluate() bool {
	for _, c := range a {
		if c != nil && c.Evaluate() {
			return true
		}
	}
	return false
}

func (a anyOf) Reset() {
	for _, c := range a {
		Reset(c)
	}
}

// Any fires when any of conds fires. Nil entries are ignored.
func Any(conds ...Condition) Condition { return anyOf(conds) }

// Reset discards input cond has buffered so far, such as keys typed before
// recording started. Conditions without buffered input are left alone.
func Reset(cond Condition) {
	if r, ok := cond.(interface{ Reset() }); ok {
		r.Reset()
	}
}

// Poll evaluates cond every interval until it fires or ctx is done. It reports
// whether cond fired and how many evaluations ran.
func Poll(ctx context.Context, cond Condition, interval time.Duration) (bool, int) {
	t := time.NewTicker(interval)
	defer t.Stop()
	polls := 0
	for {
		select {
		case <-ctx.Done():
			return false, polls
		case <-t.C:
			polls++
			if cond.Evaluate() {
				return true, polls
			}
		}
	}
}
