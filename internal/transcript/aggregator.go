// Package transcript accumulates recognized segments and writes the result.
package transcript

import (
	"context"
	"iter"
	"strings"
	"sync"

	"whispercli/internal/asr"
)

// Transcript is the finished, read-only result of a run.
type Transcript struct {
	Text     string
	Segments []asr.Segment
	Language string
	Partial  bool
}

// Stats counts what the aggregator saw.
type Stats struct {
	Received     int
	Retained     int
	Deduplicated int
}

// Aggregator consumes segments in arrival order. A segment whose text equals
// the last retained segment's text is dropped, so a run of identical texts
// keeps only its first member. Segments are never reordered.
type Aggregator struct {
	mu        sync.Mutex
	b         strings.Builder
	segs      []asr.Segment
	last      string
	hasLast   bool
	language  string
	partial   bool
	finalized bool
	stats     Stats
}

func NewAggregator() *Aggregator { return &Aggregator{} }

// Add offers one segment and reports whether it was retained. Segments offered
// after Finalize are ignored.
func (a *Aggregator) Add(seg asr.Segment) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized {
		return false
	}
	a.stats.Received++
	if a.hasLast && seg.Text == a.last {
		a.stats.Deduplicated++
		return false
	}
	a.last, a.hasLast = seg.Text, true
	a.b.WriteString(seg.Text)
	a.segs = append(a.segs, seg)
	if a.language == "" && seg.Language != "" {
		a.language = seg.Language
	}
	a.stats.Retained++
	return true
}

// Consume drains seq into the aggregator. It stops at the first error or once
// ctx is done; in both cases what was consumed so far is kept and the
// transcript is marked partial.
func (a *Aggregator) Consume(ctx context.Context, seq iter.Seq2[asr.Segment, error]) error {
	for seg, err := range seq {
		if err != nil {
			a.MarkPartial()
			return err
		}
		if ctx.Err() != nil {
			a.MarkPartial()
			return ctx.Err()
		}
		a.Add(seg)
	}
	if err := ctx.Err(); err != nil {
		a.MarkPartial()
		return err
	}
	return nil
}

// MarkPartial flags the transcript as incomplete.
func (a *Aggregator) MarkPartial() {
	a.mu.Lock()
	a.partial = true
	a.mu.Unlock()
}

// Text is the concatenation of retained texts so far.
func (a *Aggregator) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.b.String()
}

func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// Finalize freezes the aggregator and returns the transcript. Calling it again
// returns the same content.
func (a *Aggregator) Finalize() Transcript {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finalized = true
	segs := make([]asr.Segment, len(a.segs))
	copy(segs, a.segs)
	return Transcript{
		Text:     a.b.String(),
		Segments: segs,
		Language: a.language,
		Partial:  a.partial,
	}
}
