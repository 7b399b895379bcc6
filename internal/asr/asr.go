package asr

import (
	"context"
	"iter"
	"time"
)

// Segment is a recognized piece of text. Start and End are offsets from the
// beginning of the audio handed to the engine.
type Segment struct {
	Text     string
	Language string
	Start    time.Duration
	End      time.Duration
	Partial  bool
}

// Engine converts canonical PCM into segments.
//
// The returned sequence is lazy, finite and ordered by Start. It may be ranged
// over once. Breaking out of the loop or cancelling ctx aborts recognition; an
// engine fault is yielded as the final pair with a zero Segment.
type Engine interface {
	Process(ctx context.Context, pcm []float32) iter.Seq2[Segment, error]
	Close() error
}

// Options tune an engine at load time.
type Options struct {
	Language string // ISO code or "auto"
	Threads  int    // 0 means runtime.NumCPU
}

// Loader opens the model at path.
type Loader func(path string, opts Options) (Engine, error)

// Shift returns seg moved forward by off. Used when an engine is run on a chunk
// that starts part-way through a recording.
func Shift(seg Segment, off time.Duration) Segment {
	seg.Start += off
	seg.End += off
	return seg
}
