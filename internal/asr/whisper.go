//go:build whisper

package asr

import (
	"context"
	"fmt"
	"iter"
	"runtime"
	"strings"

	"whispercli/internal/fault"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Available reports whether the whisper.cpp engine is compiled in.
const Available = true

type whisperEngine struct {
	model whisper.Model
	opts  Options
}

// Load opens a ggml model with whisper.cpp.
func Load(path string, opts Options) (Engine, error) {
	model, err := whisper.New(path)
	if err != nil {
		return nil, fmt.Errorf("%w: load model %s: %v", fault.ErrAssetUnavailable, path, err)
	}
	return &whisperEngine{model: model, opts: opts}, nil
}

func (e *whisperEngine) Close() error {
	return e.model.Close()
}

type result struct {
	seg whisper.Segment
	err error
}

func (e *whisperEngine) Process(ctx context.Context, pcm []float32) iter.Seq2[Segment, error] {
	return func(yield func(Segment, error) bool) {
		wctx, err := e.model.NewContext()
		if err != nil {
			yield(Segment{}, fmt.Errorf("%w: new context: %v", fault.ErrTranscription, err))
			return
		}
		lang := strings.TrimSpace(e.opts.Language)
		if lang == "" {
			lang = "auto"
		}
		if err := wctx.SetLanguage(lang); err != nil {
			yield(Segment{}, fmt.Errorf("%w: language %q: %v", fault.ErrConfiguration, lang, err))
			return
		}
		threads := e.opts.Threads
		if threads <= 0 {
			threads = runtime.NumCPU()
		}
		wctx.SetThreads(uint(threads))

		// whisper.cpp runs synchronously; results are relayed through a channel so
		// the caller consumes segments while later audio is still being decoded.
		done := make(chan struct{})
		defer close(done)
		out := make(chan result, 16)
		go func() {
			defer close(out)
			keepGoing := func() bool {
				select {
				case <-done:
					return false
				case <-ctx.Done():
					return false
				default:
					return true
				}
			}
			onSegment := func(s whisper.Segment) {
				select {
				case out <- result{seg: s}:
				case <-done:
				}
			}
			if err := wctx.Process(pcm, keepGoing, onSegment, nil); err != nil && ctx.Err() == nil {
				select {
				case out <- result{err: err}:
				case <-done:
				}
			}
		}()

		for r := range out {
			if r.err != nil {
				yield(Segment{}, fmt.Errorf("%w: %v", fault.ErrTranscription, r.err))
				return
			}
			language := lang
			if language == "auto" {
				language = wctx.DetectedLanguage()
			}
			seg := Segment{
				Text:     r.seg.Text,
				Language: language,
				Start:    r.seg.Start,
				End:      r.seg.End,
			}
			if !yield(seg, nil) {
				return
			}
		}
	}
}
