package vad

import (
	"context"
	"time"

	"whispercli/internal/audio"

	"github.com/sirupsen/logrus"
)

// Chunk is one span of speech. Start is its offset within the recording.
type Chunk struct {
	Samples []int16
	Start   time.Duration
}

// Duration of the chunk at the canonical rate.
func (c Chunk) Duration() time.Duration {
	return time.Duration(len(c.Samples)) * time.Second / audio.SampleRate
}

// Segmenter groups frames into speech chunks. A chunk ends after Silence of
// non-speech or once it reaches MaxSegment; chunks with less than MinSpeech of
// voiced audio are discarded.
type Segmenter struct {
	Detector   Detector
	Silence    time.Duration
	MinSpeech  time.Duration
	MaxSegment time.Duration
	Logger     *logrus.Logger
}

// Run consumes frames until the channel closes, flushing trailing speech, and
// closes out when done.
func (s *Segmenter) Run(ctx context.Context, frames <-chan audio.Frame, out chan<- Chunk) error {
	defer close(out)

	var (
		cur       *Chunk
		voiced    time.Duration
		silentFor time.Duration
	)
	emit := func() error {
		c := cur
		cur, voiced, silentFor = nil, 0, 0
		if c == nil {
			return nil
		}
		if voiced < s.MinSpeech {
			if s.Logger != nil {
				s.Logger.Debugf("vad: dropped %s chunk at %s (voiced %s)", c.Duration(), c.Start, voiced)
			}
			return nil
		}
		select {
		case out <- *c:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for {
		var (
			f  audio.Frame
			ok bool
		)
		select {
		case f, ok = <-frames:
		case <-ctx.Done():
			return ctx.Err()
		}
		if !ok {
			return emit()
		}
		speech, err := s.Detector.IsSpeech(f.Samples)
		if err != nil {
			if s.Logger != nil {
				s.Logger.WithError(err).Debug("vad: frame rejected")
			}
			continue
		}
		frameDur := time.Duration(len(f.Samples)) * time.Second / audio.SampleRate

		if cur == nil {
			if !speech {
				continue
			}
			cur = &Chunk{Start: f.Offset}
		}
		cur.Samples = append(cur.Samples, f.Samples...)
		if speech {
			voiced += frameDur
			silentFor = 0
		} else {
			silentFor += frameDur
		}

		if silentFor >= s.Silence || (s.MaxSegment > 0 && cur.Duration() >= s.MaxSegment) {
			if err := emit(); err != nil {
				return err
			}
		}
	}
}
