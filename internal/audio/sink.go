package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Sink receives captured frames. Open is called once capture is known to be
// possible, Close flushes everything written.
type Sink interface {
	Open(format Format) error
	Write(frame []int16) error
	Close() error
}

// MemorySink buffers samples in memory.
type MemorySink struct {
	mu      sync.Mutex
	samples []int16
	opened  int
	closed  bool
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (m *MemorySink) Open(Format) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened++
	return nil
}

func (m *MemorySink) Write(frame []int16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("memory sink closed")
	}
	m.samples = append(m.samples, frame...)
	return nil
}

func (m *MemorySink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Samples returns a copy of everything written.
func (m *MemorySink) Samples() []int16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int16, len(m.samples))
	copy(out, m.samples)
	return out
}

// Opened reports how many times Open ran.
func (m *MemorySink) Opened() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened
}

// WAVSink writes a 16-bit PCM WAV file. The file is created on Open.
type WAVSink struct {
	path string
	f    *os.File
	enc  *wav.Encoder
	fmt  Format
	buf  *goaudio.IntBuffer
}

func NewWAVSink(path string) *WAVSink { return &WAVSink{path: path} }

// Path is the WAV file location.
func (w *WAVSink) Path() string { return w.path }

func (w *WAVSink) Open(format Format) error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(w.path)
	if err != nil {
		return err
	}
	w.f = f
	w.fmt = format
	w.enc = wav.NewEncoder(f, format.SampleRate, BitDepth, format.Channels, 1)
	w.buf = &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
		SourceBitDepth: BitDepth,
	}
	return nil
}

func (w *WAVSink) Write(frame []int16) error {
	if w.enc == nil {
		return errors.New("wav sink not open")
	}
	if cap(w.buf.Data) < len(frame) {
		w.buf.Data = make([]int, len(frame))
	}
	w.buf.Data = w.buf.Data[:len(frame)]
	for i, s := range frame {
		w.buf.Data[i] = int(s)
	}
	return w.enc.Write(w.buf)
}

func (w *WAVSink) Close() error {
	if w.f == nil {
		return nil
	}
	var errs []error
	if w.enc != nil {
		if err := w.enc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("finalize wav: %w", err))
		}
	}
	if err := w.f.Close(); err != nil {
		errs = append(errs, err)
	}
	w.f, w.enc = nil, nil
	return errors.Join(errs...)
}

// PCM returns the buffered samples as float32.
func (m *MemorySink) PCM() ([]float32, error) {
	return ToFloat32(m.Samples()), nil
}

// Remove drops the buffered samples.
func (m *MemorySink) Remove() error {
	m.mu.Lock()
	m.samples = nil
	m.mu.Unlock()
	return nil
}

// Location is empty for memory sinks.
func (m *MemorySink) Location() string { return "" }

// PCM decodes the finished WAV file.
func (w *WAVSink) PCM() ([]float32, error) {
	samples, _, err := ReadWAV(w.path)
	return samples, err
}

// Remove deletes the WAV file.
func (w *WAVSink) Remove() error {
	if err := os.Remove(w.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Location is the WAV file path.
func (w *WAVSink) Location() string { return w.path }

// Recording is a sink whose contents can be read back once closed.
type Recording interface {
	Sink
	PCM() ([]float32, error)
	Remove() error
	Location() string
}
