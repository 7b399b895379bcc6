package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

type pulseBackend struct{}

// NewPulse returns the PulseAudio backend. It speaks the native protocol and
// needs no cgo.
func NewPulse() Backend { return pulseBackend{} }

func (pulseBackend) Name() string { return "pulse" }

func newPulseClient() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("whispercli"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

func (pulseBackend) Devices(_ context.Context) ([]Device, error) {
	client, err := newPulseClient()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	defaultID := ""
	if src, err := client.DefaultSource(); err == nil {
		defaultID = src.ID()
	}

	var infos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &infos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	devices := make([]Device, 0, len(infos))
	for _, src := range infos {
		if src == nil {
			continue
		}
		name := src.Device
		if name == "" {
			name = src.SourceName
		}
		devices = append(devices, Device{
			Index:   len(devices),
			ID:      src.SourceName,
			Name:    name,
			Default: src.SourceName == defaultID,
		})
	}
	return devices, nil
}

func (pulseBackend) Open(_ context.Context, dev Device, format Format) (Stream, error) {
	client, err := newPulseClient()
	if err != nil {
		return nil, err
	}
	source, err := client.SourceByID(dev.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", dev.ID, err)
	}
	ps := &pulseStream{
		client:     client,
		frameBytes: format.FrameSamples * 2,
		frames:     make(chan []int16, 64),
		done:       make(chan struct{}),
	}
	writer := pulse.NewWriter(writerFunc(ps.onPCM), pulseproto.FormatInt16LE)
	stream, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(format.SampleRate),
		pulse.RecordBufferFragmentSize(uint32(ps.frameBytes)),
		pulse.RecordMediaName("whispercli recording"),
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}
	ps.stream = stream
	stream.Start()
	return ps, nil
}

// pulseStream turns Pulse's push callbacks into fixed-size frames for Read.
type pulseStream struct {
	client *pulse.Client
	stream *pulse.RecordStream

	frameBytes int
	frames     chan []int16
	done       chan struct{}

	mu       sync.Mutex
	pending  []byte
	closed   bool
	inflight sync.WaitGroup
	overflow atomic.Int64
}

func (p *pulseStream) onPCM(buffer []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, io.EOF
	}
	p.inflight.Add(1)
	p.pending = append(p.pending, buffer...)
	var ready [][]int16
	for len(p.pending) >= p.frameBytes {
		ready = append(ready, decodeS16LE(p.pending[:p.frameBytes]))
		p.pending = p.pending[p.frameBytes:]
	}
	p.mu.Unlock()
	defer p.inflight.Done()

	for _, f := range ready {
		select {
		case p.frames <- f:
		default:
			p.overflow.Add(1)
		}
	}
	return len(buffer), nil
}

func (p *pulseStream) Read() ([]int16, error) {
	select {
	case f := <-p.frames:
		return f, nil
	case <-p.done:
		return nil, io.EOF
	}
}

func (p *pulseStream) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	if p.stream != nil {
		p.stream.Stop()
		p.stream.Close()
	}
	p.client.Close()
	p.inflight.Wait()
	return nil
}

func decodeS16LE(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return out
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
