package audio

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"whispercli/internal/fault"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	frameSamples int
	interval     time.Duration
	value        int16
	closed       atomic.Bool
	reads        atomic.Int64
}

func (f *fakeStream) Read() ([]int16, error) {
	if f.closed.Load() {
		return nil, io.EOF
	}
	if f.interval > 0 {
		time.Sleep(f.interval)
	}
	f.reads.Add(1)
	out := make([]int16, f.frameSamples)
	for i := range out {
		out[i] = f.value
	}
	return out, nil
}

func (f *fakeStream) Close() error {
	f.closed.Store(true)
	return nil
}

type fakeBackend struct {
	devices  []Device
	interval time.Duration
	opened   atomic.Int32
	stream   *fakeStream
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Devices(context.Context) ([]Device, error) { return b.devices, nil }

func (b *fakeBackend) Open(_ context.Context, _ Device, format Format) (Stream, error) {
	b.opened.Add(1)
	b.stream = &fakeStream{frameSamples: format.FrameSamples, interval: b.interval, value: 1000}
	return b.stream, nil
}

func twoDevices(interval time.Duration) *fakeBackend {
	return &fakeBackend{
		devices:  []Device{{Index: 0, Name: "built-in"}, {Index: 1, Name: "usb"}},
		interval: interval,
	}
}

type slowSink struct {
	MemorySink
	delay time.Duration
}

func (s *slowSink) Write(frame []int16) error {
	time.Sleep(s.delay)
	return s.MemorySink.Write(frame)
}

func TestStartRejectsOutOfRangeDeviceWithoutIO(t *testing.T) {
	for _, idx := range []int{-1, 2, 3, 100} {
		backend := twoDevices(time.Millisecond)
		sink := NewMemorySink()
		s := NewSession(backend, sink, SessionOptions{})

		err := s.Start(context.Background(), idx)
		require.ErrorIs(t, err, fault.ErrDevice, "index %d", idx)
		require.Zero(t, backend.opened.Load())
		require.Zero(t, sink.Opened())
		require.Equal(t, Idle, s.State())
		require.NoError(t, s.Stop())
		require.Zero(t, s.StopCount())
	}
}

func TestStartFailsWithoutDevices(t *testing.T) {
	backend := &fakeBackend{}
	sink := NewMemorySink()
	s := NewSession(backend, sink, SessionOptions{})

	err := s.Start(context.Background(), 0)
	require.ErrorIs(t, err, fault.ErrDevice)
	require.Zero(t, sink.Opened())
}

func TestStopFlushesEverythingCaptured(t *testing.T) {
	backend := twoDevices(time.Millisecond)
	sink := NewMemorySink()
	s := NewSession(backend, sink, SessionOptions{Format: Canonical(20), QueueFrames: 1024})

	require.NoError(t, s.Start(context.Background(), 1))
	require.Equal(t, Recording, s.State())
	require.Equal(t, "usb", s.Device().Name)
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, s.Stop())

	st := s.Stats()
	require.Equal(t, Stopped, s.State())
	require.Positive(t, st.Captured)
	require.Zero(t, st.Dropped)
	require.Len(t, sink.Samples(), int(st.Captured)*320)
	require.True(t, backend.stream.closed.Load())
}

func TestConcurrentStopRunsOnce(t *testing.T) {
	backend := twoDevices(time.Millisecond)
	sink := NewMemorySink()
	s := NewSession(backend, sink, SessionOptions{})
	require.NoError(t, s.Start(context.Background(), 0))
	time.Sleep(10 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Stop())
			// every caller observes a closed, readable sink
			assert.Equal(t, Stopped, s.State())
		}()
	}
	wg.Wait()
	require.Equal(t, 1, s.StopCount())
}

func TestSlowSinkDropsInsteadOfStallingCapture(t *testing.T) {
	backend := twoDevices(500 * time.Microsecond)
	sink := &slowSink{delay: 20 * time.Millisecond}
	s := NewSession(backend, sink, SessionOptions{QueueFrames: 2})
	require.NoError(t, s.Start(context.Background(), 0))

	time.Sleep(100 * time.Millisecond)
	start := time.Now()
	require.NoError(t, s.Stop())
	require.Less(t, time.Since(start), time.Second)

	st := s.Stats()
	require.Positive(t, st.Dropped)
	require.Equal(t, st.Captured-st.Dropped, int64(len(sink.Samples())/320))
}

func TestContextCancelStopsSession(t *testing.T) {
	backend := twoDevices(time.Millisecond)
	s := NewSession(backend, NewMemorySink(), SessionOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx, 0))

	cancel()
	require.Eventually(t, func() bool { return s.State() == Stopped }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())
	require.Equal(t, 1, s.StopCount())
}

func TestTapDeliversOffsets(t *testing.T) {
	backend := twoDevices(time.Millisecond)
	s := NewSession(backend, NewMemorySink(), SessionOptions{Tap: true, QueueFrames: 512})
	require.NoError(t, s.Start(context.Background(), 0))

	var got []Frame
	for f := range s.Frames() {
		got = append(got, f)
		if len(got) == 3 {
			require.NoError(t, s.Stop())
		}
	}
	require.GreaterOrEqual(t, len(got), 3)
	require.Equal(t, time.Duration(0), got[0].Offset)
	require.Equal(t, 20*time.Millisecond, got[1].Offset)
	require.Equal(t, 40*time.Millisecond, got[2].Offset)
}

func TestWAVSinkRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec", "recording.wav")
	backend := twoDevices(time.Millisecond)
	s := NewSession(backend, NewWAVSink(path), SessionOptions{QueueFrames: 1024})
	require.NoError(t, s.Start(context.Background(), 0))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, s.Stop())

	info, err := ProbeWAV(path)
	require.NoError(t, err)
	require.True(t, info.Canonical())

	samples, _, err := ReadWAV(path)
	require.NoError(t, err)
	require.Len(t, samples, int(s.Stats().Captured)*320)
	require.InDelta(t, 1000.0/32768.0, samples[0], 1e-6)
}
