package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"whispercli/internal/fault"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// State of a capture session.
type State int32

const (
	Idle State = iota
	Recording
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Frame is a captured chunk with its offset from the start of capture.
type Frame struct {
	Samples []int16
	Offset  time.Duration
}

// Stats are capture counters.
type Stats struct {
	Captured   int64
	Dropped    int64
	TapDropped int64
}

// SessionOptions configures a Session.
type SessionOptions struct {
	Format      Format
	QueueFrames int  // bound on frames waiting for the sink
	Tap         bool // expose a second, lossy frame channel via Frames
	Logger      *logrus.Logger
}

// Session owns one capture device for its lifetime and streams frames into a sink.
type Session struct {
	ID string

	backend Backend
	sink    Sink
	opts    SessionOptions
	log     *logrus.Logger

	mu     sync.Mutex // guards start-up against a concurrent Stop
	state  atomic.Int32
	stream Stream
	device Device

	queue chan []int16
	tap   chan Frame

	stopCh      chan struct{}
	captureDone chan struct{}
	writerDone  chan struct{}

	errMu      sync.Mutex
	captureErr error
	writeErr   error

	stopOnce sync.Once
	stopErr  error
	stops    atomic.Int32

	captured   atomic.Int64
	dropped    atomic.Int64
	tapDropped atomic.Int64
}

// NewSession prepares a session. Nothing is opened until Start.
func NewSession(backend Backend, sink Sink, opts SessionOptions) *Session {
	if opts.Format.FrameSamples == 0 {
		opts.Format = Canonical(20)
	}
	if opts.QueueFrames <= 0 {
		opts.QueueFrames = 256
	}
	log := opts.Logger
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	s := &Session{
		ID:      uuid.NewString(),
		backend: backend,
		sink:    sink,
		opts:    opts,
		log:     log,
	}
	if opts.Tap {
		s.tap = make(chan Frame, opts.QueueFrames)
	}
	return s
}

// State reports the session state.
func (s *Session) State() State { return State(s.state.Load()) }

// Device returns the opened device.
func (s *Session) Device() Device { return s.device }

// Sink returns the session sink.
func (s *Session) Sink() Sink { return s.sink }

// Frames returns the tap channel, nil unless SessionOptions.Tap was set.
// It is closed once capture ends.
func (s *Session) Frames() <-chan Frame { return s.tap }

// Stats returns current capture counters.
func (s *Session) Stats() Stats {
	return Stats{Captured: s.captured.Load(), Dropped: s.dropped.Load(), TapDropped: s.tapDropped.Load()}
}

// StopCount is the number of times stop work actually ran (0 or 1).
func (s *Session) StopCount() int { return int(s.stops.Load()) }

// Start validates deviceIndex against the backend's devices and begins capture.
// An invalid index fails with fault.ErrDevice before the sink or device is touched.
// Cancelling ctx stops the session.
func (s *Session) Start(ctx context.Context, deviceIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.CompareAndSwap(int32(Idle), int32(Recording)) {
		return fmt.Errorf("capture session %s already %s", s.ID, s.State())
	}
	devices, err := s.backend.Devices(ctx)
	if err != nil {
		s.state.Store(int32(Idle))
		return fmt.Errorf("%w: list %s devices: %v", fault.ErrDevice, s.backend.Name(), err)
	}
	if len(devices) == 0 {
		s.state.Store(int32(Idle))
		return fmt.Errorf("%w: no capture devices available", fault.ErrDevice)
	}
	if deviceIndex < 0 || deviceIndex >= len(devices) {
		s.state.Store(int32(Idle))
		return fmt.Errorf("%w: device index %d out of range [0, %d)", fault.ErrDevice, deviceIndex, len(devices))
	}
	dev := devices[deviceIndex]

	if err := s.sink.Open(s.opts.Format); err != nil {
		s.state.Store(int32(Idle))
		return fmt.Errorf("%w: open sink: %v", fault.ErrIO, err)
	}
	stream, err := s.backend.Open(ctx, dev, s.opts.Format)
	if err != nil {
		_ = s.sink.Close()
		s.state.Store(int32(Idle))
		return fmt.Errorf("%w: open %q: %v", fault.ErrDevice, dev.Name, err)
	}
	s.stream = stream
	s.device = dev
	s.queue = make(chan []int16, s.opts.QueueFrames)
	s.stopCh = make(chan struct{})
	s.captureDone = make(chan struct{})
	s.writerDone = make(chan struct{})

	go s.capture()
	go s.write()
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Stop()
		case <-s.captureDone:
		}
	}()

	s.log.WithFields(logrus.Fields{"session": s.ID, "device": dev.Name, "backend": s.backend.Name()}).Info("recording started")
	return nil
}

// capture owns the stream. It never blocks on the sink: when the queue is full
// the frame is dropped.
func (s *Session) capture() {
	defer close(s.captureDone)
	defer close(s.queue)
	if s.tap != nil {
		defer close(s.tap)
	}
	defer func() { _ = s.stream.Close() }()

	frameDur := s.opts.Format.FrameDuration()
	var offset time.Duration
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}
		frame, err := s.stream.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			select {
			case <-s.stopCh:
			default:
				s.setErr(&s.captureErr, err)
				s.log.WithError(err).Warn("capture read failed")
			}
			return
		}
		s.captured.Add(1)
		select {
		case s.queue <- frame:
		default:
			s.dropped.Add(1)
		}
		if s.tap != nil {
			select {
			case s.tap <- Frame{Samples: frame, Offset: offset}:
			default:
				s.tapDropped.Add(1)
			}
		}
		if frameDur > 0 {
			offset += frameDur
		} else {
			offset += time.Duration(len(frame)) * time.Second / SampleRate
		}
	}
}

func (s *Session) write() {
	defer close(s.writerDone)
	for frame := range s.queue {
		if s.writeErr != nil {
			continue
		}
		if err := s.sink.Write(frame); err != nil {
			s.setErr(&s.writeErr, err)
			s.log.WithError(err).Warn("sink write failed")
		}
	}
}

func (s *Session) setErr(dst *error, err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if *dst == nil {
		*dst = err
	}
}

// Stop ends capture, drains queued frames into the sink and closes it. It is
// safe to call from several goroutines; every caller returns only after the
// sink is closed and readable. Stop on a session that never started is a no-op.
func (s *Session) Stop() error {
	s.mu.Lock()
	started := s.stopCh != nil
	s.mu.Unlock()
	if !started {
		return nil
	}
	s.stopOnce.Do(func() {
		s.stops.Add(1)
		close(s.stopCh)
		<-s.captureDone
		<-s.writerDone

		s.errMu.Lock()
		errs := []error{s.captureErr, s.writeErr}
		s.errMu.Unlock()
		if err := s.sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%w: close sink: %v", fault.ErrIO, err))
		}
		s.stopErr = errors.Join(errs...)
		s.state.Store(int32(Stopped))

		st := s.Stats()
		s.log.WithFields(logrus.Fields{
			"session":  s.ID,
			"captured": st.Captured,
			"dropped":  st.Dropped,
		}).Info("recording stopped")
	})
	return s.stopErr
}
