//go:build whisper

package audio

import (
	"context"
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

type portAudioBackend struct{}

// NewPortAudio returns the PortAudio backend.
func NewPortAudio() Backend { return portAudioBackend{} }

func (portAudioBackend) Name() string { return "portaudio" }

func inputDevices() ([]*portaudio.DeviceInfo, error) {
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	var out []*portaudio.DeviceInfo
	for _, d := range devs {
		if d.MaxInputChannels > 0 {
			out = append(out, d)
		}
	}
	return out, nil
}

func (portAudioBackend) Devices(_ context.Context) ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	defer portaudio.Terminate()

	devs, err := inputDevices()
	if err != nil {
		return nil, err
	}
	def, _ := portaudio.DefaultInputDevice()
	out := make([]Device, 0, len(devs))
	for i, d := range devs {
		out = append(out, Device{
			Index:   i,
			ID:      d.Name,
			Name:    d.Name,
			Default: def != nil && def.Name == d.Name,
		})
	}
	return out, nil
}

func (portAudioBackend) Open(_ context.Context, dev Device, format Format) (Stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	devs, err := inputDevices()
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}
	if dev.Index < 0 || dev.Index >= len(devs) {
		portaudio.Terminate()
		return nil, fmt.Errorf("device %d disappeared", dev.Index)
	}
	info := devs[dev.Index]

	s := &paStream{target: format}
	// Prefer the canonical rate; fall back to the device rate and resample per frame.
	for _, rate := range []float64{float64(format.SampleRate), info.DefaultSampleRate} {
		frames := int(rate) * format.FrameSamples / format.SampleRate
		buf := make([]int16, frames*format.Channels)
		stream, err := portaudio.OpenStream(portaudio.StreamParameters{
			Input: portaudio.StreamDeviceParameters{
				Device:   info,
				Channels: format.Channels,
				Latency:  info.DefaultLowInputLatency,
			},
			SampleRate:      rate,
			FramesPerBuffer: frames,
		}, buf)
		if err != nil {
			continue
		}
		s.stream, s.buf, s.rate = stream, buf, int(rate)
		break
	}
	if s.stream == nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open stream on %q", info.Name)
	}
	if err := s.stream.Start(); err != nil {
		s.stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("start stream: %w", err)
	}
	return s, nil
}

type paStream struct {
	stream *portaudio.Stream
	buf    []int16
	rate   int
	target Format
	closed bool
}

func (s *paStream) Read() ([]int16, error) {
	if err := s.stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return nil, err
	}
	if s.rate == s.target.SampleRate {
		out := make([]int16, len(s.buf))
		copy(out, s.buf)
		return out, nil
	}
	return Resample(s.buf, s.rate, s.target.SampleRate), nil
}

func (s *paStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.stream.Stop()
	err := s.stream.Close()
	portaudio.Terminate()
	return err
}
