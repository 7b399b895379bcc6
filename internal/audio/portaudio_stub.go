//go:build !whisper

package audio

import (
	"context"
	"errors"
)

var errNoPortAudio = errors.New("portaudio support not built; rebuild with -tags whisper")

type portAudioBackend struct{}

// NewPortAudio returns a backend that reports PortAudio as unavailable.
func NewPortAudio() Backend { return portAudioBackend{} }

func (portAudioBackend) Name() string { return "portaudio" }

func (portAudioBackend) Devices(context.Context) ([]Device, error) {
	return nil, errNoPortAudio
}

func (portAudioBackend) Open(context.Context, Device, Format) (Stream, error) {
	return nil, errNoPortAudio
}
