// Package audio handles device discovery, canonical PCM capture and sinks.
package audio

import (
	"context"
	"fmt"
	"strings"
	"time"

	"whispercli/internal/fault"
)

// Canonical capture format.
const (
	SampleRate = 16000
	Channels   = 1
	BitDepth   = 16
)

// Format describes how frames are delivered by a Stream.
type Format struct {
	SampleRate   int
	Channels     int
	FrameSamples int
}

// Canonical returns the 16 kHz mono format with frames of frameMS milliseconds.
func Canonical(frameMS int) Format {
	if frameMS <= 0 {
		frameMS = 20
	}
	return Format{SampleRate: SampleRate, Channels: Channels, FrameSamples: SampleRate * frameMS / 1000}
}

// FrameDuration is the wall-clock span of one frame.
func (f Format) FrameDuration() time.Duration {
	if f.SampleRate == 0 {
		return 0
	}
	return time.Duration(f.FrameSamples) * time.Second / time.Duration(f.SampleRate)
}

// Device is one capture source. Index is its position in the backend's listing.
type Device struct {
	Index   int
	ID      string
	Name    string
	Default bool
}

// Stream delivers frames of canonical PCM. Read blocks for at most about one
// frame and returns io.EOF once the stream is closed.
type Stream interface {
	Read() ([]int16, error)
	Close() error
}

// Backend enumerates and opens capture devices.
type Backend interface {
	Name() string
	Devices(ctx context.Context) ([]Device, error)
	Open(ctx context.Context, dev Device, format Format) (Stream, error)
}

// NewBackend returns the backend registered under name.
func NewBackend(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "pulse":
		return NewPulse(), nil
	case "portaudio":
		return NewPortAudio(), nil
	default:
		return nil, fmt.Errorf("%w: unknown audio backend %q", fault.ErrConfiguration, name)
	}
}

// ToFloat32 scales s16 samples into [-1, 1).
func ToFloat32(pcm []int16) []float32 {
	out := make([]float32, len(pcm))
	for i, s := range pcm {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// FromFloat32 clamps and scales samples back to s16.
func FromFloat32(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, v := range in {
		switch {
		case v >= 1:
			out[i] = 32767
		case v <= -1:
			out[i] = -32768
		default:
			out[i] = int16(v * 32768)
		}
	}
	return out
}
