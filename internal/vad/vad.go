// Package vad splits captured audio into speech chunks.
package vad

import (
	"fmt"
	"math"
	"strings"

	"whispercli/internal/fault"
)

// Detector classifies one canonical frame.
type Detector interface {
	IsSpeech(frame []int16) (bool, error)
}

// New builds the detector for mode ("webrtc" or "energy").
func New(mode string, aggressiveness int, threshold float64) (Detector, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "energy":
		return Energy{Threshold: threshold}, nil
	case "webrtc", "":
		return NewWebRTC(aggressiveness)
	default:
		return nil, fmt.Errorf("%w: unknown vad mode %q", fault.ErrConfiguration, mode)
	}
}

// Energy marks frames whose RMS exceeds Threshold (full scale = 1.0).
type Energy struct {
	Threshold float64
}

func (e Energy) IsSpeech(frame []int16) (bool, error) {
	return RMS(frame) >= e.Threshold, nil
}

// RMS of frame normalised to full scale.
func RMS(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(frame)))
}
