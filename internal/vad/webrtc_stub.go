//go:build !whisper

package vad

import (
	"fmt"

	"whispercli/internal/fault"
)

// NewWebRTC is unavailable without the whisper build tag; use vad.mode = "energy".
func NewWebRTC(int) (Detector, error) {
	return nil, fmt.Errorf("%w: webrtc vad not built; rebuild with -tags whisper or set vad.mode = \"energy\"", fault.ErrConfiguration)
}
