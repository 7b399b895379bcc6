//go:build whisper

package vad

import (
	"encoding/binary"
	"fmt"
	"sync"

	"whispercli/internal/audio"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"
)

// WebRTC wraps the webrtc voice activity detector.
type WebRTC struct {
	mu  sync.Mutex
	v   *webrtcvad.VAD
	buf []byte
}

// NewWebRTC creates a detector with aggressiveness 0..3.
func NewWebRTC(aggressiveness int) (Detector, error) {
	v, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("vad init: %w", err)
	}
	if err := v.SetMode(aggressiveness); err != nil {
		return nil, fmt.Errorf("vad mode: %w", err)
	}
	return &WebRTC{v: v}, nil
}

func (w *WebRTC) IsSpeech(frame []int16) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if cap(w.buf) < len(frame)*2 {
		w.buf = make([]byte, len(frame)*2)
	}
	w.buf = w.buf[:len(frame)*2]
	for i, s := range frame {
		binary.LittleEndian.PutUint16(w.buf[2*i:], uint16(s))
	}
	return w.v.Process(audio.SampleRate, w.buf)
}
