package audio

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// WAVInfo describes a decoded WAV file.
type WAVInfo struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// Canonical reports whether the file is already 16 kHz mono 16-bit.
func (i WAVInfo) Canonical() bool {
	return i.SampleRate == SampleRate && i.Channels == Channels && i.BitDepth == BitDepth
}

// ProbeWAV reads only the header of path.
func ProbeWAV(path string) (WAVInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return WAVInfo{}, err
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return WAVInfo{}, fmt.Errorf("%s: not a PCM wav file", path)
	}
	return WAVInfo{SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans), BitDepth: int(dec.BitDepth)}, nil
}

// ReadWAV decodes path into mono float32 samples, averaging channels.
func ReadWAV(path string) ([]float32, WAVInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, WAVInfo{}, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, WAVInfo{}, fmt.Errorf("%s: not a PCM wav file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, WAVInfo{}, fmt.Errorf("decode %s: %w", path, err)
	}
	info := WAVInfo{SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans), BitDepth: int(dec.BitDepth)}
	if info.Channels <= 0 || info.BitDepth <= 0 {
		return nil, info, errors.New("wav header missing channel count or bit depth")
	}
	scale := float32(int64(1) << (info.BitDepth - 1))
	n := len(buf.Data) / info.Channels
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		var sum float32
		for c := 0; c < info.Channels; c++ {
			sum += float32(buf.Data[i*info.Channels+c]) / scale
		}
		out[i] = sum / float32(info.Channels)
	}
	return out, info, nil
}
