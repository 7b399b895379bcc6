// Package media normalizes arbitrary audio or video input into canonical PCM.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"whispercli/internal/audio"
	"whispercli/internal/fault"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Audio is normalized input ready for the engine.
type Audio struct {
	Samples  []float32
	Warnings []string
}

// Runner executes an external command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// FFmpeg converts input through an ffmpeg binary into a temporary 16 kHz mono
// WAV, decodes it and removes the temporary file.
type FFmpeg struct {
	Path    string // binary, default "ffmpeg"
	TempDir string
	Log     *logrus.Logger
	Run     Runner
}

// Convert normalizes path. A WAV already in canonical format is decoded
// directly.
func (f *FFmpeg) Convert(ctx context.Context, path string) (*Audio, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: input %s: %v", fault.ErrConfiguration, path, err)
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%w: input %s is a directory", fault.ErrConfiguration, path)
	}

	if strings.EqualFold(filepath.Ext(path), ".wav") {
		if info, err := audio.ProbeWAV(path); err == nil && info.Canonical() {
			samples, _, err := audio.ReadWAV(path)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", fault.ErrConversion, err)
			}
			f.logger().WithField("input", path).Debug("input already canonical; skipping ffmpeg")
			return &Audio{Samples: samples}, nil
		}
	}

	tmpDir := f.TempDir
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: temp dir: %v", fault.ErrIO, err)
	}
	tmp := filepath.Join(tmpDir, "whispercli-"+uuid.NewString()+".wav")

	bin := f.Path
	if bin == "" {
		bin = "ffmpeg"
	}
	run := f.Run
	if run == nil {
		run = execRunner
	}
	args := []string{
		"-nostdin", "-hide_banner", "-loglevel", "error", "-y",
		"-i", path,
		"-vn",
		"-ar", "16000", "-ac", "1", "-sample_fmt", "s16",
		"-f", "wav",
		tmp,
	}
	f.logger().WithFields(logrus.Fields{"input": path, "tmp": tmp}).Info("converting input with ffmpeg")

	res := &Audio{}
	defer func() {
		if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
			msg := fmt.Sprintf("%v: remove temp file %s: %v", fault.ErrIO, tmp, err)
			res.Warnings = append(res.Warnings, msg)
			f.logger().Warn(msg)
		}
	}()

	out, err := run(ctx, bin, args...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return nil, fmt.Errorf("%w: ffmpeg not found at %q: %v", fault.ErrConversion, bin, err)
		}
		return nil, fmt.Errorf("%w: ffmpeg: %v: %s", fault.ErrConversion, err, tail(out, 400))
	}
	samples, _, err := audio.ReadWAV(tmp)
	if err != nil {
		return nil, fmt.Errorf("%w: decode ffmpeg output: %v", fault.ErrConversion, err)
	}
	res.Samples = samples
	return res, nil
}

func (f *FFmpeg) logger() *logrus.Logger {
	if f.Log != nil {
		return f.Log
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func tail(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		s = "..." + s[len(s)-n:]
	}
	return s
}
