package config

import (
	"errors"
	"fmt"
	"strings"

	"whispercli/internal/fault"
)

var knownFormats = map[string]bool{"txt": true, "srt": true, "vtt": true}

// Validate rejects settings that would make a run meaningless before any work starts.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.Audio.Backend {
	case "portaudio", "pulse":
	default:
		bad("audio.backend must be portaudio or pulse (got %q)", c.Audio.Backend)
	}
	if c.Audio.DeviceIndex < 0 {
		bad("audio.device_index must be >= 0 (got %d)", c.Audio.DeviceIndex)
	}
	if c.Audio.FrameMS != 10 && c.Audio.FrameMS != 20 && c.Audio.FrameMS != 30 {
		bad("audio.frame_ms must be 10, 20, or 30 (got %d)", c.Audio.FrameMS)
	}
	if c.Audio.QueueFrames <= 0 {
		bad("audio.queue_frames must be > 0 (got %d)", c.Audio.QueueFrames)
	}
	switch c.Audio.Sink {
	case "file", "memory":
	default:
		bad("audio.sink must be file or memory (got %q)", c.Audio.Sink)
	}

	switch c.VAD.Mode {
	case "webrtc", "energy":
	default:
		bad("vad.mode must be webrtc or energy (got %q)", c.VAD.Mode)
	}
	if c.VAD.Aggressiveness < 0 || c.VAD.Aggressiveness > 3 {
		bad("vad.aggressiveness must be 0..3 (got %d)", c.VAD.Aggressiveness)
	}
	if c.VAD.SilenceMS <= 0 {
		bad("vad.silence_ms must be > 0 (got %d)", c.VAD.SilenceMS)
	}

	if strings.TrimSpace(c.ASR.Model) == "" {
		bad("asr.model is empty")
	}
	if c.ASR.Threads < 0 {
		bad("asr.threads must be >= 0 (got %d)", c.ASR.Threads)
	}
	if c.Models.DownloadTimeoutSec <= 0 {
		bad("models.download_timeout_sec must be > 0 (got %d)", c.Models.DownloadTimeoutSec)
	}

	if c.Stop.PollMS <= 0 {
		bad("stop.poll_ms must be > 0 (got %d)", c.Stop.PollMS)
	}
	if c.Stop.MaxDurationSec < 0 {
		bad("stop.max_duration_sec must be >= 0 (got %g)", c.Stop.MaxDurationSec)
	}

	if c.Output.DelaySec < 0 {
		bad("output.delay_sec must be >= 0 (got %d)", c.Output.DelaySec)
	}
	for _, f := range c.Output.Formats {
		if !knownFormats[f] {
			bad("output.formats: unknown format %q", f)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", fault.ErrConfiguration, err)
	}
	return nil
}
