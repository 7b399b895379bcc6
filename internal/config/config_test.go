package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"whispercli/internal/fault"

	"github.com/stretchr/testify/require"
)

func TestEnvOverrides(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)
	cfg.Paths.ConfigPath = "/tmp/config" // avoid creation

	t.Setenv("WHISPERCLI_MODEL", "small")
	t.Setenv("WHISPERCLI_LANGUAGE", "de")
	t.Setenv("WHISPERCLI_METRICS_ADDR", "1.2.3.4:9999")
	t.Setenv("WHISPERCLI_LOG_LEVEL", "debug")
	t.Setenv("WHISPERCLI_LOG_FORMAT", "json")
	t.Setenv("WHISPERCLI_LOCK_ENABLED", "0")

	applyEnvOverrides(cfg)

	require.Equal(t, "small", cfg.ASR.Model)
	require.Equal(t, "de", cfg.ASR.Language)
	require.True(t, cfg.Metrics.Enabled)
	require.Equal(t, "1.2.3.4:9999", cfg.Metrics.Addr)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "json", cfg.Logging.Format)
	require.False(t, cfg.Lock.Enabled)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Default()
	require.NoError(t, err)
	cfg.ASR.Model = "medium"
	cfg.Output.Formats = []string{"txt", "srt"}
	cfg.Stop.Key = "q"

	require.NoError(t, Save(cfg, path))
	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "medium", loaded.ASR.Model)
	require.Equal(t, []string{"txt", "srt"}, loaded.Output.Formats)
	require.Equal(t, "q", loaded.Stop.Key)
	require.Equal(t, path, loaded.Paths.ConfigPath)
}

func TestLoadWritesTemplateWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, DefaultModel, cfg.ASR.Model)

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[asr\nmodel = "), 0o600))

	_, err := Load(path)
	require.ErrorIs(t, err, fault.ErrConfiguration)
}

func TestDefaultsValidate(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Equal(t, 100, cfg.Stop.PollMS)
	require.Equal(t, 600, cfg.Models.DownloadTimeoutSec)
	require.Equal(t, 10, cfg.Output.DelaySec)
}

func TestRuntimePathsArePerUser(t *testing.T) {
	runDir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", runDir)
	cfg, err := Default()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(runDir, "whispercli", "whispercli.lock"), cfg.Lock.Path)
	require.Equal(t, filepath.Join(runDir, "whispercli", "recordings"), cfg.Paths.RecordingsDir)

	t.Setenv("XDG_RUNTIME_DIR", "")
	cfg, err = Default()
	require.NoError(t, err)
	require.Equal(t, filepath.Dir(cfg.Lock.Path), filepath.Dir(cfg.Paths.RecordingsDir))
	if uid := os.Getuid(); uid >= 0 {
		require.Equal(t, filepath.Join(os.TempDir(), fmt.Sprintf("whispercli-%d", uid)), filepath.Dir(cfg.Lock.Path))
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "negative delay", mutate: func(c *Config) { c.Output.DelaySec = -1 }, want: "output.delay_sec"},
		{name: "negative device", mutate: func(c *Config) { c.Audio.DeviceIndex = -2 }, want: "audio.device_index"},
		{name: "frame size", mutate: func(c *Config) { c.Audio.FrameMS = 25 }, want: "audio.frame_ms"},
		{name: "backend", mutate: func(c *Config) { c.Audio.Backend = "alsa" }, want: "audio.backend"},
		{name: "sink", mutate: func(c *Config) { c.Audio.Sink = "pipe" }, want: "audio.sink"},
		{name: "poll cadence", mutate: func(c *Config) { c.Stop.PollMS = 0 }, want: "stop.poll_ms"},
		{name: "format", mutate: func(c *Config) { c.Output.Formats = []string{"docx"} }, want: "docx"},
		{name: "empty model", mutate: func(c *Config) { c.ASR.Model = " " }, want: "asr.model"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Default()
			require.NoError(t, err)
			tc.mutate(cfg)

			err = cfg.Validate()
			require.ErrorIs(t, err, fault.ErrConfiguration)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}
