package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"whispercli/internal/fault"

	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultModel         = "large-v3-turbo"
	DefaultModelBaseURL  = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"
	defaultPollMS        = 100
	defaultDownloadSec   = 600
	defaultSilenceMS     = 800
	defaultQueueFrames   = 256
	defaultDelaySec      = 10
	defaultStateDirLinux = ".local/state/whispercli"
	defaultConfigDir     = ".config/whispercli"
)

// Config holds user configuration loaded from TOML.
type Config struct {
	Audio struct {
		Backend       string `toml:"backend"` // portaudio, pulse
		DeviceIndex   int    `toml:"device_index"`
		FrameMS       int    `toml:"frame_ms"`
		QueueFrames   int    `toml:"queue_frames"`
		Sink          string `toml:"sink"` // file, memory
		KeepRecording bool   `toml:"keep_recording"`
	} `toml:"audio"`

	VAD struct {
		Mode           string  `toml:"mode"` // webrtc, energy
		Aggressiveness int     `toml:"aggressiveness"`
		SilenceMS      int     `toml:"silence_ms"`
		MinSpeechMS    int     `toml:"min_speech_ms"`
		MaxSegmentMS   int     `toml:"max_segment_ms"`
		EnergyThresh   float64 `toml:"energy_threshold"`
	} `toml:"vad"`

	ASR struct {
		Model    string `toml:"model"`
		Language string `toml:"language"`
		Threads  int    `toml:"threads"`
	} `toml:"asr"`

	Models struct {
		Dir                string `toml:"dir"`
		BaseURL            string `toml:"base_url"`
		DownloadTimeoutSec int    `toml:"download_timeout_sec"`
	} `toml:"models"`

	Media struct {
		FFmpegPath string `toml:"ffmpeg_path"`
	} `toml:"media"`

	Stop struct {
		Key            string  `toml:"key"`
		PollMS         int     `toml:"poll_ms"`
		File           string  `toml:"file"`
		MaxDurationSec float64 `toml:"max_duration_sec"`
	} `toml:"stop"`

	Output struct {
		Dir              string   `toml:"dir"`
		Formats          []string `toml:"formats"`
		Open             bool     `toml:"open"`
		Clipboard        bool     `toml:"clipboard"`
		ClipboardCommand string   `toml:"clipboard_command"`
		OpenCommand      string   `toml:"open_command"`
		Notify           bool     `toml:"notify"`
		HookCommand      string   `toml:"hook_command"`
		HookTimeoutSec   float64  `toml:"hook_timeout_sec"`
		DelaySec         int      `toml:"delay_sec"`
	} `toml:"output"`

	Lock struct {
		Enabled      bool   `toml:"enabled"`
		Path         string `toml:"path"`
		ReclaimStale bool   `toml:"reclaim_stale"`
	} `toml:"lock"`

	Logging struct {
		Level  string `toml:"level"`  // debug, info, warn, error
		Format string `toml:"format"` // text, json
		Stdout bool   `toml:"stdout"`
	} `toml:"logging"`

	Paths struct {
		StateDir      string `toml:"state_dir"`
		LogPath       string `toml:"log_path"`
		HistoryPath   string `toml:"history_path"`
		RecordingsDir string `toml:"recordings_dir"`
		ConfigPath    string `toml:"-"`
	} `toml:"paths"`

	Metrics struct {
		Enabled bool   `toml:"enabled"`
		Addr    string `toml:"addr"`
	} `toml:"metrics"`

	History struct {
		Enabled bool `toml:"enabled"`
	} `toml:"history"`
}

// Default returns Config populated with defaults.
func Default() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	stateDir := filepath.Join(home, defaultStateDirLinux)
	// macOS prefers ~/Library/Application Support/whispercli for state/logs
	if isMac() {
		stateDir = filepath.Join(home, "Library", "Application Support", "whispercli")
	}
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = filepath.Join(home, ".cache")
	}

	cfg := &Config{}

	cfg.Audio.Backend = defaultBackend()
	cfg.Audio.DeviceIndex = 0
	cfg.Audio.FrameMS = 20
	cfg.Audio.QueueFrames = defaultQueueFrames
	cfg.Audio.Sink = "file"

	cfg.VAD.Mode = "webrtc"
	cfg.VAD.Aggressiveness = 2
	cfg.VAD.SilenceMS = defaultSilenceMS
	cfg.VAD.MinSpeechMS = 300
	cfg.VAD.MaxSegmentMS = 15000
	cfg.VAD.EnergyThresh = 0.02

	cfg.ASR.Model = DefaultModel
	cfg.ASR.Language = "auto"

	cfg.Models.Dir = filepath.Join(cacheDir, "whispercli", "models")
	cfg.Models.BaseURL = DefaultModelBaseURL
	cfg.Models.DownloadTimeoutSec = defaultDownloadSec

	cfg.Media.FFmpegPath = "ffmpeg"

	cfg.Stop.Key = "space"
	cfg.Stop.PollMS = defaultPollMS

	cfg.Output.Formats = []string{"txt"}
	cfg.Output.Clipboard = true
	cfg.Output.HookTimeoutSec = 10
	cfg.Output.DelaySec = defaultDelaySec

	cfg.Lock.Enabled = true
	runDir := runtimeDir()
	cfg.Lock.Path = filepath.Join(runDir, "whispercli.lock")
	cfg.Lock.ReclaimStale = true

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"
	cfg.Logging.Stdout = true

	cfg.Paths.StateDir = stateDir
	cfg.Paths.LogPath = filepath.Join(stateDir, "whispercli.log")
	cfg.Paths.HistoryPath = filepath.Join(stateDir, "history.db")
	cfg.Paths.RecordingsDir = filepath.Join(runDir, "recordings")

	cfg.Metrics.Enabled = false
	cfg.Metrics.Addr = "127.0.0.1:9318"

	cfg.History.Enabled = true

	return cfg, nil
}

// Load loads config from file, applying defaults.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, defaultConfigDir, "config.toml")
	}

	// Read if exists; otherwise write template.
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if err := Save(cfg, path); err != nil {
				return nil, err
			}
			cfg.Paths.ConfigPath = path
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse config %s: %v", fault.ErrConfiguration, path, err)
	}
	cfg.Paths.ConfigPath = path
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Save writes cfg to path.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}

func isMac() bool {
	return runtime.GOOS == "darwin"
}

// runtimeDir is a per-user temporary directory: $XDG_RUNTIME_DIR when set,
// otherwise a uid-suffixed directory under the system temp dir.
func runtimeDir() string {
	if d := os.Getenv("XDG_RUNTIME_DIR"); d != "" {
		return filepath.Join(d, "whispercli")
	}
	if uid := os.Getuid(); uid >= 0 {
		return filepath.Join(os.TempDir(), fmt.Sprintf("whispercli-%d", uid))
	}
	// Windows: the temp dir is already per-user.
	return filepath.Join(os.TempDir(), "whispercli")
}

func defaultBackend() string {
	if runtime.GOOS == "linux" {
		return "pulse"
	}
	return "portaudio"
}

// MustStatePaths ensures state dirs exist.
func MustStatePaths(cfg *Config) error {
	for _, p := range []string{cfg.Paths.StateDir, filepath.Dir(cfg.Paths.LogPath), filepath.Dir(cfg.Paths.HistoryPath)} {
		if p == "" || p == "." {
			continue
		}
		if err := os.MkdirAll(p, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WHISPERCLI_MODEL"); v != "" {
		cfg.ASR.Model = v
	}
	if v := os.Getenv("WHISPERCLI_LANGUAGE"); v != "" {
		cfg.ASR.Language = v
	}
	if v := os.Getenv("WHISPERCLI_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
		cfg.Metrics.Enabled = true
	}
	if v := os.Getenv("WHISPERCLI_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("WHISPERCLI_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("WHISPERCLI_LOCK_ENABLED"); v != "" {
		cfg.Lock.Enabled = v != "0" && strings.ToLower(v) != "false"
	}
	if v := os.Getenv("WHISPERCLI_HISTORY_ENABLED"); v != "" {
		cfg.History.Enabled = v != "0" && strings.ToLower(v) != "false"
	}
}
