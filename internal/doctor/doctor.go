// Package doctor runs environment checks for whispercli.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"whispercli/internal/asr"
	"whispercli/internal/audio"
	"whispercli/internal/config"
	"whispercli/internal/models"
)

// Result represents a diagnostic check.
type Result struct {
	Name   string
	Pass   bool
	Detail string
}

// Run executes doctor checks.
func Run(ctx context.Context, cfg *config.Config) []Result {
	results := []Result{
		checkFile("config path", cfg.Paths.ConfigPath),
		checkConfig(cfg),
		checkEngine(),
		checkModel(cfg),
		checkFFmpeg(cfg.Media.FFmpegPath),
		checkBackend(ctx, cfg.Audio.Backend, cfg.Audio.DeviceIndex),
		checkWritableDir("lock dir", filepath.Dir(cfg.Lock.Path)),
	}
	if cfg.Output.HookCommand != "" {
		results = append(results, checkExecutable("output.hook_command", firstWord(cfg.Output.HookCommand)))
	}
	if cfg.Output.ClipboardCommand != "" {
		results = append(results, checkExecutable("output.clipboard_command", firstWord(cfg.Output.ClipboardCommand)))
	}
	if strings.EqualFold(cfg.Audio.Backend, "portaudio") {
		results = append(results, checkPortAudioPkgConfig(), checkPortAudio())
	}
	return results
}

// Failed counts failing results.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if !r.Pass {
			n++
		}
	}
	return n
}

func checkFile(label, path string) Result {
	if path == "" {
		return Result{Name: label, Pass: false, Detail: "not set"}
	}
	if _, err := os.Stat(os.ExpandEnv(path)); err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	return Result{Name: label, Pass: true, Detail: path}
}

func checkConfig(cfg *config.Config) Result {
	if err := cfg.Validate(); err != nil {
		return Result{Name: "config", Pass: false, Detail: err.Error()}
	}
	return Result{Name: "config", Pass: true, Detail: "valid"}
}

func checkEngine() Result {
	if !asr.Available {
		return Result{Name: "whisper engine", Pass: false, Detail: "not compiled in; rebuild with -tags whisper"}
	}
	return Result{Name: "whisper engine", Pass: true, Detail: "whisper.cpp"}
}

func checkModel(cfg *config.Config) Result {
	label := "model " + cfg.ASR.Model
	cache := &models.Cache{Dir: cfg.Models.Dir}
	if strings.ContainsAny(cfg.ASR.Model, `/\`) {
		return checkFile(label, cfg.ASR.Model)
	}
	if _, ok := models.Lookup(cfg.ASR.Model); !ok {
		return Result{Name: label, Pass: false, Detail: "unknown model id"}
	}
	if path, ok := cache.Cached(cfg.ASR.Model); ok {
		return Result{Name: label, Pass: true, Detail: path}
	}
	return Result{Name: label, Pass: false, Detail: fmt.Sprintf("not downloaded (whispercli models download %s)", cfg.ASR.Model)}
}

func checkFFmpeg(path string) Result {
	if path == "" {
		path = "ffmpeg"
	}
	r := checkExecutable("ffmpeg", path)
	if !r.Pass {
		r.Detail += " (needed for non-WAV input)"
	}
	return r
}

func checkBackend(ctx context.Context, name string, index int) Result {
	label := "audio backend " + name
	backend, err := audio.NewBackend(name)
	if err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	devices, err := backend.Devices(ctx)
	if err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	if index < 0 || index >= len(devices) {
		return Result{Name: label, Pass: false, Detail: fmt.Sprintf("device_index %d not among %d devices", index, len(devices))}
	}
	return Result{Name: label, Pass: true, Detail: fmt.Sprintf("%d devices, using %q", len(devices), devices[index].Name)}
}

func checkWritableDir(label, dir string) Result {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return Result{Name: label, Pass: true, Detail: dir}
}

func firstWord(cmd string) string {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func checkExecutable(label, cmd string) Result {
	if cmd == "" {
		return Result{Name: label, Pass: false, Detail: "not set"}
	}
	path := os.ExpandEnv(cmd)
	// If contains a path separator, treat as explicit path.
	if strings.Contains(path, "/") || strings.Contains(path, "\\") {
		info, err := os.Stat(path)
		if err != nil {
			return Result{Name: label, Pass: false, Detail: err.Error()}
		}
		if info.IsDir() {
			return Result{Name: label, Pass: false, Detail: "is a directory; point it at an executable file"}
		}
		if info.Mode().Perm()&0o111 == 0 {
			return Result{Name: label, Pass: false, Detail: "not executable; chmod +x or choose another command"}
		}
		return Result{Name: label, Pass: true, Detail: path}
	}
	// Else search PATH.
	resolved, err := exec.LookPath(path)
	if err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	return Result{Name: label, Pass: true, Detail: resolved}
}

func checkPortAudioPkgConfig() Result {
	pkg, err := exec.LookPath("pkg-config")
	if err != nil {
		return Result{Name: "pkg-config", Pass: false, Detail: "pkg-config not found"}
	}
	cmd := exec.Command(pkg, "--exists", "portaudio-2.0")
	if err := cmd.Run(); err != nil {
		return Result{Name: "portaudio", Pass: false, Detail: "portaudio-2.0 not found (install portaudio19-dev or brew install portaudio)"}
	}
	versionCmd := exec.Command(pkg, "--modversion", "portaudio-2.0")
	if out, err := versionCmd.Output(); err == nil {
		return Result{Name: "portaudio", Pass: true, Detail: strings.TrimSpace(string(out))}
	}
	return Result{Name: "portaudio", Pass: true, Detail: "found via pkg-config"}
}
