package control

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"whispercli/internal/audio"
	"whispercli/internal/config"
	"whispercli/internal/fault"
	"whispercli/internal/fsm"
	"whispercli/internal/history"
	"whispercli/internal/lock"
	"whispercli/internal/logging"
	"whispercli/internal/models"
	"whispercli/internal/pipeline"
	"whispercli/internal/stop"
	"whispercli/internal/transcript"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	cfg, err := config.Default()
	require.NoError(t, err)
	return cfg
}

func parsedFlags(t *testing.T, args ...string) (*cobra.Command, *runFlags) {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	f := &runFlags{}
	f.register(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd, f
}

func TestApplyFlagsOverridesOnlyChanged(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.Open = true
	cmd, f := parsedFlags(t, "-m", "tiny", "-i", "2", "-c=false", "--max-duration", "90s", "--format", "txt,vtt", "-l", "de")

	applyFlags(cmd, cfg, f)

	require.Equal(t, "tiny", cfg.ASR.Model)
	require.Equal(t, 2, cfg.Audio.DeviceIndex)
	require.False(t, cfg.Output.Clipboard)
	require.True(t, cfg.Output.Open, "unset flag must not override config")
	require.Equal(t, 90.0, cfg.Stop.MaxDurationSec)
	require.Equal(t, []string{"txt", "vtt"}, cfg.Output.Formats)
	require.Equal(t, "de", cfg.ASR.Language)
	require.True(t, cfg.Lock.Enabled)
}

func TestApplyFlagsMetricsAndLock(t *testing.T) {
	cfg := testConfig(t)
	cmd, f := parsedFlags(t, "--metrics-addr", "127.0.0.1:0", "--lockfile=false")

	applyFlags(cmd, cfg, f)

	require.True(t, cfg.Metrics.Enabled)
	require.Equal(t, "127.0.0.1:0", cfg.Metrics.Addr)
	require.False(t, cfg.Lock.Enabled)
}

func TestDelayFlagDefaultsToTenSeconds(t *testing.T) {
	cfg := testConfig(t)
	cmd, f := parsedFlags(t)
	require.Equal(t, 10, f.delay)

	applyFlags(cmd, cfg, f)
	require.Equal(t, 10, cfg.Output.DelaySec)
}

func TestSecondInstanceExitsBeforeOpeningHistory(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())
	cfg, err := config.Default()
	require.NoError(t, err)
	held, err := lock.Acquire(cfg.Lock.Path, false)
	require.NoError(t, err)
	defer held.Release()

	root := NewRootCmd("test")
	root.SetArgs([]string{"--config", filepath.Join(home, "config.toml"), "--metrics-addr", "127.0.0.1:0", "a.mp3"})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})

	require.NoError(t, root.Execute())
	require.Empty(t, out.String())
	_, err = os.Stat(cfg.Paths.HistoryPath)
	require.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(cfg.Lock.Path)
	require.NoError(t, err, "held lock must survive the second instance")
}

func TestRootRejectsBadInvocationAsConfiguration(t *testing.T) {
	cases := map[string][]string{
		"unknown flag":   {"--definitely-not-a-flag"},
		"two inputs":     {"a.mp3", "b.mp3"},
		"negative delay": {"--delay-seconds=-1", "a.mp3"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			home := t.TempDir()
			t.Setenv("HOME", home)
			root := NewRootCmd("test")
			root.SetArgs(append([]string{"--config", filepath.Join(home, "config.toml")}, args...))
			root.SetOut(&bytes.Buffer{})
			root.SetErr(&bytes.Buffer{})

			err := root.Execute()

			require.ErrorIs(t, err, fault.ErrConfiguration)
			require.Equal(t, 2, fault.ExitCode(err))
		})
	}
}

func TestStopConditionMaxDuration(t *testing.T) {
	cfg := testConfig(t)
	cfg.Stop.MaxDurationSec = 0.05
	keys := stop.NewKeyReader(strings.NewReader(""), nil)

	cond, release, err := stopCondition(context.Background(), cfg, keys, logging.Discard())
	require.NoError(t, err)
	defer release()

	require.False(t, cond.Evaluate())
	require.Eventually(t, cond.Evaluate, time.Second, 10*time.Millisecond)
}

func TestStopConditionStopFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Stop.File = filepath.Join(t.TempDir(), "stop")
	keys := stop.NewKeyReader(strings.NewReader(""), nil)

	cond, release, err := stopCondition(context.Background(), cfg, keys, logging.Discard())
	require.NoError(t, err)
	defer release()

	require.False(t, cond.Evaluate())
	require.NoError(t, os.WriteFile(cfg.Stop.File, nil, 0o644))
	require.Eventually(t, cond.Evaluate, 2*time.Second, 10*time.Millisecond)
}

func TestStopConditionRejectsBadKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Stop.Key = "f13"
	_, _, err := stopCondition(context.Background(), cfg, stop.NewKeyReader(strings.NewReader(""), nil), logging.Discard())
	require.ErrorIs(t, err, fault.ErrConfiguration)
}

func TestTailFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "whispercli.log")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\n\nthree\nfour\n"), 0o644))
	var buf bytes.Buffer
	require.NoError(t, tailFile(&buf, path, 2))
	require.Equal(t, "three\nfour\n", buf.String())
}

func TestPrintRuns(t *testing.T) {
	var buf bytes.Buffer
	printRuns(&buf, nil)
	require.Equal(t, "no runs recorded\n", buf.String())

	buf.Reset()
	printRuns(&buf, []history.Run{{Mode: "live", State: "cancelled", Partial: true, Chars: 12, Output: "/tmp/t.txt", StartedAt: time.Now()}})
	out := buf.String()
	require.Contains(t, out, "cancelled (partial)")
	require.Contains(t, out, "/tmp/t.txt")
}

func TestPrintDevices(t *testing.T) {
	var buf bytes.Buffer
	printDevices(&buf, "pulse", []audio.Device{{Index: 0, Name: "Built-in", Default: true}, {Index: 1, Name: "USB"}}, 1)
	require.Equal(t, "[0] Built-in (default)\n[1] USB (selected)\n", buf.String())

	buf.Reset()
	printDevices(&buf, "pulse", nil, 0)
	require.Equal(t, "no pulse capture devices found\n", buf.String())
}

func TestPrintModelsMarksCached(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, models.FileName("base")), []byte("ggml"), 0o644))
	var buf bytes.Buffer
	printModels(&buf, &models.Cache{Dir: dir}, "tiny")
	out := buf.String()
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "- base "):
			require.Contains(t, line, "(downloaded)")
		case strings.HasPrefix(line, "- tiny "):
			require.Contains(t, line, "(configured)")
			require.NotContains(t, line, "(downloaded)")
		}
	}
}

func TestReport(t *testing.T) {
	var buf bytes.Buffer
	report(&buf, pipeline.Result{
		State:      fsm.StateDone,
		OutputPath: "/tmp/a.txt",
		Transcript: transcript.Transcript{Partial: true},
		Warnings:   []string{"clipboard: unavailable"},
	})
	require.Equal(t, "/tmp/a.txt (partial)\nwarning: clipboard: unavailable\n", buf.String())

	buf.Reset()
	report(&buf, pipeline.Result{State: fsm.StateCancelled})
	require.Equal(t, "cancelled: no transcript written\n", buf.String())
}

func TestWaitReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	wait(ctx, time.Minute)
	require.Less(t, time.Since(start), time.Second)
}
