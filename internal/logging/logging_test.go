package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"whispercli/internal/config"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	dir := t.TempDir()
	cfg.Paths.StateDir = dir
	cfg.Paths.LogPath = filepath.Join(dir, "logs", "whispercli.log")
	cfg.Paths.HistoryPath = filepath.Join(dir, "history.db")
	return cfg
}

func TestConfigureWritesConsoleAndFile(t *testing.T) {
	cfg := testConfig(t)
	var console bytes.Buffer

	logger, err := Configure(cfg, &console)
	require.NoError(t, err)
	logger.Info("model ready")

	require.Contains(t, console.String(), "model ready")
	data, err := os.ReadFile(cfg.Paths.LogPath)
	require.NoError(t, err)
	require.Contains(t, string(data), "model ready")
}

func TestConfigureJSONAndLevel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Logging.Format = "json"
	cfg.Logging.Level = "warn"
	var console bytes.Buffer

	logger, err := Configure(cfg, &console)
	require.NoError(t, err)
	require.Equal(t, logrus.WarnLevel, logger.GetLevel())

	logger.Info("hidden")
	logger.Warn("shown")
	require.NotContains(t, console.String(), "hidden")
	require.Contains(t, console.String(), `"msg":"shown"`)

	Verbose(logger)
	require.Equal(t, logrus.DebugLevel, logger.GetLevel())
}

func TestConfigureQuietConsole(t *testing.T) {
	cfg := testConfig(t)
	cfg.Logging.Stdout = false
	var console bytes.Buffer

	logger, err := Configure(cfg, &console)
	require.NoError(t, err)
	logger.Info("file only")
	require.Empty(t, console.String())
}

func TestCRLFWriter(t *testing.T) {
	var buf bytes.Buffer
	raw := true
	w := &CRLFWriter{W: &buf, Raw: func() bool { return raw }}

	n, err := w.Write([]byte("a\nb\r\nc"))
	require.NoError(t, err)
	require.Equal(t, 6, n)
	require.Equal(t, "a\r\nb\r\nc", buf.String())

	buf.Reset()
	raw = false
	_, err = w.Write([]byte("x\n"))
	require.NoError(t, err)
	require.Equal(t, "x\n", buf.String())
}
