package logging

import (
	"bytes"
	"io"
	"strings"
	"sync"

	"whispercli/internal/config"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Configure sets up logrus with rotation. Console output goes to console when
// cfg.Logging.Stdout is set; pass a CRLF-translating writer while the terminal
// is in raw mode.
func Configure(cfg *config.Config, console io.Writer) (*logrus.Logger, error) {
	if err := config.MustStatePaths(cfg); err != nil {
		return nil, err
	}
	logger := logrus.New()
	switch strings.ToLower(cfg.Logging.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if lvl, err := logrus.ParseLevel(strings.ToLower(cfg.Logging.Level)); err == nil {
		logger.SetLevel(lvl)
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.Paths.LogPath,
		MaxSize:    20, // megabytes
		MaxBackups: 3,
		MaxAge:     30,
		Compress:   false,
	}
	if cfg.Logging.Stdout && console != nil {
		logger.SetOutput(io.MultiWriter(console, rotator))
	} else {
		logger.SetOutput(rotator)
	}
	return logger, nil
}

// Verbose lowers the level to debug.
func Verbose(logger *logrus.Logger) {
	logger.SetLevel(logrus.DebugLevel)
}

// Discard returns a logger that drops everything. Used where no logger was injected.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// CRLFWriter rewrites bare "\n" to "\r\n". A terminal in raw mode does not
// return the carriage on newline.
type CRLFWriter struct {
	mu  sync.Mutex
	W   io.Writer
	Raw func() bool
}

func (c *CRLFWriter) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Raw != nil && !c.Raw() {
		return c.W.Write(p)
	}
	out := bytes.ReplaceAll(p, []byte("\r\n"), []byte("\n"))
	out = bytes.ReplaceAll(out, []byte("\n"), []byte("\r\n"))
	if _, err := c.W.Write(out); err != nil {
		return 0, err
	}
	return len(p), nil
}

// NewTestLogger returns a quiet logger for tests.
func NewTestLogger() *logrus.Logger {
	return Discard()
}
