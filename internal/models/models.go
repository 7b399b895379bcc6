// Package models resolves whisper.cpp ggml models, downloading them into a
// per-user cache on first use.
package models

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"whispercli/internal/fault"

	"github.com/sirupsen/logrus"
)

// Model is a registry entry.
type Model struct {
	ID     string
	SizeMB int
}

// FileName is the ggml file name for the model.
func (m Model) FileName() string { return FileName(m.ID) }

// FileName maps a model id to its ggml file name.
func FileName(id string) string { return "ggml-" + id + ".bin" }

var registry = map[string]int{
	"tiny":                75,
	"tiny.en":             75,
	"base":                142,
	"base.en":             142,
	"small":               466,
	"small.en":            466,
	"small-q5_1":          190,
	"medium":              1500,
	"medium.en":           1500,
	"medium-q5_0":         539,
	"large-v1":            2900,
	"large-v2":            2900,
	"large-v3":            2900,
	"large-v3-q5_0":       1080,
	"large-v3-turbo":      1500,
	"large-v3-turbo-q5_0": 547,
	"large-v3-turbo-q8_0": 834,
}

// Known lists registry entries sorted by id.
func Known() []Model {
	out := make([]Model, 0, len(registry))
	for id, size := range registry {
		out = append(out, Model{ID: id, SizeMB: size})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Lookup finds a registry entry.
func Lookup(id string) (Model, bool) {
	size, ok := registry[id]
	return Model{ID: id, SizeMB: size}, ok
}

// Cache is the on-disk model store.
type Cache struct {
	Dir     string
	BaseURL string
	Timeout time.Duration
	Client  *http.Client
	Log     *logrus.Logger
}

// Path is where id lives in the cache.
func (c *Cache) Path(id string) string { return filepath.Join(c.Dir, FileName(id)) }

// Cached reports whether id is already present.
func (c *Cache) Cached(id string) (string, bool) {
	p := c.Path(id)
	st, err := os.Stat(p)
	return p, err == nil && st.Mode().IsRegular() && st.Size() > 0
}

// Resolve returns a local path for id. Existing file paths are used as is,
// cached models are reused, anything else is downloaded.
func (c *Cache) Resolve(ctx context.Context, id string) (string, error) {
	id = strings.TrimSpace(id)
	if looksLikePath(id) {
		if _, err := os.Stat(id); err != nil {
			return "", fmt.Errorf("%w: model file %s: %v", fault.ErrConfiguration, id, err)
		}
		return filepath.Abs(id)
	}
	if _, ok := Lookup(id); !ok {
		return "", fmt.Errorf("%w: unknown model %q; run `whispercli models list`", fault.ErrConfiguration, id)
	}
	if p, ok := c.Cached(id); ok {
		c.logger().Debugf("model %s cached at %s", id, p)
		return p, nil
	}
	return c.Download(ctx, id)
}

func looksLikePath(id string) bool {
	return strings.ContainsRune(id, os.PathSeparator) || strings.Contains(id, "/") || strings.HasSuffix(id, ".bin")
}

func (c *Cache) logger() *logrus.Logger {
	if c.Log != nil {
		return c.Log
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Download fetches id into the cache, bounded by c.Timeout. Any failure,
// including the timeout, leaves no file behind and wraps fault.ErrAssetUnavailable.
func (c *Cache) Download(ctx context.Context, id string) (string, error) {
	dest := c.Path(id)
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: model dir: %v", fault.ErrAssetUnavailable, err)
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	url := strings.TrimRight(c.BaseURL, "/") + "/" + FileName(id)
	log := c.logger().WithFields(logrus.Fields{"model": id, "url": url})
	log.Info("downloading model")

	tmp := dest + ".part"
	err := c.fetch(ctx, url, tmp, log)
	if err != nil {
		_ = os.Remove(tmp)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: download %s timed out after %s", fault.ErrAssetUnavailable, id, c.Timeout)
		}
		return "", fmt.Errorf("%w: download %s: %v", fault.ErrAssetUnavailable, id, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("%w: install %s: %v", fault.ErrAssetUnavailable, id, err)
	}
	log.WithField("path", dest).Info("model ready")
	return dest, nil
}

func (c *Cache) fetch(ctx context.Context, url, tmp string, log *logrus.Entry) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %s", resp.Status)
	}

	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	pw := &progressWriter{total: resp.ContentLength, log: log}
	_, err = io.Copy(io.MultiWriter(out, pw), resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if resp.ContentLength > 0 && pw.written != resp.ContentLength {
		return fmt.Errorf("short body: %d of %d bytes", pw.written, resp.ContentLength)
	}
	return nil
}

// progressWriter logs every 5% of a known length, or every 50 MiB otherwise.
type progressWriter struct {
	total   int64
	written int64
	step    int64
	log     *logrus.Entry
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if p.total > 0 {
		pct := p.written * 100 / p.total
		if s := pct / 5; s > p.step {
			p.step = s
			p.log.Infof("download %d%%", s*5)
		}
		return len(b), nil
	}
	if s := p.written / (50 << 20); s > p.step {
		p.step = s
		p.log.Infof("downloaded %d MiB", p.written>>20)
	}
	return len(b), nil
}
