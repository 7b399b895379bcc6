package models

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"whispercli/internal/fault"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T, h http.Handler) (*Cache, *test.Hook) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	return &Cache{Dir: filepath.Join(t.TempDir(), "models"), BaseURL: srv.URL + "/", Timeout: 5 * time.Second, Log: log}, hook
}

func TestResolveDownloadsOnceThenReuses(t *testing.T) {
	body := strings.Repeat("x", 4000)
	var hits atomic.Int32
	cache, hook := newCache(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ggml-small.bin" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		_, _ = w.Write([]byte(body))
	}))

	p, err := cache.Resolve(context.Background(), "small")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(cache.Dir, "ggml-small.bin"), p)
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	require.Equal(t, body, string(data))

	p2, err := cache.Resolve(context.Background(), "small")
	require.NoError(t, err)
	require.Equal(t, p, p2)
	require.EqualValues(t, 1, hits.Load())

	var progress int
	for _, e := range hook.AllEntries() {
		if strings.HasPrefix(e.Message, "download ") && strings.HasSuffix(e.Message, "%") {
			progress++
		}
	}
	require.Positive(t, progress)
}

func TestResolveFailureLeavesNothing(t *testing.T) {
	cache, _ := newCache(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))

	_, err := cache.Resolve(context.Background(), "tiny")
	require.ErrorIs(t, err, fault.ErrAssetUnavailable)
	entries, _ := os.ReadDir(cache.Dir)
	require.Empty(t, entries)
}

func TestDownloadTimeoutIsFatal(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	cache, _ := newCache(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		_, _ = w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	cache.Timeout = 100 * time.Millisecond

	_, err := cache.Resolve(context.Background(), "base")
	require.ErrorIs(t, err, fault.ErrAssetUnavailable)
	require.Contains(t, err.Error(), "timed out")
	_, ok := cache.Cached("base")
	require.False(t, ok)
	_, err = os.Stat(cache.Path("base") + ".part")
	require.True(t, os.IsNotExist(err))
}

func TestResolveExplicitPath(t *testing.T) {
	cache, _ := newCache(t, http.NotFoundHandler())
	path := filepath.Join(t.TempDir(), "custom.bin")
	require.NoError(t, os.WriteFile(path, []byte("m"), 0o600))

	got, err := cache.Resolve(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, path, got)

	_, err = cache.Resolve(context.Background(), filepath.Join(t.TempDir(), "missing.bin"))
	require.ErrorIs(t, err, fault.ErrConfiguration)
}

func TestResolveUnknownModel(t *testing.T) {
	cache, _ := newCache(t, http.NotFoundHandler())
	_, err := cache.Resolve(context.Background(), "gigantic")
	require.ErrorIs(t, err, fault.ErrConfiguration)
}

func TestKnownIncludesDefault(t *testing.T) {
	m, ok := Lookup("large-v3-turbo")
	require.True(t, ok)
	require.Equal(t, "ggml-large-v3-turbo.bin", m.FileName())
	require.NotEmpty(t, Known())
}
