package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"whispercli/internal/audio"
	"whispercli/internal/logging"
	"whispercli/internal/transcript"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveCapture(audio.Stats{Captured: 3})
	m.ObserveSegments(transcript.Stats{Received: 1})
	m.ObserveRun("done", time.Second, 0)
}

func TestObserve(t *testing.T) {
	m := New()
	m.ObserveCapture(audio.Stats{Captured: 50, Dropped: 2})
	m.ObserveSegments(transcript.Stats{Received: 6, Retained: 3, Deduplicated: 3})
	m.ObserveRun("done", 2*time.Second, 1)
	m.ObserveRun("cancelled", time.Second, 0)

	require.Equal(t, 50.0, testutil.ToFloat64(m.framesCaptured))
	require.Equal(t, 2.0, testutil.ToFloat64(m.framesDropped))
	require.Equal(t, 3.0, testutil.ToFloat64(m.segDeduped))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("done")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.warnings))
}

func TestHandlerExposition(t *testing.T) {
	m := New()
	m.ObserveSegments(transcript.Stats{Received: 4, Retained: 4})

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "whispercli_segments_retained_total 4")
}

func TestServeStopsWithContext(t *testing.T) {
	m := New()
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Serve(ctx, "127.0.0.1:0", logging.NewTestLogger()))
	cancel()

	require.Error(t, m.Serve(context.Background(), "not-an-addr", logging.NewTestLogger()))
}
