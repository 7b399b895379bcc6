// Package metrics exposes pipeline counters in Prometheus format.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"whispercli/internal/audio"
	"whispercli/internal/transcript"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type Metrics struct {
	reg *prometheus.Registry

	framesCaptured prometheus.Counter
	framesDropped  prometheus.Counter
	segReceived    prometheus.Counter
	segRetained    prometheus.Counter
	segDeduped     prometheus.Counter
	warnings       prometheus.Counter
	runs           *prometheus.CounterVec
	runDuration    prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		framesCaptured: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "whispercli_frames_captured_total", Help: "Audio frames read from the capture device.",
		}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "whispercli_frames_dropped_total", Help: "Frames dropped because the sink fell behind.",
		}),
		segReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "whispercli_segments_received_total", Help: "Segments produced by the engine.",
		}),
		segRetained: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "whispercli_segments_retained_total", Help: "Segments kept in the transcript.",
		}),
		segDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "whispercli_segments_deduplicated_total", Help: "Segments dropped as repeats.",
		}),
		warnings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "whispercli_warnings_total", Help: "Non-fatal problems surfaced by runs.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "whispercli_runs_total", Help: "Pipeline runs by final state.",
		}, []string{"state"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "whispercli_run_duration_seconds",
			Help:    "Wall time of pipeline runs.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
	}
	m.reg.MustRegister(m.framesCaptured, m.framesDropped, m.segReceived, m.segRetained,
		m.segDeduped, m.warnings, m.runs, m.runDuration)
	return m
}

// Registry backs Handler; exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) ObserveCapture(st audio.Stats) {
	if m == nil {
		return
	}
	m.framesCaptured.Add(float64(st.Captured))
	m.framesDropped.Add(float64(st.Dropped))
}

func (m *Metrics) ObserveSegments(st transcript.Stats) {
	if m == nil {
		return
	}
	m.segReceived.Add(float64(st.Received))
	m.segRetained.Add(float64(st.Retained))
	m.segDeduped.Add(float64(st.Deduplicated))
}

func (m *Metrics) ObserveRun(state string, took time.Duration, warnings int) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(state).Inc()
	m.runDuration.Observe(took.Seconds())
	m.warnings.Add(float64(warnings))
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *logrus.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()
	logger.Infof("metrics listening on http://%s/metrics", ln.Addr())
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warnf("metrics server: %v", err)
		}
	}()
	return nil
}
