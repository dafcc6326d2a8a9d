package observability

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yungbote/legisgraph/internal/platform/envutil"
	"github.com/yungbote/legisgraph/internal/platform/logger"
)

const namespace = "legisgraph"

// Metrics holds the ingestion collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	recordsRouted *prometheus.CounterVec
	flushes       *prometheus.CounterVec
	flushSize     *prometheus.HistogramVec
	flushDuration *prometheus.HistogramVec
	writeDuration *prometheus.HistogramVec
	spooled       *prometheus.CounterVec
	pending       *prometheus.GaugeVec
	dataQuality   *prometheus.CounterVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

// Enabled reports whether metrics were asked for, either explicitly or by configuring a
// listen address.
func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false) || strings.TrimSpace(envutil.String("METRICS_ADDR", "")) != ""
}

func Current() *Metrics {
	return instance
}

// Init builds the process-wide collectors once. It returns nil when metrics are disabled.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = NewMetrics()
		if log != nil {
			log.Info("metrics initialized", "addr", envutil.String("METRICS_ADDR", ""))
		}
	})
	return instance
}

// NewMetrics builds collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		recordsRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_routed_total",
			Help:      "Records seen by the router by kind/outcome.",
		}, []string{"kind", "outcome"}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buffer_flushes_total",
			Help:      "Buffer flushes by kind/outcome.",
		}, []string{"kind", "outcome"}),
		flushSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "buffer_flush_records",
			Help:      "Records written per buffer flush.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"kind"}),
		flushDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "buffer_flush_duration_seconds",
			Help:      "Buffer flush latency in seconds by kind/outcome.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"kind", "outcome"}),
		writeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "immediate_write_duration_seconds",
			Help:      "Latency of unbuffered single-record writes by kind/outcome.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}, []string{"kind", "outcome"}),
		spooled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spooled_batches_total",
			Help:      "Failed batches handed to a spool by kind/backend.",
		}, []string{"kind", "backend"}),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffer_pending_records",
			Help:      "Records waiting in the batch buffer by kind.",
		}, []string{"kind"}),
		dataQuality: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "data_quality_issues_total",
			Help:      "Data quality issues by kind/issue/field.",
		}, []string{"kind", "issue", "field"}),
	}
	m.registry.MustRegister(
		m.recordsRouted,
		m.flushes,
		m.flushSize,
		m.flushDuration,
		m.writeDuration,
		m.spooled,
		m.pending,
		m.dataQuality,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, log *logger.Logger, addr string) error {
	if m == nil {
		return nil
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	if log != nil {
		log.Info("metrics server listening", "addr", addr)
	}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		if log != nil {
			log.Error("metrics server failed", "error", err, "addr", addr)
		}
		return err
	}
	return nil
}

func (m *Metrics) IncRouted(kind, outcome string) {
	if m == nil {
		return
	}
	m.recordsRouted.WithLabelValues(orUnknown(kind), orUnknown(outcome)).Inc()
}

func (m *Metrics) ObserveFlush(kind, outcome string, size int, dur time.Duration) {
	if m == nil {
		return
	}
	kind, outcome = orUnknown(kind), orUnknown(outcome)
	m.flushes.WithLabelValues(kind, outcome).Inc()
	m.flushDuration.WithLabelValues(kind, outcome).Observe(dur.Seconds())
	if outcome == "success" {
		m.flushSize.WithLabelValues(kind).Observe(float64(size))
	}
}

func (m *Metrics) ObserveWrite(kind, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.writeDuration.WithLabelValues(orUnknown(kind), orUnknown(outcome)).Observe(dur.Seconds())
}

func (m *Metrics) IncSpooled(kind, backend string) {
	if m == nil {
		return
	}
	m.spooled.WithLabelValues(orUnknown(kind), orUnknown(backend)).Inc()
}

func (m *Metrics) SetPending(kind string, n int) {
	if m == nil {
		return
	}
	m.pending.WithLabelValues(orUnknown(kind)).Set(float64(n))
}

func (m *Metrics) IncDataQuality(kind, issue, field string) {
	if m == nil {
		return
	}
	m.dataQuality.WithLabelValues(orUnknown(kind), orUnknown(issue), field).Inc()
}

func orUnknown(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}
