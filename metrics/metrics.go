// Package metrics exposes run counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/poiesic/annotit/ingestion"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "annotit"

// Collector publishes the counters of the current run. Counters restart
// when a periodic schedule starts a new run; Prometheus treats that as a
// counter reset.
type Collector struct {
	registry *prometheus.Registry
	stats    atomic.Pointer[ingestion.Stats]
	runs     prometheus.Counter
	failed   prometheus.Counter
	lastRun  prometheus.Gauge
}

// NewCollector registers the run counters, plus the Go and process
// collectors, on a private registry.
func NewCollector() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}
	c.stats.Store(ingestion.NewStats())

	c.runs = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "runs_total", Help: "Completed annotation runs.",
	})
	c.failed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "runs_failed_total", Help: "Annotation runs with failed intervals.",
	})
	c.lastRun = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "last_run_duration_seconds", Help: "Wall time of the last completed run.",
	})

	counter := func(subsystem, name, help string, read func(*ingestion.Stats) int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
		}, func() float64 { return float64(read(c.stats.Load())) })
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.runs, c.failed, c.lastRun,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "intervals", Name: "scheduled", Help: "Intervals scheduled in the current run.",
		}, func() float64 { return float64(c.stats.Load().IntervalsTotal.Load()) }),
		counter("intervals", "completed_total", "Intervals that finished.", func(s *ingestion.Stats) int64 { return s.IntervalsCompleted.Load() }),
		counter("intervals", "failed_total", "Intervals that failed.", func(s *ingestion.Stats) int64 { return s.IntervalsFailed.Load() }),
		counter("documents", "processed_total", "Source documents read.", func(s *ingestion.Stats) int64 { return s.DocsProcessed.Load() }),
		counter("documents", "annotated_total", "Documents annotated and mapped.", func(s *ingestion.Stats) int64 { return s.DocsAnnotated.Load() }),
		counter("documents", "skipped_total", "Documents skipped as already processed.", func(s *ingestion.Stats) int64 { return s.DocsSkipped.Load() }),
		counter("documents", "rejected_total", "Documents rejected by validation.", func(s *ingestion.Stats) int64 { return s.DocsRejected.Load() }),
		counter("documents", "failed_total", "Documents whose annotation or mapping failed.", func(s *ingestion.Stats) int64 { return s.DocsFailed.Load() }),
		counter("records", "written_total", "Sink records written.", func(s *ingestion.Stats) int64 { return s.RecordsWritten.Load() }),
		counter("records", "failed_total", "Sink records that failed to write.", func(s *ingestion.Stats) int64 { return s.RecordsFailed.Load() }),
	)
	return c
}

// Track points the collector at the counters of a new run.
func (c *Collector) Track(stats *ingestion.Stats) {
	c.stats.Store(stats)
}

// Observe records the outcome of a finished run.
func (c *Collector) Observe(d time.Duration, failed bool) {
	c.runs.Inc()
	if failed {
		c.failed.Inc()
	}
	c.lastRun.Set(d.Seconds())
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Serve exposes /metrics on port until ctx is done.
func (c *Collector) Serve(ctx context.Context, port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	return c.serve(ctx, ln)
}

func (c *Collector) serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("metrics server shutdown", "error", err)
		}
	}()

	slog.Info("serving metrics", "addr", ln.Addr().String())
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
