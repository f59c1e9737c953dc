// Package metrics exports filter state observed by the monitor loop.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grimm.is/sieve/internal/logging"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all filter metrics.
type Registry struct {
	reg *prometheus.Registry

	// Map metrics
	MapEntries  *prometheus.GaugeVec
	ObservedIPs prometheus.Gauge
	MapReads    *prometheus.CounterVec
	MapErrors   *prometheus.CounterVec

	// Lifecycle metrics
	Loads     *prometheus.CounterVec
	Unloads   prometheus.Counter
	LoadedAt  prometheus.Gauge
	Compiles  *prometheus.CounterVec
	Generates prometheus.Counter
}

// Get returns the process-wide registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = New()
	})
	return registry
}

// New builds a registry with its own prometheus.Registry.
func New() *Registry {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	r := &Registry{reg: reg}

	r.MapEntries = f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sieve_map_entries",
		Help: "Number of entries in each filter map at the last read",
	}, []string{"map"})

	r.ObservedIPs = f.NewGauge(prometheus.GaugeOpts{
		Name: "sieve_observed_ips",
		Help: "Distinct addresses seen in the watched maps since the program loaded",
	})

	r.MapReads = f.NewCounterVec(prometheus.CounterOpts{
		Name: "sieve_map_reads_total",
		Help: "Total map reads by the monitor loop",
	}, []string{"map"})

	r.MapErrors = f.NewCounterVec(prometheus.CounterOpts{
		Name: "sieve_map_read_errors_total",
		Help: "Total failed map reads",
	}, []string{"map"})

	r.Loads = f.NewCounterVec(prometheus.CounterOpts{
		Name: "sieve_loads_total",
		Help: "Total program loads",
	}, []string{"mode", "status"})

	r.Unloads = f.NewCounter(prometheus.CounterOpts{
		Name: "sieve_unloads_total",
		Help: "Total program unloads",
	})

	r.LoadedAt = f.NewGauge(prometheus.GaugeOpts{
		Name: "sieve_loaded_timestamp_seconds",
		Help: "Unix timestamp of the last successful load",
	})

	r.Compiles = f.NewCounterVec(prometheus.CounterOpts{
		Name: "sieve_compiles_total",
		Help: "Total compiler invocations",
	}, []string{"status"})

	r.Generates = f.NewCounter(prometheus.CounterOpts{
		Name: "sieve_generates_total",
		Help: "Total source generations",
	})

	return r
}

// RecordMapRead records the result of reading one map.
func (r *Registry) RecordMapRead(name string, entries int, err error) {
	r.MapReads.WithLabelValues(name).Inc()
	if err != nil {
		r.MapErrors.WithLabelValues(name).Inc()
		return
	}
	r.MapEntries.WithLabelValues(name).Set(float64(entries))
}

// RecordLoad records a load attempt.
func (r *Registry) RecordLoad(mode string, at time.Time, err error) {
	if err != nil {
		r.Loads.WithLabelValues(mode, "error").Inc()
		return
	}
	r.Loads.WithLabelValues(mode, "ok").Inc()
	r.LoadedAt.Set(float64(at.Unix()))
}

// RecordCompile records a compiler run.
func (r *Registry) RecordCompile(err error) {
	r.Compiles.WithLabelValues(statusString(err)).Inc()
}

// Handler serves the registry in the exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (r *Registry) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logging.WithComponent("metrics").Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func statusString(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
