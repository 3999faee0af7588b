// Package metrics exposes the SCM's Prometheus instrumentation on a
// private registry, served over HTTP when enabled.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownGrace = 5 * time.Second

// Metrics holds the counters SCM increments as it runs. Each counter is
// registered on a private Registry, never the global default, so tests
// can construct independent instances without collisions.
type Metrics struct {
	registry *prometheus.Registry

	PlacementsTotal         *prometheus.CounterVec
	GatewayErrorsTotal      *prometheus.CounterVec
	ReconcileCyclesTotal    *prometheus.CounterVec
	MaterializeCreatedTotal prometheus.Counter
	PanicsRecoveredTotal    *prometheus.CounterVec
}

// New constructs a Metrics instance with every collector registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		PlacementsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scm_placements_total",
			Help: "Total number of placement attempts by outcome.",
		}, []string{"outcome"}),
		GatewayErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scm_gateway_errors_total",
			Help: "Total number of UPSF gateway errors by operation.",
		}, []string{"op"}),
		ReconcileCyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scm_reconcile_cycles_total",
			Help: "Total number of reconcile cycles by trigger.",
		}, []string{"trigger"}),
		MaterializeCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scm_materialize_created_total",
			Help: "Total number of session contexts created by the periodic materializer.",
		}),
		PanicsRecoveredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scm_panics_recovered_total",
			Help: "Total number of panics recovered from a single loop iteration, by component.",
		}, []string{"component"}),
	}

	reg.MustRegister(
		m.PlacementsTotal,
		m.GatewayErrorsTotal,
		m.ReconcileCyclesTotal,
		m.MaterializeCreatedTotal,
		m.PanicsRecoveredTotal,
	)
	reg.MustRegister(collectors...)

	return m
}

// collectors are the standard process/Go runtime collectors, registered
// alongside the custom counters so scm_* metrics sit next to the usual
// process_* and go_* families operators expect.
var collectors = []prometheus.Collector{
	prometheus.NewGoCollector(),
	prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
}

// Serve starts an HTTP server exposing /metrics on addr and blocks until
// ctx is cancelled, then shuts the server down. A non-nil, non-context-
// cancellation error indicates the listener failed to start or stop
// cleanly.
func (m *Metrics) Serve(ctx context.Context, addr string, log logr.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		log.Info("metrics server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

// Registerer exposes the underlying registry for client interceptors
// (e.g. go-grpc-prometheus) that need to register their own collectors.
func (m *Metrics) Registerer() prometheus.Registerer { return m.registry }
