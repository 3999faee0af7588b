// Package supervisor wires the Placement Engine, Reconciler and Periodic
// Materializer together and runs them until an interrupt.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/hsnlab/upsf-scm/internal/config"
	"github.com/hsnlab/upsf-scm/internal/materializer"
	"github.com/hsnlab/upsf-scm/internal/metrics"
	"github.com/hsnlab/upsf-scm/internal/placement"
	"github.com/hsnlab/upsf-scm/internal/reconciler"
	"github.com/hsnlab/upsf-scm/internal/upsf"
)

// Supervisor owns the process lifecycle: initial materialization, the
// initial full mapping pass, and the Reconciler and (optionally)
// Materializer goroutines.
type Supervisor struct {
	Gateway upsf.Gateway
	Config  config.Config
	Metrics *metrics.Metrics
	Log     logr.Logger
}

// New constructs a Supervisor.
func New(gw upsf.Gateway, cfg config.Config, m *metrics.Metrics, log logr.Logger) *Supervisor {
	return &Supervisor{Gateway: gw, Config: cfg, Metrics: m, Log: log.WithName("supervisor")}
}

// Run performs the startup sequence and blocks until ctx is cancelled,
// then signals both background loops and waits for them to return.
func (s *Supervisor) Run(ctx context.Context) error {
	defaults := placement.Defaults{
		RequiredQuality:       s.Config.DefaultRequiredQuality,
		RequiredServiceGroups: s.Config.DefaultRequiredServiceGroups,
	}
	engine := placement.New(s.Gateway, defaults, s.Log)
	engine.Metrics = s.Metrics

	matDefaults := materializer.Defaults{
		RequiredQuality:       s.Config.DefaultRequiredQuality,
		RequiredServiceGroups: s.Config.DefaultRequiredServiceGroups,
	}
	mat := materializer.New(s.Gateway, s.Config.ConfigFile, s.Config.RegistrationInterval, matDefaults, s.Log)
	mat.Metrics = s.Metrics

	// Initial materialization always runs once, regardless of
	// --upsf-auto-register: only the recurring timer is gated.
	mat.Once(ctx)

	rec := reconciler.New(s.Gateway, engine, s.Log)
	rec.Metrics = s.Metrics
	if err := rec.Bootstrap(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := rec.Run(ctx); err != nil {
			s.Log.Error(err, "reconciler exited with error")
		}
	}()

	if s.Config.UPSFAutoRegister {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mat.Run(ctx)
		}()
	}

	if s.Metrics != nil && s.Config.MetricsAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Metrics.Serve(ctx, s.Config.MetricsAddr, s.Log); err != nil {
				s.Log.Error(err, "metrics server exited with error")
			}
		}()
	}

	<-ctx.Done()
	s.Log.Info("shutdown signal received, waiting for background loops to exit")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownGrace):
		s.Log.Info("timed out waiting for background loops, exiting anyway")
	}

	return nil
}

const shutdownGrace = 10 * time.Second
