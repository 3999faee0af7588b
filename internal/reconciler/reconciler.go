// Package reconciler runs the initial bootstrap mapping pass and the
// long-lived watch loop that keeps Session Contexts placed as Shards and
// SGUPs change.
package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/hsnlab/upsf-scm/internal/metrics"
	"github.com/hsnlab/upsf-scm/internal/placement"
	"github.com/hsnlab/upsf-scm/internal/upsf"
)

// DefaultReconnectBackoff is the fixed delay between watch stream
// failures before a new Watch call is attempted.
const DefaultReconnectBackoff = time.Second

// Reconciler drives placement off the live state of the UPSF.
type Reconciler struct {
	Gateway          upsf.Gateway
	Engine           *placement.Engine
	Log              logr.Logger
	ReconnectBackoff time.Duration

	// Metrics is optional; a nil value disables instrumentation.
	Metrics *metrics.Metrics
}

func (r *Reconciler) bumpCycle(trigger string) {
	if r.Metrics == nil {
		return
	}
	r.Metrics.ReconcileCyclesTotal.WithLabelValues(trigger).Inc()
}

// recoverIn runs fn and turns a panic into a logged, counted event
// instead of letting it unwind past the caller. A single bad event or
// programmer bug must never take the process down with it.
func (r *Reconciler) recoverIn(component string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			r.Log.Error(fmt.Errorf("%v", p), "recovered from panic", "component", component)
			if r.Metrics != nil {
				r.Metrics.PanicsRecoveredTotal.WithLabelValues(component).Inc()
			}
		}
	}()
	fn()
}

// New constructs a Reconciler with the default reconnect backoff.
func New(gw upsf.Gateway, eng *placement.Engine, log logr.Logger) *Reconciler {
	return &Reconciler{
		Gateway:          gw,
		Engine:           eng,
		Log:              log.WithName("reconciler"),
		ReconnectBackoff: DefaultReconnectBackoff,
	}
}

// Bootstrap runs Placement once over every currently known Session
// Context. Contexts that already carry a desired_shard short-circuit
// per Invariant 2 and cost one cheap no-op write at most.
func (r *Reconciler) Bootstrap(ctx context.Context) error {
	cycleID := uuid.NewString()
	log := r.Log.WithValues("cycleId", cycleID, "trigger", "bootstrap")
	r.bumpCycle("bootstrap")

	sessions, err := r.Gateway.ListSessionContexts(ctx)
	if err != nil {
		return err
	}

	placed := 0
	for _, sc := range sessions {
		outcome, err := r.Engine.Place(ctx, sc)
		if err != nil {
			log.Error(err, "placement failed during bootstrap", "sessionContext", sc.Name)
			continue
		}
		if outcome == placement.OutcomePlaced {
			placed++
		}
	}
	log.Info("bootstrap placement complete", "consideredCount", len(sessions), "placedCount", placed)
	return nil
}

// Run watches Shards and Session Contexts until ctx is cancelled,
// reconnecting after ReconnectBackoff whenever the underlying stream
// fails. It returns nil on clean cancellation.
func (r *Reconciler) Run(ctx context.Context) error {
	backoff := r.ReconnectBackoff
	if backoff <= 0 {
		backoff = DefaultReconnectBackoff
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		var err error
		r.recoverIn("watchOnce", func() { err = r.watchOnce(ctx) })
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			r.Log.Error(err, "watch stream failed, reconnecting", "backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// watchOnce opens one shard watch and one session-context watch and
// multiplexes their events, giving shard events priority whenever both
// are simultaneously available. It returns when either stream errors or
// ctx is cancelled.
func (r *Reconciler) watchOnce(ctx context.Context) error {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shardStream, err := r.Gateway.Watch(wctx, []upsf.EventKind{upsf.EventKindShard})
	if err != nil {
		return err
	}
	defer shardStream.Close() //nolint:errcheck

	sctxStream, err := r.Gateway.Watch(wctx, []upsf.EventKind{upsf.EventKindSessionContext})
	if err != nil {
		return err
	}
	defer sctxStream.Close() //nolint:errcheck

	shardCh := make(chan upsf.Event)
	sctxCh := make(chan upsf.Event)
	errCh := make(chan error, 2)

	go pump(wctx, shardStream, shardCh, errCh)
	go pump(wctx, sctxStream, sctxCh, errCh)

	for {
		// Shard events preempt session-context events: drain any
		// pending shard event first before considering either source.
		select {
		case ev := <-shardCh:
			r.recoverIn("handleShardEvent", func() { r.handleShardEvent(ctx, ev) })
			continue
		default:
		}

		select {
		case ev := <-shardCh:
			r.recoverIn("handleShardEvent", func() { r.handleShardEvent(ctx, ev) })
		case ev := <-sctxCh:
			r.recoverIn("handleSessionContextEvent", func() { r.handleSessionContextEvent(ctx, ev) })
		case err := <-errCh:
			return err
		case <-ctx.Done():
			return nil
		}
	}
}

func pump(ctx context.Context, stream upsf.WatchStream, out chan<- upsf.Event, errCh chan<- error) {
	for {
		ev, err := stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			select {
			case errCh <- err:
			case <-ctx.Done():
			}
			return
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// handleShardEvent re-runs placement across every Session Context, since
// a Shard's capacity or hosting change can make previously infeasible
// contexts placeable (or vice versa): already-placed contexts are left
// alone by Invariant 2.
func (r *Reconciler) handleShardEvent(ctx context.Context, ev upsf.Event) {
	cycleID := uuid.NewString()
	log := r.Log.WithValues("cycleId", cycleID, "trigger", "shard_event", "shard", ev.Shard.Name)
	r.bumpCycle("shard_event")

	sessions, err := r.Gateway.ListSessionContexts(ctx)
	if err != nil {
		log.Error(err, "failed to list session contexts for re-map")
		return
	}

	placed := 0
	for _, sc := range sessions {
		outcome, err := r.Engine.Place(ctx, sc)
		if err != nil {
			log.Error(err, "placement failed", "sessionContext", sc.Name)
			continue
		}
		if outcome == placement.OutcomePlaced {
			placed++
		}
	}
	log.Info("re-map complete", "consideredCount", len(sessions), "placedCount", placed)
}

func (r *Reconciler) handleSessionContextEvent(ctx context.Context, ev upsf.Event) {
	cycleID := uuid.NewString()
	log := r.Log.WithValues("cycleId", cycleID, "trigger", "session_context_event", "sessionContext", ev.SessionContext.Name)
	r.bumpCycle("session_event")

	outcome, err := r.Engine.Place(ctx, ev.SessionContext)
	if err != nil {
		log.Error(err, "placement failed")
		return
	}
	log.Info("placement attempt complete", "outcome", outcome)
}
