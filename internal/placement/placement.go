// Package placement implements the two-stage least-loaded selection of
// an SGUP and a Shard for a Session Context.
package placement

import (
	"context"
	"sort"

	"github.com/go-logr/logr"

	"github.com/hsnlab/upsf-scm/internal/metrics"
	"github.com/hsnlab/upsf-scm/internal/upsf"
)

// Defaults are the configured fallback values applied in Step A when a
// Session Context is missing them.
type Defaults struct {
	RequiredQuality       int
	RequiredServiceGroups []string
}

// Outcome classifies how one Place invocation concluded, for metrics and
// logging; it carries no behavioral meaning of its own.
type Outcome string

const (
	OutcomePlaced         Outcome = "placed"
	OutcomeDefaultsOnly   Outcome = "defaults_only"
	OutcomeShortCircuit   Outcome = "short_circuit"
	OutcomeNoShards       Outcome = "no_shards"
	OutcomeNoSGUPs        Outcome = "no_sgups"
	OutcomeNoSGUPCandid   Outcome = "no_sgup_candidates"
	OutcomeNoShardCandid  Outcome = "no_shard_candidates"
	OutcomeNoRequiredSvcs Outcome = "no_required_service_groups"
)

// Engine runs the placement algorithm against a Gateway.
type Engine struct {
	Gateway  upsf.Gateway
	Defaults Defaults
	Log      logr.Logger

	// Metrics is optional; a nil value disables instrumentation.
	Metrics *metrics.Metrics
}

// New constructs an Engine. Attach Metrics afterward to enable
// instrumentation; it is nil-safe to leave unset.
func New(gw upsf.Gateway, defaults Defaults, log logr.Logger) *Engine {
	return &Engine{Gateway: gw, Defaults: defaults, Log: log.WithName("placement")}
}

// bump records the final Outcome of a Place call, and attributes a
// gateway error (if any) to op.
func (e *Engine) bump(outcome Outcome, op string, err error) {
	if e.Metrics == nil {
		return
	}
	e.Metrics.PlacementsTotal.WithLabelValues(string(outcome)).Inc()
	if err != nil {
		e.Metrics.GatewayErrorsTotal.WithLabelValues(op).Inc()
	}
}

// Place runs Steps A-H of the placement algorithm for a single Session
// Context and, if any field changed, commits the merged update. It
// returns the Outcome for observability; a non-nil error indicates a
// *upsf.GatewayError encountered during Steps C-H (Step H's own write
// failure included).
func (e *Engine) Place(ctx context.Context, sctx upsf.SessionContext) (outcome Outcome, err error) {
	log := e.Log.WithValues("sessionContext", sctx.Name)

	var lastOp string
	defer func() { e.bump(outcome, lastOp, err) }()

	update := upsf.SessionContextUpdate{Name: sctx.Name}

	// Step A: defaults fill.
	effectiveQuality := sctx.RequiredQuality
	if effectiveQuality == 0 && e.Defaults.RequiredQuality != 0 {
		effectiveQuality = e.Defaults.RequiredQuality
		update.RequiredQuality = &effectiveQuality
	}

	effectiveGroups := sctx.RequiredServiceGroups
	if !sctx.HasRequiredServiceGroups() {
		effectiveGroups = e.Defaults.RequiredServiceGroups
		update.RequiredServiceGroups = effectiveGroups
	}

	// Step B: short-circuit if already placed.
	if sctx.HasDesiredShard() {
		if !update.IsEmpty() {
			lastOp = "UpdateSessionContext"
			if err := e.Gateway.UpdateSessionContext(ctx, update); err != nil {
				return OutcomeShortCircuit, err
			}
		}
		return OutcomeShortCircuit, nil
	}

	// Edge policy: missing/zero required service groups after defaults
	// means Steps C-F never run; only Step A's write (if any) lands.
	if !nonEmptyGroups(effectiveGroups) {
		if !update.IsEmpty() {
			lastOp = "UpdateSessionContext"
			if err := e.Gateway.UpdateSessionContext(ctx, update); err != nil {
				return OutcomeNoRequiredSvcs, err
			}
			return OutcomeDefaultsOnly, nil
		}
		return OutcomeNoRequiredSvcs, nil
	}

	// Step C: SGUP candidate set.
	lastOp = "ListShards"
	shards, err := e.Gateway.ListShards(ctx)
	if err != nil {
		return OutcomeNoShards, err
	}
	if len(shards) == 0 {
		log.Info("no shards available, skipping placement")
		return e.commitDefaultsOnly(ctx, update, OutcomeNoShards)
	}

	lastOp = "ListSGUPs"
	sgups, err := e.Gateway.ListSGUPs(ctx)
	if err != nil {
		return OutcomeNoSGUPs, err
	}
	if len(sgups) == 0 {
		log.Info("no service gateway user planes available, skipping placement")
		return e.commitDefaultsOnly(ctx, update, OutcomeNoSGUPs)
	}

	hostedSGUPs := make(map[string]bool, len(shards))
	for _, sh := range shards {
		if sh.DesiredSGUP != "" {
			hostedSGUPs[sh.DesiredSGUP] = true
		}
	}

	candidateSGUPs := make([]upsf.SGUP, 0, len(sgups))
	for _, sg := range sgups {
		if !hostedSGUPs[sg.Name] {
			continue
		}
		if !supersetOf(sg.SupportedServiceGroups, effectiveGroups) {
			continue
		}
		if sg.AllocatedSessionCount >= sg.MaxSessionCount {
			continue
		}
		candidateSGUPs = append(candidateSGUPs, sg)
	}
	if len(candidateSGUPs) == 0 {
		log.Info("no sgup candidates available for session context, ignoring",
			"requiredServiceGroups", effectiveGroups)
		return e.commitDefaultsOnly(ctx, update, OutcomeNoSGUPCandid)
	}

	// Step D: pick SGUP, least loaded, ties broken lexicographically.
	chosenSGUP := pickLeastLoaded(candidateSGUPs, func(s upsf.SGUP) (int, int, string) {
		return s.AllocatedSessionCount, s.MaxSessionCount, s.Name
	})

	// Step E: shard candidate set for the chosen SGUP.
	candidateShards := make([]upsf.Shard, 0, len(shards))
	for _, sh := range shards {
		if sh.DesiredSGUP != chosenSGUP.Name {
			continue
		}
		if sh.MaxSessionCount <= 0 {
			continue
		}
		if sh.AllocatedSessionCount >= sh.MaxSessionCount {
			continue
		}
		candidateShards = append(candidateShards, sh)
	}
	if len(candidateShards) == 0 {
		log.Info("no shard candidates available for session context, ignoring",
			"sgup", chosenSGUP.Name)
		return e.commitDefaultsOnly(ctx, update, OutcomeNoShardCandid)
	}

	// Step F: pick Shard, least loaded, ties broken lexicographically.
	chosenShard := pickLeastLoaded(candidateShards, func(s upsf.Shard) (int, int, string) {
		return s.AllocatedSessionCount, s.MaxSessionCount, s.Name
	})

	log.V(1).Info("selected service gateway user plane and shard",
		"sgup", chosenSGUP.Name, "shard", chosenShard.Name)

	// Step G: counter bump. Shard uses the already-read snapshot; SGUP is
	// re-read once more to reduce (not eliminate) races with peers. This
	// asymmetry is intentional, carried over from the source this engine
	// was derived from.
	newShardCount := chosenShard.AllocatedSessionCount + 1
	lastOp = "UpdateShard"
	if err := e.Gateway.UpdateShard(ctx, upsf.ShardUpdate{
		Name:                  chosenShard.Name,
		AllocatedSessionCount: &newShardCount,
	}); err != nil {
		return OutcomeNoShardCandid, err
	}

	lastOp = "GetSGUP"
	reread, err := e.Gateway.GetSGUP(ctx, chosenSGUP.Name)
	if err != nil {
		return OutcomeNoSGUPCandid, err
	}
	newSGUPCount := reread.AllocatedSessionCount + 1
	lastOp = "UpdateSGUP"
	if err := e.Gateway.UpdateSGUP(ctx, upsf.SGUPUpdate{
		Name:                  chosenSGUP.Name,
		AllocatedSessionCount: &newSGUPCount,
	}); err != nil {
		return OutcomeNoSGUPCandid, err
	}

	shardName := chosenShard.Name
	update.DesiredShard = &shardName

	// Step H: commit.
	lastOp = "UpdateSessionContext"
	if err := e.Gateway.UpdateSessionContext(ctx, update); err != nil {
		return OutcomePlaced, err
	}

	return OutcomePlaced, nil
}

func (e *Engine) commitDefaultsOnly(ctx context.Context, update upsf.SessionContextUpdate, fallback Outcome) (Outcome, error) {
	if update.IsEmpty() {
		return fallback, nil
	}
	if err := e.Gateway.UpdateSessionContext(ctx, update); err != nil {
		return fallback, err
	}
	return OutcomeDefaultsOnly, nil
}

// nonEmptyGroups reports whether groups carries at least one non-blank
// entry, treating []string{} and []string{""} alike as "unset".
func nonEmptyGroups(groups []string) bool {
	for _, g := range groups {
		if g != "" {
			return true
		}
	}
	return false
}

// supersetOf reports whether have is a superset of want.
func supersetOf(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, h := range have {
		set[h] = true
	}
	for _, w := range want {
		if w == "" {
			continue
		}
		if !set[w] {
			return false
		}
	}
	return true
}

// pickLeastLoaded selects the element with minimum allocated/max load.
// Candidates are assumed pre-filtered to max > 0 and allocated < max (both
// the SGUP and Shard candidate sets guarantee this). Ties are broken
// lexicographically by name, by sorting on name first, so equal-load
// candidates prefer the lexicographically smallest name regardless of
// input order or map iteration.
func pickLeastLoaded[T any](candidates []T, load func(T) (allocated, max int, name string)) T {
	sorted := make([]T, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		_, _, ni := load(sorted[i])
		_, _, nj := load(sorted[j])
		return ni < nj
	})

	best := sorted[0]
	bestAlloc, bestMax, _ := load(best)
	bestLoad := loadRatio(bestAlloc, bestMax)
	for _, c := range sorted[1:] {
		alloc, max, _ := load(c)
		l := loadRatio(alloc, max)
		if l < bestLoad {
			best, bestLoad = c, l
		}
	}
	return best
}

func loadRatio(allocated, max int) float64 {
	if max <= 0 {
		return 1
	}
	return float64(allocated) / float64(max)
}
