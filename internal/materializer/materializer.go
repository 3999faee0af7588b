// Package materializer turns declarative policy entries into Session
// Contexts, running once at startup and then on a fixed timer.
package materializer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-logr/logr"

	"github.com/hsnlab/upsf-scm/internal/fingerprint"
	"github.com/hsnlab/upsf-scm/internal/metrics"
	"github.com/hsnlab/upsf-scm/internal/policy"
	"github.com/hsnlab/upsf-scm/internal/upsf"
)

// Defaults are the configured fallbacks applied to a policy entry that
// omits the corresponding field.
type Defaults struct {
	RequiredQuality       int
	RequiredServiceGroups []string
}

// Materializer periodically re-applies the declared policy file,
// creating any Session Context it describes that does not already
// exist. It never updates an existing entry.
type Materializer struct {
	Gateway  upsf.Gateway
	Defaults Defaults
	Log      logr.Logger

	ConfigFile string
	Interval   time.Duration

	// Metrics is optional; a nil value disables instrumentation.
	Metrics *metrics.Metrics
}

// recoverIn runs fn and turns a panic into a logged, counted event
// instead of letting it unwind past the caller, so a single malformed
// policy entry can never take the process down with it.
func (m *Materializer) recoverIn(component string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			m.Log.Error(fmt.Errorf("%v", p), "recovered from panic", "component", component)
			if m.Metrics != nil {
				m.Metrics.PanicsRecoveredTotal.WithLabelValues(component).Inc()
			}
		}
	}()
	fn()
}

// New constructs a Materializer.
func New(gw upsf.Gateway, configFile string, interval time.Duration, defaults Defaults, log logr.Logger) *Materializer {
	return &Materializer{
		Gateway:    gw,
		Defaults:   defaults,
		Log:        log.WithName("materializer"),
		ConfigFile: configFile,
		Interval:   interval,
	}
}

// Once runs a single materialization pass: parse the policy file, and
// for each entry whose fingerprint is not already a Session Context
// name, create it. A parse failure or gateway read failure is logged
// and swallowed, matching the "never fatal" posture of this component.
// The whole pass is wrapped in a recover, so a panic anywhere in it -
// not just inside the per-entry loop - is logged and counted rather
// than brought down the caller.
func (m *Materializer) Once(ctx context.Context) {
	m.recoverIn("Once", func() { m.once(ctx) })
}

func (m *Materializer) once(ctx context.Context) {
	entries, err := policy.Load(m.Log, m.ConfigFile)
	if err != nil {
		m.Log.Error(err, "failed to load policy file, skipping this cycle")
		return
	}
	if len(entries) == 0 {
		return
	}

	existing, err := m.Gateway.ListSessionContexts(ctx)
	if err != nil {
		m.Log.Error(err, "failed to list session contexts, skipping this cycle")
		return
	}
	known := make(map[string]bool, len(existing))
	for _, sc := range existing {
		known[sc.Name] = true
	}

	shards, err := m.Gateway.ListShards(ctx)
	if err != nil {
		m.Log.Error(err, "failed to list shards, skipping this cycle")
		return
	}
	shardNames := make(map[string]bool, len(shards))
	for _, sh := range shards {
		shardNames[sh.Name] = true
	}

	created := 0
	for _, entry := range entries {
		entry := entry
		m.recoverIn("materializeEntry", func() {
			sc, ok := m.toSessionContext(entry, shardNames)
			if !ok {
				return
			}
			if known[sc.Name] {
				m.Log.V(1).Info("session context exists already, ignoring", "name", sc.Name)
				return
			}
			if _, err := m.Gateway.CreateSessionContext(ctx, sc); err != nil {
				m.Log.Error(err, "failed to create session context", "name", sc.Name)
				return
			}
			created++
		})
	}
	if created > 0 {
		m.Log.Info("materialized session contexts from policy", "created", created)
		if m.Metrics != nil {
			m.Metrics.MaterializeCreatedTotal.Add(float64(created))
		}
	}
}

// toSessionContext converts one policy.Entry into an upsf.SessionContext,
// naming it after its content fingerprint. If the entry names a
// desired_shard that does not currently exist, the entry is skipped
// entirely rather than created without it.
func (m *Materializer) toSessionContext(entry policy.Entry, shardNames map[string]bool) (upsf.SessionContext, bool) {
	svlan, _ := strconv.Atoi(entry.SVLAN)
	cvlan, _ := strconv.Atoi(entry.CVLAN)

	name := fingerprint.Compute(entry.CircuitID, entry.RemoteID, entry.SourceMACAddress, svlan, cvlan)

	groups := entry.RequiredServiceGroups
	if len(groups) == 0 {
		groups = m.Defaults.RequiredServiceGroups
	}
	quality := entry.RequiredQuality
	if quality == 0 {
		quality = m.Defaults.RequiredQuality
	}

	sc := upsf.SessionContext{
		Name:                  name,
		CircuitID:             entry.CircuitID,
		RemoteID:              entry.RemoteID,
		RequiredServiceGroups: groups,
		RequiredQuality:       quality,
		Filter: upsf.SessionFilter{
			SourceMAC: entry.SourceMACAddress,
			SVLAN:     svlan,
			CVLAN:     cvlan,
		},
	}

	if entry.Shard != "" {
		if !shardNames[entry.Shard] {
			m.Log.Info("desired shard for session context not found, ignoring",
				"name", name, "shard", entry.Shard)
			return upsf.SessionContext{}, false
		}
		sc.DesiredShard = entry.Shard
	}

	return sc, true
}

// Run ticks every Interval, invoking Once, until ctx is cancelled. The
// stop signal is checked on wake, between ticks.
func (m *Materializer) Run(ctx context.Context) {
	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			m.Once(ctx)
		}
	}
}
