// Package memgateway is an in-memory upsf.Gateway, used by tests and by
// the --upsf-dev CLI mode to exercise the placement/reconciler/
// materializer logic without a running UPSF.
package memgateway

import (
	"context"
	"sync"

	"github.com/hsnlab/upsf-scm/internal/upsf"
)

// Gateway is a goroutine-safe, in-memory implementation of upsf.Gateway.
type Gateway struct {
	mu       sync.RWMutex
	shards   map[string]upsf.Shard
	sgups    map[string]upsf.SGUP
	sessions map[string]upsf.SessionContext
	watchers []*watchStream
}

// New returns an empty Gateway.
func New() *Gateway {
	return &Gateway{
		shards:   map[string]upsf.Shard{},
		sgups:    map[string]upsf.SGUP{},
		sessions: map[string]upsf.SessionContext{},
	}
}

// SeedShard inserts or overwrites a Shard, bypassing the watch-event path
// (for test fixture setup).
func (g *Gateway) SeedShard(s upsf.Shard) {
	g.mu.Lock()
	g.shards[s.Name] = s
	g.mu.Unlock()
}

// SeedSGUP inserts or overwrites an SGUP, bypassing the watch-event path.
func (g *Gateway) SeedSGUP(s upsf.SGUP) {
	g.mu.Lock()
	g.sgups[s.Name] = s
	g.mu.Unlock()
}

// SeedSessionContext inserts or overwrites a Session Context, bypassing
// the watch-event path.
func (g *Gateway) SeedSessionContext(sc upsf.SessionContext) {
	g.mu.Lock()
	g.sessions[sc.Name] = sc
	g.mu.Unlock()
}

func (g *Gateway) ListShards(_ context.Context) ([]upsf.Shard, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]upsf.Shard, 0, len(g.shards))
	for _, s := range g.shards {
		out = append(out, s)
	}
	return out, nil
}

func (g *Gateway) ListSGUPs(_ context.Context) ([]upsf.SGUP, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]upsf.SGUP, 0, len(g.sgups))
	for _, s := range g.sgups {
		out = append(out, s)
	}
	return out, nil
}

func (g *Gateway) ListSessionContexts(_ context.Context) ([]upsf.SessionContext, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]upsf.SessionContext, 0, len(g.sessions))
	for _, s := range g.sessions {
		out = append(out, s)
	}
	return out, nil
}

func (g *Gateway) GetShard(_ context.Context, name string) (upsf.Shard, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.shards[name]
	if !ok {
		return upsf.Shard{}, upsf.NewGatewayError("GetShard", errNotFound(name))
	}
	return s, nil
}

func (g *Gateway) GetSGUP(_ context.Context, name string) (upsf.SGUP, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.sgups[name]
	if !ok {
		return upsf.SGUP{}, upsf.NewGatewayError("GetSGUP", errNotFound(name))
	}
	return s, nil
}

func (g *Gateway) UpdateShard(_ context.Context, u upsf.ShardUpdate) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.shards[u.Name]
	if !ok {
		return upsf.NewGatewayError("UpdateShard", errNotFound(u.Name))
	}
	if u.AllocatedSessionCount != nil {
		s.AllocatedSessionCount = *u.AllocatedSessionCount
	}
	g.shards[u.Name] = s
	g.broadcast(upsf.Event{Kind: upsf.EventKindShard, Shard: s})
	return nil
}

func (g *Gateway) UpdateSGUP(_ context.Context, u upsf.SGUPUpdate) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sgups[u.Name]
	if !ok {
		return upsf.NewGatewayError("UpdateSGUP", errNotFound(u.Name))
	}
	if u.AllocatedSessionCount != nil {
		s.AllocatedSessionCount = *u.AllocatedSessionCount
	}
	g.sgups[u.Name] = s
	return nil
}

func (g *Gateway) UpdateSessionContext(_ context.Context, u upsf.SessionContextUpdate) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[u.Name]
	if !ok {
		return upsf.NewGatewayError("UpdateSessionContext", errNotFound(u.Name))
	}
	if u.RequiredQuality != nil {
		s.RequiredQuality = *u.RequiredQuality
	}
	if u.RequiredServiceGroups != nil {
		s.RequiredServiceGroups = u.RequiredServiceGroups
	}
	if u.DesiredShard != nil {
		s.DesiredShard = *u.DesiredShard
	}
	g.sessions[u.Name] = s
	g.broadcast(upsf.Event{Kind: upsf.EventKindSessionContext, SessionContext: s})
	return nil
}

func (g *Gateway) CreateSessionContext(_ context.Context, sc upsf.SessionContext) (upsf.SessionContext, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if existing, ok := g.sessions[sc.Name]; ok {
		return existing, nil
	}
	g.sessions[sc.Name] = sc
	g.broadcast(upsf.Event{Kind: upsf.EventKindSessionContext, SessionContext: sc})
	return sc, nil
}

func (g *Gateway) Watch(ctx context.Context, kinds []upsf.EventKind) (upsf.WatchStream, error) {
	want := map[upsf.EventKind]bool{}
	for _, k := range kinds {
		want[k] = true
	}
	ws := &watchStream{ch: make(chan upsf.Event, 64), want: want}

	g.mu.Lock()
	g.watchers = append(g.watchers, ws)
	g.mu.Unlock()

	go func() {
		<-ctx.Done()
		ws.Close() //nolint:errcheck
	}()

	return ws, nil
}

// broadcast must be called with g.mu held.
func (g *Gateway) broadcast(ev upsf.Event) {
	for _, w := range g.watchers {
		if !w.want[ev.Kind] {
			continue
		}
		w.send(ev)
	}
}

// send delivers ev to w unless it has already been closed. Holding w.mu
// across the closed-check and the channel send is what makes this safe
// against a concurrent Close: Close also takes w.mu before closing the
// channel, so the two can never interleave as "send sees open, Close
// closes, send proceeds into a closed channel".
func (w *watchStream) send(ev upsf.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.ch <- ev:
	default:
		// slow watcher: drop rather than block the writer, matching
		// the "best effort, self-healing on next tick" posture of
		// placement itself.
	}
}

type watchStream struct {
	ch     chan upsf.Event
	want   map[upsf.EventKind]bool
	closed bool
	mu     sync.Mutex
}

func (w *watchStream) Next(ctx context.Context) (upsf.Event, error) {
	select {
	case ev, ok := <-w.ch:
		if !ok {
			return upsf.Event{}, upsf.NewGatewayError("Watch", errStreamClosed)
		}
		return ev, nil
	case <-ctx.Done():
		return upsf.Event{}, ctx.Err()
	}
}

func (w *watchStream) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	close(w.ch)
	return nil
}

type notFoundError struct{ name string }

func (e notFoundError) Error() string { return "not found: " + e.name }

func errNotFound(name string) error { return notFoundError{name: name} }

var errStreamClosed = notFoundError{name: "stream closed"}
