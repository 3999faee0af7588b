package upsf

import "context"

// Gateway is the contract SCM consumes from the UPSF: CRUD plus a
// streaming watch over Shards, SGUPs and Session Contexts. Every
// implementation must return a *GatewayError on failure; all such
// failures are recoverable from the caller's perspective.
//
// All List* calls are snapshot reads: the returned slice reflects the
// UPSF's state at call time and is not updated afterwards. Update*
// calls are partial: only fields set on the corresponding *Update
// struct are written. AllocatedSessionCount, when set, is written as the
// absolute value supplied, never a delta.
type Gateway interface {
	ListShards(ctx context.Context) ([]Shard, error)
	ListSGUPs(ctx context.Context) ([]SGUP, error)
	ListSessionContexts(ctx context.Context) ([]SessionContext, error)

	GetShard(ctx context.Context, name string) (Shard, error)
	GetSGUP(ctx context.Context, name string) (SGUP, error)

	UpdateShard(ctx context.Context, u ShardUpdate) error
	UpdateSGUP(ctx context.Context, u SGUPUpdate) error
	UpdateSessionContext(ctx context.Context, u SessionContextUpdate) error

	CreateSessionContext(ctx context.Context, sc SessionContext) (SessionContext, error)

	// Watch opens a long-lived stream of Events for the given kinds. The
	// returned WatchStream must be closed by the caller. Kinds is one of
	// {EventKindShard}, {EventKindSessionContext} or both.
	Watch(ctx context.Context, kinds []EventKind) (WatchStream, error)
}

// WatchStream is a long-lived server-streaming subscription. Next blocks
// until the next Event arrives, the context is cancelled, or the stream
// fails. Close releases any underlying transport resources.
type WatchStream interface {
	Next(ctx context.Context) (Event, error)
	Close() error
}
