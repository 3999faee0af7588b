// Package grpcgateway is the production upsf.Gateway: a gRPC client
// dialing the UPSF using a hand-rolled JSON wire codec (no .proto
// definitions are published for the UPSF's API), instrumented with
// go-grpc-prometheus client interceptors.
package grpcgateway

import (
	"context"
	"fmt"

	grpcprometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/hsnlab/upsf-scm/internal/upsf"
)

const (
	serviceName = "upsf.UPSF"

	methodListShards           = "/" + serviceName + "/ListShards"
	methodListSGUPs            = "/" + serviceName + "/ListServiceGatewayUserPlanes"
	methodListSessionContexts  = "/" + serviceName + "/ListSessionContexts"
	methodGetShard             = "/" + serviceName + "/GetShard"
	methodGetSGUP              = "/" + serviceName + "/GetServiceGatewayUserPlane"
	methodUpdateShard          = "/" + serviceName + "/UpdateShard"
	methodUpdateSGUP           = "/" + serviceName + "/UpdateServiceGatewayUserPlane"
	methodUpdateSessionContext = "/" + serviceName + "/UpdateSessionContext"
	methodCreateSessionContext = "/" + serviceName + "/CreateSessionContext"
	methodWatch                = "/" + serviceName + "/Watch"
)

// Gateway dials one UPSF endpoint over gRPC.
type Gateway struct {
	conn *grpc.ClientConn
}

// Dial connects to target ("host:port") and registers client-side
// Prometheus interceptors on registerer, if non-nil.
func Dial(ctx context.Context, target string, registerer prometheus.Registerer) (*Gateway, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
		grpc.WithChainUnaryInterceptor(grpcprometheus.UnaryClientInterceptor),
		grpc.WithChainStreamInterceptor(grpcprometheus.StreamClientInterceptor),
	}

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, upsf.NewGatewayError("Dial", err)
	}

	if registerer != nil {
		if err := registerer.Register(grpcprometheus.DefaultClientMetrics); err != nil {
			_ = conn.Close()
			return nil, upsf.NewGatewayError("Dial", fmt.Errorf("registering client metrics: %w", err))
		}
	}

	return &Gateway{conn: conn}, nil
}

// Close tears down the underlying connection.
func (g *Gateway) Close() error { return g.conn.Close() }

func (g *Gateway) ListShards(ctx context.Context) ([]upsf.Shard, error) {
	var resp listShardsResponse
	if err := g.conn.Invoke(ctx, methodListShards, &listShardsRequest{}, &resp); err != nil {
		return nil, upsf.NewGatewayError("ListShards", err)
	}
	out := make([]upsf.Shard, 0, len(resp.Shards))
	for _, s := range resp.Shards {
		out = append(out, shardFromWire(s))
	}
	return out, nil
}

func (g *Gateway) ListSGUPs(ctx context.Context) ([]upsf.SGUP, error) {
	var resp listSGUPsResponse
	if err := g.conn.Invoke(ctx, methodListSGUPs, &listSGUPsRequest{}, &resp); err != nil {
		return nil, upsf.NewGatewayError("ListSGUPs", err)
	}
	out := make([]upsf.SGUP, 0, len(resp.SGUPs))
	for _, s := range resp.SGUPs {
		out = append(out, sgupFromWire(s))
	}
	return out, nil
}

func (g *Gateway) ListSessionContexts(ctx context.Context) ([]upsf.SessionContext, error) {
	var resp listSessionContextsResponse
	if err := g.conn.Invoke(ctx, methodListSessionContexts, &listSessionContextsRequest{}, &resp); err != nil {
		return nil, upsf.NewGatewayError("ListSessionContexts", err)
	}
	out := make([]upsf.SessionContext, 0, len(resp.SessionContexts))
	for _, s := range resp.SessionContexts {
		out = append(out, sessionContextFromWire(s))
	}
	return out, nil
}

func (g *Gateway) GetShard(ctx context.Context, name string) (upsf.Shard, error) {
	var resp getShardResponse
	if err := g.conn.Invoke(ctx, methodGetShard, &getShardRequest{Name: name}, &resp); err != nil {
		return upsf.Shard{}, upsf.NewGatewayError("GetShard", err)
	}
	return shardFromWire(resp.Shard), nil
}

func (g *Gateway) GetSGUP(ctx context.Context, name string) (upsf.SGUP, error) {
	var resp getSGUPResponse
	if err := g.conn.Invoke(ctx, methodGetSGUP, &getSGUPRequest{Name: name}, &resp); err != nil {
		return upsf.SGUP{}, upsf.NewGatewayError("GetSGUP", err)
	}
	return sgupFromWire(resp.SGUP), nil
}

func (g *Gateway) UpdateShard(ctx context.Context, u upsf.ShardUpdate) error {
	req := updateShardRequest{Name: u.Name, AllocatedSessionCount: u.AllocatedSessionCount}
	var resp updateShardResponse
	if err := g.conn.Invoke(ctx, methodUpdateShard, &req, &resp); err != nil {
		return upsf.NewGatewayError("UpdateShard", err)
	}
	return nil
}

func (g *Gateway) UpdateSGUP(ctx context.Context, u upsf.SGUPUpdate) error {
	req := updateSGUPRequest{Name: u.Name, AllocatedSessionCount: u.AllocatedSessionCount}
	var resp updateSGUPResponse
	if err := g.conn.Invoke(ctx, methodUpdateSGUP, &req, &resp); err != nil {
		return upsf.NewGatewayError("UpdateSGUP", err)
	}
	return nil
}

func (g *Gateway) UpdateSessionContext(ctx context.Context, u upsf.SessionContextUpdate) error {
	req := updateSessionContextRequest{
		Name:                  u.Name,
		RequiredQuality:       u.RequiredQuality,
		RequiredServiceGroups: u.RequiredServiceGroups,
		DesiredShard:          u.DesiredShard,
	}
	var resp updateSessionContextResponse
	if err := g.conn.Invoke(ctx, methodUpdateSessionContext, &req, &resp); err != nil {
		return upsf.NewGatewayError("UpdateSessionContext", err)
	}
	return nil
}

func (g *Gateway) CreateSessionContext(ctx context.Context, sc upsf.SessionContext) (upsf.SessionContext, error) {
	req := createSessionContextRequest{SessionContext: sessionContextToWire(sc)}
	var resp createSessionContextResponse
	if err := g.conn.Invoke(ctx, methodCreateSessionContext, &req, &resp); err != nil {
		return upsf.SessionContext{}, upsf.NewGatewayError("CreateSessionContext", err)
	}
	return sessionContextFromWire(resp.SessionContext), nil
}

func (g *Gateway) Watch(ctx context.Context, kinds []upsf.EventKind) (upsf.WatchStream, error) {
	desc := &grpc.StreamDesc{StreamName: "Watch", ServerStreams: true}
	stream, err := g.conn.NewStream(ctx, desc, methodWatch)
	if err != nil {
		return nil, upsf.NewGatewayError("Watch", err)
	}

	req := watchRequest{Kinds: make([]string, 0, len(kinds))}
	for _, k := range kinds {
		req.Kinds = append(req.Kinds, kindToWire(k))
	}
	if err := stream.SendMsg(&req); err != nil {
		return nil, upsf.NewGatewayError("Watch", err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, upsf.NewGatewayError("Watch", err)
	}

	return &watchStream{stream: stream}, nil
}

type watchStream struct {
	stream grpc.ClientStream
}

func (w *watchStream) Next(ctx context.Context) (upsf.Event, error) {
	var ev watchEvent
	if err := w.stream.RecvMsg(&ev); err != nil {
		return upsf.Event{}, upsf.NewGatewayError("Watch", err)
	}
	return eventFromWire(ev), nil
}

func (w *watchStream) Close() error {
	if cs, ok := w.stream.(interface{ CloseSend() error }); ok {
		return cs.CloseSend()
	}
	return nil
}

func kindToWire(k upsf.EventKind) string {
	if k == upsf.EventKindShard {
		return "shard"
	}
	return "session_context"
}

func shardFromWire(w shardWire) upsf.Shard {
	return upsf.Shard{
		Name:                  w.Name,
		DesiredSGUP:           w.DesiredSGUP,
		MaxSessionCount:       w.MaxSessionCount,
		AllocatedSessionCount: w.AllocatedSessionCount,
	}
}

func sgupFromWire(w sgupWire) upsf.SGUP {
	return upsf.SGUP{
		Name:                   w.Name,
		SupportedServiceGroups: w.SupportedServiceGroups,
		MaxSessionCount:        w.MaxSessionCount,
		AllocatedSessionCount:  w.AllocatedSessionCount,
	}
}

func sessionContextToWire(s upsf.SessionContext) sessionContextWire {
	return sessionContextWire{
		Name: s.Name,
		Filter: sessionFilterWire{
			SourceMAC: s.Filter.SourceMAC,
			SVLAN:     s.Filter.SVLAN,
			CVLAN:     s.Filter.CVLAN,
		},
		CircuitID:             s.CircuitID,
		RemoteID:              s.RemoteID,
		RequiredServiceGroups: s.RequiredServiceGroups,
		RequiredQuality:       s.RequiredQuality,
		DesiredShard:          s.DesiredShard,
		CurrentState: currentStateWire{
			UserPlaneShard: s.CurrentState.UserPlaneShard,
			TSFShard:       s.CurrentState.TSFShard,
		},
		DerivedState: int(s.DerivedState),
	}
}

func sessionContextFromWire(w sessionContextWire) upsf.SessionContext {
	return upsf.SessionContext{
		Name: w.Name,
		Filter: upsf.SessionFilter{
			SourceMAC: w.Filter.SourceMAC,
			SVLAN:     w.Filter.SVLAN,
			CVLAN:     w.Filter.CVLAN,
		},
		CircuitID:             w.CircuitID,
		RemoteID:              w.RemoteID,
		RequiredServiceGroups: w.RequiredServiceGroups,
		RequiredQuality:       w.RequiredQuality,
		DesiredShard:          w.DesiredShard,
		CurrentState: upsf.CurrentState{
			UserPlaneShard: w.CurrentState.UserPlaneShard,
			TSFShard:       w.CurrentState.TSFShard,
		},
		DerivedState: upsf.DerivedState(w.DerivedState),
	}
}

func eventFromWire(w watchEvent) upsf.Event {
	ev := upsf.Event{}
	if w.Kind == "shard" {
		ev.Kind = upsf.EventKindShard
		ev.Shard = shardFromWire(w.Shard)
	} else {
		ev.Kind = upsf.EventKindSessionContext
		ev.SessionContext = sessionContextFromWire(w.SessionContext)
	}
	return ev
}
