package grpcgateway

// These types mirror internal/upsf's domain structs but are the literal
// wire shapes exchanged with the UPSF: kept separate so a future
// protocol change (renamed field, added envelope) does not ripple into
// the domain model the rest of SCM depends on.

type shardWire struct {
	Name                  string `json:"name"`
	DesiredSGUP           string `json:"desiredSgup"`
	MaxSessionCount       int    `json:"maxSessionCount"`
	AllocatedSessionCount int    `json:"allocatedSessionCount"`
}

type sgupWire struct {
	Name                   string   `json:"name"`
	SupportedServiceGroups []string `json:"supportedServiceGroups"`
	MaxSessionCount        int      `json:"maxSessionCount"`
	AllocatedSessionCount  int      `json:"allocatedSessionCount"`
}

type sessionFilterWire struct {
	SourceMAC string `json:"sourceMacAddress"`
	SVLAN     int    `json:"svlan"`
	CVLAN     int    `json:"cvlan"`
}

type currentStateWire struct {
	UserPlaneShard string `json:"userPlaneShard"`
	TSFShard       string `json:"tsfShard"`
}

type sessionContextWire struct {
	Name                  string            `json:"name"`
	Filter                sessionFilterWire `json:"sessionFilter"`
	CircuitID             string            `json:"circuitId"`
	RemoteID              string            `json:"remoteId"`
	RequiredServiceGroups []string          `json:"requiredServiceGroups"`
	RequiredQuality       int               `json:"requiredQuality"`
	DesiredShard          string            `json:"desiredShard"`
	CurrentState          currentStateWire  `json:"currentState"`
	DerivedState          int               `json:"derivedState"`
}

type listShardsRequest struct{}
type listShardsResponse struct {
	Shards []shardWire `json:"shards"`
}

type listSGUPsRequest struct{}
type listSGUPsResponse struct {
	SGUPs []sgupWire `json:"sgups"`
}

type listSessionContextsRequest struct{}
type listSessionContextsResponse struct {
	SessionContexts []sessionContextWire `json:"sessionContexts"`
}

type getShardRequest struct {
	Name string `json:"name"`
}
type getShardResponse struct {
	Shard shardWire `json:"shard"`
}

type getSGUPRequest struct {
	Name string `json:"name"`
}
type getSGUPResponse struct {
	SGUP sgupWire `json:"sgup"`
}

type updateShardRequest struct {
	Name                  string `json:"name"`
	AllocatedSessionCount *int   `json:"allocatedSessionCount,omitempty"`
}
type updateShardResponse struct{}

type updateSGUPRequest struct {
	Name                  string `json:"name"`
	AllocatedSessionCount *int   `json:"allocatedSessionCount,omitempty"`
}
type updateSGUPResponse struct{}

type updateSessionContextRequest struct {
	Name                  string   `json:"name"`
	RequiredQuality       *int     `json:"requiredQuality,omitempty"`
	RequiredServiceGroups []string `json:"requiredServiceGroups,omitempty"`
	DesiredShard          *string  `json:"desiredShard,omitempty"`
}
type updateSessionContextResponse struct{}

type createSessionContextRequest struct {
	SessionContext sessionContextWire `json:"sessionContext"`
}
type createSessionContextResponse struct {
	SessionContext sessionContextWire `json:"sessionContext"`
}

type watchRequest struct {
	Kinds []string `json:"kinds"`
}
type watchEvent struct {
	Kind           string             `json:"kind"`
	Shard          shardWire          `json:"shard"`
	SessionContext sessionContextWire `json:"sessionContext"`
}
