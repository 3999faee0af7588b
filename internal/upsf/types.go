// Package upsf defines the data model and collaborator contract for the
// UPSF (User-Plane Selection Function): the external registry of Shards,
// Service Gateway User Planes (SGUPs) and Session Contexts that SCM
// watches and places against.
package upsf

import "fmt"

// Shard is a logical bucket of subscriber sessions placed on exactly one
// SGUP. SCM reads every field but writes only AllocatedSessionCount.
type Shard struct {
	Name                  string `json:"name"`
	DesiredSGUP           string `json:"desiredSgup"`
	MaxSessionCount       int    `json:"maxSessionCount"`
	AllocatedSessionCount int    `json:"allocatedSessionCount"`
}

// SGUP is a Service Gateway User Plane: a data-plane element hosting one
// or more Shards. Same ownership/write discipline as Shard.
type SGUP struct {
	Name                   string   `json:"name"`
	SupportedServiceGroups []string `json:"supportedServiceGroups"`
	MaxSessionCount        int      `json:"maxSessionCount"`
	AllocatedSessionCount  int      `json:"allocatedSessionCount"`
}

// SessionFilter identifies a subscriber session's line by layer-2
// attachment point.
type SessionFilter struct {
	SourceMAC string `json:"sourceMacAddress"`
	SVLAN     int    `json:"svlan"`
	CVLAN     int    `json:"cvlan"`
}

// CurrentState mirrors the data-plane's observed placement, as reported
// by the UPSF. SCM never writes these fields.
type CurrentState struct {
	UserPlaneShard string `json:"userPlaneShard"`
	TSFShard       string `json:"tsfShard"`
}

// DerivedState is the UPSF-owned session lifecycle, observed but never
// driven by SCM: UNKNOWN -> INACTIVE -> ACTIVE -> UPDATING ->
// {ACTIVE, DELETING} -> DELETED.
type DerivedState int

const (
	DerivedStateUnknown DerivedState = iota
	DerivedStateInactive
	DerivedStateActive
	DerivedStateUpdating
	DerivedStateDeleting
	DerivedStateDeleted
)

func (s DerivedState) String() string {
	switch s {
	case DerivedStateInactive:
		return "INACTIVE"
	case DerivedStateActive:
		return "ACTIVE"
	case DerivedStateUpdating:
		return "UPDATING"
	case DerivedStateDeleting:
		return "DELETING"
	case DerivedStateDeleted:
		return "DELETED"
	default:
		return "UNKNOWN"
	}
}

// SessionContext is a record representing one subscriber session and its
// desired/current placement. Name equals fingerprint(circuitID, remoteID,
// sourceMAC, svlan, cvlan); two policy entries with identical tuples
// collapse to one record.
type SessionContext struct {
	Name                  string
	Filter                SessionFilter
	CircuitID             string
	RemoteID              string
	RequiredServiceGroups []string
	RequiredQuality       int
	DesiredShard          string
	CurrentState          CurrentState
	DerivedState          DerivedState
}

// HasDesiredShard reports whether a placement decision has already been
// recorded for this Session Context; once set, placement never revisits it.
func (s SessionContext) HasDesiredShard() bool {
	return s.DesiredShard != ""
}

// HasRequiredServiceGroups reports whether the required-service-group
// field carries a non-empty value, treating []string{""} the same as an
// empty slice (the source's own empty-sentinel, preserved here).
func (s SessionContext) HasRequiredServiceGroups() bool {
	for _, g := range s.RequiredServiceGroups {
		if g != "" {
			return true
		}
	}
	return false
}

// ShardUpdate is a partial update to a Shard: unset fields are left
// untouched at the UPSF. Name identifies the target record.
type ShardUpdate struct {
	Name                  string
	AllocatedSessionCount *int
}

// SGUPUpdate is a partial update to an SGUP.
type SGUPUpdate struct {
	Name                  string
	AllocatedSessionCount *int
}

// SessionContextUpdate is a partial update to a Session Context.
type SessionContextUpdate struct {
	Name                  string
	RequiredQuality       *int
	RequiredServiceGroups []string
	DesiredShard          *string
}

// IsEmpty reports whether an update carries no field changes at all, in
// which case Step H of the Placement Engine issues no write.
func (u SessionContextUpdate) IsEmpty() bool {
	return u.RequiredQuality == nil && u.RequiredServiceGroups == nil && u.DesiredShard == nil
}

// EventKind distinguishes the two record kinds the watch stream
// delivers.
type EventKind int

const (
	EventKindShard EventKind = iota
	EventKindSessionContext
)

// Event carries a mutation of either a Shard or a Session Context, as
// delivered over the long-lived Watch stream.
type Event struct {
	Kind           EventKind
	Shard          Shard
	SessionContext SessionContext
}

// GatewayError wraps a failure from the UPSF (transport, server-side, or
// validation). SCM treats every GatewayError as recoverable: log and
// continue, or reconnect.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("upsf gateway: %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

func NewGatewayError(op string, err error) *GatewayError {
	if err == nil {
		return nil
	}
	return &GatewayError{Op: op, Err: err}
}
