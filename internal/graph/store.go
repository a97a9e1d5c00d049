// Package graph implements the event graph store: entity nodes, event nodes
// and event-to-entity relations, with integrity analysis. Two backends exist
// behind the Store interface: a memgraph-backed one for the running service
// and an in-memory one for tests and embedded single-device use.
package graph

import (
	"context"
	"errors"

	"github.com/agenthands/recall/internal/core/model"
)

// ErrNotFound is returned when a lookup by id matches nothing.
var ErrNotFound = errors.New("graph: not found")

// NodeFilter narrows node queries. Zero fields match everything.
type NodeFilter struct {
	IDs          []string
	NameContains string
	Type         string
}

// EventFilter narrows event queries. Zero fields match everything.
// Unclustered selects events with no cluster assignment; ClusterID selects
// members of one cluster.
type EventFilter struct {
	IDs          []string
	NameContains string
	Type         string
	Range        model.TimeRange
	Unclustered  bool
	ClusterID    string
}

// Store is the event graph contract. Upserts are keyed by id; when the
// caller supplies no id (or an invalid one such as "" or "0") a fresh id is
// minted. Mutations are serialized per store; reads may run concurrently.
type Store interface {
	UpsertNode(ctx context.Context, n *model.Node) (*model.Node, error)
	UpsertEvent(ctx context.Context, e *model.EventNode) (*model.EventNode, error)
	UpsertRelation(ctx context.Context, r *model.EventEntityRelation) (*model.EventEntityRelation, error)

	NodeByID(ctx context.Context, id string) (*model.Node, error)
	EventByID(ctx context.Context, id string) (*model.EventNode, error)
	Nodes(ctx context.Context, f NodeFilter) ([]model.Node, error)
	Events(ctx context.Context, f EventFilter) ([]model.EventNode, error)
	RelationsForEvent(ctx context.Context, eventID string) ([]model.EventEntityRelation, error)
	RelationsForEntity(ctx context.Context, entityID string) ([]model.EventEntityRelation, error)
	Relations(ctx context.Context) ([]model.EventEntityRelation, error)

	// DeleteNode removes one entity node together with every relation
	// referencing it.
	DeleteNode(ctx context.Context, id string) error

	SetEventEmbedding(ctx context.Context, eventID string, embedding []float32) error
	// SetEventCluster assigns an event to a cluster; an empty clusterID
	// clears the assignment.
	SetEventCluster(ctx context.Context, eventID, clusterID string) error

	UpsertCluster(ctx context.Context, c *model.ClusterNode) (*model.ClusterNode, error)
	Clusters(ctx context.Context) ([]model.ClusterNode, error)
	// DeleteCluster removes one cluster node. Member back-references are
	// the caller's responsibility.
	DeleteCluster(ctx context.Context, id string) error
	// DeleteAllClusters removes every cluster node and clears all event
	// assignments. Returns (clusters removed, events cleared).
	DeleteAllClusters(ctx context.Context) (int, int, error)

	// DeleteOrphanedNodes removes entity nodes with zero relations
	// referencing them. Destructive and irreversible; callers confirm via
	// ValidateIntegrity first (enforced at the calling layer).
	DeleteOrphanedNodes(ctx context.Context) (int, error)
	ValidateIntegrity(ctx context.Context) (*model.IntegrityReport, error)

	Close(ctx context.Context) error
}

// ValidID reports whether a caller-supplied id is usable as an upsert key.
func ValidID(id string) bool {
	return id != "" && id != "0"
}
