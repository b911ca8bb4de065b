package store

import (
	"context"

	"github.com/ritzau/update-engine/pkg/model"
)

// Store is the single source of truth for the component graph. It persists
// nodes and typed directed edges and answers the primitive traversal queries
// the upper layers are built on.
//
// Every mutating operation is atomic with respect to a single node or edge.
// The store does not provide multi-statement transactions; callers that need
// check-then-act semantics (the cycle pre-check in particular) serialize at
// their own level.
//
// All operations may block on I/O in a persistent implementation, so they
// take a context and callers must not hold locks across them.
type Store interface {
	// PutComponent upserts a component by its ComponentID and stamps
	// UpdatedAt. It has no side effects beyond persistence.
	PutComponent(ctx context.Context, c model.Component) (model.Component, error)

	// GetComponent returns the component or a NotFoundError.
	GetComponent(ctx context.Context, componentID string) (model.Component, error)

	// ListComponents returns all components of a project. An empty projectID
	// returns every component in the store. Order is not significant.
	ListComponents(ctx context.Context, projectID string) ([]model.Component, error)

	// RemoveComponent deletes a component and its outgoing edges. It fails
	// with a HasDependentsError while incoming edges exist.
	RemoveComponent(ctx context.Context, componentID string) error

	// AddEdge inserts (or updates in place) the directed edge source->target.
	// It fails with a NotFoundError if either endpoint is absent and with a
	// SelfReferenceError if source == target. Cycle safety is the caller's
	// concern, not the store's.
	AddEdge(ctx context.Context, dep model.Dependency) error

	// RemoveEdge deletes the edge source->target. Removing an absent edge is
	// a no-op.
	RemoveEdge(ctx context.Context, sourceID, targetID string) error

	// ListEdges returns every edge in the store.
	ListEdges(ctx context.Context) ([]model.Dependency, error)

	// DirectDependencies returns the targets of the component's outgoing
	// edges (what it depends on).
	DirectDependencies(ctx context.Context, componentID string) ([]model.Component, error)

	// DirectDependents returns the sources of the component's incoming edges
	// (what depends on it).
	DirectDependents(ctx context.Context, componentID string) ([]model.Component, error)

	// PathExists reports whether a directed path of length >= 1 exists from
	// source to target. Unknown endpoints yield false.
	PathExists(ctx context.Context, sourceID, targetID string) (bool, error)
}

// Snapshot is the serializable form of the whole graph.
type Snapshot struct {
	Components   []model.Component  `json:"components"`
	Dependencies []model.Dependency `json:"dependencies"`
}
