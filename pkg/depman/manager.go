package depman

import (
	"context"
	"sync"

	"github.com/ritzau/update-engine/pkg/events"
	"github.com/ritzau/update-engine/pkg/logging"
	"github.com/ritzau/update-engine/pkg/model"
	"github.com/ritzau/update-engine/pkg/store"
)

// Notifier receives topology-change notifications after an edge mutation has
// committed. The propagation engine satisfies this; notification is
// fire-and-forget from the manager's point of view.
type Notifier interface {
	DependencyMutated(ctx context.Context, projectID, sourceID, targetID string, depType model.DependencyType, change events.ChangeKind)
}

// Manager owns safe edge mutation and the traversal queries built on the
// store's primitives.
//
// The cycle pre-check followed by the insert is a check-then-act pair: two
// concurrent inserts that would jointly close a cycle (A->B racing B->A)
// must never both succeed. The manager serializes that pair behind a single
// mutex, so against any interleaving at most one of the two commits and the
// loser observes a CircularDependencyError. Reads and traversals do not take
// the mutex.
type Manager struct {
	store    store.Store
	notifier Notifier

	insertMu sync.Mutex // serializes cycle-check + edge insert
}

// New creates a dependency manager on top of a store. notifier may be nil.
func New(s store.Store, notifier Notifier) *Manager {
	return &Manager{store: s, notifier: notifier}
}

// SetNotifier wires the notifier after construction. The manager and the
// propagation engine reference each other, so one of the two has to be
// completed late; call this before the manager handles traffic.
func (m *Manager) SetNotifier(n Notifier) {
	m.notifier = n
}

// AddDependency inserts the edge source->target after validating both
// endpoints and proving the insertion cannot close a directed cycle. An
// empty strength defaults to STRONG. On success a DEPENDENCY_ADDED
// notification is emitted.
func (m *Manager) AddDependency(ctx context.Context, sourceID, targetID string, depType model.DependencyType, strength model.DependencyStrength) error {
	if sourceID == targetID {
		return &model.SelfReferenceError{ComponentID: sourceID}
	}

	source, err := m.store.GetComponent(ctx, sourceID)
	if err != nil {
		return err
	}
	if _, err := m.store.GetComponent(ctx, targetID); err != nil {
		return err
	}

	if strength == "" {
		strength = model.StrengthStrong
	}

	m.insertMu.Lock()
	// The target already (transitively) depending on the source means the
	// new edge would close a cycle. The check runs against the committed
	// graph while the mutex keeps any competing insert out.
	reachable, err := m.store.PathExists(ctx, targetID, sourceID)
	if err != nil {
		m.insertMu.Unlock()
		return err
	}
	if reachable {
		m.insertMu.Unlock()
		return &model.CircularDependencyError{SourceID: sourceID, TargetID: targetID}
	}

	err = m.store.AddEdge(ctx, model.Dependency{
		SourceID: sourceID,
		TargetID: targetID,
		Type:     depType,
		Strength: strength,
	})
	m.insertMu.Unlock()
	if err != nil {
		return err
	}

	logging.Debug("dependency added", "source", sourceID, "target", targetID, "type", string(depType))
	if m.notifier != nil {
		m.notifier.DependencyMutated(ctx, source.ProjectID, sourceID, targetID, depType, events.ChangeAdded)
	}
	return nil
}

// RemoveDependency deletes the edge source->target and emits a REMOVED
// notification. Removing an absent edge is a no-op.
func (m *Manager) RemoveDependency(ctx context.Context, sourceID, targetID string, depType model.DependencyType) error {
	var projectID string
	if source, err := m.store.GetComponent(ctx, sourceID); err == nil {
		projectID = source.ProjectID
	}

	if err := m.store.RemoveEdge(ctx, sourceID, targetID); err != nil {
		return err
	}

	logging.Debug("dependency removed", "source", sourceID, "target", targetID)
	if m.notifier != nil {
		m.notifier.DependencyMutated(ctx, projectID, sourceID, targetID, depType, events.ChangeRemoved)
	}
	return nil
}

// DirectDependencies returns what the component directly depends on.
func (m *Manager) DirectDependencies(ctx context.Context, componentID string) ([]model.Component, error) {
	return m.store.DirectDependencies(ctx, componentID)
}

// DirectDependents returns what directly depends on the component.
func (m *Manager) DirectDependents(ctx context.Context, componentID string) ([]model.Component, error) {
	return m.store.DirectDependents(ctx, componentID)
}

// TransitiveDependents returns every component that transitively depends on
// the given one, excluding the component itself. This is the impact set of a
// mutation.
func (m *Manager) TransitiveDependents(ctx context.Context, componentID string) ([]model.Component, error) {
	comps, _, err := m.walk(ctx, componentID, m.store.DirectDependents)
	if err != nil {
		return nil, err
	}
	return comps, nil
}

// TransitiveDependencies returns everything the component transitively
// depends on, excluding the component itself.
func (m *Manager) TransitiveDependencies(ctx context.Context, componentID string) ([]model.Component, error) {
	comps, _, err := m.walk(ctx, componentID, m.store.DirectDependencies)
	if err != nil {
		return nil, err
	}
	return comps, nil
}

// TransitiveDependentDepths returns the impact set as a map from component
// id to its breadth-first level relative to the start. The maximum level is
// the propagation depth of a mutation.
func (m *Manager) TransitiveDependentDepths(ctx context.Context, componentID string) (map[string]int, error) {
	_, depths, err := m.walk(ctx, componentID, m.store.DirectDependents)
	if err != nil {
		return nil, err
	}
	return depths, nil
}

// walk is an iterative breadth-first traversal with an explicit visited set
// keyed by component id. Edge insertion keeps the graph acyclic, so the walk
// terminates in O(V+E) over the reachable subgraph; the visited set also
// protects termination should external data ever violate that.
func (m *Manager) walk(ctx context.Context, startID string, neighbors func(context.Context, string) ([]model.Component, error)) ([]model.Component, map[string]int, error) {
	if _, err := m.store.GetComponent(ctx, startID); err != nil {
		return nil, nil, err
	}

	depths := map[string]int{startID: 0}
	var found []model.Component
	queue := []string{startID}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		current := queue[0]
		queue = queue[1:]

		next, err := neighbors(ctx, current)
		if err != nil {
			return nil, nil, err
		}
		for _, n := range next {
			if _, seen := depths[n.ComponentID]; seen {
				continue
			}
			depths[n.ComponentID] = depths[current] + 1
			found = append(found, n)
			queue = append(queue, n.ComponentID)
		}
	}

	delete(depths, startID)
	return found, depths, nil
}
