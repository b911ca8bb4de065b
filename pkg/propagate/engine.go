package propagate

import (
	"context"
	"sort"

	"github.com/ritzau/update-engine/pkg/events"
	"github.com/ritzau/update-engine/pkg/logging"
	"github.com/ritzau/update-engine/pkg/model"
)

// Traverser computes the impact set of a component. The dependency manager
// satisfies this.
type Traverser interface {
	TransitiveDependentDepths(ctx context.Context, componentID string) (map[string]int, error)
}

// Sink is where outbound events go. The in-process pubsub bus satisfies it;
// a broker client would too. Emission is a capability, not a concrete
// client, so the engine is testable without infrastructure.
type Sink interface {
	Publish(topic string, eventType string, data interface{}) error
}

// Engine decides whether a component mutation must cascade and executes the
// fan-out. Event emission is fire-and-forget relative to the mutating caller:
// by the time the engine runs, the graph mutation is already committed, so a
// failed publish is logged and never rolls anything back. Redelivery is the
// external bus client's concern.
type Engine struct {
	traverser Traverser
	sink      Sink
}

// New creates a propagation engine.
func New(t Traverser, sink Sink) *Engine {
	return &Engine{traverser: t, sink: sink}
}

// ComponentRegistered emits COMPONENT_CREATED for a newly registered
// component. Registrations have no dependents yet, so there is nothing to
// cascade.
func (e *Engine) ComponentRegistered(ctx context.Context, c model.Component) {
	e.publish(events.TopicComponentUpdate, events.KindComponentCreated, events.ComponentCreated{
		Envelope:    events.NewEnvelope(events.KindComponentCreated, c.ProjectID),
		ComponentID: c.ComponentID,
		Name:        c.Name,
		Type:        c.Type,
		Version:     c.Version,
	})
}

// ComponentMutated reports a committed component mutation and, when the
// change set demands it, computes and publishes the impact.
//
// A change propagates when it touches version or status, or carries an
// explicit breaking_change flag. Anything else is a local change: it still
// produces COMPONENT_UPDATED but no impact set is computed. A component that
// was already DEPRECATED before the mutation never propagates.
func (e *Engine) ComponentMutated(ctx context.Context, before, after model.Component, changes map[string]any) {
	e.publish(events.TopicComponentUpdate, events.KindComponentUpdated, events.ComponentUpdated{
		Envelope:        events.NewEnvelope(events.KindComponentUpdated, after.ProjectID),
		ComponentID:     after.ComponentID,
		PreviousVersion: before.Version,
		NewVersion:      after.Version,
		Changes:         changes,
	})

	if !shouldPropagate(changes) || before.Status == model.StatusDeprecated {
		return
	}

	depths, err := e.traverser.TransitiveDependentDepths(ctx, after.ComponentID)
	if err != nil {
		logging.Error("impact traversal failed", "component", after.ComponentID, "error", err)
		return
	}
	if len(depths) == 0 {
		return
	}

	affected, maxDepth := orderAffected(depths)
	logging.Info("propagating update",
		"component", after.ComponentID,
		"affected", len(affected),
		"depth", maxDepth)

	e.publish(events.TopicUpdatePropagation, events.KindUpdatePropagation, events.UpdatePropagation{
		Envelope:             events.NewEnvelope(events.KindUpdatePropagation, after.ProjectID),
		TriggerComponentID:   after.ComponentID,
		AffectedComponentIDs: affected,
		Type:                 propagationType(changes),
		Depth:                maxDepth,
		Changes:              changes,
	})
}

// DependencyMutated reports a topology change. Dependency changes are
// reported, not cascaded: every affected component would otherwise be
// notified once per edge, which is a notification storm with no new
// information in it.
func (e *Engine) DependencyMutated(ctx context.Context, projectID, sourceID, targetID string, depType model.DependencyType, change events.ChangeKind) {
	kind := events.KindDependencyChanged
	if change == events.ChangeAdded {
		kind = events.KindDependencyAdded
	}

	e.publish(events.TopicDependencyChange, kind, events.DependencyChanged{
		Envelope:       events.NewEnvelope(kind, projectID),
		SourceID:       sourceID,
		TargetID:       targetID,
		DependencyType: depType,
		Change:         change,
	})
}

func (e *Engine) publish(topic string, kind events.Kind, payload any) {
	if err := e.sink.Publish(topic, string(kind), payload); err != nil {
		logging.Warn("event publish failed", "topic", topic, "kind", string(kind), "error", err)
	}
}

// shouldPropagate is true when the change set touches version or status, or
// carries an explicit breaking_change flag.
func shouldPropagate(changes map[string]any) bool {
	for _, key := range []string{"version", "status", "breaking_change"} {
		if _, ok := changes[key]; ok {
			return true
		}
	}
	return false
}

func propagationType(changes map[string]any) events.PropagationType {
	if _, ok := changes["version"]; ok {
		return events.PropagationCascade
	}
	if _, ok := changes["breaking_change"]; ok {
		return events.PropagationForced
	}
	return events.PropagationSelective
}

// orderAffected flattens the depth map into a deterministic notification
// order: nearest dependents first, ties broken by id. The returned depth is
// the longest chain from the trigger to any affected component.
func orderAffected(depths map[string]int) ([]string, int) {
	ids := make([]string, 0, len(depths))
	maxDepth := 0
	for id, d := range depths {
		ids = append(ids, id)
		if d > maxDepth {
			maxDepth = d
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		if depths[ids[i]] != depths[ids[j]] {
			return depths[ids[i]] < depths[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return ids, maxDepth
}
