package propagate

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ritzau/update-engine/pkg/cache"
	"github.com/ritzau/update-engine/pkg/depman"
	"github.com/ritzau/update-engine/pkg/events"
	"github.com/ritzau/update-engine/pkg/model"
	"github.com/ritzau/update-engine/pkg/pubsub"
	"github.com/ritzau/update-engine/pkg/registry"
	"github.com/ritzau/update-engine/pkg/store"
)

type stack struct {
	registry *registry.Registry
	manager  *depman.Manager
	bus      *pubsub.Bus
}

// buildStack wires the full pipeline the way cmd/update-engine does:
// memory store, cache decorator, dependency manager, propagation engine
// and registry, with events flowing over the in-process bus.
func buildStack(t *testing.T) *stack {
	t.Helper()

	mem := store.NewMemory()
	cached := cache.New(mem)
	bus := pubsub.NewBus()
	t.Cleanup(func() { bus.Close() })

	manager := depman.New(cached, nil)
	engine := New(manager, bus)
	manager.SetNotifier(engine)

	return &stack{
		registry: registry.New(cached, engine),
		manager:  manager,
		bus:      bus,
	}
}

func register(t *testing.T, s *stack, id string, typ model.ComponentType) {
	t.Helper()
	_, err := s.registry.Register(context.Background(), model.Component{
		ComponentID: id,
		Name:        id,
		Type:        typ,
		Version:     "1.0.0",
		ProjectID:   "proj-1",
	})
	if err != nil {
		t.Fatalf("Register(%s): %v", id, err)
	}
}

func nextEvent(t *testing.T, sub pubsub.Subscription) pubsub.Event {
	t.Helper()
	select {
	case event := <-sub.Events():
		return event
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for event on %s", sub.Topic())
		return pubsub.Event{}
	}
}

func TestUpdateScenario(t *testing.T) {
	s := buildStack(t)
	ctx := context.Background()

	propagations, err := s.bus.Subscribe(ctx, events.TopicUpdatePropagation)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer propagations.Close()

	register(t, s, "svc-api", model.TypeAPI)
	register(t, s, "svc-db", model.TypeDatabase)

	if err := s.manager.AddDependency(ctx, "svc-api", "svc-db", model.DepDatabase, ""); err != nil {
		t.Fatalf("AddDependency: %v", err)
	}

	deps, err := s.manager.DirectDependencies(ctx, "svc-api")
	if err != nil {
		t.Fatalf("DirectDependencies: %v", err)
	}
	if len(deps) != 1 || deps[0].ComponentID != "svc-db" {
		t.Errorf("directDependencies(svc-api) = %v, want [svc-db]", deps)
	}

	dependents, err := s.manager.DirectDependents(ctx, "svc-db")
	if err != nil {
		t.Fatalf("DirectDependents: %v", err)
	}
	if len(dependents) != 1 || dependents[0].ComponentID != "svc-api" {
		t.Errorf("directDependents(svc-db) = %v, want [svc-api]", dependents)
	}

	v := "2.0.0"
	updated, err := s.registry.ApplyUpdate(ctx, "svc-db", registry.Patch{Version: &v})
	if err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}
	if updated.Version != "2.0.0" {
		t.Fatalf("version not applied: %s", updated.Version)
	}

	event := nextEvent(t, propagations)
	if event.Type != string(events.KindUpdatePropagation) {
		t.Fatalf("expected UPDATE_PROPAGATION, got %s", event.Type)
	}

	var prop events.UpdatePropagation
	if err := json.Unmarshal(event.Data, &prop); err != nil {
		t.Fatalf("payload does not decode: %v", err)
	}
	if prop.TriggerComponentID != "svc-db" {
		t.Errorf("trigger = %s, want svc-db", prop.TriggerComponentID)
	}
	if len(prop.AffectedComponentIDs) != 1 || prop.AffectedComponentIDs[0] != "svc-api" {
		t.Errorf("affected = %v, want [svc-api]", prop.AffectedComponentIDs)
	}
	if prop.Depth != 1 {
		t.Errorf("propagationDepth = %d, want 1", prop.Depth)
	}
	if prop.Type != events.PropagationCascade {
		t.Errorf("propagationType = %s, want CASCADE", prop.Type)
	}
	if prop.ProjectID != "proj-1" {
		t.Errorf("projectId = %s, want proj-1", prop.ProjectID)
	}
}

func TestLifecycleEventsOnTheBus(t *testing.T) {
	s := buildStack(t)
	ctx := context.Background()

	updates, err := s.bus.Subscribe(ctx, events.TopicComponentUpdate)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer updates.Close()
	depChanges, err := s.bus.Subscribe(ctx, events.TopicDependencyChange)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer depChanges.Close()

	register(t, s, "svc-api", model.TypeAPI)
	if got := nextEvent(t, updates); got.Type != string(events.KindComponentCreated) {
		t.Errorf("expected COMPONENT_CREATED, got %s", got.Type)
	}

	register(t, s, "svc-db", model.TypeDatabase)
	nextEvent(t, updates)

	if err := s.manager.AddDependency(ctx, "svc-api", "svc-db", model.DepDatabase, ""); err != nil {
		t.Fatalf("AddDependency: %v", err)
	}
	got := nextEvent(t, depChanges)
	if got.Type != string(events.KindDependencyAdded) {
		t.Errorf("expected DEPENDENCY_ADDED, got %s", got.Type)
	}
	var change events.DependencyChanged
	if err := json.Unmarshal(got.Data, &change); err != nil {
		t.Fatalf("payload does not decode: %v", err)
	}
	if change.SourceID != "svc-api" || change.TargetID != "svc-db" {
		t.Errorf("edge endpoints lost: %+v", change)
	}
	if change.ProjectID != "proj-1" {
		t.Errorf("dependency event lost its project id, got %q", change.ProjectID)
	}

	// Topology changes are reported, not cascaded
	select {
	case event := <-depChanges.Events():
		t.Errorf("unexpected extra dependency event: %s", event.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCycleRejectionThroughTheStack(t *testing.T) {
	s := buildStack(t)
	ctx := context.Background()

	register(t, s, "a", model.TypeService)
	register(t, s, "b", model.TypeService)
	register(t, s, "c", model.TypeService)

	if err := s.manager.AddDependency(ctx, "a", "b", model.DepRuntime, ""); err != nil {
		t.Fatal(err)
	}
	if err := s.manager.AddDependency(ctx, "b", "c", model.DepRuntime, ""); err != nil {
		t.Fatal(err)
	}

	err := s.manager.AddDependency(ctx, "c", "a", model.DepRuntime, "")
	if !model.IsCircular(err) {
		t.Fatalf("expected CircularDependencyError, got %v", err)
	}

	// The cache decorator must not serve phantom edges from the rejected insert
	deps, err := s.manager.DirectDependencies(ctx, "c")
	if err != nil {
		t.Fatal(err)
	}
	if len(deps) != 0 {
		t.Errorf("rejected edge leaked into reads: %v", deps)
	}
}
