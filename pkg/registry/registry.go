package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/ritzau/update-engine/pkg/logging"
	"github.com/ritzau/update-engine/pkg/model"
	"github.com/ritzau/update-engine/pkg/store"
)

// Notifier receives lifecycle notifications after a component mutation has
// committed. The propagation engine satisfies this.
type Notifier interface {
	ComponentRegistered(ctx context.Context, c model.Component)
	ComponentMutated(ctx context.Context, before, after model.Component, changes map[string]any)
}

// Patch is a partial component update. Nil fields are left untouched;
// metadata keys are merged into the existing bag. Breaking marks the update
// as a breaking change for propagation purposes without touching any field.
type Patch struct {
	Version  *string
	Status   *model.ComponentStatus
	Metadata map[string]any
	Breaking bool
}

// Registry enforces identity and lifecycle rules over the store.
type Registry struct {
	store    store.Store
	notifier Notifier

	// serializes the duplicate check against the insert
	registerMu sync.Mutex
}

// New creates a registry. notifier may be nil.
func New(s store.Store, notifier Notifier) *Registry {
	return &Registry{store: s, notifier: notifier}
}

// Register persists a new component. The draft's id must be globally unique;
// a taken id fails with DuplicateError and leaves the existing record
// untouched. Status is forced to ACTIVE regardless of the draft.
func (r *Registry) Register(ctx context.Context, draft model.Component) (model.Component, error) {
	if draft.ComponentID == "" {
		return model.Component{}, fmt.Errorf("component id must not be empty")
	}

	r.registerMu.Lock()
	defer r.registerMu.Unlock()

	if _, err := r.store.GetComponent(ctx, draft.ComponentID); err == nil {
		return model.Component{}, &model.DuplicateError{ComponentID: draft.ComponentID}
	} else if !model.IsNotFound(err) {
		return model.Component{}, err
	}

	draft.Status = model.StatusActive
	stored, err := r.store.PutComponent(ctx, draft)
	if err != nil {
		return model.Component{}, err
	}

	logging.Info("component registered",
		"component", stored.ComponentID,
		"project", stored.ProjectID,
		"type", string(stored.Type))

	if r.notifier != nil {
		r.notifier.ComponentRegistered(ctx, stored)
	}
	return stored, nil
}

// Find returns a component by id.
func (r *Registry) Find(ctx context.Context, componentID string) (model.Component, error) {
	return r.store.GetComponent(ctx, componentID)
}

// FindByProject returns all components of a project.
func (r *Registry) FindByProject(ctx context.Context, projectID string) ([]model.Component, error) {
	return r.store.ListComponents(ctx, projectID)
}

// FindByType returns all components of a given type across projects.
func (r *Registry) FindByType(ctx context.Context, t model.ComponentType) ([]model.Component, error) {
	all, err := r.store.ListComponents(ctx, "")
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, c := range all {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out, nil
}

// ApplyUpdate merges the supplied patch fields into the component, persists
// the result and hands the change set to the propagation engine. Status
// changes are validated against the lifecycle state machine. A patch that
// changes nothing is a no-op and emits no event.
func (r *Registry) ApplyUpdate(ctx context.Context, componentID string, patch Patch) (model.Component, error) {
	before, err := r.store.GetComponent(ctx, componentID)
	if err != nil {
		return model.Component{}, err
	}

	after := before.Clone()
	changes := make(map[string]any)

	if patch.Version != nil && *patch.Version != before.Version {
		after.Version = *patch.Version
		changes["version"] = *patch.Version
	}
	if patch.Status != nil && *patch.Status != before.Status {
		if !before.Status.CanTransitionTo(*patch.Status) {
			return model.Component{}, &model.InvalidTransitionError{
				ComponentID: componentID,
				From:        before.Status,
				To:          *patch.Status,
			}
		}
		after.Status = *patch.Status
		changes["status"] = string(*patch.Status)
	}
	if len(patch.Metadata) > 0 {
		if after.Metadata == nil {
			after.Metadata = make(map[string]any, len(patch.Metadata))
		}
		for k, v := range patch.Metadata {
			after.Metadata[k] = v
		}
		changes["metadata"] = patch.Metadata
	}
	if patch.Breaking {
		changes["breaking_change"] = true
	}

	if len(changes) == 0 {
		return before, nil
	}

	stored, err := r.store.PutComponent(ctx, after)
	if err != nil {
		return model.Component{}, err
	}

	logging.Debug("component updated", "component", componentID, "fields", len(changes))
	if r.notifier != nil {
		r.notifier.ComponentMutated(ctx, before, stored, changes)
	}
	return stored, nil
}

// Remove deletes a component. It fails with HasDependentsError while any
// incoming edge exists; callers must remove (or relink) dependent edges
// first.
func (r *Registry) Remove(ctx context.Context, componentID string) error {
	if err := r.store.RemoveComponent(ctx, componentID); err != nil {
		return err
	}
	logging.Info("component removed", "component", componentID)
	return nil
}
