package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/ritzau/update-engine/pkg/model"
)

// Topics the engine publishes on. A broker client outside this repo maps
// them onto real transport topics.
const (
	TopicComponentUpdate   = "component.update"
	TopicDependencyChange  = "dependency.change"
	TopicUpdatePropagation = "update.propagation"
)

// Kind identifies the payload type of an outbound event.
type Kind string

const (
	KindComponentCreated  Kind = "COMPONENT_CREATED"
	KindComponentUpdated  Kind = "COMPONENT_UPDATED"
	KindDependencyAdded   Kind = "DEPENDENCY_ADDED"
	KindDependencyChanged Kind = "DEPENDENCY_CHANGED"
	KindUpdatePropagation Kind = "UPDATE_PROPAGATION"
)

// PropagationType classifies how aggressively a change fans out.
type PropagationType string

const (
	PropagationCascade   PropagationType = "CASCADE"   // version change, dependents must re-resolve
	PropagationForced    PropagationType = "FORCED"    // explicit breaking change
	PropagationSelective PropagationType = "SELECTIVE" // status or metadata change
	PropagationRollback  PropagationType = "ROLLBACK"  // reserved for the rollback workflow
)

// ChangeKind describes what happened to a dependency edge.
type ChangeKind string

const (
	ChangeAdded   ChangeKind = "ADDED"
	ChangeRemoved ChangeKind = "REMOVED"
	ChangeUpdated ChangeKind = "UPDATED"
)

// Envelope carries the fields every outbound event shares. EventID is unique
// per event; Timestamp is UTC.
type Envelope struct {
	EventID   string    `json:"eventId"`
	Kind      Kind      `json:"kind"`
	ProjectID string    `json:"projectId"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEnvelope stamps a fresh envelope for the given kind and project.
func NewEnvelope(kind Kind, projectID string) Envelope {
	return Envelope{
		EventID:   uuid.NewString(),
		Kind:      kind,
		ProjectID: projectID,
		Timestamp: time.Now().UTC(),
	}
}

// ComponentCreated announces a newly registered component.
type ComponentCreated struct {
	Envelope
	ComponentID string              `json:"componentId"`
	Name        string              `json:"name"`
	Type        model.ComponentType `json:"type"`
	Version     string              `json:"version"`
}

// ComponentUpdated announces a mutation of a single component. It is emitted
// for every successful update, propagating or not.
type ComponentUpdated struct {
	Envelope
	ComponentID     string         `json:"componentId"`
	PreviousVersion string         `json:"previousVersion"`
	NewVersion      string         `json:"newVersion"`
	Changes         map[string]any `json:"changes,omitempty"`
}

// DependencyChanged announces a topology change. Topology changes are
// reported, not cascaded, to avoid notification storms.
type DependencyChanged struct {
	Envelope
	SourceID       string               `json:"source"`
	TargetID       string               `json:"target"`
	DependencyType model.DependencyType `json:"dependencyType"`
	Change         ChangeKind           `json:"changeKind"`
}

// UpdatePropagation carries the computed impact of a propagating mutation:
// the full affected set and the length of the longest dependency chain from
// the trigger to any affected component.
type UpdatePropagation struct {
	Envelope
	TriggerComponentID   string          `json:"triggerComponentId"`
	AffectedComponentIDs []string        `json:"affectedComponentIds"`
	Type                 PropagationType `json:"propagationType"`
	Depth                int             `json:"propagationDepth"`
	Changes              map[string]any  `json:"changes,omitempty"`
}
