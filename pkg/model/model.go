package model

import (
	"time"
)

// ComponentType classifies what kind of artifact a component represents
type ComponentType string

const (
	TypeFrontend       ComponentType = "FRONTEND"
	TypeBackend        ComponentType = "BACKEND"
	TypeDatabase       ComponentType = "DATABASE"
	TypeAPI            ComponentType = "API"
	TypeService        ComponentType = "SERVICE"
	TypeLibrary        ComponentType = "LIBRARY"
	TypeConfiguration  ComponentType = "CONFIGURATION"
	TypeInfrastructure ComponentType = "INFRASTRUCTURE"
)

// ComponentStatus represents the lifecycle state of a component
type ComponentStatus string

const (
	StatusActive     ComponentStatus = "ACTIVE"
	StatusInactive   ComponentStatus = "INACTIVE"
	StatusUpdating   ComponentStatus = "UPDATING"
	StatusError      ComponentStatus = "ERROR"
	StatusDeprecated ComponentStatus = "DEPRECATED"
)

// DependencyType represents the kind of relation an edge models
type DependencyType string

const (
	DepCompile       DependencyType = "COMPILE"
	DepRuntime       DependencyType = "RUNTIME"
	DepTest          DependencyType = "TEST"
	DepProvided      DependencyType = "PROVIDED"
	DepImport        DependencyType = "IMPORT"
	DepAPICall       DependencyType = "API_CALL"
	DepDatabase      DependencyType = "DATABASE"
	DepConfiguration DependencyType = "CONFIGURATION"
)

// DependencyStrength hints how likely a change in the target propagates
// to the source of the edge
type DependencyStrength string

const (
	StrengthStrong   DependencyStrength = "STRONG"   // Breaking changes will affect the dependent
	StrengthWeak     DependencyStrength = "WEAK"     // Changes might affect the dependent
	StrengthOptional DependencyStrength = "OPTIONAL" // Changes unlikely to affect the dependent
)

// Component is a node in the dependency graph. It represents a managed
// artifact of the platform: a frontend module, a backend service, a schema,
// an API and so on.
//
// ComponentID is caller-assigned, globally unique and immutable. A component
// belongs to exactly one project (ProjectID is the partition key).
type Component struct {
	ComponentID string          `json:"componentId"`
	Name        string          `json:"name"`
	Type        ComponentType   `json:"type"`
	Version     string          `json:"version"`
	ProjectID   string          `json:"projectId"`
	Status      ComponentStatus `json:"status"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Clone returns a deep copy of the component. The store hands out clones so
// callers can't mutate persisted state through shared maps.
func (c Component) Clone() Component {
	out := c
	if c.Metadata != nil {
		out.Metadata = make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Dependency is a directed, typed edge meaning "source requires target".
// Edges are owned by the store, not by either endpoint.
type Dependency struct {
	SourceID  string             `json:"source"`
	TargetID  string             `json:"target"`
	Type      DependencyType     `json:"type"`
	Strength  DependencyStrength `json:"strength"`
	CreatedAt time.Time          `json:"createdAt"`
	Metadata  map[string]any     `json:"metadata,omitempty"`
}
