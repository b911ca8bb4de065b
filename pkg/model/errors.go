package model

import (
	"errors"
	"fmt"
)

// NotFoundError reports that a component id did not resolve to a node.
type NotFoundError struct {
	ComponentID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("component %q not found", e.ComponentID)
}

// DuplicateError reports a registration attempt with an id that is already
// taken. Component ids are unique across the whole store, not per project.
type DuplicateError struct {
	ComponentID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("component %q already registered", e.ComponentID)
}

// SelfReferenceError reports a rejected self-loop edge.
type SelfReferenceError struct {
	ComponentID string
}

func (e *SelfReferenceError) Error() string {
	return fmt.Sprintf("component %q cannot depend on itself", e.ComponentID)
}

// CircularDependencyError reports an edge insertion that would close a
// directed cycle. It carries both endpoints so callers can present an
// actionable message.
type CircularDependencyError struct {
	SourceID string
	TargetID string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("adding dependency %s -> %s would create a cycle", e.SourceID, e.TargetID)
}

// HasDependentsError reports a refused removal of a component that still has
// incoming edges.
type HasDependentsError struct {
	ComponentID string
	Dependents  []string
}

func (e *HasDependentsError) Error() string {
	return fmt.Sprintf("component %q still has %d dependent(s)", e.ComponentID, len(e.Dependents))
}

// InvalidTransitionError reports a status change the state machine forbids.
type InvalidTransitionError struct {
	ComponentID string
	From        ComponentStatus
	To          ComponentStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("component %q cannot move from %s to %s", e.ComponentID, e.From, e.To)
}

// UnavailableError wraps a transient infrastructure failure of the store.
// Unlike the validation errors above it is retryable for idempotent reads.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsCircular reports whether err is a CircularDependencyError.
func IsCircular(err error) bool {
	var cd *CircularDependencyError
	return errors.As(err, &cd)
}
