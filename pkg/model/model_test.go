package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestCloneIsDeep(t *testing.T) {
	c := Component{
		ComponentID: "svc-api",
		Metadata:    map[string]any{"owner": "platform"},
	}

	clone := c.Clone()
	clone.Metadata["owner"] = "someone-else"

	if c.Metadata["owner"] != "platform" {
		t.Error("mutating a clone's metadata leaked into the original")
	}
}

func TestErrorHelpers(t *testing.T) {
	notFound := fmt.Errorf("lookup: %w", &NotFoundError{ComponentID: "x"})
	if !IsNotFound(notFound) {
		t.Error("IsNotFound should see through wrapping")
	}
	if IsNotFound(errors.New("other")) {
		t.Error("IsNotFound matched an unrelated error")
	}

	circular := fmt.Errorf("insert: %w", &CircularDependencyError{SourceID: "a", TargetID: "b"})
	if !IsCircular(circular) {
		t.Error("IsCircular should see through wrapping")
	}

	var cd *CircularDependencyError
	if !errors.As(circular, &cd) {
		t.Fatal("errors.As failed for CircularDependencyError")
	}
	if cd.SourceID != "a" || cd.TargetID != "b" {
		t.Errorf("error lost its endpoints: %+v", cd)
	}
}

func TestUnavailableUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := &UnavailableError{Op: "save snapshot", Err: cause}
	if !errors.Is(err, cause) {
		t.Error("UnavailableError should unwrap to its cause")
	}
}
