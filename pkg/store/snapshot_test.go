package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ritzau/update-engine/pkg/model"
)

func TestSnapshotRoundTrip(t *testing.T) {
	m := NewMemory()
	mustPut(t, m, "api")
	mustPut(t, m, "db")
	mustEdge(t, m, "api", "db")

	path := filepath.Join(t.TempDir(), "graph.json")
	if err := m.SaveFile(path); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	restored := NewMemory()
	if err := restored.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	got, err := restored.GetComponent(context.Background(), "api")
	if err != nil {
		t.Fatalf("GetComponent after reload: %v", err)
	}
	if got.ProjectID != "proj-1" {
		t.Errorf("component lost fields through the round trip: %+v", got)
	}

	exists, err := restored.PathExists(context.Background(), "api", "db")
	if err != nil {
		t.Fatalf("PathExists: %v", err)
	}
	if !exists {
		t.Error("edge lost through the round trip")
	}
}

func TestLoadMissingFileLeavesStoreEmpty(t *testing.T) {
	m := NewMemory()
	if err := m.LoadFile(filepath.Join(t.TempDir(), "absent.json")); err != nil {
		t.Fatalf("missing snapshot should not be an error, got %v", err)
	}

	all, _ := m.ListComponents(context.Background(), "")
	if len(all) != 0 {
		t.Errorf("store should be empty, got %d components", len(all))
	}
}

func TestResetRejectsCyclicSnapshot(t *testing.T) {
	snap := Snapshot{
		Components: []model.Component{
			testComponent("a", "proj-1"),
			testComponent("b", "proj-1"),
		},
		Dependencies: []model.Dependency{
			{SourceID: "a", TargetID: "b", Type: model.DepRuntime},
			{SourceID: "b", TargetID: "a", Type: model.DepRuntime},
		},
	}

	m := NewMemory()
	mustPut(t, m, "keep-me")

	if err := m.Reset(snap); !model.IsCircular(err) {
		t.Fatalf("expected CircularDependencyError, got %v", err)
	}

	// A rejected snapshot must leave the store untouched
	if _, err := m.GetComponent(context.Background(), "keep-me"); err != nil {
		t.Errorf("store was modified by a rejected snapshot: %v", err)
	}
}

func TestResetRejectsUnknownEndpoints(t *testing.T) {
	snap := Snapshot{
		Components: []model.Component{testComponent("a", "proj-1")},
		Dependencies: []model.Dependency{
			{SourceID: "a", TargetID: "ghost", Type: model.DepRuntime},
		},
	}

	if err := NewMemory().Reset(snap); !model.IsNotFound(err) {
		t.Errorf("expected NotFoundError for unresolved endpoint, got %v", err)
	}
}
