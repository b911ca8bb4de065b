package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ritzau/update-engine/pkg/cycles"
	"github.com/ritzau/update-engine/pkg/model"
)

// LoadFile populates the store from a JSON snapshot file. A missing file
// leaves the store empty, so a fresh deployment starts from nothing without
// special-casing. I/O failures surface as UnavailableError; a snapshot whose
// edge set contains a cycle is rejected outright.
func (m *Memory) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return &model.UnavailableError{Op: "load snapshot", Err: err}
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parsing snapshot %s: %w", path, err)
	}

	return m.Reset(snap)
}

// SaveFile writes the current graph to a JSON snapshot file. The write goes
// through a temp file and a rename so readers never observe a half-written
// snapshot.
func (m *Memory) SaveFile(path string) error {
	snap := m.Snapshot()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return &model.UnavailableError{Op: "save snapshot", Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &model.UnavailableError{Op: "save snapshot", Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &model.UnavailableError{Op: "save snapshot", Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &model.UnavailableError{Op: "save snapshot", Err: err}
	}

	return nil
}

// verifyAcyclic rejects a graph whose committed edge set contains a cycle.
func (m *Memory) verifyAcyclic() error {
	found := cycles.Detect(m.g, func(id int64) string { return m.byID[id] })
	if len(found) == 0 {
		return nil
	}

	ids := found[0].ComponentIDs
	return &model.CircularDependencyError{SourceID: ids[0], TargetID: ids[len(ids)-1]}
}
