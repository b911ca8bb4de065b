package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ritzau/update-engine/pkg/model"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"
)

type edgeKey struct {
	source string
	target string
}

// Memory is the in-process Store implementation. Topology lives in a gonum
// directed graph; component records and edge attributes live in maps keyed
// by component id, with a string-id to graph-id mapping in between.
//
// All methods are safe for concurrent use. Reads take a shared lock, so hot
// traversal queries do not serialize against each other.
type Memory struct {
	mu     sync.RWMutex
	g      *simple.DirectedGraph
	comps  map[string]model.Component
	ids    map[string]int64 // component id -> graph id
	byID   map[int64]string // graph id -> component id
	edges  map[edgeKey]model.Dependency
	nextID int64
}

// NewMemory creates an empty in-memory graph store.
func NewMemory() *Memory {
	return &Memory{
		g:     simple.NewDirectedGraph(),
		comps: make(map[string]model.Component),
		ids:   make(map[string]int64),
		byID:  make(map[int64]string),
		edges: make(map[edgeKey]model.Dependency),
	}
}

// PutComponent upserts a component by id and stamps UpdatedAt.
func (m *Memory) PutComponent(ctx context.Context, c model.Component) (model.Component, error) {
	if c.ComponentID == "" {
		return model.Component{}, fmt.Errorf("component id must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	stored := c.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	if _, exists := m.ids[c.ComponentID]; !exists {
		id := m.nextID
		m.nextID++
		m.ids[c.ComponentID] = id
		m.byID[id] = c.ComponentID
		m.g.AddNode(simple.Node(id))
	}
	m.comps[c.ComponentID] = stored

	return stored.Clone(), nil
}

// GetComponent returns the component or a NotFoundError.
func (m *Memory) GetComponent(ctx context.Context, componentID string) (model.Component, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.comps[componentID]
	if !ok {
		return model.Component{}, &model.NotFoundError{ComponentID: componentID}
	}
	return c.Clone(), nil
}

// ListComponents returns all components of a project, or every component
// when projectID is empty.
func (m *Memory) ListComponents(ctx context.Context, projectID string) ([]model.Component, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Component, 0, len(m.comps))
	for _, c := range m.comps {
		if projectID == "" || c.ProjectID == projectID {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

// RemoveComponent deletes a component and its outgoing edges. It refuses
// while dependents exist.
func (m *Memory) RemoveComponent(ctx context.Context, componentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.ids[componentID]
	if !ok {
		return &model.NotFoundError{ComponentID: componentID}
	}

	var dependents []string
	it := m.g.To(id)
	for it.Next() {
		dependents = append(dependents, m.byID[it.Node().ID()])
	}
	if len(dependents) > 0 {
		return &model.HasDependentsError{ComponentID: componentID, Dependents: dependents}
	}

	for key := range m.edges {
		if key.source == componentID {
			delete(m.edges, key)
		}
	}
	m.g.RemoveNode(id)
	delete(m.comps, componentID)
	delete(m.ids, componentID)
	delete(m.byID, id)

	return nil
}

// AddEdge inserts the directed edge source->target, updating attributes in
// place if the edge already exists.
func (m *Memory) AddEdge(ctx context.Context, dep model.Dependency) error {
	if dep.SourceID == dep.TargetID {
		return &model.SelfReferenceError{ComponentID: dep.SourceID}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sid, ok := m.ids[dep.SourceID]
	if !ok {
		return &model.NotFoundError{ComponentID: dep.SourceID}
	}
	tid, ok := m.ids[dep.TargetID]
	if !ok {
		return &model.NotFoundError{ComponentID: dep.TargetID}
	}

	stored := dep
	if stored.Strength == "" {
		stored.Strength = model.StrengthStrong
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	if !m.g.HasEdgeFromTo(sid, tid) {
		m.g.SetEdge(m.g.NewEdge(m.g.Node(sid), m.g.Node(tid)))
	}
	m.edges[edgeKey{dep.SourceID, dep.TargetID}] = stored

	return nil
}

// RemoveEdge deletes the edge source->target. Absent edges are a no-op so
// removal is idempotent.
func (m *Memory) RemoveEdge(ctx context.Context, sourceID, targetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sid, sok := m.ids[sourceID]
	tid, tok := m.ids[targetID]
	if sok && tok {
		m.g.RemoveEdge(sid, tid)
	}
	delete(m.edges, edgeKey{sourceID, targetID})

	return nil
}

// ListEdges returns every edge in the store.
func (m *Memory) ListEdges(ctx context.Context) ([]model.Dependency, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Dependency, 0, len(m.edges))
	for _, dep := range m.edges {
		out = append(out, dep)
	}
	return out, nil
}

// DirectDependencies returns the targets of the component's outgoing edges.
func (m *Memory) DirectDependencies(ctx context.Context, componentID string) ([]model.Component, error) {
	return m.neighbors(componentID, false)
}

// DirectDependents returns the sources of the component's incoming edges.
func (m *Memory) DirectDependents(ctx context.Context, componentID string) ([]model.Component, error) {
	return m.neighbors(componentID, true)
}

func (m *Memory) neighbors(componentID string, incoming bool) ([]model.Component, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.ids[componentID]
	if !ok {
		return nil, &model.NotFoundError{ComponentID: componentID}
	}

	var it graph.Nodes
	if incoming {
		it = m.g.To(id)
	} else {
		it = m.g.From(id)
	}

	var out []model.Component
	for it.Next() {
		c := m.comps[m.byID[it.Node().ID()]]
		out = append(out, c.Clone())
	}
	return out, nil
}

// PathExists reports whether a directed path of length >= 1 exists from
// source to target. The walk is an iterative breadth-first search with an
// explicit visited set, never recursive.
func (m *Memory) PathExists(ctx context.Context, sourceID, targetID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sid, sok := m.ids[sourceID]
	tid, tok := m.ids[targetID]
	if !sok || !tok {
		return false, nil
	}
	return m.pathExistsLocked(sid, tid), nil
}

func (m *Memory) pathExistsLocked(sid, tid int64) bool {
	if sid != tid {
		bf := traverse.BreadthFirst{}
		found := bf.Walk(m.g, m.g.Node(sid), func(n graph.Node, d int) bool {
			return d > 0 && n.ID() == tid
		})
		return found != nil
	}

	// Same endpoint: a path of length >= 1 exists iff the node is reachable
	// from one of its direct successors.
	it := m.g.From(sid)
	for it.Next() {
		succ := it.Node()
		if succ.ID() == tid {
			return true
		}
		bf := traverse.BreadthFirst{}
		if bf.Walk(m.g, succ, func(n graph.Node, d int) bool { return n.ID() == tid }) != nil {
			return true
		}
	}
	return false
}

// Snapshot captures the whole graph for serialization.
func (m *Memory) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		Components:   make([]model.Component, 0, len(m.comps)),
		Dependencies: make([]model.Dependency, 0, len(m.edges)),
	}
	for _, c := range m.comps {
		snap.Components = append(snap.Components, c.Clone())
	}
	for _, dep := range m.edges {
		snap.Dependencies = append(snap.Dependencies, dep)
	}
	return snap
}

// Reset replaces the whole graph with the snapshot contents. The snapshot is
// validated first: every edge endpoint must resolve, self-loops are rejected,
// and the edge set must be acyclic. On validation failure the store is left
// untouched.
func (m *Memory) Reset(snap Snapshot) error {
	replacement := NewMemory()
	ctx := context.Background()

	for _, c := range snap.Components {
		if _, ok := replacement.comps[c.ComponentID]; ok {
			return &model.DuplicateError{ComponentID: c.ComponentID}
		}
		if _, err := replacement.PutComponent(ctx, c); err != nil {
			return err
		}
		// Preserve the snapshot's timestamps over the put stamp.
		stored := replacement.comps[c.ComponentID]
		stored.CreatedAt = c.CreatedAt
		stored.UpdatedAt = c.UpdatedAt
		replacement.comps[c.ComponentID] = stored
	}
	for _, dep := range snap.Dependencies {
		if err := replacement.AddEdge(ctx, dep); err != nil {
			return err
		}
	}
	if err := replacement.verifyAcyclic(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.g = replacement.g
	m.comps = replacement.comps
	m.ids = replacement.ids
	m.byID = replacement.byID
	m.edges = replacement.edges
	m.nextID = replacement.nextID

	return nil
}
