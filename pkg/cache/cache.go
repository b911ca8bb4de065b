package cache

import (
	"context"
	"sync"

	"github.com/ritzau/update-engine/pkg/model"
	"github.com/ritzau/update-engine/pkg/store"
)

// Cache is a read-through, invalidate-on-write cache in front of a Store.
// It caches the three hot read paths (component lookup, direct dependencies,
// direct dependents) keyed by component id and drops exactly the keys a
// mutation touches, never the whole cache.
//
// Neighbor lists are cached as id lists, not component records, and every
// serve re-resolves the ids through the component cache. A component update
// therefore only has to invalidate the component's own key; warm neighbor
// lists elsewhere in the graph never pin its old record.
//
// The cache is a per-process optimization with no cross-process consistency
// guarantee. It is never authoritative: every layer above must behave
// identically with the cache cold, disabled, or absent.
type Cache struct {
	next store.Store

	mu         sync.RWMutex
	comps      map[string]model.Component
	deps       map[string][]string
	dependents map[string][]string
	hits       uint64
	misses     uint64
}

// Stats reports cache effectiveness counters.
type Stats struct {
	Hits   uint64
	Misses uint64
}

// New wraps a store with a read-through cache.
func New(next store.Store) *Cache {
	return &Cache{
		next:       next,
		comps:      make(map[string]model.Component),
		deps:       make(map[string][]string),
		dependents: make(map[string][]string),
	}
}

// Stats returns the hit/miss counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Hits: c.hits, Misses: c.misses}
}

// GetComponent serves from cache when possible.
func (c *Cache) GetComponent(ctx context.Context, componentID string) (model.Component, error) {
	c.mu.RLock()
	cached, ok := c.comps[componentID]
	c.mu.RUnlock()
	if ok {
		c.count(true)
		return cached.Clone(), nil
	}
	c.count(false)

	comp, err := c.next.GetComponent(ctx, componentID)
	if err != nil {
		return model.Component{}, err
	}

	c.mu.Lock()
	c.comps[componentID] = comp.Clone()
	c.mu.Unlock()

	return comp, nil
}

// DirectDependencies serves from cache when possible.
func (c *Cache) DirectDependencies(ctx context.Context, componentID string) ([]model.Component, error) {
	c.mu.RLock()
	ids, ok := c.deps[componentID]
	c.mu.RUnlock()
	if ok {
		c.count(true)
		return c.resolve(ctx, ids)
	}
	c.count(false)

	out, err := c.next.DirectDependencies(ctx, componentID)
	if err != nil {
		return nil, err
	}
	c.rememberNeighbors(c.deps, componentID, out)

	return out, nil
}

// DirectDependents serves from cache when possible.
func (c *Cache) DirectDependents(ctx context.Context, componentID string) ([]model.Component, error) {
	c.mu.RLock()
	ids, ok := c.dependents[componentID]
	c.mu.RUnlock()
	if ok {
		c.count(true)
		return c.resolve(ctx, ids)
	}
	c.count(false)

	out, err := c.next.DirectDependents(ctx, componentID)
	if err != nil {
		return nil, err
	}
	c.rememberNeighbors(c.dependents, componentID, out)

	return out, nil
}

// rememberNeighbors stores the id list for a neighbor query and warms the
// component cache with the records the query already paid for.
func (c *Cache) rememberNeighbors(into map[string][]string, componentID string, comps []model.Component) {
	ids := make([]string, len(comps))
	for i, comp := range comps {
		ids[i] = comp.ComponentID
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	into[componentID] = ids
	for _, comp := range comps {
		c.comps[comp.ComponentID] = comp.Clone()
	}
}

// resolve materializes a cached id list through GetComponent, so each record
// is as fresh as the component cache itself.
func (c *Cache) resolve(ctx context.Context, ids []string) ([]model.Component, error) {
	out := make([]model.Component, 0, len(ids))
	for _, id := range ids {
		comp, err := c.GetComponent(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, comp)
	}
	return out, nil
}

// PutComponent writes through and invalidates the component record. A put
// never changes topology, so cached neighbor id lists stay valid; the next
// serve picks up the new record through the component cache.
func (c *Cache) PutComponent(ctx context.Context, comp model.Component) (model.Component, error) {
	stored, err := c.next.PutComponent(ctx, comp)
	if err != nil {
		return model.Component{}, err
	}

	c.mu.Lock()
	delete(c.comps, comp.ComponentID)
	c.mu.Unlock()

	return stored, nil
}

// AddEdge writes through and invalidates both endpoints.
func (c *Cache) AddEdge(ctx context.Context, dep model.Dependency) error {
	if err := c.next.AddEdge(ctx, dep); err != nil {
		return err
	}
	c.invalidate(dep.SourceID)
	c.invalidate(dep.TargetID)
	return nil
}

// RemoveEdge writes through and invalidates both endpoints.
func (c *Cache) RemoveEdge(ctx context.Context, sourceID, targetID string) error {
	if err := c.next.RemoveEdge(ctx, sourceID, targetID); err != nil {
		return err
	}
	c.invalidate(sourceID)
	c.invalidate(targetID)
	return nil
}

// RemoveComponent writes through and invalidates the removed id plus the
// targets of its former outgoing edges, whose dependent lists change.
func (c *Cache) RemoveComponent(ctx context.Context, componentID string) error {
	targets, lookupErr := c.next.DirectDependencies(ctx, componentID)

	if err := c.next.RemoveComponent(ctx, componentID); err != nil {
		return err
	}

	c.invalidate(componentID)
	if lookupErr == nil {
		for _, t := range targets {
			c.invalidate(t.ComponentID)
		}
	}
	return nil
}

// ListComponents is not cached; project listings are cold-path queries.
func (c *Cache) ListComponents(ctx context.Context, projectID string) ([]model.Component, error) {
	return c.next.ListComponents(ctx, projectID)
}

// ListEdges is not cached.
func (c *Cache) ListEdges(ctx context.Context) ([]model.Dependency, error) {
	return c.next.ListEdges(ctx)
}

// PathExists is not cached: it backs the cycle pre-check and must always see
// the committed graph.
func (c *Cache) PathExists(ctx context.Context, sourceID, targetID string) (bool, error) {
	return c.next.PathExists(ctx, sourceID, targetID)
}

func (c *Cache) invalidate(componentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.comps, componentID)
	delete(c.deps, componentID)
	delete(c.dependents, componentID)
}

func (c *Cache) count(hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
}

var _ store.Store = (*Cache)(nil)
