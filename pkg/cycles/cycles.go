package cycles

import (
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/topo"
)

// Cycle represents a circular dependency between components.
type Cycle struct {
	ComponentIDs []string
}

// Detect finds all circular dependencies in a directed graph. The name
// function maps gonum node ids back to component ids.
//
// Edge insertion already rejects cycles up front, so a non-empty result only
// ever comes from externally produced data (a hand-edited snapshot). Tarjan's
// strongly-connected-components scan finds every cycle in one pass; SCCs of a
// single node are not cycles and are skipped.
func Detect(g graph.Directed, name func(id int64) string) []Cycle {
	sccs := topo.TarjanSCC(g)

	cycles := make([]Cycle, 0)
	for _, scc := range sccs {
		if len(scc) < 2 {
			continue
		}
		ids := make([]string, 0, len(scc))
		for _, node := range scc {
			ids = append(ids, name(node.ID()))
		}
		cycles = append(cycles, Cycle{ComponentIDs: ids})
	}
	return cycles
}
