// Package deadlock tracks which workflow instances wait on which others and
// detects cycles in that wait-for graph before stuck workflows pile up.
package deadlock

import (
	"sort"
	"sync"
)

// Graph is the wait-for graph: an edge from A to B means instance A cannot
// proceed until instance B releases whatever A needs. All methods are safe
// for concurrent use.
type Graph struct {
	mu    sync.RWMutex
	edges map[string]map[string]struct{}
}

// NewGraph returns an empty wait-for graph.
func NewGraph() *Graph {
	return &Graph{
		edges: make(map[string]map[string]struct{}),
	}
}

// RegisterWait records that waiter is blocked on holder. Duplicate
// registrations collapse into one edge. Self-waits are recorded too; they
// surface as single-instance cycles.
func (g *Graph) RegisterWait(waiter, holder string) {
	if waiter == "" || holder == "" {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.edges[waiter] == nil {
		g.edges[waiter] = make(map[string]struct{})
	}

	g.edges[waiter][holder] = struct{}{}
}

// ClearWaits removes every outgoing edge of an instance, typically because
// the instance obtained what it was waiting for.
func (g *Graph) ClearWaits(instanceID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.edges, instanceID)
}

// Remove drops the instance from the graph entirely, both the edges it holds
// and the edges pointing at it. Used when an instance is aborted or finished.
func (g *Graph) Remove(instanceID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.edges, instanceID)

	for waiter, holders := range g.edges {
		delete(holders, instanceID)

		if len(holders) == 0 {
			delete(g.edges, waiter)
		}
	}
}

// Snapshot returns a deep copy of the adjacency, with neighbor lists sorted
// so traversal order is deterministic. Detection runs on the copy without
// holding the graph lock.
func (g *Graph) Snapshot() map[string][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	snapshot := make(map[string][]string, len(g.edges))

	for waiter, holders := range g.edges {
		neighbors := make([]string, 0, len(holders))
		for holder := range holders {
			neighbors = append(neighbors, holder)
		}

		sort.Strings(neighbors)
		snapshot[waiter] = neighbors
	}

	return snapshot
}

// WaitCount returns the number of instances currently waiting on something.
func (g *Graph) WaitCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.edges)
}
