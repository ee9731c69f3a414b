// Package graph provides the step dependency graph used for plan scheduling.
package graph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ShayCichocki/weave/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found in the plan.
var ErrCycleDetected = errors.New("circular dependency detected")

// DependencyGraph represents a directed acyclic graph of step dependencies.
// Steps are nodes, and edges represent "blocked by" relationships.
// The graph is immutable after Build; readers need no external locking.
type DependencyGraph struct {
	mu sync.RWMutex
	// nodes maps step ID to the step itself.
	nodes map[string]*models.Step
	// edges maps step ID to IDs of steps it depends on (is blocked by).
	edges map[string][]string
	// order preserves plan order of step IDs for FIFO scheduling.
	order []string
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes: make(map[string]*models.Step),
		edges: make(map[string][]string),
	}
}

// Build constructs the dependency graph from a plan's steps.
// Returns an error if a step ID is duplicated, a dependency references an
// unknown step, or the dependency relation contains a cycle. Failing fast
// here prevents a cyclic plan from stalling the scheduler.
func (g *DependencyGraph) Build(steps []models.Step) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	// First pass: register all steps as nodes.
	for i := range steps {
		step := &steps[i]
		if step.ID == "" {
			return fmt.Errorf("step with empty id")
		}
		if _, exists := g.nodes[step.ID]; exists {
			return fmt.Errorf("duplicate step id %s", step.ID)
		}
		g.nodes[step.ID] = step
		g.edges[step.ID] = nil
		g.order = append(g.order, step.ID)
	}

	// Second pass: build edges from DependsOn fields.
	for i := range steps {
		step := &steps[i]
		for _, depID := range step.DependsOn {
			if _, exists := g.nodes[depID]; !exists {
				return fmt.Errorf("step %s depends on unknown step %s", step.ID, depID)
			}
			g.edges[step.ID] = append(g.edges[step.ID], depID)
		}
	}

	if g.hasCycleLocked() {
		return ErrCycleDetected
	}

	return nil
}

// HasCycle returns true if the graph contains a circular dependency.
// Uses depth-first search with coloring to detect back edges.
func (g *DependencyGraph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hasCycleLocked()
}

// hasCycleLocked is the internal implementation that assumes the lock is held.
func (g *DependencyGraph) hasCycleLocked() bool {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int, len(g.nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1

		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				// Found a back edge - cycle detected.
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}

		colors[id] = 2
		return false
	}

	for id := range g.nodes {
		if colors[id] == 0 {
			if visit(id) {
				return true
			}
		}
	}

	return false
}

// TopologicalSort returns step IDs in an order where all dependencies
// come before the steps that depend on them.
// Returns an error if the graph contains a cycle.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.hasCycleLocked() {
		return nil, ErrCycleDetected
	}

	visited := make(map[string]bool, len(g.nodes))
	var result []string

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true

		for _, depID := range g.edges[id] {
			visit(depID)
		}

		result = append(result, id)
	}

	// Visit in plan order so the sort is deterministic.
	for _, id := range g.order {
		visit(id)
	}

	return result, nil
}

// Step returns the step for a given ID, or nil if not found.
func (g *DependencyGraph) Step(stepID string) *models.Step {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[stepID]
}

// StepIDs returns all step IDs in plan order.
func (g *DependencyGraph) StepIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]string, len(g.order))
	copy(ids, g.order)
	return ids
}

// Size returns the number of steps in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Dependencies returns the IDs of steps that the given step depends on.
func (g *DependencyGraph) Dependencies(stepID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges[stepID]
}

// Dependents returns the IDs of steps that depend on the given step.
func (g *DependencyGraph) Dependents(stepID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var dependents []string
	for _, id := range g.order {
		for _, depID := range g.edges[id] {
			if depID == stepID {
				dependents = append(dependents, id)
				break
			}
		}
	}
	return dependents
}

// Sinks returns the IDs of steps no other step depends on, in plan order.
// Sink steps are the ones whose outputs constitute the plan's final result.
func (g *DependencyGraph) Sinks() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	dependedOn := make(map[string]bool)
	for _, deps := range g.edges {
		for _, depID := range deps {
			dependedOn[depID] = true
		}
	}

	var sinks []string
	for _, id := range g.order {
		if !dependedOn[id] {
			sinks = append(sinks, id)
		}
	}
	return sinks
}
