package graph

import (
	"fmt"

	"github.com/combustion-ml/emberd/internal/manifest"
)

// Assembles stages into a validated build DAG.
//
// Stages are added one at a time with [Graph.Define] and must be declared
// parent-first, mirroring the append-only recipe format. The zero value is
// not usable; create with [New].
type Graph struct {
	stages map[string]manifest.Stage
	order  []string // Declaration order, used for deterministic resolution.
}

// Creates an empty build graph.
func New() *Graph {
	return &Graph{stages: make(map[string]manifest.Stage)}
}

// Builds a graph from all stages of a recipe, in declaration order.
func FromRecipe(r *manifest.Recipe) (*Graph, error) {
	g := New()
	for _, stage := range r.Stages {
		if err := g.Define(stage); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Registers a stage in the graph.
//
// Fails with [ErrDuplicateStage] when the name is already taken, with
// [ErrUnknownParent] when the stage names a parent that has not been
// defined, and with [ErrCyclicDependency] when following the parent chain
// from the new stage revisits a name already on the chain.
func (g *Graph) Define(stage manifest.Stage) error {
	if _, ok := g.stages[stage.Name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateStage, stage.Name)
	}

	if stage.Parent != "" {
		if _, ok := g.stages[stage.Parent]; !ok {
			return fmt.Errorf("%w: stage %q extends %q", ErrUnknownParent, stage.Name, stage.Parent)
		}
	}

	if err := g.checkChain(stage); err != nil {
		return err
	}

	g.stages[stage.Name] = stage
	g.order = append(g.order, stage.Name)
	return nil
}

// Walks the parent chain of a candidate stage, failing when a name repeats.
//
// Parents must pre-exist, so the established chain is acyclic; a cycle can
// only be introduced by the candidate referencing itself directly or
// through a chain that leads back to its own name.
func (g *Graph) checkChain(stage manifest.Stage) error {
	visited := map[string]bool{stage.Name: true}

	for parent := stage.Parent; parent != ""; {
		if visited[parent] {
			return fmt.Errorf("%w: stage %q", ErrCyclicDependency, parent)
		}
		visited[parent] = true
		parent = g.stages[parent].Parent
	}

	return nil
}

// Returns all stages in topological order, parents before children.
//
// Stages with no parent come first. Order among siblings follows
// declaration order, making the result deterministic. Fails with
// [ErrCyclicDependency] if the graph cannot be fully ordered.
func (g *Graph) Resolve() ([]manifest.Stage, error) {
	resolved := make([]manifest.Stage, 0, len(g.order))
	placed := make(map[string]bool, len(g.order))

	remaining := g.order
	for len(remaining) > 0 {
		var next []string
		progressed := false

		for _, name := range remaining {
			stage := g.stages[name]
			if stage.Parent != "" && !placed[stage.Parent] {
				next = append(next, name)
				continue
			}
			resolved = append(resolved, stage)
			placed[name] = true
			progressed = true
		}

		if !progressed {
			return nil, fmt.Errorf("%w: unresolvable stages %v", ErrCyclicDependency, next)
		}
		remaining = next
	}

	return resolved, nil
}

// Returns the flattened action list for a stage: the parent's effective
// list followed by the stage's own actions.
//
// Fails with [ErrUnknownStage] when the name is not defined in the graph.
// The result is a fresh slice; mutating it does not affect the graph.
func (g *Graph) Effective(name string) ([]manifest.Action, error) {
	stage, ok := g.stages[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStage, name)
	}

	var actions []manifest.Action
	if stage.Parent != "" {
		parent, err := g.Effective(stage.Parent)
		if err != nil {
			return nil, err
		}
		actions = parent
	}

	return append(actions, stage.Actions...), nil
}

// Returns the names of all non-transient stages in topological order.
func (g *Graph) Targets() ([]string, error) {
	stages, err := g.Resolve()
	if err != nil {
		return nil, err
	}

	var targets []string
	for _, stage := range stages {
		if !stage.Transient {
			targets = append(targets, stage.Name)
		}
	}
	return targets, nil
}
