package build

import (
	"fmt"

	"github.com/combustion-ml/emberd/internal/graph"
	"github.com/combustion-ml/emberd/internal/manifest"
)

// A resolved build plan: the topological stage order with each stage's
// effective action list.
//
// Planning is pure — no container runtime is involved — so a recipe can be
// validated and inspected before anything is materialized.
type Plan struct {
	Stages []PlanStage `json:"stages"`
}

// A single stage in a resolved plan.
type PlanStage struct {
	Name      string            `json:"name"`
	Parent    string            `json:"parent,omitempty"`
	From      string            `json:"from,omitempty"`
	Transient bool              `json:"transient,omitempty"`
	Actions   []manifest.Action `json:"actions"`
}

// Resolves a recipe into a build plan.
//
// The recipe is assembled into a validated DAG; unknown parents, duplicate
// stages, and cycles surface here. Each plan stage carries its effective
// action list: the parent's effective list followed by the stage's own
// actions.
func NewPlan(r *manifest.Recipe) (*Plan, error) {
	g, err := graph.FromRecipe(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuild, err)
	}

	stages, err := g.Resolve()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuild, err)
	}

	plan := &Plan{Stages: make([]PlanStage, 0, len(stages))}
	for _, stage := range stages {
		actions, err := g.Effective(stage.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBuild, err)
		}
		plan.Stages = append(plan.Stages, PlanStage{
			Name:      stage.Name,
			Parent:    stage.Parent,
			From:      stage.From,
			Transient: stage.Transient,
			Actions:   actions,
		})
	}

	return plan, nil
}
