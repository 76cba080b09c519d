package cli

import (
	"context"
	"encoding/json"
	"os"

	"github.com/combustion-ml/emberd/internal/build"
	"github.com/combustion-ml/emberd/internal/manifest"
)

// Represents the 'emberd plan' command.
type PlanCmd struct {
	Recipe string `short:"r" default:"combustion.yaml" help:"Path to the recipe file."`
}

// Executes the plan command.
//
// Resolves the recipe into its build order and prints each stage with its
// effective action list as JSON, without touching the container runtime.
func (c *PlanCmd) Run(ctx context.Context) error {
	recipe, err := manifest.Load(c.Recipe)
	if err != nil {
		return err
	}

	plan, err := build.NewPlan(recipe)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(plan)
}
