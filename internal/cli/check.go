package cli

import (
	"context"
	"fmt"

	"github.com/combustion-ml/emberd/internal/graph"
	"github.com/combustion-ml/emberd/internal/manifest"
)

// Represents the 'emberd check' command.
type CheckCmd struct {
	Recipe string `short:"r" default:"combustion.yaml" help:"Path to the recipe file."`
}

// Executes the check command.
//
// Validates the recipe, resolves the stage graph, and lints per-stage action
// ordering. Lint findings are reported but do not fail the check.
func (c *CheckCmd) Run(ctx context.Context) error {
	recipe, err := manifest.Load(c.Recipe)
	if err != nil {
		return err
	}

	g, err := graph.FromRecipe(recipe)
	if err != nil {
		return err
	}

	if _, err := g.Resolve(); err != nil {
		return err
	}

	for _, f := range manifest.LintPrivilegeOrder(recipe) {
		fmt.Printf("warning: %s\n", f)
	}

	fmt.Printf("%s: ok\n", c.Recipe)
	return nil
}
