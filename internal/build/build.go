package build

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/combustion-ml/emberd/internal/graph"
	"github.com/combustion-ml/emberd/internal/manifest"
	"github.com/combustion-ml/emberd/internal/paths"
	"github.com/combustion-ml/emberd/internal/runtime"
)

// Controls recipe execution.
type Options struct {
	Recipe    *manifest.Recipe // Recipe to execute.
	Resource  string           // Resource name, used as a prefix for container IDs and stage tags.
	Output    string           // Directory for the exported images.
	Root      string           // Build context root, for resolving copy sources and base archives.
	Platforms []string         // Target platforms (e.g., ["linux/amd64"]). Defaults to host.
}

// Returned after successful recipe execution.
type Result struct {
	Output  string   // Directory containing the exported images.
	Targets []string // Names of the exported (non-transient) stages.
}

// Executes a recipe against the container runtime.
//
// The recipe's stages are assembled into a validated DAG and materialized
// in topological order: each stage starts a container from its base image
// or its parent's committed snapshot, executes its actions, and is
// committed for its children. Non-transient stages are exported as OCI
// archives to the output directory. Sibling stages share their parent's
// committed snapshot by reference and never observe each other's actions.
func Run(ctx context.Context, rt *runtime.Runtime, opts Options) (*Result, error) {
	if len(opts.Platforms) == 0 {
		opts.Platforms = []string{runtime.DefaultPlatform()}
	}

	g, err := graph.FromRecipe(opts.Recipe)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuild, err)
	}

	stages, err := g.Resolve()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuild, err)
	}

	targets, err := g.Targets()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuild, err)
	}

	slog.Info("executing recipe",
		"resource", opts.Resource,
		"output", opts.Output,
		"stages", len(stages),
		"targets", targets,
		"platforms", opts.Platforms,
	)

	if err := os.MkdirAll(opts.Output, paths.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}

	if err := newBuilder(rt, opts).build(ctx, stages); err != nil {
		return nil, err
	}

	return &Result{Output: opts.Output, Targets: targets}, nil
}
