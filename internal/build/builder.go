package build

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/combustion-ml/emberd/internal/manifest"
	"github.com/combustion-ml/emberd/internal/paths"
	"github.com/combustion-ml/emberd/internal/runtime"
)

// Holds shared state for materializing all stages of a recipe.
type builder struct {
	rt         *runtime.Runtime     // Container runtime for image and container operations.
	resource   string               // Resource name, prefix for container IDs and stage tags.
	output     string               // Output directory for exported images.
	context    string               // Build context, root for resolving copy sources and base archives.
	platforms  []string             // Target platforms to build for.
	targets    int                  // Count of non-transient stages, for output layout.
	extended   map[string]bool      // Stage names referenced as a parent; only these are committed.
	containers []*runtime.Container // All stage containers, destroyed after the build completes.
}

// Creates a new [builder] from the given options.
func newBuilder(rt *runtime.Runtime, opts Options) *builder {
	targets := 0
	extended := make(map[string]bool)
	for _, stage := range opts.Recipe.Stages {
		if !stage.Transient {
			targets++
		}
		if stage.Parent != "" {
			extended[stage.Parent] = true
		}
	}

	return &builder{
		rt:        rt,
		resource:  opts.Resource,
		output:    opts.Output,
		context:   opts.Root,
		platforms: opts.Platforms,
		targets:   targets,
		extended:  extended,
	}
}

// Materializes the resolved stages end-to-end against the container runtime.
//
// Each target platform is built independently. Stages are built in
// topological order for each platform. All stage containers are destroyed
// when the build completes.
func (b *builder) build(ctx context.Context, stages []manifest.Stage) error {
	defer b.destroyContainers(ctx)

	for _, platform := range b.platforms {
		if err := b.buildPlatform(ctx, stages, platform); err != nil {
			return err
		}
	}

	return nil
}

// Builds all stages of the recipe for a single platform.
func (b *builder) buildPlatform(ctx context.Context, stages []manifest.Stage, platform string) error {
	slog.Info("building platform", "platform", platform)

	for _, stage := range stages {
		if err := b.buildStage(ctx, stage, platform); err != nil {
			return fmt.Errorf("%w: platform %s, stage %q: %w", ErrBuild, platform, stage.Name, err)
		}
	}

	return nil
}

// Materializes a single stage for a specific platform.
//
// The stage's container starts from its base archive or its parent's
// committed snapshot, its actions are executed in order, the accumulated
// state is committed under the stage's tag for children to extend, and
// non-transient stages are exported to the output directory with the
// state applied to the image config.
func (b *builder) buildStage(ctx context.Context, stage manifest.Stage, platform string) error {
	slog.Info(fmt.Sprintf("building stage %q", stage.Name), "platform", platform)

	ctr, err := b.startStage(ctx, stage, platform)
	if err != nil {
		return err
	}
	b.containers = append(b.containers, ctr)

	state := newStageState()
	if err := executeActions(ctx, ctr, stage.Actions, state, b.context); err != nil {
		return err
	}

	if err := ctr.Stop(ctx); err != nil {
		return err
	}

	// Commit only stages that children extend. The committed snapshot is
	// immutable; each child gets its own copy-on-write view over it.
	if b.extended[stage.Name] {
		if _, err := ctr.Commit(ctx, b.stageTag(stage.Name, platform), state.mutateConfig); err != nil {
			return err
		}
	}

	if stage.Transient {
		return nil
	}

	output := b.stageOutput(stage.Name, platform)
	if err := os.MkdirAll(output, paths.DefaultDirMode); err != nil {
		return fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}

	return ctr.Export(ctx, output, state.mutateConfig)
}

// Starts the stage's build container from its base archive or its parent's
// committed snapshot.
func (b *builder) startStage(ctx context.Context, stage manifest.Stage, platform string) (*runtime.Container, error) {
	id := b.containerID(stage.Name, platform)

	if stage.Parent != "" {
		return b.rt.StartFromTag(ctx, b.stageTag(stage.Parent, platform), id, platform)
	}

	archive := stage.From
	if !filepath.IsAbs(archive) {
		archive = filepath.Join(b.context, archive)
	}

	return b.rt.StartContainer(ctx, archive, id, platform)
}

// Destroys all stage containers.
func (b *builder) destroyContainers(ctx context.Context) {
	for _, ctr := range b.containers {
		ctr.Destroy(ctx)
	}
}

// Returns a unique container ID for a stage, scoped to this resource and
// platform.
func (b *builder) containerID(name, platform string) string {
	return fmt.Sprintf("%s-%s-stage-%s", b.resource, platformSlug(platform), name)
}

// Returns the image tag under which a stage's committed state is recorded.
func (b *builder) stageTag(name, platform string) string {
	return fmt.Sprintf("stage/%s-%s-%s:latest", b.resource, platformSlug(platform), name)
}

// Returns the output directory for a stage on a specific platform.
//
// A build with a single target on a single platform keeps the flat
// {output}/image.tar convention. Otherwise each exported stage gets a
// subdirectory, further divided per platform for multi-platform builds.
func (b *builder) stageOutput(name, platform string) string {
	output := b.output
	if b.targets > 1 {
		output = filepath.Join(output, name)
	}
	if len(b.platforms) > 1 {
		output = filepath.Join(output, platformSlug(platform))
	}
	return output
}

// Converts a platform string to a filesystem-safe slug.
//
// Replaces slashes with dashes (e.g., "linux/amd64" becomes "linux-amd64").
func platformSlug(platform string) string {
	return strings.ReplaceAll(platform, "/", "-")
}
