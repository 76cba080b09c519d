package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/combustion-ml/emberd/internal/build"
	"github.com/combustion-ml/emberd/internal/manifest"
	"github.com/combustion-ml/emberd/internal/runtime"
)

// Represents the 'emberd build' command.
type BuildCmd struct {
	Recipe     string   `short:"r" default:"combustion.yaml" help:"Path to the recipe file."`
	Resource   string   `short:"n" default:"combustion" help:"Resource name, used to label containers and stage tags."`
	Output     string   `short:"o" default:"output" help:"Directory for the exported images."`
	Root       string   `default:"." help:"Build context root for copy sources and base archives."`
	Platforms  []string `short:"p" help:"Target platforms (e.g. linux/amd64). Defaults to the host platform."`
	Containerd string   `default:"${containerd_address}" help:"Containerd socket address."`
	Namespace  string   `default:"${containerd_namespace}" help:"Containerd namespace."`
}

// Executes the build command.
//
// Loads and validates the recipe, connects to containerd, and materializes
// every non-transient stage as an OCI archive under the output directory.
func (c *BuildCmd) Run(ctx context.Context) error {
	recipe, err := manifest.Load(c.Recipe)
	if err != nil {
		return err
	}

	rt, err := runtime.New(c.Containerd, c.Namespace)
	if err != nil {
		return err
	}
	defer rt.Close()

	result, err := build.Run(ctx, rt, build.Options{
		Recipe:    recipe,
		Resource:  c.Resource,
		Output:    c.Output,
		Root:      c.Root,
		Platforms: c.Platforms,
	})
	if err != nil {
		return err
	}

	slog.Info("build complete", "output", result.Output, "targets", result.Targets)
	fmt.Println(result.Output)

	return nil
}
