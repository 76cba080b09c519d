// Package build materializes recipe stage graphs against container runtimes.
//
// A recipe's stages are assembled into a validated DAG and built in
// topological order. Each stage is backed by a container created from its
// base image archive or from its parent's committed snapshot. The build
// pipeline dispatches the stage's actions (shell commands, file copies,
// and modifiers such as workdir, volumes, and user), commits stages that
// children extend, and exports non-transient stages as OCI images with
// the accumulated modifiers written into the image config. Multi-platform
// builds repeat the pipeline per platform.
//
// Container operations are delegated to the runtime package. Modifier
// state (environment, working directory, shell, user, volumes, entrypoint,
// default args) is accumulated across actions within a stage and reset
// between stages; volume declarations are idempotent. A failing action
// aborts the stage immediately, skipping all subsequent actions.
//
// Example usage:
//
//	result, err := build.Run(ctx, rt, build.Options{
//	    Recipe:    recipe,
//	    Resource:  "combustion",
//	    Output:    "dist",
//	    Root:      ".",
//	    Platforms: []string{"linux/amd64"},
//	})
//	if err != nil {
//	    return err
//	}
package build
