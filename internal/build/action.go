package build

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/combustion-ml/emberd/internal/manifest"
	"github.com/combustion-ml/emberd/internal/runtime"
)

// The container operations the executor needs.
//
// Implemented by [runtime.Container]; faked in tests so action semantics
// can be exercised without a containerd daemon.
type container interface {
	Exec(ctx context.Context, command string, opts runtime.ExecOpts) (*runtime.ExecResult, error)
	CopyTo(ctx context.Context, r io.Reader, destDir string) error
	MkdirAll(ctx context.Context, path string) error
	Chown(ctx context.Context, owner, path string) error
}

// Executes a stage's action list in declaration order against the build
// container.
//
// Execution stops at the first failing action; subsequent actions are not
// materialized. Errors carry the 1-based action index.
func executeActions(ctx context.Context, ctr container, actions []manifest.Action, state *stageState, buildCtx string) error {
	for i, a := range actions {
		if err := executeAction(ctx, ctr, a, state, buildCtx); err != nil {
			return fmt.Errorf("%w: action %d: %w", ErrBuild, i+1, err)
		}
	}
	return nil
}

// Executes a single action, dispatching to operation execution or state
// mutation depending on the action's kind.
func executeAction(ctx context.Context, ctr container, a manifest.Action, state *stageState, buildCtx string) error {
	switch a.Kind() {
	case manifest.KindRun, manifest.KindCopy:
		return executeOperation(ctx, ctr, a, state, buildCtx)
	default:
		return applyModifier(ctx, ctr, a, state)
	}
}

// Persists a standalone modifier in the stage state.
//
// Newly declared volume mount points are created in the container so they
// are writable regardless of what backs them at run time. Redeclared
// volumes are a no-op.
func applyModifier(ctx context.Context, ctr container, a manifest.Action, state *stageState) error {
	added := state.apply(a)

	for _, v := range added {
		slog.Debug("declare volume", "path", v)
		if err := ctr.MkdirAll(ctx, v); err != nil {
			return err
		}
	}

	return nil
}

// Executes a run or copy operation with scoped modifier overrides.
//
// Action-level modifiers override the persistent state for this operation
// only. The persistent state is not modified.
func executeOperation(ctx context.Context, ctr container, a manifest.Action, state *stageState, buildCtx string) error {
	resolved := state.resolve(a)

	if resolved.workdir != "" {
		if err := ctr.MkdirAll(ctx, resolved.workdir); err != nil {
			return err
		}
	}

	switch a.Kind() {
	case manifest.KindRun:
		slog.Debug("run", "command", a.Run, "user", resolved.user)
		result, err := ctr.Exec(ctx, a.Run, runtime.ExecOpts{
			Shell:   resolved.shell,
			Env:     resolved.environ(),
			Workdir: resolved.workdir,
			User:    resolved.user,
		})
		if err != nil {
			return err
		}
		if result.ExitCode != 0 {
			return &CommandError{ExitCode: result.ExitCode, Stderr: result.Stderr}
		}

	case manifest.KindCopy:
		if err := executeCopy(ctx, ctr, a, resolved.workdir, buildCtx); err != nil {
			return err
		}
	}

	return nil
}
