package build

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/combustion-ml/emberd/internal/manifest"
	"github.com/combustion-ml/emberd/internal/runtime"
)

// Records executor calls without a container runtime.
type fakeContainer struct {
	commands []string           // Run commands in execution order.
	execOpts []runtime.ExecOpts // Options per Run command.
	copies   []string           // Destination dirs of CopyTo calls.
	mkdirs   []string           // Paths of MkdirAll calls.
	chowns   [][2]string        // Owner and path of Chown calls.
	failOn   map[string]int     // Command substring to non-zero exit code.
}

func newFakeContainer() *fakeContainer {
	return &fakeContainer{failOn: make(map[string]int)}
}

func (f *fakeContainer) Exec(_ context.Context, command string, opts runtime.ExecOpts) (*runtime.ExecResult, error) {
	f.commands = append(f.commands, command)
	f.execOpts = append(f.execOpts, opts)
	if code, ok := f.failOn[command]; ok {
		return &runtime.ExecResult{ExitCode: code, Stderr: "boom"}, nil
	}
	return &runtime.ExecResult{}, nil
}

func (f *fakeContainer) CopyTo(_ context.Context, r io.Reader, destDir string) error {
	io.Copy(io.Discard, r)
	f.copies = append(f.copies, destDir)
	return nil
}

func (f *fakeContainer) MkdirAll(_ context.Context, path string) error {
	f.mkdirs = append(f.mkdirs, path)
	return nil
}

func (f *fakeContainer) Chown(_ context.Context, owner, path string) error {
	f.chowns = append(f.chowns, [2]string{owner, path})
	return nil
}

// Writes a minimal build context with the paths the combustion recipe
// expects.
func writeBuildContext(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	for _, d := range []string{"src/combustion", "examples/basic", "tests"} {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	for _, f := range []string{"setup.py", "src/combustion/__init__.py", "tests/conftest.py"} {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("# placeholder\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	return dir
}

func TestExecuteActionsInOrder(t *testing.T) {
	ctr := newFakeContainer()
	buildCtx := writeBuildContext(t)

	actions := []manifest.Action{
		{Run: "apt-get update && apt-get install -y git"},
		{Workdir: "/app"},
		{Copy: "setup.py setup.py"},
		{Run: "pip install -e ."},
	}

	if err := executeActions(context.Background(), ctr, actions, newStageState(), buildCtx); err != nil {
		t.Fatalf("executeActions: %v", err)
	}

	if len(ctr.commands) != 2 {
		t.Fatalf("commands = %v, want 2", ctr.commands)
	}
	if ctr.commands[0] != "apt-get update && apt-get install -y git" {
		t.Errorf("commands[0] = %q", ctr.commands[0])
	}
	if ctr.commands[1] != "pip install -e ." {
		t.Errorf("commands[1] = %q", ctr.commands[1])
	}

	// The second run inherits the persisted workdir.
	if ctr.execOpts[1].Workdir != "/app" {
		t.Errorf("second run workdir = %q, want /app", ctr.execOpts[1].Workdir)
	}

	if len(ctr.copies) != 1 {
		t.Fatalf("copies = %v, want 1", ctr.copies)
	}
}

func TestExecuteActionsAbortsOnCommandFailure(t *testing.T) {
	ctr := newFakeContainer()
	ctr.failOn["pip install -e ."] = 2
	buildCtx := writeBuildContext(t)

	actions := []manifest.Action{
		{Workdir: "/app"},
		{Run: "pip install -e ."},
		{Run: "never reached"},
		{Copy: "tests tests"},
	}

	err := executeActions(context.Background(), ctr, actions, newStageState(), buildCtx)
	if !errors.Is(err, ErrCommandFailed) {
		t.Fatalf("err = %v, want ErrCommandFailed", err)
	}

	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("err = %v, want *CommandError", err)
	}
	if cmdErr.ExitCode != 2 {
		t.Fatalf("ExitCode = %d, want 2", cmdErr.ExitCode)
	}

	// No action after the failure is materialized.
	if len(ctr.commands) != 1 {
		t.Fatalf("commands = %v, want only the failing one", ctr.commands)
	}
	if len(ctr.copies) != 0 {
		t.Fatalf("copies = %v, want none", ctr.copies)
	}
}

func TestExecuteActionsErrorCarriesIndex(t *testing.T) {
	ctr := newFakeContainer()
	ctr.failOn["false"] = 1

	err := executeActions(context.Background(), ctr, []manifest.Action{
		{Workdir: "/app"},
		{Run: "false"},
	}, newStageState(), t.TempDir())

	if err == nil || !errors.Is(err, ErrBuild) {
		t.Fatalf("err = %v, want ErrBuild", err)
	}
	if got := err.Error(); !strings.Contains(got, "action 2") {
		t.Fatalf("error %q does not mention the failing action index", got)
	}
}

func TestExecuteCopyMissingSource(t *testing.T) {
	ctr := newFakeContainer()

	err := executeActions(context.Background(), ctr, []manifest.Action{
		{Workdir: "/app"},
		{Copy: "does-not-exist /app/missing"},
	}, newStageState(), t.TempDir())

	if !errors.Is(err, ErrSourceNotFound) {
		t.Fatalf("err = %v, want ErrSourceNotFound", err)
	}
	if len(ctr.copies) != 0 {
		t.Fatalf("copies = %v, want none", ctr.copies)
	}
}

func TestExecuteCopyWithOwner(t *testing.T) {
	ctr := newFakeContainer()
	buildCtx := writeBuildContext(t)

	err := executeActions(context.Background(), ctr, []manifest.Action{
		{Workdir: "/app"},
		{Copy: "tests tests", Owner: "1000"},
	}, newStageState(), buildCtx)
	if err != nil {
		t.Fatalf("executeActions: %v", err)
	}

	if len(ctr.chowns) != 1 {
		t.Fatalf("chowns = %v, want 1", ctr.chowns)
	}
	if ctr.chowns[0][0] != "1000" || ctr.chowns[0][1] != "/app/tests" {
		t.Fatalf("chown = %v, want [1000 /app/tests]", ctr.chowns[0])
	}
}

func TestVolumeDeclarationCreatesPathsOnce(t *testing.T) {
	ctr := newFakeContainer()

	actions := []manifest.Action{
		{Volumes: []string{"/app/data", "/app/outputs"}},
		{Volumes: []string{"/app/data", "/app/conf"}},
	}

	if err := executeActions(context.Background(), ctr, actions, newStageState(), t.TempDir()); err != nil {
		t.Fatalf("executeActions: %v", err)
	}

	want := []string{"/app/data", "/app/outputs", "/app/conf"}
	if len(ctr.mkdirs) != len(want) {
		t.Fatalf("mkdirs = %v, want %v", ctr.mkdirs, want)
	}
	for i := range want {
		if ctr.mkdirs[i] != want[i] {
			t.Errorf("mkdirs[%d] = %q, want %q", i, ctr.mkdirs[i], want[i])
		}
	}
}

func TestUserModifierAppliesToSubsequentRuns(t *testing.T) {
	ctr := newFakeContainer()

	actions := []manifest.Action{
		{Run: "pip install -e ."},
		{User: "1000"},
		{Run: "whoami"},
	}

	if err := executeActions(context.Background(), ctr, actions, newStageState(), t.TempDir()); err != nil {
		t.Fatalf("executeActions: %v", err)
	}

	if ctr.execOpts[0].User != "" {
		t.Errorf("first run user = %q, want root default", ctr.execOpts[0].User)
	}
	if ctr.execOpts[1].User != "1000" {
		t.Errorf("second run user = %q, want 1000", ctr.execOpts[1].User)
	}
}

func TestSiblingStagesAreIsolated(t *testing.T) {
	buildCtx := writeBuildContext(t)

	base := []manifest.Action{
		{Workdir: "/app"},
		{Run: "pip install -e ."},
	}
	releaseTail := []manifest.Action{
		{User: "1000"},
		{Entrypoint: []string{"/bin/bash"}},
	}
	devTail := []manifest.Action{
		{Run: "pip install -e .[dev]"},
		{Copy: "tests tests"},
		{User: "1000"},
	}

	// Each sibling executes against its own container and its own state,
	// replaying the shared base actions first.
	release := newFakeContainer()
	if err := executeActions(context.Background(), release, append(append([]manifest.Action{}, base...), releaseTail...), newStageState(), buildCtx); err != nil {
		t.Fatalf("release: %v", err)
	}

	dev := newFakeContainer()
	if err := executeActions(context.Background(), dev, append(append([]manifest.Action{}, base...), devTail...), newStageState(), buildCtx); err != nil {
		t.Fatalf("dev: %v", err)
	}

	for _, cmd := range release.commands {
		if cmd == "pip install -e .[dev]" {
			t.Fatal("release container observed a dev action")
		}
	}
	if len(release.copies) != 0 {
		t.Fatalf("release copies = %v, want none", release.copies)
	}
	if len(dev.copies) != 1 {
		t.Fatalf("dev copies = %v, want the tests copy", dev.copies)
	}
}
