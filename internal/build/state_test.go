package build

import (
	"testing"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/combustion-ml/emberd/internal/manifest"
)

func TestNewStageState(t *testing.T) {
	s := newStageState()
	if s.shell != "" || s.workdir != "" || s.user != "" {
		t.Fatalf("fresh state has non-zero modifiers: %+v", s)
	}
	if len(s.env) != 0 || len(s.volumes) != 0 {
		t.Fatalf("fresh state has env or volumes: %+v", s)
	}
}

func TestApply(t *testing.T) {
	s := newStageState()

	s.apply(manifest.Action{Shell: "/bin/bash"})
	if s.shell != "/bin/bash" {
		t.Fatalf("shell = %q, want /bin/bash", s.shell)
	}

	s.apply(manifest.Action{Workdir: "/app"})
	if s.workdir != "/app" {
		t.Fatalf("workdir = %q, want /app", s.workdir)
	}
	if s.shell != "/bin/bash" {
		t.Fatalf("shell changed to %q after workdir apply", s.shell)
	}

	s.apply(manifest.Action{User: "1000"})
	if s.user != "1000" {
		t.Fatalf("user = %q, want 1000", s.user)
	}

	s.apply(manifest.Action{Env: map[string]string{"A": "1", "B": "2"}})
	if s.env["A"] != "1" || s.env["B"] != "2" {
		t.Fatalf("env = %v, want A=1 B=2", s.env)
	}

	s.apply(manifest.Action{Env: map[string]string{"A": "override"}})
	if s.env["A"] != "override" {
		t.Fatalf("env[A] = %q, want override", s.env["A"])
	}
	if s.env["B"] != "2" {
		t.Fatalf("env[B] = %q, want 2 (preserved)", s.env["B"])
	}
}

func TestApplyVolumesIdempotent(t *testing.T) {
	s := newStageState()

	added := s.apply(manifest.Action{Volumes: []string{"/app/data", "/app/outputs"}})
	if len(added) != 2 {
		t.Fatalf("added = %v, want 2 paths", added)
	}

	// Redeclaring an existing mount point is a no-op.
	added = s.apply(manifest.Action{Volumes: []string{"/app/data", "/app/conf"}})
	if len(added) != 1 || added[0] != "/app/conf" {
		t.Fatalf("added = %v, want [/app/conf]", added)
	}

	added = s.apply(manifest.Action{Volumes: []string{"/app/data"}})
	if len(added) != 0 {
		t.Fatalf("added = %v, want none", added)
	}

	if len(s.volumes) != 3 {
		t.Fatalf("len(volumes) = %d, want 3", len(s.volumes))
	}
}

func TestApplyEmptyFieldsNoOp(t *testing.T) {
	s := newStageState()
	s.apply(manifest.Action{Shell: "/bin/zsh", Workdir: "/opt", User: "1000"})
	s.apply(manifest.Action{})
	if s.shell != "/bin/zsh" {
		t.Fatalf("shell = %q, want /bin/zsh", s.shell)
	}
	if s.workdir != "/opt" {
		t.Fatalf("workdir = %q, want /opt", s.workdir)
	}
	if s.user != "1000" {
		t.Fatalf("user = %q, want 1000", s.user)
	}
}

func TestResolve(t *testing.T) {
	s := newStageState()
	s.apply(manifest.Action{
		Shell:   "/bin/bash",
		Workdir: "/app",
		Env:     map[string]string{"A": "1"},
	})

	resolved := s.resolve(manifest.Action{
		Shell:   "/bin/zsh",
		Workdir: "/tmp",
		User:    "1000",
		Env:     map[string]string{"B": "2"},
	})

	if resolved.shell != "/bin/zsh" {
		t.Fatalf("resolved.shell = %q, want /bin/zsh", resolved.shell)
	}
	if resolved.workdir != "/tmp" {
		t.Fatalf("resolved.workdir = %q, want /tmp", resolved.workdir)
	}
	if resolved.user != "1000" {
		t.Fatalf("resolved.user = %q, want 1000", resolved.user)
	}
	if resolved.env["A"] != "1" || resolved.env["B"] != "2" {
		t.Fatalf("resolved.env = %v, want A=1 B=2", resolved.env)
	}

	// Original state is unchanged.
	if s.shell != "/bin/bash" {
		t.Fatalf("original shell mutated to %q", s.shell)
	}
	if s.user != "" {
		t.Fatalf("original user mutated to %q", s.user)
	}
	if _, ok := s.env["B"]; ok {
		t.Fatal("original env mutated: B leaked in")
	}
}

func TestResolveInheritsState(t *testing.T) {
	s := newStageState()
	s.apply(manifest.Action{Shell: "/bin/bash", Workdir: "/app", User: "1000"})

	resolved := s.resolve(manifest.Action{})
	if resolved.shell != "/bin/bash" {
		t.Fatalf("shell = %q, want /bin/bash", resolved.shell)
	}
	if resolved.workdir != "/app" {
		t.Fatalf("workdir = %q, want /app", resolved.workdir)
	}
	if resolved.user != "1000" {
		t.Fatalf("user = %q, want 1000", resolved.user)
	}
}

func TestEnviron(t *testing.T) {
	s := newStageState()
	if len(s.environ()) != 0 {
		t.Fatal("empty state should produce no environ entries")
	}

	s.apply(manifest.Action{Env: map[string]string{"PATH": "/usr/bin", "HOME": "/root"}})
	env := s.environ()
	if len(env) != 2 {
		t.Fatalf("len(environ) = %d, want 2", len(env))
	}
	if env[0] != "HOME=/root" || env[1] != "PATH=/usr/bin" {
		t.Fatalf("environ = %v, want sorted [HOME=/root PATH=/usr/bin]", env)
	}
}

func TestMutateConfig(t *testing.T) {
	s := newStageState()
	s.apply(manifest.Action{Workdir: "/app"})
	s.apply(manifest.Action{Volumes: []string{"/app/data", "/app/outputs", "/app/conf"}})
	s.apply(manifest.Action{User: "1000"})
	s.apply(manifest.Action{Entrypoint: []string{"/bin/bash"}})
	s.apply(manifest.Action{Args: []string{"-c", "pytest -n auto --dist=loadfile -s -v /app/tests/"}})

	var config ocispec.Image
	config.Config.Cmd = []string{"inherited-cmd"}
	s.mutateConfig(&config)

	if config.Config.User != "1000" {
		t.Errorf("User = %q, want 1000", config.Config.User)
	}
	if config.Config.WorkingDir != "/app" {
		t.Errorf("WorkingDir = %q, want /app", config.Config.WorkingDir)
	}
	if len(config.Config.Volumes) != 3 {
		t.Errorf("Volumes = %v, want 3 entries", config.Config.Volumes)
	}
	if _, ok := config.Config.Volumes["/app/outputs"]; !ok {
		t.Error("volume /app/outputs missing")
	}
	if len(config.Config.Entrypoint) != 1 || config.Config.Entrypoint[0] != "/bin/bash" {
		t.Errorf("Entrypoint = %v, want [/bin/bash]", config.Config.Entrypoint)
	}
	if len(config.Config.Cmd) != 2 {
		t.Fatalf("Cmd = %v, want the declared default args", config.Config.Cmd)
	}
}

func TestMutateConfigEntrypointClearsInheritedCmd(t *testing.T) {
	s := newStageState()
	s.apply(manifest.Action{User: "1000"})
	s.apply(manifest.Action{Entrypoint: []string{"/bin/bash"}})

	var config ocispec.Image
	config.Config.Cmd = []string{"inherited-cmd"}
	s.mutateConfig(&config)

	if config.Config.Cmd != nil {
		t.Fatalf("Cmd = %v, want cleared", config.Config.Cmd)
	}
}

func TestMutateConfigUnsetFieldsUntouched(t *testing.T) {
	s := newStageState()

	var config ocispec.Image
	config.Config.User = "parent"
	config.Config.WorkingDir = "/parent"
	s.mutateConfig(&config)

	if config.Config.User != "parent" {
		t.Errorf("User = %q, want parent's value preserved", config.Config.User)
	}
	if config.Config.WorkingDir != "/parent" {
		t.Errorf("WorkingDir = %q, want parent's value preserved", config.Config.WorkingDir)
	}
}
