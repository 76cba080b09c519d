package build

import (
	"maps"
	"slices"
	"sort"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/combustion-ml/emberd/internal/manifest"
)

// Tracks accumulated modifiers during action execution within a stage.
//
// State flows linearly through the action list. Standalone modifiers update
// the state permanently via apply. Operations read the effective values for
// a single action via resolve without modifying the persistent state. When
// the stage is committed or exported, the final state is written into the
// image config via mutation.
type stageState struct {
	shell      string
	workdir    string
	user       string
	env        map[string]string
	volumes    map[string]struct{}
	entrypoint []string
	args       []string
}

// Creates a new [stageState] with default values.
func newStageState() *stageState {
	return &stageState{
		env:     make(map[string]string),
		volumes: make(map[string]struct{}),
	}
}

// Persists modifier fields from an action into the state.
//
// Called for standalone modifier actions. The state is mutated permanently,
// affecting all subsequent actions and the final image config. Volume
// declarations are idempotent: paths already declared are skipped, and the
// newly added paths are returned so the caller can create them.
func (s *stageState) apply(a manifest.Action) (addedVolumes []string) {
	if a.Shell != "" {
		s.shell = a.Shell
	}
	if a.Workdir != "" {
		s.workdir = a.Workdir
	}
	if a.User != "" {
		s.user = a.User
	}
	if len(a.Entrypoint) > 0 {
		s.entrypoint = slices.Clone(a.Entrypoint)
	}
	if len(a.Args) > 0 {
		s.args = slices.Clone(a.Args)
	}
	maps.Copy(s.env, a.Env)

	for _, v := range a.Volumes {
		if _, ok := s.volumes[v]; ok {
			continue
		}
		s.volumes[v] = struct{}{}
		addedVolumes = append(addedVolumes, v)
	}

	return addedVolumes
}

// Returns a new [stageState] with action-level modifiers overlaid on the
// persistent state. The receiver is not modified.
//
// Action-level modifiers override the corresponding state values for this
// operation only.
func (s *stageState) resolve(a manifest.Action) *stageState {
	resolved := &stageState{
		shell:   s.shell,
		workdir: s.workdir,
		user:    s.user,
		env:     make(map[string]string, len(s.env)+len(a.Env)),
	}
	maps.Copy(resolved.env, s.env)
	maps.Copy(resolved.env, a.Env)

	if a.Shell != "" {
		resolved.shell = a.Shell
	}
	if a.Workdir != "" {
		resolved.workdir = a.Workdir
	}
	if a.User != "" {
		resolved.user = a.User
	}

	return resolved
}

// Formats the environment as a sorted list of "key=value" strings suitable
// for passing to container exec and the image config.
func (s *stageState) environ() []string {
	env := make([]string, 0, len(s.env))
	for k, v := range s.env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}

// Writes the accumulated state into an OCI image config.
//
// Unset fields leave the inherited config values untouched, so a child
// stage keeps its parent's workdir, env, and volumes unless it overrides
// them. Setting an entrypoint clears inherited default args unless the
// stage declares its own.
func (s *stageState) mutateConfig(config *ocispec.Image) {
	if s.user != "" {
		config.Config.User = s.user
	}
	if s.workdir != "" {
		config.Config.WorkingDir = s.workdir
	}
	if len(s.env) > 0 {
		config.Config.Env = append(config.Config.Env, s.environ()...)
	}
	if len(s.volumes) > 0 {
		if config.Config.Volumes == nil {
			config.Config.Volumes = make(map[string]struct{}, len(s.volumes))
		}
		maps.Copy(config.Config.Volumes, s.volumes)
	}
	if len(s.entrypoint) > 0 {
		config.Config.Entrypoint = slices.Clone(s.entrypoint)
		config.Config.Cmd = nil
	}
	if len(s.args) > 0 {
		config.Config.Cmd = slices.Clone(s.args)
	}
}
