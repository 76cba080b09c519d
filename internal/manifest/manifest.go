package manifest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// A build recipe: an ordered list of stages forming a DAG rooted at the
// stages that name a base image.
type Recipe struct {
	Stages []Stage `yaml:"stages" json:"stages"`
}

// A single build stage.
//
// Exactly one of From and Parent must be set. From names an OCI image
// archive or reference to start the stage from; Parent names a previously
// declared stage whose committed state this stage extends. Transient stages
// are intermediate: they are committed for their children but never
// exported as a build target.
type Stage struct {
	Name      string   `yaml:"name" json:"name"`
	From      string   `yaml:"from,omitempty" json:"from,omitempty"`
	Parent    string   `yaml:"parent,omitempty" json:"parent,omitempty"`
	Transient bool     `yaml:"transient,omitempty" json:"transient,omitempty"`
	Actions   []Action `yaml:"actions" json:"actions"`
}

// A single build action within a stage.
//
// Actions are tagged variants: each entry carries exactly one operation
// (Run or Copy) or one or more modifiers (Workdir, Env, Shell, Volumes,
// User, Entrypoint, Args). Modifiers attached to an operation are scoped
// to that operation only; standalone modifiers persist for the rest of
// the stage and are recorded in the exported image config. Owner applies
// to copy operations only: the copied files are chowned to the given uid
// after extraction.
type Action struct {
	Run        string            `yaml:"run,omitempty" json:"run,omitempty"`
	Copy       string            `yaml:"copy,omitempty" json:"copy,omitempty"`
	Owner      string            `yaml:"owner,omitempty" json:"owner,omitempty"`
	Workdir    string            `yaml:"workdir,omitempty" json:"workdir,omitempty"`
	Env        map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Shell      string            `yaml:"shell,omitempty" json:"shell,omitempty"`
	Volumes    []string          `yaml:"volumes,omitempty" json:"volumes,omitempty"`
	User       string            `yaml:"user,omitempty" json:"user,omitempty"`
	Entrypoint []string          `yaml:"entrypoint,omitempty" json:"entrypoint,omitempty"`
	Args       []string          `yaml:"args,omitempty" json:"args,omitempty"`
}

// Reads and validates a recipe from a YAML file.
func Load(path string) (*Recipe, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecipe, err)
	}
	return Parse(b)
}

// Decodes and validates a recipe from YAML bytes.
func Parse(b []byte) (*Recipe, error) {
	var r Recipe
	if err := yaml.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecipe, err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Checks structural validity of the recipe.
//
// Stage names must be non-empty and unique, each stage must declare exactly
// one of from/parent, and every action must carry at least one field. Graph
// properties (unknown parents, cycles) are checked by the graph package,
// not here.
func (r *Recipe) Validate() error {
	if len(r.Stages) == 0 {
		return fmt.Errorf("%w: no stages", ErrInvalidRecipe)
	}

	seen := make(map[string]bool, len(r.Stages))
	for i, stage := range r.Stages {
		if stage.Name == "" {
			return fmt.Errorf("%w: stage %d has no name", ErrInvalidRecipe, i+1)
		}
		if seen[stage.Name] {
			return fmt.Errorf("%w: duplicate stage %q", ErrInvalidRecipe, stage.Name)
		}
		seen[stage.Name] = true

		if err := stage.validate(); err != nil {
			return fmt.Errorf("stage %q: %w", stage.Name, err)
		}
	}

	return nil
}

// Looks up a stage by name.
func (r *Recipe) Stage(name string) (Stage, bool) {
	for _, stage := range r.Stages {
		if stage.Name == name {
			return stage, true
		}
	}
	return Stage{}, false
}

func (s *Stage) validate() error {
	if s.From == "" && s.Parent == "" {
		return fmt.Errorf("%w: neither from nor parent set", ErrInvalidRecipe)
	}
	if s.From != "" && s.Parent != "" {
		return fmt.Errorf("%w: both from and parent set", ErrInvalidRecipe)
	}

	for i, a := range s.Actions {
		if a.Kind() == KindInvalid {
			return fmt.Errorf("%w: action %d is empty", ErrInvalidRecipe, i+1)
		}
		if a.Owner != "" && a.Copy == "" {
			return fmt.Errorf("%w: action %d sets owner without copy", ErrInvalidRecipe, i+1)
		}
	}

	return nil
}
