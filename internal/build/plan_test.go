package build

import (
	"errors"
	"testing"

	"github.com/combustion-ml/emberd/internal/manifest"
)

func TestNewPlan(t *testing.T) {
	r := &manifest.Recipe{Stages: []manifest.Stage{
		{
			Name:      "base",
			From:      "pytorch.tar",
			Transient: true,
			Actions: []manifest.Action{
				{Run: "pip install -e ."},
			},
		},
		{
			Name:   "release",
			Parent: "base",
			Actions: []manifest.Action{
				{User: "1000"},
			},
		},
	}}

	plan, err := NewPlan(r)
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}

	if len(plan.Stages) != 2 {
		t.Fatalf("len(stages) = %d, want 2", len(plan.Stages))
	}
	if plan.Stages[0].Name != "base" {
		t.Fatalf("first stage = %q, want base", plan.Stages[0].Name)
	}

	release := plan.Stages[1]
	if len(release.Actions) != 2 {
		t.Fatalf("release effective actions = %d, want base's plus its own", len(release.Actions))
	}
	if release.Actions[0].Run != "pip install -e ." {
		t.Errorf("effective list does not start with the parent's actions")
	}
	if release.Actions[1].User != "1000" {
		t.Errorf("effective list does not end with the stage's own actions")
	}
}

func TestNewPlanUnknownParent(t *testing.T) {
	r := &manifest.Recipe{Stages: []manifest.Stage{
		{Name: "dev", Parent: "base", Actions: []manifest.Action{{Run: "echo"}}},
	}}

	_, err := NewPlan(r)
	if !errors.Is(err, ErrBuild) {
		t.Fatalf("err = %v, want ErrBuild", err)
	}
}
