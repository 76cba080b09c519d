package manifest

import "fmt"

// A finding produced by recipe linting.
type Finding struct {
	Stage  string // Stage name.
	Action int    // 1-based index into the stage's action list.
	Detail string // Human-readable description.
}

func (f Finding) String() string {
	return fmt.Sprintf("stage %q, action %d: %s", f.Stage, f.Action, f.Detail)
}

// Checks each stage for root-requiring actions sequenced after a privilege
// drop.
//
// A user modifier applies to every subsequent action in the stage, so a run
// or copy placed after it executes as the unprivileged user and typically
// fails against system paths, or leaves files the final user cannot read.
// The check is per-stage: a parent's privilege drop does not carry into its
// children, because each child starts from the parent's committed filesystem
// but runs its own actions as root until it drops privileges itself.
func LintPrivilegeOrder(r *Recipe) []Finding {
	var findings []Finding

	for _, stage := range r.Stages {
		dropped := -1
		for i, a := range stage.Actions {
			if a.DropsPrivileges() {
				dropped = i
				continue
			}
			if dropped >= 0 && a.RequiresRoot() {
				findings = append(findings, Finding{
					Stage:  stage.Name,
					Action: i + 1,
					Detail: fmt.Sprintf("root-requiring action after user %q (action %d)", stage.Actions[dropped].User, dropped+1),
				})
			}
		}
	}

	return findings
}
