package manifest

// Identifies the primary kind of an action.
type Kind int

const (
	KindInvalid  Kind = iota
	KindRun           // Shell command executed in the stage container.
	KindCopy          // File or directory copied from the build context.
	KindModifier      // Standalone modifier(s): workdir, env, shell, volumes, user, entrypoint, args.
)

// Returns the action's kind.
//
// Run and Copy take precedence: an action carrying an operation is an
// operation even when modifiers are attached (they are scoped to it).
// An action with only modifier fields is a modifier. An action with no
// fields at all is invalid.
func (a Action) Kind() Kind {
	switch {
	case a.Run != "":
		return KindRun
	case a.Copy != "":
		return KindCopy
	case a.isModifier():
		return KindModifier
	default:
		return KindInvalid
	}
}

func (a Action) isModifier() bool {
	return a.Workdir != "" ||
		a.Shell != "" ||
		a.User != "" ||
		len(a.Env) > 0 ||
		len(a.Volumes) > 0 ||
		len(a.Entrypoint) > 0 ||
		len(a.Args) > 0
}

// Whether the action needs root privileges in the stage container.
//
// Run commands and copies are treated as root-requiring: package
// installation and writes into system paths dominate both in practice,
// and the recipe format has no way to express a finer claim.
func (a Action) RequiresRoot() bool {
	k := a.Kind()
	return k == KindRun || k == KindCopy
}

// Whether the action drops privileges for the rest of the stage.
func (a Action) DropsPrivileges() bool {
	return a.User != "" && a.Run == "" && a.Copy == ""
}
