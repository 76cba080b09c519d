// Package manifest defines the recipe format for multi-stage image builds.
//
// A recipe is a YAML document declaring an ordered list of stages. Each
// stage either starts from an OCI image (from) or extends a previously
// declared stage (parent), and carries an ordered list of actions: shell
// commands, file copies from the build context, and modifiers such as
// workdir, env, volumes, user, entrypoint, and args. Action lists are
// append-only and order-preserving; a stage's final filesystem state is
// the deterministic composition of its parent's final state followed by
// its own actions.
//
// Beyond structural validation, the package lints recipes for orderings
// the build would accept but that are almost certainly mistakes, such as
// a root-requiring command placed after a privilege drop.
package manifest
