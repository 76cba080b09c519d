// Package graph validates and orders the stage DAG of a build recipe.
//
// Stages form a forest rooted at the stages that name a base image; every
// other stage extends exactly one parent. The graph enforces parent-first
// declaration, rejects unknown parents and cycles at definition time, and
// resolves a deterministic topological build order. It also computes a
// stage's effective action list: the parent's effective list followed by
// the stage's own actions, which is what the executor materializes.
package graph
