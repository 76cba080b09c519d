package graph

import "errors"

var (
	ErrUnknownParent    = errors.New("unknown parent stage")
	ErrUnknownStage     = errors.New("unknown stage")
	ErrCyclicDependency = errors.New("cyclic stage dependency")
	ErrDuplicateStage   = errors.New("duplicate stage")
)
