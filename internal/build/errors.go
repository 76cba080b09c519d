package build

import (
	"errors"
	"fmt"
)

var (
	ErrBuild               = errors.New("build failed")
	ErrFileSystemOperation = errors.New("file system operation failed")
	ErrCopy                = errors.New("copy failed")
	ErrSourceNotFound      = errors.New("copy source not found")
	ErrCommandFailed       = errors.New("command failed")
)

// Reports a build command that exited with a non-zero code.
//
// Matches [ErrCommandFailed] via [errors.Is]. Command failure is terminal:
// the stage's remaining actions are not executed and no retry is attempted.
type CommandError struct {
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("command failed: exit code %d", e.ExitCode)
	}
	return fmt.Sprintf("command failed: exit code %d: %s", e.ExitCode, e.Stderr)
}

func (e *CommandError) Unwrap() error {
	return ErrCommandFailed
}
