package robot

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrRemoteCommandFailed matches every *CommandError via errors.Is.
	ErrRemoteCommandFailed = errors.New("robot: remote command failed")

	// ErrNoEventStream is returned by SpeakAndWait without an event source.
	ErrNoEventStream = errors.New("robot: no event stream configured")
)

// CommandError is returned when the robot answers with a non-2xx status.
type CommandError struct {
	Path   string
	Status int
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	return fmt.Sprintf("Robot API %s failed with status %d", e.Path, e.Status)
}

// Is reports whether target is ErrRemoteCommandFailed.
func (e *CommandError) Is(target error) bool {
	return target == ErrRemoteCommandFailed
}
