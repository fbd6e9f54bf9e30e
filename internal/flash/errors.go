package flash

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSessionActive rejects a Flash call while another session is running.
var ErrSessionActive = errors.New("flash session already active")

// MissingArtifactError means the required application image was not found.
type MissingArtifactError struct {
	Path string
}

func (e *MissingArtifactError) Error() string {
	return fmt.Sprintf("firmware image not found: %s", e.Path)
}

// MissingToolchainError means esptool or its interpreter could not be found.
type MissingToolchainError struct {
	Path string
	Err  error
}

func (e *MissingToolchainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("flashing tool not found: %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("flashing tool not found: %s", e.Path)
}

func (e *MissingToolchainError) Unwrap() error { return e.Err }

// ExitError is a nonzero exit from the flashing tool. Tail holds the last
// lines of its combined output.
type ExitError struct {
	Code int
	Tail []string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("flashing tool exited with code %d: %s", e.Code, strings.Join(e.Tail, " | "))
}

// UnexpectedError is any other fault raised while flashing.
type UnexpectedError struct {
	Message string
	Err     error
}

func (e *UnexpectedError) Error() string {
	return "unexpected error: " + e.Message
}

func (e *UnexpectedError) Unwrap() error { return e.Err }

// classify maps an arbitrary error onto the failure taxonomy.
func classify(err error) error {
	var (
		missingArtifact  *MissingArtifactError
		missingToolchain *MissingToolchainError
		exitErr          *ExitError
		unexpected       *UnexpectedError
	)
	switch {
	case errors.As(err, &missingArtifact):
		return missingArtifact
	case errors.As(err, &missingToolchain):
		return missingToolchain
	case errors.As(err, &exitErr):
		return exitErr
	case errors.As(err, &unexpected):
		return unexpected
	default:
		return &UnexpectedError{Message: err.Error(), Err: err}
	}
}
