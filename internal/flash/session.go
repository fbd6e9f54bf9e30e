package flash

import "github.com/oklog/ulid/v2"

// State is the flash session state.
type State int

const (
	StateIdle State = iota
	StatePreparing
	StateToolchainCheck
	StateLaunching
	StateStreaming
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StateToolchainCheck:
		return "toolchain-check"
	case StateLaunching:
		return "launching"
	case StateStreaming:
		return "streaming"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends a session.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Session is a snapshot of the current or last flash attempt.
type Session struct {
	ID         string
	State      State
	Percent    int
	LastDetail string
}

// Outcome is the terminal result of a session. Err is nil on success and
// otherwise one of *MissingArtifactError, *MissingToolchainError,
// *ExitError or *UnexpectedError.
type Outcome struct {
	SessionID string
	State     State
	Err       error
}

// Succeeded reports whether the firmware was written.
func (o Outcome) Succeeded() bool {
	return o.State == StateSucceeded
}

func newSessionID() string {
	return ulid.Make().String()
}
