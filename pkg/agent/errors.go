package agent

import "errors"

// Sentinel errors.
var (
	// ErrMissingAPIKey is recorded when a prompt arrives with no runner configured.
	ErrMissingAPIKey = errors.New("agent: missing OPENAI_API_KEY")

	// ErrInvocationFailed wraps model and tool loop failures.
	ErrInvocationFailed = errors.New("agent: invocation failed")

	// ErrNoChoices is returned when the model answers with no choices.
	ErrNoChoices = errors.New("agent: no choices returned")

	// ErrToolLoop is returned when the model keeps calling tools past MaxToolRounds.
	ErrToolLoop = errors.New("agent: too many tool rounds")

	// ErrToolReturnTimeout is returned when a remote tool never sends its return.
	ErrToolReturnTimeout = errors.New("agent: tool did not return in time")
)
