package agent

import (
	"errors"

	"github.com/capitalize-ai/realty-agent/internal/model"
)

// GenericFailureMessage is the only text an end user sees when a turn fails.
const GenericFailureMessage = "The agent is temporarily unavailable. Please try again in a moment."

var (
	// ErrSessionBusy is returned when a session is already processing a
	// message or starting.
	ErrSessionBusy = errors.New("agent: session is busy")

	// ErrAlreadyStarted is returned by Start on a session whose dialogue is
	// already open.
	ErrAlreadyStarted = errors.New("agent: session already started")
)

// AgentError is an unrecoverable turn or start failure. Error returns
// GenericFailureMessage; the cause is available through Unwrap and Log.
type AgentError struct {
	Op  string
	Log []model.DecisionLogEntry
	Err error
}

func (e *AgentError) Error() string {
	return GenericFailureMessage
}

func (e *AgentError) Unwrap() error {
	return e.Err
}
