// Package apperr defines the error taxonomy shared by the agent core and its
// adapters.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure for propagation decisions.
type Kind string

const (
	// ConfigurationGap marks a missing credential. Adapters resolve it with
	// fallback data and it never leaves them.
	ConfigurationGap Kind = "configuration_gap"
	// ProviderRejected marks a non-success HTTP status from an external API.
	ProviderRejected Kind = "provider_rejected"
	// Transport marks a network failure or timeout reaching an external API.
	Transport Kind = "transport"
	// ModelUnavailable marks a failed language model call.
	ModelUnavailable Kind = "model_unavailable"
	// InvalidArguments marks tool arguments that fail their declared schema.
	InvalidArguments Kind = "invalid_arguments"
	// UnsupportedTool marks a tool name outside the registry.
	UnsupportedTool Kind = "unsupported_tool"
	// InternalFault marks anything unclassified.
	InternalFault Kind = "internal_fault"
)

// Error is a classified error.
type Error struct {
	Kind   Kind
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == ProviderRejected:
		return fmt.Sprintf("%s: provider rejected request [%d]: %s", e.Op, e.Status, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Rejected creates a ProviderRejected error.
func Rejected(op string, status int, body string) *Error {
	return &Error{Kind: ProviderRejected, Op: op, Status: status, Body: body}
}

// TransportFailure creates a Transport error.
func TransportFailure(op string, err error) *Error {
	return &Error{Kind: Transport, Op: op, Err: err}
}

// ModelFailure creates a ModelUnavailable error.
func ModelFailure(op string, err error) *Error {
	return &Error{Kind: ModelUnavailable, Op: op, Err: err}
}

// Internal creates an InternalFault error.
func Internal(op string, err error) *Error {
	return &Error{Kind: InternalFault, Op: op, Err: err}
}

// New creates an error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of err. Context cancellation and deadlines are
// reported as Transport; anything unclassified is InternalFault.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Transport
	}
	return InternalFault
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
