package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"veritas-client/backend"
	"veritas-client/llm"
)

// Kind classifies a failed request for the presentation layer
type Kind int

const (
	Unknown Kind = iota
	InputRejected
	TransportUnavailable
	AuthExpired
	Malformed
	Aborted
)

func (k Kind) String() string {
	switch k {
	case InputRejected:
		return "input rejected"
	case TransportUnavailable:
		return "transport unavailable"
	case AuthExpired:
		return "authentication expired"
	case Malformed:
		return "malformed reply"
	case Aborted:
		return "aborted"
	}
	return "unknown error"
}

// AnalysisError is the only error type that crosses the orchestrator boundary
type AnalysisError struct {
	Kind Kind
	Err  error
}

func (e *AnalysisError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// Is matches another AnalysisError of the same kind, so
// errors.Is(err, &AnalysisError{Kind: AuthExpired}) works.
func (e *AnalysisError) Is(target error) bool {
	t, ok := target.(*AnalysisError)
	return ok && t.Kind == e.Kind && t.Err == nil
}

func rejected(format string, v ...interface{}) *AnalysisError {
	return &AnalysisError{Kind: InputRejected, Err: fmt.Errorf(format, v...)}
}

// KindOf returns the kind of err, or Unknown when it is not an AnalysisError
func KindOf(err error) Kind {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Unknown
}

// Classify maps lower-layer errors onto the taxonomy
func Classify(err error) *AnalysisError {
	if err == nil {
		return nil
	}

	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae
	}

	switch {
	case errors.Is(err, context.Canceled):
		return &AnalysisError{Kind: Aborted, Err: err}
	case errors.Is(err, backend.ErrTransportUnavailable):
		return &AnalysisError{Kind: TransportUnavailable, Err: err}
	case errors.Is(err, llm.ErrAuth):
		return &AnalysisError{Kind: AuthExpired, Err: err}
	case errors.Is(err, llm.ErrMalformed), errors.Is(err, llm.ErrInvalidEnum):
		return &AnalysisError{Kind: Malformed, Err: err}
	}
	return &AnalysisError{Kind: Unknown, Err: err}
}
