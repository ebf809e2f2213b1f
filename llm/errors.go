package llm

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformed indicates a reply that cannot be decoded into the expected schema
	ErrMalformed = errors.New("malformed model reply")
	// ErrInvalidEnum indicates a verdict or status outside the fixed enum
	ErrInvalidEnum = errors.New("value outside enum")
	// ErrAuth indicates the provider rejected the credential
	ErrAuth = errors.New("credential rejected")
	// ErrLearnUnsupported is returned by transports that cannot record feedback remotely
	ErrLearnUnsupported = errors.New("feedback not supported by transport")
)

// DecodeError describes why a reply failed to decode
type DecodeError struct {
	Kind   error // ErrMalformed or ErrInvalidEnum
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%v: %s", e.Kind, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Kind
}

func malformed(format string, v ...interface{}) error {
	return &DecodeError{Kind: ErrMalformed, Reason: fmt.Sprintf(format, v...)}
}

func invalidEnum(format string, v ...interface{}) error {
	return &DecodeError{Kind: ErrInvalidEnum, Reason: fmt.Sprintf(format, v...)}
}

// APIError is a non-2xx reply from a backend or provider
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrAuth) match credential failures
func (e *APIError) Is(target error) bool {
	return target == ErrAuth && IsAuthMessage(e.StatusCode, e.Message)
}

var authIndicators = []string{
	"api key not valid",
	"requested entity was not found",
	"permission_denied",
	"unauthenticated",
	"invalid api key",
	"incorrect api key",
}

// IsAuthMessage reports whether a status/message pair signals an invalid credential
func IsAuthMessage(statusCode int, message string) bool {
	if statusCode == 401 || statusCode == 403 {
		return true
	}
	msg := strings.ToLower(message)
	for _, indicator := range authIndicators {
		if strings.Contains(msg, indicator) {
			return true
		}
	}
	return false
}
