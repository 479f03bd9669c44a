package vrm

import (
	"errors"
	"fmt"
)

// ErrMissingToken is wrapped by the ConfigurationError returned when no API
// token was supplied.
var ErrMissingToken = errors.New("missing API token")

// ConfigurationError is returned when a request cannot be built from its
// configuration. It is never retried.
type ConfigurationError struct {
	Field  string
	Value  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "invalid configuration"
	if e.Field != "" {
		msg += fmt.Sprintf(" (%s=%q)", e.Field, e.Value)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// ContextLookupError is returned when a {{scope.key}} site reference has no
// value in the context store.
type ContextLookupError struct {
	Ref ContextRef
	Err error
}

func (e *ContextLookupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unable to retrieve %s from context: %v", e.Ref, e.Err)
	}
	return fmt.Sprintf("unable to retrieve %s from context", e.Ref)
}

func (e *ContextLookupError) Unwrap() error {
	return e.Err
}
