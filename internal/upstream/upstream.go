// Package upstream classifies failures of the external services the
// receptionist depends on, so callers can pick a response per failure kind.
package upstream

import (
	"errors"
	"fmt"
)

type Kind string

const (
	// KindConfig means credentials or settings are missing or rejected.
	KindConfig Kind = "config"
	// KindNotFound means the service answered but had no result for the input.
	KindNotFound Kind = "not_found"
	// KindRejected means the service refused this particular input.
	KindRejected Kind = "rejected"
	// KindUnavailable covers transport errors, timeouts and 5xx answers.
	KindUnavailable Kind = "unavailable"
)

type Error struct {
	Service string
	Kind    Kind
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Service, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Service, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func New(service string, kind Kind, err error) *Error {
	return &Error{Service: service, Kind: kind, Err: err}
}

// KindOf reports the failure kind of err. Errors that did not come from an
// adapter are treated as unavailable.
func KindOf(err error) Kind {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return KindUnavailable
}

// FromStatus maps an HTTP status code to a failure kind.
func FromStatus(code int) Kind {
	switch {
	case code == 401 || code == 403:
		return KindConfig
	case code == 404:
		return KindNotFound
	case code >= 400 && code < 500 && code != 408 && code != 429:
		return KindRejected
	default:
		return KindUnavailable
	}
}
