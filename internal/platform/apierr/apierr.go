package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error describes a non-2xx answer from an upstream HTTP collaborator.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("upstream error (%d)", e.Status)
	}
	return "upstream error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// Transient reports whether err is worth retrying: timeouts, 429 and 5xx
// answers are, any other upstream status is not. Errors that are not
// *Error (network failures) count as transient.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	var ae *Error
	if !errors.As(err, &ae) {
		return true
	}
	switch {
	case ae.Status == http.StatusTooManyRequests, ae.Status == http.StatusRequestTimeout:
		return true
	case ae.Status >= 500:
		return true
	default:
		return false
	}
}
