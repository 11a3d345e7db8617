package aggregates

import (
	"errors"
	"strings"
)

// ErrorCode classifies a write failure independently of transport.
type ErrorCode string

const (
	CodeValidation         ErrorCode = "validation"
	CodeNotFound           ErrorCode = "not_found"
	CodeConflict           ErrorCode = "conflict"
	CodeStateConflict      ErrorCode = "state_conflict"
	CodeInvariantViolation ErrorCode = "invariant_violation"
	CodePreconditionFailed ErrorCode = "precondition_failed"
	CodeIdempotency        ErrorCode = "idempotency_conflict"
	CodeDependency         ErrorCode = "dependency_unavailable"
	CodeRetryable          ErrorCode = "retryable"
	CodeInternal           ErrorCode = "internal"
)

// Terminal reports whether retrying the same command can never succeed.
// Terminal failures are safe to record against an idempotency key.
func (c ErrorCode) Terminal() bool {
	switch c {
	case CodeValidation, CodeNotFound, CodeConflict, CodeStateConflict,
		CodePreconditionFailed, CodeInvariantViolation:
		return true
	}
	return false
}

// Error carries a code, the failing operation and a caller-safe message.
type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Message != "" {
		b.WriteString(e.Message)
		b.WriteString(" ")
	}
	b.WriteString("[" + string(e.Code) + "]")
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

func NewError(code ErrorCode, op, message string, cause error) error {
	return &Error{
		Code:    code,
		Op:      strings.TrimSpace(op),
		Message: strings.TrimSpace(message),
		Cause:   cause,
	}
}

// Wrap codes err, using its text as the message.
func Wrap(code ErrorCode, op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(code, op, err.Error(), err)
}

func as(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

func IsCode(err error, code ErrorCode) bool {
	e := as(err)
	return e != nil && e.Code == code
}

// CodeOf returns "" for errors that carry no code.
func CodeOf(err error) ErrorCode {
	if e := as(err); e != nil {
		return e.Code
	}
	return ""
}

// MessageOf returns the caller-safe message, falling back to err.Error().
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	if e := as(err); e != nil && e.Message != "" {
		return e.Message
	}
	return err.Error()
}

// ErrOutcomeAlreadyRecorded marks a write rolled back because its idempotency
// key was committed concurrently by another request.
var ErrOutcomeAlreadyRecorded = errors.New("command outcome already recorded")
