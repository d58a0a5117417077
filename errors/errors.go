// Package errors provides the structured error codes and error types
// surfaced by the query engine.
package errors

import (
	"errors"
	"fmt"
)

// Error codes for the engine's error taxonomy
const (
	CodeUnknown              = "unknown_error"
	CodeParse                = "parse_error"
	CodeExecutionFailed      = "execution_failed"
	CodeAggregateLimit       = "aggregate_limit_exceeded"
	CodePlanTimeout          = "plan_timeout"
	CodeTypeMismatch         = "type_mismatch"
	CodeMemoryLimitExceeded  = "memory_limit_exceeded"
	CodeDmlBlocked           = "dml_blocked"
	CodeDmlRowCapExceeded    = "dml_row_cap_exceeded"
	CodeSubqueryMultipleRows = "subquery_multiple_rows"
)

// QueryError is the structured error type carried through planning and
// execution. Op names the plan node or phase that produced the error.
type QueryError struct {
	Code    string
	Message string
	Op      string
	Err     error
}

// Error implements the error interface
func (e *QueryError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap implements the unwrap interface for error chaining
func (e *QueryError) Unwrap() error {
	return e.Err
}

// Is matches on error code
func (e *QueryError) Is(target error) bool {
	if t, ok := target.(*QueryError); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a new QueryError
func New(code, message string) *QueryError {
	return &QueryError{Code: code, Message: message}
}

// Newf creates a new QueryError with a formatted message
func Newf(code, format string, args ...interface{}) *QueryError {
	return &QueryError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an underlying error, preserving its text for the user while
// attaching the structured code for programmatic handling.
func Wrap(err error, code, op string) *QueryError {
	if err == nil {
		return nil
	}
	return &QueryError{
		Code:    code,
		Message: err.Error(),
		Op:      op,
		Err:     err,
	}
}

// CodeOf extracts the structured code from an error chain, or CodeUnknown
func CodeOf(err error) string {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Code
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return CodeParse
	}
	return CodeUnknown
}

// IsCode reports whether the error chain carries the given code
func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}
