// Package matrix implements the compatibility test-matrix model: axis
// definitions, Cartesian expansion into jobs, exclusion and allow-failure
// rules, and aggregation of per-job results into a run verdict.
package matrix

import (
	"errors"
	"fmt"
)

// ErrorClass classifies a matrix error for reporting and exit-code logic.
type ErrorClass string

const (
	// ErrorClassConfiguration indicates a malformed axis or rule declaration.
	// Configuration errors are fatal and abort before any job runs.
	ErrorClassConfiguration ErrorClass = "configuration"

	// ErrorClassCommand indicates a spawned process could not even start,
	// e.g. a missing binary. Distinct from a normal non-zero exit but treated
	// identically by allow-failure logic.
	ErrorClassCommand ErrorClass = "command"

	// ErrorClassJobFailure indicates a non-zero exit from a command within a
	// job. Recovered at the job boundary; never aborts the whole run.
	ErrorClassJobFailure ErrorClass = "job_failure"

	// ErrorClassCancelled indicates the run was aborted before the job could
	// start or finish.
	ErrorClassCancelled ErrorClass = "cancelled"
)

// Error is a classified matrix error with optional context.
type Error struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Job is the label of the job the error belongs to, if any.
	Job string `json:"job,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Job != "" {
		return fmt.Sprintf("[%s] %s (job=%s)%s", e.Class, e.Message, e.Job, e.unwrapSuffix())
	}
	return fmt.Sprintf("[%s] %s%s", e.Class, e.Message, e.unwrapSuffix())
}

func (e *Error) unwrapSuffix() string {
	if e.Err != nil {
		return ": " + e.Err.Error()
	}
	return ""
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality for errors.Is: two matrix errors are equal
// when class and code match.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// WithCode attaches an error code.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithJob attaches the owning job label.
func (e *Error) WithJob(label string) *Error {
	e.Job = label
	return e
}

// NewConfigurationError creates a configuration error.
func NewConfigurationError(message string, err error) *Error {
	return &Error{Class: ErrorClassConfiguration, Message: message, Err: err}
}

// NewCommandError creates a command-start error.
func NewCommandError(message string, err error) *Error {
	return &Error{Class: ErrorClassCommand, Message: message, Err: err}
}

// NewJobFailureError creates a job failure error.
func NewJobFailureError(message string, err error) *Error {
	return &Error{Class: ErrorClassJobFailure, Message: message, Err: err}
}

// NewCancelledError creates a cancellation error.
func NewCancelledError(message string, err error) *Error {
	return &Error{Class: ErrorClassCancelled, Message: message, Err: err}
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool {
	var me *Error
	if errors.As(err, &me) {
		return me.Class == ErrorClassConfiguration
	}
	return false
}

// IsCommand reports whether err is a command-start error.
func IsCommand(err error) bool {
	var me *Error
	if errors.As(err, &me) {
		return me.Class == ErrorClassCommand
	}
	return false
}

// Error codes used across the matrix packages.
const (
	ErrCodeEmptyAxes     = "EMPTY_AXES"
	ErrCodeEmptyAxis     = "EMPTY_AXIS"
	ErrCodeDuplicateAxis = "DUPLICATE_AXIS"
	ErrCodeTemplate      = "TEMPLATE"
	ErrCodeValidation    = "VALIDATION"
	ErrCodePolicyDenied  = "POLICY_DENIED"
)
