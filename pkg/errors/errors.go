// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed error handling for the hera model server.
// Every failure surfaced to a client maps to one of the codes below.
package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode classifies model-server errors for monitoring and reply
// construction.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeMalformedMessage indicates an envelope that does not parse or is
	// missing required fields, including unrecognized field/method names.
	CodeMalformedMessage ErrorCode = "MALFORMED_MESSAGE"

	// CodeUnsupportedMethod indicates a (field, method) combination outside
	// the closed dispatch table.
	CodeUnsupportedMethod ErrorCode = "UNSUPPORTED_METHOD"

	// CodeInvalidArguments indicates request arguments that do not match
	// the shape or primitive types the method expects.
	CodeInvalidArguments ErrorCode = "INVALID_ARGUMENTS"

	// CodeUnknownReference indicates an argument naming an action,
	// background, or consequence absent from the model.
	CodeUnknownReference ErrorCode = "UNKNOWN_REFERENCE"

	// CodePreconditionFailed indicates a required confirmation flag was
	// not satisfied.
	CodePreconditionFailed ErrorCode = "PRECONDITION_FAILED"

	// CodeUnknownCorrelation indicates a reply referencing an identifier
	// with no matching outstanding request.
	CodeUnknownCorrelation ErrorCode = "UNKNOWN_CORRELATION"
)

// HeraError is a typed error with context for observability. It
// implements the error interface and can be unwrapped with errors.As().
type HeraError struct {
	Code    ErrorCode
	Message string
	Err     error
	Context map[string]any
}

// Error implements the error interface.
func (e *HeraError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *HeraError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *HeraError) MarshalJSON() ([]byte, error) {
	payload := struct {
		Message string         `json:"message"`
		Code    string         `json:"code"`
		Err     string         `json:"error,omitempty"`
		Context map[string]any `json:"context,omitempty"`
	}{
		Message: e.Message,
		Code:    string(e.Code),
		Context: e.Context,
	}
	if e.Err != nil {
		payload.Err = e.Err.Error()
	}
	return json.Marshal(payload)
}

// New creates a new HeraError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *HeraError {
	return &HeraError{
		Code:    code,
		Message: msg,
		Err:     cause,
	}
}

// Newf creates a new HeraError with a formatted message and no cause.
func Newf(code ErrorCode, format string, args ...any) *HeraError {
	return &HeraError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *HeraError) WithContext(key string, value any) *HeraError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// AsHeraError attempts to convert an error to a HeraError.
// Returns the error as HeraError if it is one, or wraps it otherwise.
func AsHeraError(err error) *HeraError {
	if err == nil {
		return nil
	}
	if he, ok := err.(*HeraError); ok {
		return he
	}
	return New(CodeInternal, "wrapped error", err)
}

// CodeOf returns the error code of err, or CodeInternal for errors that
// are not HeraErrors. A nil err yields an empty code.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if he, ok := err.(*HeraError); ok {
		return he.Code
	}
	return CodeInternal
}
