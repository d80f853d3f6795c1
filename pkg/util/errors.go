// Package util provides logging helpers and the common error types shared by
// the orchestrator packages.
package util

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Every error returned by a manager operation unwraps to
// exactly one of these; CodeOf maps them to response codes.
var (
	ErrInvalidParam      = errors.New("invalid parameter")
	ErrNotFound          = errors.New("not found")
	ErrInUse             = errors.New("resource in use")
	ErrAlreadyExists     = errors.New("resource already exists")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrUnimplemented     = errors.New("unimplemented")
	ErrUnknown           = errors.New("unknown error")
	ErrInternal          = errors.New("internal error")
)

// StatusError carries a sentinel plus a human readable message describing
// the object the failure is about.
type StatusError struct {
	Code    error
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return e.Code.Error()
	}
	return e.Message
}

func (e *StatusError) Unwrap() error {
	return e.Code
}

// NewStatusError creates a StatusError with a formatted message.
func NewStatusError(code error, format string, args ...interface{}) *StatusError {
	return &StatusError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ValidationError represents one or more request validation failures.
// It always unwraps to ErrInvalidParam unless Code says otherwise.
type ValidationError struct {
	Code   error
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "validation failed: " + e.Errors[0]
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

func (e *ValidationError) Unwrap() error {
	if e.Code != nil {
		return e.Code
	}
	return ErrInvalidParam
}

// NewValidationError creates a validation error from messages
func NewValidationError(messages ...string) *ValidationError {
	return &ValidationError{Errors: messages}
}

// ValidationBuilder helps accumulate validation errors
type ValidationBuilder struct {
	errors []string
}

// Add adds an error message if condition is false
func (v *ValidationBuilder) Add(condition bool, message string) *ValidationBuilder {
	if !condition {
		v.errors = append(v.errors, message)
	}
	return v
}

// AddErrorf adds a formatted error message
func (v *ValidationBuilder) AddErrorf(format string, args ...interface{}) *ValidationBuilder {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
	return v
}

// HasErrors returns true if there are validation errors
func (v *ValidationBuilder) HasErrors() bool {
	return len(v.errors) > 0
}

// Build returns the validation error or nil if no errors
func (v *ValidationBuilder) Build() error {
	if len(v.errors) == 0 {
		return nil
	}
	return &ValidationError{Errors: v.errors}
}

// InUseError represents an object that cannot be removed because other
// objects still reference it.
type InUseError struct {
	Resource string
	RefCount uint32
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("%s is in use (%d references)", e.Resource, e.RefCount)
}

func (e *InUseError) Unwrap() error {
	return ErrInUse
}

// NewInUseError creates an in-use error
func NewInUseError(resource string, refCount uint32) *InUseError {
	return &InUseError{Resource: resource, RefCount: refCount}
}

// CriticalError reports that a compensating call failed and the in-memory
// model no longer matches the device. It wraps the original failure so the
// caller still sees the code of the call that started the rollback.
type CriticalError struct {
	Resource string
	Failures []error
	Cause    error
}

func (e *CriticalError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.Error())
	}
	return fmt.Sprintf("%v; rollback of %s failed: %s", e.Cause, e.Resource, strings.Join(msgs, "; "))
}

func (e *CriticalError) Unwrap() error {
	return e.Cause
}

// IsCritical reports whether err (or anything it wraps) is a CriticalError.
func IsCritical(err error) bool {
	var ce *CriticalError
	return errors.As(err, &ce)
}
