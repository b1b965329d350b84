package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrNotFound is returned when a resource is not found
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrUnauthorized is returned when authentication fails
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrConflict is returned when a write would break an invariant held by existing state (e.g. over-scan)
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "conflict"
}

// ErrValidation is returned when validation fails
type ErrValidation struct {
	Message string
	Fields  map[string]string
}

func (e *ErrValidation) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "validation failed"
}

// ErrInvalidStateTransition is returned when an invalid state transition is attempted
type ErrInvalidStateTransition struct {
	Entity string
	From   string
	To     string
}

func (e *ErrInvalidStateTransition) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("invalid %s state transition from %s to %s", e.Entity, e.From, e.To)
	}
	return fmt.Sprintf("invalid state transition from %s to %s", e.From, e.To)
}

func NotFound(resource string, id interface{}) error {
	return &ErrNotFound{Resource: resource, ID: fmt.Sprint(id)}
}

func Validation(format string, args ...interface{}) error {
	return &ErrValidation{Message: fmt.Sprintf(format, args...)}
}

func IsNotFound(err error) bool {
	var target *ErrNotFound
	return stderrors.As(err, &target)
}

func IsValidation(err error) bool {
	var target *ErrValidation
	return stderrors.As(err, &target)
}

func IsConflict(err error) bool {
	var target *ErrConflict
	return stderrors.As(err, &target)
}

func IsUnauthorized(err error) bool {
	var target *ErrUnauthorized
	return stderrors.As(err, &target)
}

func IsInvalidStateTransition(err error) bool {
	var target *ErrInvalidStateTransition
	return stderrors.As(err, &target)
}
