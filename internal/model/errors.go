package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound matches every NotFoundError.
	ErrNotFound = errors.New("model: entity not found")
	// ErrForbidden matches every ForbiddenError.
	ErrForbidden = errors.New("model: access forbidden")
	// ErrValidation matches every ValidationError.
	ErrValidation = errors.New("model: validation failed")
)

// NotFoundError reports an absent entity.
type NotFoundError struct {
	Kind EntityKind
	ID   int64
}

// NewNotFoundError constructs a NotFoundError for the entity.
func NewNotFoundError(kind EntityKind, id int64) error {
	return &NotFoundError{Kind: kind, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

// Is reports whether the target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ForbiddenError reports an entity whose ownership chain resolves to another user.
type ForbiddenError struct {
	Kind   EntityKind
	ID     int64
	UserID int64
}

// NewForbiddenError constructs a ForbiddenError for the entity and acting user.
func NewForbiddenError(kind EntityKind, id int64, userID int64) error {
	return &ForbiddenError{Kind: kind, ID: id, UserID: userID}
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("user %d may not access %s %d", e.UserID, e.Kind, e.ID)
}

// Is reports whether the target is ErrForbidden.
func (e *ForbiddenError) Is(target error) bool {
	return target == ErrForbidden
}

// ValidationError reports input that violates an entity invariant.
type ValidationError struct {
	Reason string
	Cause  error
}

// NewValidationError constructs a ValidationError with the given reason.
func NewValidationError(reason string) error {
	return &ValidationError{Reason: reason}
}

// WrapValidationError attaches a validation library failure to the reason.
func WrapValidationError(reason string, cause error) error {
	return &ValidationError{Reason: reason, Cause: cause}
}

func (e *ValidationError) Error() string {
	if e.Cause == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Cause)
}

// Is reports whether the target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}
