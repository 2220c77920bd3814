package store

import (
	"errors"
	"fmt"
)

// Sentinel errors matched by the typed errors below via errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrImmutable  = errors.New("immutable")
	ErrForbidden  = errors.New("forbidden")
	ErrPathEscape = errors.New("path escapes export directory")
)

// ValidationError reports a missing, oversized or malformed field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError reports a missing board, list, milestone, card, artifact or memory key.
type NotFoundError struct {
	Kind string
	ID   string
	// Message overrides the generated text when set.
	Message string
}

func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Kind)
	}
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictError reports a write blocked by an archived or write-closed
// milestone, or by a key that is already taken.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// ImmutableError reports an attempt to alter a stored artifact revision.
type ImmutableError struct {
	Kind string
}

func (e *ImmutableError) Error() string {
	return fmt.Sprintf("%s is immutable; create a new revision", e.Kind)
}

func (e *ImmutableError) Is(target error) bool { return target == ErrImmutable }

// ForbiddenError reports a disallowed memory source type.
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string { return e.Message }

func (e *ForbiddenError) Is(target error) bool { return target == ErrForbidden }

// PathEscapeError reports an export target outside the export directory.
type PathEscapeError struct {
	Path string
	Root string
}

func (e *PathEscapeError) Error() string {
	return fmt.Sprintf("export path %s must remain inside %s", e.Path, e.Root)
}

func (e *PathEscapeError) Is(target error) bool { return target == ErrPathEscape }

func notFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}
