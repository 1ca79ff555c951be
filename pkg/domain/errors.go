package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors classify every failure raised by the catalog. Callers match
// them with errors.Is; the typed errors below carry the detail.
var (
	ErrValidation         = errors.New("validation failed")
	ErrImmutable          = errors.New("entry is published and immutable")
	ErrOutOfRange         = errors.New("out of range")
	ErrDependencyNotReady = errors.New("dependency not saved")
	ErrStore              = errors.New("store operation failed")
	ErrConflict           = errors.New("store conflict")
	ErrNotFound           = errors.New("not found")
	ErrUnsupported        = errors.New("unsupported")
)

// ValidationError reports a value rejected by an entity invariant.
type ValidationError struct {
	Entity string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %s: %s", e.Entity, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(entity, field, format string, args ...any) error {
	return &ValidationError{Entity: entity, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ImmutableError is returned by setters on a published catalog entry.
type ImmutableError struct {
	Field string
}

func (e *ImmutableError) Error() string {
	return fmt.Sprintf("cannot change %s: entry is published", e.Field)
}

func (e *ImmutableError) Unwrap() error { return ErrImmutable }

// RangeError reports a year or ordinal outside a YearRange.
type RangeError struct {
	Value int
	Kind  string // "year" or "ordinal"
	Range YearRange
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s %d outside %s", e.Kind, e.Value, e.Range)
}

func (e *RangeError) Unwrap() error { return ErrOutOfRange }

// DependencyError is returned when a save references an unsaved dependency.
type DependencyError struct {
	Entity     string
	Dependency string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s depends on unsaved %s", e.Entity, e.Dependency)
}

func (e *DependencyError) Unwrap() error { return ErrDependencyNotReady }

// StoreError wraps a failed backend call with the operation and entity it
// concerned. Both ErrStore and the underlying cause match through errors.Is.
type StoreError struct {
	Op     string
	Entity string
	ID     int32
	Err    error
}

func (e *StoreError) Error() string {
	if e.ID >= 0 {
		return fmt.Sprintf("%s %s %d: %v", e.Op, e.Entity, e.ID, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Entity, e.Err)
}

func (e *StoreError) Unwrap() []error { return []error{ErrStore, e.Err} }

// NotFoundError is returned by point queries that match no catalog row.
type NotFoundError struct {
	Family Family
	ID     int32
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Family, e.ID)
}

func (e NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError is returned by backends when a write collides with another
// writer or with an existing title.
type ConflictError struct {
	Family Family
	Title  string
	Reason string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Family, e.Title, e.Reason)
}

func (e ConflictError) Unwrap() error { return ErrConflict }

// UnsupportedError marks a declared field whose non-default values are not
// implemented.
type UnsupportedError struct {
	Entity string
	Field  string
	Value  any
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s %s=%v is not supported", e.Entity, e.Field, e.Value)
}

func (e *UnsupportedError) Unwrap() error { return ErrUnsupported }
