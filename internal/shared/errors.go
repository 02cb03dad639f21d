package shared

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
)

// ValidationError reports every rule violation found in a request,
// keyed by field path ("supplierId", "lines[2].commodityCode", ...).
// Callers must accumulate the full set before returning one.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewValidationError wraps a violation map. Returns nil when the map is empty
// so gate evaluation can be returned directly.
func NewValidationError(fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

// NotFoundError identifies the missing entity.
type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v: not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictError signals a concurrent-modification or uniqueness conflict.
// The request may succeed when retried against fresh state.
type ConflictError struct {
	Detail string
}

func (e *ConflictError) Error() string { return "conflict: " + e.Detail }

// StateError signals an operation that the entity's lifecycle state forbids,
// as opposed to incomplete data (ValidationError).
type StateError struct {
	Detail string
}

func (e *StateError) Error() string { return "invalid state: " + e.Detail }

// ExternalDependencyError wraps a collaborator failure (document store,
// rate provider, renderer) so handlers can report 502 instead of 500.
type ExternalDependencyError struct {
	Collaborator string
	Err          error
}

func (e *ExternalDependencyError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Collaborator, e.Err)
}

func (e *ExternalDependencyError) Unwrap() error { return e.Err }
