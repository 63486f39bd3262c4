package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// CodeEntityNotFound indicates the entity store has no row for the id.
	CodeEntityNotFound ErrorCode = "ENTITY_NOT_FOUND"

	// CodeFormulaTooComplex indicates an expression exceeded the depth limit.
	CodeFormulaTooComplex ErrorCode = "FORMULA_TOO_COMPLEX"

	// CodeCircularDependency indicates the dependency graph contains a cycle.
	CodeCircularDependency ErrorCode = "CIRCULAR_DEPENDENCY"

	// CodeForbiddenPath indicates an effect patch targets a non-whitelisted field.
	CodeForbiddenPath ErrorCode = "FORBIDDEN_PATH"

	// CodeOptimisticLockConflict indicates a version mismatch on update.
	CodeOptimisticLockConflict ErrorCode = "OPTIMISTIC_LOCK_CONFLICT"

	// CodeEvaluationError indicates an operator was applied to incompatible operands.
	CodeEvaluationError ErrorCode = "EVALUATION_ERROR"

	// CodeStoreUnavailable indicates an I/O failure from a collaborator.
	CodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
)

// Error is the typed error for the engine taxonomy.
//
// Path carries the offending location: a cycle path for
// CIRCULAR_DEPENDENCY, a patch path for FORBIDDEN_PATH. Details carries
// additional diagnostic context.
type Error struct {
	Code    ErrorCode
	Message string
	Path    []string
	Details map[string]string
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Path) > 0 {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(e.Path, " -> "))
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// CodeOf returns the taxonomy code of err, or "" if err is not a model.Error.
func CodeOf(err error) ErrorCode {
	var me *Error
	if errors.As(err, &me) {
		return me.Code
	}
	return ""
}

// IsNotFound reports whether err is an ENTITY_NOT_FOUND error.
func IsNotFound(err error) bool { return CodeOf(err) == CodeEntityNotFound }

// IsTooComplex reports whether err is a FORMULA_TOO_COMPLEX error.
func IsTooComplex(err error) bool { return CodeOf(err) == CodeFormulaTooComplex }

// IsCircular reports whether err is a CIRCULAR_DEPENDENCY error.
func IsCircular(err error) bool { return CodeOf(err) == CodeCircularDependency }

// IsForbiddenPath reports whether err is a FORBIDDEN_PATH error.
func IsForbiddenPath(err error) bool { return CodeOf(err) == CodeForbiddenPath }

// IsConflict reports whether err is an OPTIMISTIC_LOCK_CONFLICT error.
func IsConflict(err error) bool { return CodeOf(err) == CodeOptimisticLockConflict }

// IsStoreUnavailable reports whether err is a STORE_UNAVAILABLE error.
func IsStoreUnavailable(err error) bool { return CodeOf(err) == CodeStoreUnavailable }

// NewEntityNotFound creates an ENTITY_NOT_FOUND error.
func NewEntityNotFound(entityType, entityID string) *Error {
	return &Error{
		Code:    CodeEntityNotFound,
		Message: fmt.Sprintf("entity %s/%s not found", entityType, entityID),
		Details: map[string]string{"entity_type": entityType, "entity_id": entityID},
	}
}

// NewFormulaTooComplex creates a FORMULA_TOO_COMPLEX error.
func NewFormulaTooComplex(depth, limit int) *Error {
	return &Error{
		Code:    CodeFormulaTooComplex,
		Message: fmt.Sprintf("expression depth %d exceeds limit %d", depth, limit),
		Details: map[string]string{
			"depth": fmt.Sprintf("%d", depth),
			"limit": fmt.Sprintf("%d", limit),
		},
	}
}

// NewCircularDependency creates a CIRCULAR_DEPENDENCY error naming the cycle.
// The path lists node keys in cycle order, first node repeated last.
func NewCircularDependency(path []string) *Error {
	return &Error{
		Code:    CodeCircularDependency,
		Message: "dependency cycle detected",
		Path:    path,
	}
}

// NewForbiddenPath creates a FORBIDDEN_PATH error for a patch target.
func NewForbiddenPath(entityType, path string) *Error {
	return &Error{
		Code:    CodeForbiddenPath,
		Message: fmt.Sprintf("patch path %q is not writable for entity type %q", path, entityType),
		Path:    []string{path},
		Details: map[string]string{"entity_type": entityType},
	}
}

// NewConflict creates an OPTIMISTIC_LOCK_CONFLICT error.
func NewConflict(kind, id string, expectedVersion int64) *Error {
	return &Error{
		Code:    CodeOptimisticLockConflict,
		Message: fmt.Sprintf("%s %s changed concurrently (expected version %d)", kind, id, expectedVersion),
		Details: map[string]string{
			"kind":             kind,
			"id":               id,
			"expected_version": fmt.Sprintf("%d", expectedVersion),
		},
	}
}

// NewEvaluationError creates an EVALUATION_ERROR for an operator misuse.
func NewEvaluationError(op, msg string) *Error {
	return &Error{
		Code:    CodeEvaluationError,
		Message: fmt.Sprintf("operator %q: %s", op, msg),
		Details: map[string]string{"operator": op},
	}
}

// NewStoreUnavailable wraps a collaborator I/O failure.
func NewStoreUnavailable(op string, cause error) *Error {
	return &Error{
		Code:    CodeStoreUnavailable,
		Message: fmt.Sprintf("%s: %v", op, cause),
		cause:   cause,
	}
}
