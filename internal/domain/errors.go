// Package domain provides shared domain-level sentinel errors.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrSettingNotFound indicates the owning tenant exists but the requested
// setting key does not. It unwraps to ErrNotFound so generic 404 mapping
// still applies; handlers match it first to name the setting rather than
// the tenant in the response.
var ErrSettingNotFound = fmt.Errorf("setting %w", ErrNotFound)

// ErrSlugExists indicates a tenant slug collided with an existing one.
// The database unique constraint is the authoritative source of this error;
// advisory pre-checks surface it early but never replace the constraint.
var ErrSlugExists = errors.New("slug already exists")

// ErrEmailExists indicates a user email collided with an existing account.
var ErrEmailExists = errors.New("email already exists")

// ErrInvalidOperation indicates an operation was attempted outside its
// preconditions, such as a tenant-aware query without an active tenant context.
var ErrInvalidOperation = errors.New("invalid operation")

// ErrUnauthorized indicates missing, invalid, or expired credentials.
var ErrUnauthorized = errors.New("unauthorized")

// ErrValidation indicates input failed shape or format validation.
var ErrValidation = errors.New("validation failed")

// FieldError describes a single invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates per-field validation failures. It unwraps to
// ErrValidation so callers can match with errors.Is.
type ValidationError struct {
	Fields []FieldError
}

// NewValidationError builds a ValidationError from field/message pairs.
func NewValidationError(fields ...FieldError) *ValidationError {
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
