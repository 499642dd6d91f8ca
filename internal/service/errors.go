// Package service implements the intake workflows: submission, listing,
// status transitions, chat and password recovery. Handlers translate the
// errors declared here into HTTP statuses.
package service

import (
	"errors"
	"strings"

	"github.com/iliyamo/medconcierge/internal/repository"
)

var (
	// ErrNotFound also covers rows the actor may not see, so clients cannot
	// probe for other users' applications.
	ErrNotFound = repository.ErrNotFound

	ErrUserExists       = errors.New("user already exists")
	ErrInvalidStatus    = errors.New("invalid status")
	ErrStatusUnchanged  = errors.New("status unchanged")
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidResetCode = errors.New("invalid or expired code")
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned before any side effect when input is rejected.
type ValidationError struct {
	Details []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		parts = append(parts, d.Field+" "+d.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func invalid(details ...FieldError) error {
	return &ValidationError{Details: details}
}
