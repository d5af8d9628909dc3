package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return &DomainError{
		Code:       "VALIDATION_FAILED",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
		Err:        domain.ErrValidation,
	}
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
		Err:        domain.ErrNotFound,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

// NewForbidden reports an authenticated actor that may not perform the operation.
func NewForbidden(message string) error {
	return &DomainError{
		Code:       "FORBIDDEN",
		Message:    message,
		HTTPStatus: http.StatusForbidden,
		Err:        domain.ErrUnauthorized,
	}
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

// NewInvalidTransition reports a state machine violation.
func NewInvalidTransition(from domain.TicketStatus, operation string) error {
	return &DomainError{
		Code:       "INVALID_TRANSITION",
		Message:    fmt.Sprintf("%s not allowed while ticket is %s", operation, from),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"status": from, "operation": operation},
		Err:        domain.ErrInvalidTransition,
	}
}

func NewAlreadyRated() error {
	return &DomainError{
		Code:       "ALREADY_RATED",
		Message:    "ticket already rated",
		HTTPStatus: http.StatusConflict,
		Err:        domain.ErrAlreadyRated,
	}
}

// NewPersistenceError wraps a store failure. The cause stays reachable through errors.Is.
func NewPersistenceError(err error) error {
	return &DomainError{
		Code:       "PERSISTENCE_ERROR",
		Message:    "storage failure",
		HTTPStatus: http.StatusInternalServerError,
		Err:        errors.Join(domain.ErrPersistence, err),
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	switch {
	case errors.Is(err, pgx.ErrNoRows), errors.Is(err, domain.ErrNotFound):
		return NewNotFound("resource", nil).(*DomainError)
	case errors.Is(err, domain.ErrPersistence):
		return NewPersistenceError(err).(*DomainError)
	}
	return NewInternalError(err).(*DomainError)
}

// MapError converts generic errors to DomainError.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}
