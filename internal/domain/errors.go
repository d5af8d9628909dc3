package domain

import "errors"

// Sentinels for the lifecycle error taxonomy. Callers match them with errors.Is.
var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrUnauthorized      = errors.New("actor not permitted")
	ErrAlreadyRated      = errors.New("ticket already rated")
	ErrPersistence       = errors.New("persistence failure")
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
)
