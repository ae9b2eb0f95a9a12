package errs

import (
	"errors"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrAlreadyProcessed  = errors.New("request already processed")
	ErrOutOfStock        = errors.New("no available copies")
	ErrUnauthorized      = errors.New("actor is not allowed to perform this action")
	ErrDuplicateRequest  = errors.New("duplicate request")
	ErrValidation        = errors.New("validation failed")
	ErrIneligible        = errors.New("user is not eligible")
	ErrExternalService   = errors.New("external service failure")
)
