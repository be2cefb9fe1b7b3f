package service

import (
	"errors"
	"fmt"

	"mediagate/internal/auth"
)

// Error categories. Handlers map these to status codes; anything that
// matches none of them is an internal error.
var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnsupportedType     = errors.New("unsupported media type")
	ErrStorage             = errors.New("storage fault")
	ErrConflict            = errors.New("conflict")
	ErrRangeNotSatisfiable = errors.New("range not satisfiable")
)

// Specific failures, each wrapping exactly one category.
var (
	ErrIDRequired          = fmt.Errorf("%w: id is required", ErrInvalidInput)
	ErrReaderNil           = fmt.Errorf("%w: reader is nil", ErrInvalidInput)
	ErrPasswordRequired    = fmt.Errorf("%w: password is required", ErrInvalidInput)
	ErrPasswordTooShort    = fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinAccessPasswordLen)
	ErrPasswordTooLong     = fmt.Errorf("%w: password must be at most %d bytes", ErrInvalidInput, auth.MaxPasswordBytes)
	ErrOwnerRequired       = fmt.Errorf("%w: owner is required", ErrInvalidInput)
	ErrMediaNotFound       = fmt.Errorf("%w: media not found", ErrNotFound)
	ErrFileMissing         = fmt.Errorf("%w: file not found on server", ErrNotFound)
	ErrIncorrectPassword   = fmt.Errorf("%w: incorrect password", ErrUnauthorized)
	ErrInvalidCredentials  = fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	ErrEmailTaken          = fmt.Errorf("%w: user already exists with this email", ErrConflict)
	ErrAdminBootstrapUnset = fmt.Errorf("%w: no admin exists and no bootstrap password is configured", ErrInvalidInput)
)

// RangeError carries the object size a 416 response must advertise.
type RangeError struct {
	Size int64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("range not satisfiable for %d bytes", e.Size)
}

func (e *RangeError) Unwrap() error { return ErrRangeNotSatisfiable }

// ValidationError reports request field failures collected by the validator.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %d field(s)", len(e.Fields))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }
