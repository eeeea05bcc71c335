package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound        = errors.New("resource not found")
	ErrConflict        = errors.New("resource already exists")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInternalServer  = errors.New("internal server error")

	// Store errors: read-side flood checks must map this to a deny
	// decision, write paths surface it to the caller as a hard failure.
	ErrStoreUnavailable = errors.New("persistent store unavailable")

	// Flood protection and second-factor errors
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrInvalidCode     = errors.New("invalid code")
	ErrNotEnrolled     = errors.New("two-factor authentication not enrolled")
	ErrAlreadyEnrolled = errors.New("two-factor authentication already enrolled")
)
