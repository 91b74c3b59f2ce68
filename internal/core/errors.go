package core

import "errors"

var (
	// ErrValidation marks bad input: unknown status, invalid dates, bad flight number.
	ErrValidation = errors.New("validation error")
	// ErrPrecondition marks an operation attempted in the wrong state.
	ErrPrecondition = errors.New("precondition failed")
	// ErrInvalidMode marks an operation not allowed for the request's email mode.
	ErrInvalidMode = errors.New("invalid email mode")
	// ErrAlreadyConfirmed is returned when a manual email is confirmed twice.
	ErrAlreadyConfirmed = errors.New("email already confirmed")
	// ErrNotFound is also returned when the caller does not own the resource.
	ErrNotFound = errors.New("not found")
	// ErrConcurrentUpdate is returned when a row changed since it was read.
	ErrConcurrentUpdate = errors.New("concurrent update")
	// ErrExternalService marks a mail transport failure.
	ErrExternalService = errors.New("external service error")
	// ErrInvalidCredentials is returned by login for an unknown email or wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
