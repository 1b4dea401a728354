package domain

import "errors"

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrNotFound            = errors.New("resource not found")
	ErrConflict            = errors.New("conflict")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrIdempotencyConflict = errors.New("idempotency conflict")
	ErrStorageUnavailable  = errors.New("storage unavailable")

	ErrInvalidTransition  = errors.New("invalid license status transition")
	ErrLicenseNotUsable   = errors.New("license is not usable")
	ErrNoAvailableSeats   = errors.New("no available seats")
	ErrAlreadyActivated   = errors.New("instance already activated")
	ErrNotCurrentlyActive = errors.New("activation is not currently active")
	ErrActivationNotFound = errors.New("activation not found")
)
