package reservation

import "errors"

// Sentinel errors for reservation operations.
var (
	// ErrNotFound indicates the reservation, kennel, store, or user
	// does not exist.
	ErrNotFound = errors.New("reservation: not found")

	// ErrUnauthorized indicates an unlock code mismatch.
	ErrUnauthorized = errors.New("reservation: unauthorized")

	// ErrUnavailable indicates no free kennel fits the requested size.
	// This is a normal negative outcome, not a failure.
	ErrUnavailable = errors.New("reservation: no kennel available")

	// ErrExternalService indicates the catalog could not complete a
	// state-changing call, so the operation was aborted.
	ErrExternalService = errors.New("reservation: external service failure")
)
