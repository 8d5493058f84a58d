package catalog

import "errors"

// Sentinel errors for catalog operations.
var (
	// ErrNotFound indicates the requested resource does not exist in the catalog.
	ErrNotFound = errors.New("catalog: not found")

	// ErrUnauthorized indicates the catalog rejected our credentials.
	ErrUnauthorized = errors.New("catalog: unauthorized")

	// ErrService indicates the catalog failed or was unreachable.
	ErrService = errors.New("catalog: service failure")
)
