package storage

import "errors"

var (
	// ErrConnection is returned when the backend cannot be reached.
	ErrConnection = errors.New("database connection failed")

	// ErrIntegrityViolation is returned when a write does not affect
	// exactly the expected number of rows, or violates a unique key.
	ErrIntegrityViolation = errors.New("integrity violation")

	// ErrTimeout is returned when a statement exceeds the query timeout.
	ErrTimeout = errors.New("query timed out")
)
