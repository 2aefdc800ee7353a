package scanning

import "errors"

var (
	// ErrInvalidInput is returned when a scan request is rejected before any
	// background work starts.
	ErrInvalidInput = errors.New("invalid input")

	// ErrJobNotFound is returned when no job exists for an id.
	ErrJobNotFound = errors.New("job not found")
)
