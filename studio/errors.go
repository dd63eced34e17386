package studio

import "errors"

var (
	// ErrNotFound is returned when an operation targets a missing id.
	ErrNotFound = errors.New("studio: record not found")
	// ErrValidation is returned for malformed input, such as an
	// unresolvable foreign key on create. Nothing is written.
	ErrValidation = errors.New("studio: validation failed")
)
