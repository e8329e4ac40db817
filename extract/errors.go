package extract

import "errors"

var (
	// ErrMalformedResponse indicates an extraction reply that could not be
	// decoded even after repair.
	ErrMalformedResponse = errors.New("malformed extraction response")

	// ErrEmptyText indicates there was nothing to extract from.
	ErrEmptyText = errors.New("text is empty")
)
