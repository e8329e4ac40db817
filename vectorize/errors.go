package vectorize

import "errors"

var (
	// ErrInvalidDimension indicates a non-positive hashing dimension.
	ErrInvalidDimension = errors.New("dimension must be greater than zero")

	// ErrInvalidNGramSize indicates a negative n-gram size.
	ErrInvalidNGramSize = errors.New("n-gram size must not be negative")
)
