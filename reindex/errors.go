package reindex

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrRepositoryRequired is returned when a repository is not provided.
	ErrRepositoryRequired = errors.New("repository required")

	// ErrTargetRequired is returned when a target bank is not provided.
	ErrTargetRequired = errors.New("target bank required")

	// ErrExtractorRequired is returned when reclustering without an extractor.
	ErrExtractorRequired = errors.New("concept extractor required to recluster")
)
