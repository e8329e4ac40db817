package ingestion

import "errors"

var (
	// ErrBankRequired is returned when a bank is not provided.
	ErrBankRequired = errors.New("bank required")

	// ErrExtractorRequired is returned when a concept extractor is not provided.
	ErrExtractorRequired = errors.New("concept extractor required")

	// ErrPipelineReleased is returned by Ingest after Release.
	ErrPipelineReleased = errors.New("pipeline released")
)
