package mock

import (
	"context"
	"sync/atomic"

	"github.com/poiesic/knowbank/core"
	"github.com/poiesic/knowbank/extract"
)

// MockConceptExtractor is a test double for extract.ConceptExtractor.
// It allows custom behavior injection via a function field and is safe for
// concurrent use as long as ExtractFunc is set before use.
type MockConceptExtractor struct {
	// ExtractFunc is called by Extract if set.
	// If nil, the keyword extractor's result is returned.
	ExtractFunc func(ctx context.Context, text, sourceType string) (core.Extraction, error)

	fallback  *extract.KeywordExtractor
	callCount atomic.Int64
}

var _ extract.ConceptExtractor = (*MockConceptExtractor)(nil)

// NewMockConceptExtractor creates a mock concept extractor with default
// behavior.
func NewMockConceptExtractor() *MockConceptExtractor {
	return &MockConceptExtractor{fallback: extract.NewKeywordExtractor()}
}

// Fixed returns a mock that always returns ext.
func Fixed(ext core.Extraction) *MockConceptExtractor {
	m := NewMockConceptExtractor()
	m.ExtractFunc = func(context.Context, string, string) (core.Extraction, error) {
		return ext, nil
	}
	return m
}

// Failing returns a mock that always fails with err.
func Failing(err error) *MockConceptExtractor {
	m := NewMockConceptExtractor()
	m.ExtractFunc = func(context.Context, string, string) (core.Extraction, error) {
		return core.Extraction{}, err
	}
	return m
}

// Extract implements extract.ConceptExtractor.
func (m *MockConceptExtractor) Extract(ctx context.Context, text, sourceType string) (core.Extraction, error) {
	m.callCount.Add(1)

	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, text, sourceType)
	}
	return m.fallback.Extract(ctx, text, sourceType)
}

// CallCount returns the number of times Extract was called.
func (m *MockConceptExtractor) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears the call count and custom function.
func (m *MockConceptExtractor) Reset() {
	m.callCount.Store(0)
	m.ExtractFunc = nil
}
