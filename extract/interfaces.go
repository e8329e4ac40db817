package extract

import (
	"context"

	"github.com/poiesic/knowbank/core"
)

// ConceptExtractor extracts clustering signals from document text.
// Implementations must be safe for concurrent use.
type ConceptExtractor interface {
	// Extract analyzes text and returns its concepts, skill level, primary
	// topic and suggested cluster. sourceType describes where the text came
	// from ("text", "url", "pdf", ...) and may be used as a hint.
	Extract(ctx context.Context, text string, sourceType string) (core.Extraction, error)
}
