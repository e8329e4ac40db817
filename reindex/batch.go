package reindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/knowbank/core"
	"github.com/poiesic/knowbank/extract"
)

// Target is the bank a reindex writes into.
type Target interface {
	Restore(snap core.Snapshot) error
	Assign(docID core.DocID, ext core.Extraction) (core.CommitResult, error)
	Metadata(id core.DocID) (*core.DocumentMetadata, bool)
}

// batchStats summarizes one processed batch.
type batchStats struct {
	created   int
	fallbacks int
}

// BatchProcessor extracts concepts for batches of documents and places
// them into the target's clusters.
type BatchProcessor struct {
	target         Target
	extractor      extract.ConceptExtractor
	maxRetries     int
	retryBaseDelay time.Duration
	logger         *slog.Logger
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of extractor attempts per document
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(target Target, extractor extract.ConceptExtractor, maxRetries int, retryBaseDelay time.Duration, logger *slog.Logger) *BatchProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchProcessor{
		target:         target,
		extractor:      extractor,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
		logger:         logger,
	}
}

// Process places every document of the batch, in order.
func (bp *BatchProcessor) Process(ctx context.Context, docs []core.StoredDocument) (batchStats, error) {
	var stats batchStats
	for _, doc := range docs {
		sourceType := ""
		if md, ok := bp.target.Metadata(doc.ID); ok {
			sourceType = md.SourceType
		}

		var ext core.Extraction
		err := RetryWithBackoff(ctx, func() error {
			var err error
			ext, err = bp.extractor.Extract(ctx, doc.Text, sourceType)
			if errors.Is(err, extract.ErrEmptyText) {
				return Permanent(err)
			}
			return err
		}, bp.maxRetries, bp.retryBaseDelay)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return stats, ctxErr
			}
			bp.logger.Warn("concept extraction failed, using fallback", "doc_id", doc.ID, "err", err)
			ext = core.FallbackExtraction()
			stats.fallbacks++
		}

		res, err := bp.target.Assign(doc.ID, ext)
		if err != nil {
			return stats, fmt.Errorf("failed to place document %d: %w", doc.ID, err)
		}
		if res.Created {
			stats.created++
		}
	}
	return stats, nil
}
