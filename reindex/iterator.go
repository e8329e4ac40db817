package reindex

import (
	"context"

	"github.com/poiesic/knowbank/core"
	"github.com/poiesic/knowbank/storage"
)

// DefaultBatchSize is the default number of documents handed to one batch.
const DefaultBatchSize = 100

// DocumentIterator walks the stored documents in ascending id order,
// grouping them into batches.
type DocumentIterator struct {
	repo      storage.Repository
	batchSize int
}

// NewDocumentIterator creates a new document iterator.
// batchSize: number of documents per batch; values <= 0 use DefaultBatchSize
func NewDocumentIterator(repo storage.Repository, batchSize int) *DocumentIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &DocumentIterator{repo: repo, batchSize: batchSize}
}

// ForEach calls fn for each batch. Iteration stops on the first error from
// fn. Context cancellation is checked between batches.
func (it *DocumentIterator) ForEach(ctx context.Context, fn func([]core.StoredDocument) error) error {
	batch := make([]core.StoredDocument, 0, it.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		batch = make([]core.StoredDocument, 0, it.batchSize)
		return ctx.Err()
	}

	err := it.repo.ForEachDocument(ctx, func(doc core.StoredDocument) error {
		batch = append(batch, doc)
		if len(batch) == it.batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return err
	}
	return flush()
}
