package storage

import (
	"context"

	"github.com/poiesic/knowbank/core"
)

// Repository persists the state needed to rebuild a bank.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// SaveDocument stores a document's text under its id, replacing any
	// previous record with the same id.
	SaveDocument(ctx context.Context, doc core.StoredDocument) error

	// DeleteDocument removes a document and its metadata. Deleting an
	// unknown id is not an error.
	DeleteDocument(ctx context.Context, id core.DocID) error

	// GetDocument reads one document.
	// Returns ErrNotFound if the id is unknown.
	GetDocument(ctx context.Context, id core.DocID) (core.StoredDocument, error)

	// ForEachDocument calls fn for every stored document in ascending id
	// order, stopping at the first error fn returns.
	ForEachDocument(ctx context.Context, fn func(core.StoredDocument) error) error

	// SaveMetadata stores a document's metadata.
	SaveMetadata(ctx context.Context, md *core.DocumentMetadata) error

	// SaveClusters upserts the given clusters.
	SaveClusters(ctx context.Context, clusters ...*core.Cluster) error

	// ReplaceClusters replaces the whole stored cluster registry.
	ReplaceClusters(ctx context.Context, clusters []*core.Cluster) error

	// LoadSnapshot reads everything. Documents and clusters are returned
	// in ascending id order.
	LoadSnapshot(ctx context.Context) (core.Snapshot, error)

	// Close releases resources held by the repository. It does not close a
	// shared backend.
	Close() error
}
