package badger

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/knowbank/core"
	"github.com/poiesic/knowbank/storage"
)

// Repository implements storage.Repository for BadgerDB.
type Repository struct {
	backend *Backend
	closed  atomic.Bool
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a Repository on top of an open backend.
func NewRepository(backend *Backend) *Repository {
	return &Repository{backend: backend}
}

// Close marks the repository closed. The backend stays open.
func (r *Repository) Close() error {
	r.closed.Store(true)
	return nil
}

func (r *Repository) check(ctx context.Context) error {
	if r.closed.Load() || r.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	return ctx.Err()
}

// SaveDocument stores a document's text and fingerprint.
func (r *Repository) SaveDocument(ctx context.Context, doc core.StoredDocument) error {
	if err := r.check(ctx); err != nil {
		return err
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeDocumentKey(doc.ID), storage.MarshalDocument(doc)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// DeleteDocument removes a document and its metadata.
func (r *Repository) DeleteDocument(ctx context.Context, id core.DocID) error {
	if err := r.check(ctx); err != nil {
		return err
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(makeDocumentKey(id)); err != nil {
			return err
		}
		if err := tx.Delete(makeMetadataKey(id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetDocument reads one document.
func (r *Repository) GetDocument(ctx context.Context, id core.DocID) (core.StoredDocument, error) {
	if err := r.check(ctx); err != nil {
		return core.StoredDocument{}, err
	}
	var doc core.StoredDocument
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeDocumentKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: document %d", storage.ErrNotFound, id)
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var err error
			doc, err = storage.UnmarshalDocument(val)
			return err
		})
	}, false)
	return doc, err
}

// ForEachDocument walks documents in ascending id order.
func (r *Repository) ForEachDocument(ctx context.Context, fn func(core.StoredDocument) error) error {
	if err := r.check(ctx); err != nil {
		return err
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		return scan(ctx, tx, documentPrefix, func(val []byte) error {
			doc, err := storage.UnmarshalDocument(val)
			if err != nil {
				return err
			}
			return fn(doc)
		})
	}, false)
}

// SaveMetadata stores a document's metadata.
func (r *Repository) SaveMetadata(ctx context.Context, md *core.DocumentMetadata) error {
	if err := r.check(ctx); err != nil {
		return err
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeMetadataKey(md.DocID), storage.MarshalMetadata(md)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// SaveClusters upserts clusters.
func (r *Repository) SaveClusters(ctx context.Context, clusters ...*core.Cluster) error {
	if err := r.check(ctx); err != nil {
		return err
	}
	if len(clusters) == 0 {
		return nil
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, c := range clusters {
			if err := tx.Set(makeClusterKey(c.ID), storage.MarshalCluster(c)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// ReplaceClusters deletes every stored cluster and writes the given ones in
// the same transaction.
func (r *Repository) ReplaceClusters(ctx context.Context, clusters []*core.Cluster) error {
	if err := r.check(ctx); err != nil {
		return err
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		var stale [][]byte
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(clusterPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		for iter.Rewind(); iter.Valid(); iter.Next() {
			stale = append(stale, iter.Item().KeyCopy(nil))
		}
		iter.Close()

		for _, key := range stale {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		for _, c := range clusters {
			if err := tx.Set(makeClusterKey(c.ID), storage.MarshalCluster(c)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// LoadSnapshot reads documents, metadata and clusters in one read
// transaction.
func (r *Repository) LoadSnapshot(ctx context.Context) (core.Snapshot, error) {
	if err := r.check(ctx); err != nil {
		return core.Snapshot{}, err
	}
	var snap core.Snapshot
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		err := scan(ctx, tx, documentPrefix, func(val []byte) error {
			doc, err := storage.UnmarshalDocument(val)
			if err != nil {
				return err
			}
			snap.Documents = append(snap.Documents, doc)
			return nil
		})
		if err != nil {
			return err
		}
		err = scan(ctx, tx, metadataPrefix, func(val []byte) error {
			md, err := storage.UnmarshalMetadata(val)
			if err != nil {
				return err
			}
			snap.Metadata = append(snap.Metadata, md)
			return nil
		})
		if err != nil {
			return err
		}
		return scan(ctx, tx, clusterPrefix, func(val []byte) error {
			c, err := storage.UnmarshalCluster(val)
			if err != nil {
				return err
			}
			snap.Clusters = append(snap.Clusters, c)
			return nil
		})
	}, false)
	if err != nil {
		return core.Snapshot{}, err
	}
	return snap, nil
}

// scan iterates all values under prefix in key order.
func scan(ctx context.Context, tx *badger.Txn, prefix string, fn func(val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := iter.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}
