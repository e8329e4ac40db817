// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package knowbank

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/poiesic/knowbank/core"
	"github.com/poiesic/knowbank/export"
	"github.com/poiesic/knowbank/extract"
	"github.com/poiesic/knowbank/ingestion"
	"github.com/poiesic/knowbank/rag"
	"github.com/poiesic/knowbank/reindex"
	"github.com/poiesic/knowbank/search"
	"github.com/poiesic/knowbank/storage"
	"github.com/poiesic/knowbank/storage/badger"
)

// Database is a Bank backed by a badger store. Every mutation made through
// the Database is written through to storage, and the bank is rebuilt from
// storage when the Database is opened.
type Database struct {
	backend   *badger.Backend
	repo      storage.Repository
	extractor extract.ConceptExtractor
	bankOpts  []Option
	logger    *slog.Logger

	// persistMu orders storage writes so the store always converges on the
	// latest bank state.
	persistMu sync.Mutex
	bankMu    sync.RWMutex
	bank      *Bank
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	inMemory  bool
	extractor extract.ConceptExtractor
	bankOpts  []Option
	logger    *slog.Logger
}

// WithInMemory keeps all data in memory. filePath is ignored.
func WithInMemory() DatabaseOption {
	return func(o *databaseOptions) {
		o.inMemory = true
	}
}

// WithExtractor sets the concept extractor used by ingestion and reindexing.
// The default is an offline keyword extractor.
func WithExtractor(extractor extract.ConceptExtractor) DatabaseOption {
	return func(o *databaseOptions) {
		o.extractor = extractor
	}
}

// WithBankOptions passes options to the underlying Bank.
func WithBankOptions(opts ...Option) DatabaseOption {
	return func(o *databaseOptions) {
		o.bankOpts = append(o.bankOpts, opts...)
	}
}

// WithDatabaseLogger sets the logger for the database and its bank.
func WithDatabaseLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// NewDatabase opens (or creates) the store at filePath and restores the bank
// from it. Integrity faults found while restoring are logged and the
// database is still opened so it can be inspected and repaired.
func NewDatabase(filePath string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if options.extractor == nil {
		options.extractor = extract.NewKeywordExtractor(extract.WithKeywordLogger(options.logger))
	}
	bankOpts := append([]Option{WithLogger(options.logger)}, options.bankOpts...)

	bank, err := New(bankOpts...)
	if err != nil {
		return nil, err
	}

	backend, err := badger.OpenBackend(filePath, options.inMemory, options.logger)
	if err != nil {
		return nil, err
	}
	repo := badger.NewRepository(backend)

	db := &Database{
		backend:   backend,
		repo:      repo,
		extractor: options.extractor,
		bankOpts:  bankOpts,
		bank:      bank,
		logger:    options.logger.With("component", "database"),
	}

	snap, err := repo.LoadSnapshot(context.Background())
	if err != nil {
		db.Close()
		if errors.Is(err, storage.ErrFingerprintMismatch) {
			return nil, fmt.Errorf("%w: %w", core.ErrIntegrityFault, err)
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if err := bank.Restore(snap); err != nil {
		if !errors.Is(err, core.ErrIntegrityFault) {
			db.Close()
			return nil, err
		}
		db.logger.Error("bank restored with integrity faults", "err", err)
	}
	return db, nil
}

// Close closes the repository and then the backend.
func (db *Database) Close() error {
	if err := db.repo.Close(); err != nil {
		db.logger.Error("error closing repository", "err", err)
		return err
	}
	if err := db.backend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

// Bank returns the live bank. Changes made directly on it are not persisted.
func (db *Database) Bank() *Bank {
	db.bankMu.RLock()
	defer db.bankMu.RUnlock()
	return db.bank
}

func (db *Database) Repository() storage.Repository {
	return db.repo
}

// Commit adds text to the bank with a precomputed extraction and persists it.
// The bank update and the write happen under the persist lock, so a
// concurrent Reindex either sees the stored document or runs afterwards.
func (db *Database) Commit(ctx context.Context, text string, ext core.Extraction, meta *core.DocumentMetadata) (CommitResult, error) {
	db.persistMu.Lock()
	defer db.persistMu.Unlock()

	bank := db.Bank()
	res, err := bank.Commit(text, ext, meta)
	if err != nil {
		return res, err
	}
	return res, db.persistCommitLocked(ctx, bank, res)
}

// PersistCommit writes a committed document, its metadata and its cluster.
// A document removed since the commit is skipped.
func (db *Database) PersistCommit(ctx context.Context, res CommitResult) error {
	db.persistMu.Lock()
	defer db.persistMu.Unlock()
	return db.persistCommitLocked(ctx, db.Bank(), res)
}

func (db *Database) persistCommitLocked(ctx context.Context, bank *Bank, res CommitResult) error {
	doc, ok := bank.Document(res.DocID)
	if !ok {
		db.logger.Debug("skipping persist of removed document", "doc_id", res.DocID)
		return nil
	}
	if err := db.repo.SaveDocument(ctx, core.StoredDocument{ID: doc.ID, Text: doc.Text}); err != nil {
		return fmt.Errorf("failed to save document %d: %w", res.DocID, err)
	}
	if md, ok := bank.Metadata(res.DocID); ok {
		if err := db.repo.SaveMetadata(ctx, md); err != nil {
			return fmt.Errorf("failed to save metadata %d: %w", res.DocID, err)
		}
	}
	if c, ok := bank.Cluster(res.ClusterID); ok {
		if err := db.repo.SaveClusters(ctx, c); err != nil {
			return fmt.Errorf("failed to save cluster %d: %w", res.ClusterID, err)
		}
	}
	return nil
}

// Remove deletes a document from the bank and from storage. It reports
// whether the document existed.
func (db *Database) Remove(ctx context.Context, id core.DocID) (bool, error) {
	db.persistMu.Lock()
	defer db.persistMu.Unlock()

	bank := db.Bank()
	from, ok := bank.RemoveDocument(id)
	if !ok {
		return false, nil
	}
	if err := db.repo.DeleteDocument(ctx, id); err != nil {
		return true, fmt.Errorf("failed to delete document %d: %w", id, err)
	}
	if c, ok := bank.Cluster(from); ok {
		if err := db.repo.SaveClusters(ctx, c); err != nil {
			return true, fmt.Errorf("failed to save cluster %d: %w", from, err)
		}
	}
	return true, nil
}

// Reassign moves a document to another cluster and persists its metadata
// and the two clusters involved. Reassigning a document to the cluster that
// already holds it writes nothing.
func (db *Database) Reassign(ctx context.Context, docID core.DocID, to core.ClusterID) error {
	db.persistMu.Lock()
	defer db.persistMu.Unlock()

	bank := db.Bank()
	from, err := bank.Reassign(docID, to)
	if err != nil {
		return err
	}
	if from == to {
		return nil
	}
	if md, ok := bank.Metadata(docID); ok {
		if err := db.repo.SaveMetadata(ctx, md); err != nil {
			return fmt.Errorf("failed to save metadata %d: %w", docID, err)
		}
	}

	changed := make([]*core.Cluster, 0, 2)
	for _, id := range []core.ClusterID{from, to} {
		if c, ok := bank.Cluster(id); ok {
			changed = append(changed, c)
		}
	}
	if err := db.repo.SaveClusters(ctx, changed...); err != nil {
		return fmt.Errorf("failed to save clusters %d and %d: %w", from, to, err)
	}
	return nil
}

// UpdateMetadata changes a document's primary topic and skill level and
// persists the result. A nil argument leaves that field unchanged.
func (db *Database) UpdateMetadata(ctx context.Context, docID core.DocID, topic *string, skill *core.SkillLevel) (*core.DocumentMetadata, error) {
	db.persistMu.Lock()
	defer db.persistMu.Unlock()

	md, err := db.Bank().UpdateMetadata(docID, topic, skill)
	if err != nil {
		return nil, err
	}
	if err := db.repo.SaveMetadata(ctx, md); err != nil {
		return nil, fmt.Errorf("failed to save metadata %d: %w", docID, err)
	}
	return md, nil
}

// RenameCluster renames a cluster and persists it.
func (db *Database) RenameCluster(ctx context.Context, id core.ClusterID, name string) error {
	db.persistMu.Lock()
	defer db.persistMu.Unlock()

	bank := db.Bank()
	if err := bank.RenameCluster(id, name); err != nil {
		return err
	}
	return db.saveClusterLocked(ctx, bank, id)
}

// SetClusterSkillLevel updates a cluster's skill level and persists it.
func (db *Database) SetClusterSkillLevel(ctx context.Context, id core.ClusterID, level core.SkillLevel) error {
	db.persistMu.Lock()
	defer db.persistMu.Unlock()

	bank := db.Bank()
	if err := bank.SetClusterSkillLevel(id, level); err != nil {
		return err
	}
	return db.saveClusterLocked(ctx, bank, id)
}

func (db *Database) saveClusterLocked(ctx context.Context, bank *Bank, id core.ClusterID) error {
	c, ok := bank.Cluster(id)
	if !ok {
		return core.ErrClusterNotFound
	}
	if err := db.repo.SaveClusters(ctx, c); err != nil {
		return fmt.Errorf("failed to save cluster %d: %w", id, err)
	}
	return nil
}

// Reindex rebuilds the bank from storage and swaps it in. opts are applied
// on top of the options the database was opened with, so the index can be
// rebuilt with a different configuration. With cfg.Recluster the new
// clusters and metadata are written back to storage.
//
// Commit and the other write-through methods are serialized with Reindex.
// An ingestion pipeline holds the bank it was created from, so pipelines
// must be drained before Reindex and created again afterwards.
func (db *Database) Reindex(ctx context.Context, cfg *reindex.Config, progress io.Writer, opts ...Option) (reindex.Report, error) {
	if cfg == nil {
		cfg = reindex.DefaultConfig()
	}

	db.persistMu.Lock()
	defer db.persistMu.Unlock()

	bank, err := New(append(append([]Option(nil), db.bankOpts...), opts...)...)
	if err != nil {
		return reindex.Report{}, err
	}

	r, err := reindex.NewReindexer(db.repo, bank, db.extractor, cfg, progress, db.logger)
	if err != nil {
		return reindex.Report{}, err
	}
	rep, err := r.Run(ctx)
	if err != nil {
		return rep, err
	}

	if cfg.Recluster {
		snap := bank.Snapshot()
		for _, md := range snap.Metadata {
			if err := db.repo.SaveMetadata(ctx, md); err != nil {
				return rep, fmt.Errorf("failed to save metadata %d: %w", md.DocID, err)
			}
		}
		if err := db.repo.ReplaceClusters(ctx, snap.Clusters); err != nil {
			return rep, fmt.Errorf("failed to save clusters: %w", err)
		}
	}

	db.bankMu.Lock()
	db.bank = bank
	db.bankMu.Unlock()
	db.logger.Info("swapped in reindexed bank", "documents", rep.Documents, "recluster", cfg.Recluster)
	return rep, nil
}

// Verify checks cluster integrity of the live bank.
func (db *Database) Verify() error {
	return db.Bank().Verify()
}

func (db *Database) NewIngestionPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	bank := db.Bank()
	base := []ingestion.Option{
		ingestion.WithPersister(db),
		ingestion.WithLogger(db.logger),
		ingestion.WithMetrics(bank.metrics),
	}
	return ingestion.NewPipeline(bank, db.extractor, append(base, opts...)...)
}

func (db *Database) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	base := []search.Option{search.WithLogger(db.logger)}
	return search.NewSearcher(db.Bank(), append(base, opts...)...)
}

// NewRetriever returns a langchaingo retriever over the live bank.
func (db *Database) NewRetriever(opts ...rag.Option) (*rag.Retriever, error) {
	searcher, err := db.NewSearcher()
	if err != nil {
		return nil, err
	}
	return rag.NewRetriever(searcher, opts...)
}

func (db *Database) NewExporter(opts ...export.Option) *export.Exporter {
	return export.NewExporter(db.Bank(), opts...)
}
