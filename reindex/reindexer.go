package reindex

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/knowbank/core"
	"github.com/poiesic/knowbank/extract"
	"github.com/poiesic/knowbank/storage"
)

// Config holds configuration for the reindex operation.
type Config struct {
	// BatchSize is the number of documents to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of documents)
	ReportInterval int

	// MaxRetries is the maximum number of extractor attempts per document
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// Recluster drops the stored clusters and places every document again
	Recluster bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Report summarizes a finished reindex.
type Report struct {
	Documents int
	Clusters  int
	Fallbacks int
	Elapsed   time.Duration
}

// Reindexer rebuilds a target bank from a repository.
type Reindexer struct {
	repo      storage.Repository
	target    Target
	extractor extract.ConceptExtractor
	config    *Config
	progress  io.Writer
	logger    *slog.Logger
}

// NewReindexer creates a new reindexer. extractor may be nil unless
// config.Recluster is set.
// progress: where to write progress output (typically os.Stderr); nil discards
func NewReindexer(repo storage.Repository, target Target, extractor extract.ConceptExtractor, config *Config, progress io.Writer, logger *slog.Logger) (*Reindexer, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if target == nil {
		return nil, ErrTargetRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Recluster && extractor == nil {
		return nil, ErrExtractorRequired
	}
	if progress == nil {
		progress = io.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Reindexer{
		repo:      repo,
		target:    target,
		extractor: extractor,
		config:    config,
		progress:  progress,
		logger:    logger.With("component", "reindex"),
	}, nil
}

// Run restores every stored document into the target, which must be empty.
// Without Recluster the stored clusters and metadata are kept as they are;
// with it, clusters are rebuilt from fresh extractions.
func (r *Reindexer) Run(ctx context.Context) (Report, error) {
	start := time.Now()

	snap, err := r.repo.LoadSnapshot(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("failed to load snapshot: %w", err)
	}

	total := len(snap.Documents)
	if r.config.Recluster {
		snap.Clusters = nil
		for i, md := range snap.Metadata {
			if md == nil {
				continue
			}
			md = md.Clone()
			md.ClusterID = core.NoCluster
			snap.Metadata[i] = md
		}
	}
	if err := r.target.Restore(snap); err != nil {
		return Report{}, fmt.Errorf("failed to restore documents: %w", err)
	}

	if !r.config.Recluster {
		rep := Report{Documents: total, Clusters: len(snap.Clusters), Elapsed: time.Since(start)}
		fmt.Fprintf(r.progress, "Rebuilt index of %d documents in %d clusters in %v\n",
			rep.Documents, rep.Clusters, rep.Elapsed.Round(time.Millisecond))
		return rep, nil
	}

	if total == 0 {
		fmt.Fprintf(r.progress, "No documents found in database (0 documents)\n")
		return Report{Elapsed: time.Since(start)}, nil
	}

	fmt.Fprintf(r.progress, "Starting reclustering of %d documents (batch size: %d)\n",
		total, r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	processor := NewBatchProcessor(r.target, r.extractor, r.config.MaxRetries, r.config.RetryDelay, r.logger)
	iterator := NewDocumentIterator(r.repo, r.config.BatchSize)

	rep := Report{Documents: total}
	err = iterator.ForEach(ctx, func(docs []core.StoredDocument) error {
		stats, err := processor.Process(ctx, docs)
		rep.Clusters += stats.created
		rep.Fallbacks += stats.fallbacks
		tracker.Increment(len(docs))
		if err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		return nil
	})
	if err != nil {
		return rep, err
	}

	tracker.Finish()
	rep.Elapsed = tracker.Elapsed()
	r.logger.Info("reclustered documents",
		"documents", rep.Documents, "clusters", rep.Clusters, "fallbacks", rep.Fallbacks)
	fmt.Fprintf(r.progress, "Reclustering complete. Processed %d documents into %d clusters in %v\n",
		rep.Documents, rep.Clusters, rep.Elapsed.Round(time.Millisecond))

	return rep, nil
}
