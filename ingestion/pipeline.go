package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/knowbank/core"
	"github.com/poiesic/knowbank/extract"
	"github.com/poiesic/knowbank/metrics"
)

// DefaultExtractTimeout bounds a single extractor call.
const DefaultExtractTimeout = 30 * time.Second

// Committer is the part of a bank the pipeline writes to.
type Committer interface {
	Commit(text string, ext core.Extraction, meta *core.DocumentMetadata) (core.CommitResult, error)
}

// Persister stores the outcome of a commit.
type Persister interface {
	PersistCommit(ctx context.Context, res core.CommitResult) error
}

// Item is one document to ingest.
type Item struct {
	Text string
	Meta *core.DocumentMetadata // optional

	// Extraction, when set, is used as is and the extractor is skipped.
	Extraction *core.Extraction
}

// Result reports what happened to one Item.
type Result struct {
	core.CommitResult
	Fallback bool  // the fallback extraction was used
	Err      error // non-nil if the item was not committed or not persisted
}

// Pipeline orchestrates concept extraction and commits into a bank.
type Pipeline struct {
	bank      Committer
	extractor extract.ConceptExtractor
	persister Persister
	pool      *ants.Pool
	timeout   time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu       sync.Mutex // serializes Ingest calls so commits keep input order
	released bool
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent extraction.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		// Release old pool
		if p.pool != nil {
			p.pool.Release()
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithPersister persists every successful commit.
func WithPersister(persister Persister) Option {
	return func(p *Pipeline) error {
		p.persister = persister
		return nil
	}
}

// WithMetrics records extraction outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) error {
		p.metrics = m
		return nil
	}
}

// WithExtractTimeout bounds each extractor call. Zero disables the bound.
func WithExtractTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d < 0 {
			return fmt.Errorf("%w: negative extract timeout", core.ErrInvalidInput)
		}
		p.timeout = d
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(bank Committer, extractor extract.ConceptExtractor, opts ...Option) (*Pipeline, error) {
	if bank == nil {
		return nil, ErrBankRequired
	}
	if extractor == nil {
		return nil, ErrExtractorRequired
	}

	// Default pool size
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	// Create pipeline with defaults
	p := &Pipeline{
		bank:      bank,
		extractor: extractor,
		pool:      pool,
		timeout:   DefaultExtractTimeout,
		logger:    slog.Default(),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}
	p.logger = p.logger.With("component", "ingestion")

	return p, nil
}

// Ingest extracts concepts for all items concurrently, then commits them to
// the bank one by one in input order and persists each commit.
// Results are index-aligned with items. The returned error joins every
// per-item error; a failing item never stops the others.
func (p *Pipeline) Ingest(ctx context.Context, items []Item) ([]Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released {
		return nil, ErrPipelineReleased
	}

	results := make([]Result, len(items))
	exts := make([]core.Extraction, len(items))
	proc := newExtractProcessor(p.extractor, p.timeout, p.metrics, p.logger)

	var wg sync.WaitGroup
	for i, item := range items {
		if err := core.ValidateText(item.Text); err != nil {
			results[i].Err = err
			continue
		}
		if item.Extraction != nil {
			exts[i] = *item.Extraction
			continue
		}

		sourceType := ""
		if item.Meta != nil {
			sourceType = item.Meta.SourceType
		}
		wg.Add(1)
		task := func() {
			defer wg.Done()
			exts[i], results[i].Fallback = proc.process(ctx, item.Text, sourceType)
		}
		if err := p.pool.Submit(task); err != nil {
			p.logger.Warn("worker pool rejected extraction, running inline", "err", err)
			task()
		}
	}
	wg.Wait()

	var errs []error
	for i, item := range items {
		if results[i].Err != nil {
			errs = append(errs, fmt.Errorf("item %d: %w", i, results[i].Err))
			continue
		}
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			errs = append(errs, fmt.Errorf("item %d: %w", i, err))
			continue
		}

		res, err := p.bank.Commit(item.Text, exts[i], item.Meta)
		if err != nil {
			results[i].Err = err
			errs = append(errs, fmt.Errorf("item %d: %w", i, err))
			continue
		}
		results[i].CommitResult = res

		if p.persister != nil {
			if err := p.persister.PersistCommit(ctx, res); err != nil {
				p.logger.Error("error persisting commit", "doc_id", res.DocID, "err", err)
				results[i].Err = err
				errs = append(errs, fmt.Errorf("item %d: %w", i, err))
			}
		}
	}

	p.logger.Info("ingested batch", "items", len(items), "errors", len(errs))
	return results, errors.Join(errs...)
}

// IngestText ingests a single text with optional metadata.
func (p *Pipeline) IngestText(ctx context.Context, text string, meta *core.DocumentMetadata) (Result, error) {
	results, err := p.Ingest(ctx, []Item{{Text: text, Meta: meta}})
	if len(results) == 0 {
		return Result{}, err
	}
	return results[0], results[0].Err
}

// Release releases resources including the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.released = true
	if p.pool != nil {
		p.pool.Release()
	}
}
