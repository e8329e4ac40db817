package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/knowbank/core"
	"github.com/poiesic/knowbank/search"
	"github.com/tmc/langchaingo/schema"
)

// Metadata keys set on every returned document.
const (
	MetaDocID        = "doc_id"
	MetaClusterID    = "cluster_id"
	MetaClusterName  = "cluster"
	MetaOwner        = "owner"
	MetaSourceType   = "source_type"
	MetaSourceURL    = "source_url"
	MetaSkillLevel   = "skill_level"
	MetaPrimaryTopic = "primary_topic"
	MetaIngestedAt   = "ingested_at"
)

// Retriever implements schema.Retriever over a search.Searcher.
type Retriever struct {
	searcher *search.Searcher
	topK     int
	filters  search.Filters
	minScore float64
	full     bool
}

var _ schema.Retriever = (*Retriever)(nil)

// Option configures a Retriever.
type Option func(*Retriever) error

// WithTopK sets the number of documents returned per query.
func WithTopK(k int) Option {
	return func(r *Retriever) error {
		if k < 1 || k > search.MaxTopK {
			return fmt.Errorf("%w: top_k %d outside [1, %d]", core.ErrInvalidInput, k, search.MaxTopK)
		}
		r.topK = k
		return nil
	}
}

// WithFilters restricts retrieval to matching documents.
func WithFilters(f search.Filters) Option {
	return func(r *Retriever) error {
		if err := f.Validate(); err != nil {
			return err
		}
		r.filters = f
		return nil
	}
}

// WithMinScore drops documents scoring below min.
func WithMinScore(min float64) Option {
	return func(r *Retriever) error {
		if min < 0 || min > 1 {
			return fmt.Errorf("%w: min score %v outside [0, 1]", core.ErrInvalidInput, min)
		}
		r.minScore = min
		return nil
	}
}

// WithSnippets returns bounded snippets instead of full document text.
func WithSnippets() Option {
	return func(r *Retriever) error {
		r.full = false
		return nil
	}
}

// NewRetriever creates a retriever returning up to search.DefaultTopK full
// documents per query.
func NewRetriever(searcher *search.Searcher, opts ...Option) (*Retriever, error) {
	if searcher == nil {
		return nil, fmt.Errorf("%w: searcher required", core.ErrInvalidInput)
	}
	r := &Retriever{
		searcher: searcher,
		topK:     search.DefaultTopK,
		full:     true,
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// GetRelevantDocuments returns the documents most similar to query, best
// first.
func (r *Retriever) GetRelevantDocuments(ctx context.Context, query string) ([]schema.Document, error) {
	resp, err := r.searcher.Search(ctx, search.Request{
		Query:       query,
		TopK:        r.topK,
		Filters:     r.filters,
		FullContent: r.full,
	})
	if err != nil {
		return nil, err
	}

	docs := make([]schema.Document, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		if hit.Score < r.minScore {
			continue
		}
		docs = append(docs, schema.Document{
			PageContent: hit.Content,
			Metadata:    metadataOf(hit),
			Score:       float32(hit.Score),
		})
	}
	return docs, nil
}

func metadataOf(hit search.Hit) map[string]any {
	meta := map[string]any{MetaDocID: int64(hit.DocID)}
	if md := hit.Metadata; md != nil {
		meta[MetaOwner] = md.Owner
		meta[MetaSourceType] = md.SourceType
		meta[MetaSkillLevel] = md.SkillLevel.String()
		meta[MetaPrimaryTopic] = md.PrimaryTopic
		if md.SourceURL != "" {
			meta[MetaSourceURL] = md.SourceURL
		}
		if !md.IngestedAt.IsZero() {
			meta[MetaIngestedAt] = md.IngestedAt.Format(time.RFC3339)
		}
	}
	if c := hit.Cluster; c != nil {
		meta[MetaClusterID] = int64(c.ID)
		meta[MetaClusterName] = c.Name
	}
	return meta
}
