package search

import (
	"context"
	"log/slog"

	"github.com/poiesic/knowbank/core"
)

const (
	// DefaultTopK is used when a request asks for fewer than one or more
	// than MaxTopK hits.
	DefaultTopK = 10
	// MaxTopK bounds a single request.
	MaxTopK = 50
	// DefaultContentLength is the rune length of hit content unless full
	// content is requested.
	DefaultContentLength = 500
)

// Bank is the part of a bank the searcher reads.
type Bank interface {
	Search(query string, topK int, allowed []core.DocID) ([]core.SearchResult, error)
	SelectDocuments(keep func(*core.DocumentMetadata) bool) []core.DocID
	Document(id core.DocID) (core.Document, bool)
	Metadata(id core.DocID) (*core.DocumentMetadata, bool)
	Cluster(id core.ClusterID) (*core.Cluster, bool)
}

// Request is a filtered search.
type Request struct {
	Query       string
	TopK        int
	Filters     Filters
	FullContent bool
}

// Hit is one ranked document with its context.
type Hit struct {
	DocID    core.DocID
	Score    float64
	Content  string // full text or a snippet ending in "..." when cut
	Verbatim bool   // every non-stop-word of the query occurs in the text
	Metadata *core.DocumentMetadata
	Cluster  *core.Cluster // nil for unclustered documents
}

// Group lists the hits that fall in one cluster.
type Group struct {
	ClusterID core.ClusterID
	Name      string
	DocIDs    []core.DocID
}

// Response is the result of a filtered search.
type Response struct {
	Hits   []Hit
	Groups []Group // ordered by each cluster's best hit
}

// Searcher runs filtered searches against a bank.
type Searcher struct {
	bank          Bank
	contentLength int
	logger        *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithContentLength sets the snippet length in runes.
func WithContentLength(n int) Option {
	return func(s *Searcher) error {
		if n < 1 {
			n = DefaultContentLength
		}
		s.contentLength = n
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(bank Bank, opts ...Option) (*Searcher, error) {
	if bank == nil {
		return nil, ErrBankRequired
	}

	s := &Searcher{
		bank:          bank,
		contentLength: DefaultContentLength,
		logger:        slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "search")

	return s, nil
}

// Search runs req.
func (s *Searcher) Search(ctx context.Context, req Request) (*Response, error) {
	return s.SearchWithMonitor(ctx, req, nil)
}

// SearchWithMonitor runs req, reporting each stage to monitor.
func (s *Searcher) SearchWithMonitor(ctx context.Context, req Request, monitor SearchMonitor) (*Response, error) {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := req.Filters.Validate(); err != nil {
		return nil, err
	}
	if req.TopK < 1 || req.TopK > MaxTopK {
		req.TopK = DefaultTopK
	}

	monitor.Start(req)

	// 1. Narrow the corpus
	var allowed []core.DocID
	filtered := !req.Filters.IsZero()
	if filtered {
		allowed = s.bank.SelectDocuments(req.Filters.Match)
	}
	monitor.AfterFilter(allowed, filtered)

	resp := &Response{Hits: []Hit{}, Groups: []Group{}}
	if filtered && len(allowed) == 0 {
		monitor.Finish(resp)
		return resp, nil
	}

	// 2. Rank
	ranked, err := s.bank.Search(req.Query, req.TopK, allowed)
	if err != nil {
		s.logger.Error("error ranking documents", "query", req.Query, "err", err)
		return nil, err
	}
	monitor.AfterRanking(ranked)

	// 3. Attach content, metadata and clusters
	groupIdx := make(map[core.ClusterID]int)
	for _, r := range ranked {
		doc, ok := s.bank.Document(r.DocID)
		if !ok {
			// Removed between ranking and lookup.
			s.logger.Debug("document vanished during search", "doc_id", r.DocID)
			continue
		}
		hit := Hit{
			DocID:    r.DocID,
			Score:    r.Score,
			Content:  s.content(doc.Text, req.FullContent),
			Verbatim: containsAllQueryWords(doc.Text, req.Query),
		}
		if md, ok := s.bank.Metadata(r.DocID); ok {
			hit.Metadata = md
			if c, ok := s.bank.Cluster(md.ClusterID); ok {
				hit.Cluster = c
			}
		}
		monitor.Hit(&hit)
		resp.Hits = append(resp.Hits, hit)

		if hit.Cluster == nil {
			continue
		}
		i, seen := groupIdx[hit.Cluster.ID]
		if !seen {
			i = len(resp.Groups)
			groupIdx[hit.Cluster.ID] = i
			resp.Groups = append(resp.Groups, Group{ClusterID: hit.Cluster.ID, Name: hit.Cluster.Name})
		}
		resp.Groups[i].DocIDs = append(resp.Groups[i].DocIDs, hit.DocID)
	}
	monitor.Finish(resp)

	return resp, nil
}

// content returns text or its first contentLength runes followed by "...".
func (s *Searcher) content(text string, full bool) string {
	if full {
		return text
	}
	n := 0
	for i := range text {
		if n == s.contentLength {
			return text[:i] + "..."
		}
		n++
	}
	return text
}
