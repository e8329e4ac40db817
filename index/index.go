package index

import (
	"fmt"
	"slices"
	"sort"

	"github.com/poiesic/knowbank/core"
	"github.com/poiesic/knowbank/vectorize"
)

// DefaultSnippetLength is the number of runes of document text returned with
// each search result.
const DefaultSnippetLength = 160

// VectorIndex owns the corpus: raw text, one vector per live document and
// the vocabulary statistics behind the vectors.
type VectorIndex struct {
	vectorizer *vectorize.Vectorizer
	docs       map[core.DocID]*core.Document
	ids        []core.DocID // ascending
	snippetLen int
}

// Option configures a VectorIndex.
type Option func(*options) error

type options struct {
	vectorizerOpts []vectorize.Option
	snippetLen     int
}

// WithDimension sets the number of hash slots used for vectors.
func WithDimension(dim int) Option {
	return func(o *options) error {
		o.vectorizerOpts = append(o.vectorizerOpts, vectorize.WithDimension(dim))
		return nil
	}
}

// WithNGramSize sets the character n-gram length used for sub-word features.
func WithNGramSize(n int) Option {
	return func(o *options) error {
		o.vectorizerOpts = append(o.vectorizerOpts, vectorize.WithNGramSize(n))
		return nil
	}
}

// WithSnippetLength sets the snippet length in runes.
// Default is DefaultSnippetLength.
func WithSnippetLength(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return fmt.Errorf("%w: snippet length must be positive", core.ErrInvalidInput)
		}
		o.snippetLen = n
		return nil
	}
}

// New creates an empty VectorIndex.
func New(opts ...Option) (*VectorIndex, error) {
	o := &options{snippetLen: DefaultSnippetLength}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	vec, err := vectorize.New(o.vectorizerOpts...)
	if err != nil {
		return nil, err
	}

	return &VectorIndex{
		vectorizer: vec,
		docs:       make(map[core.DocID]*core.Document),
		snippetLen: o.snippetLen,
	}, nil
}

// NextID returns the id the next added document will receive.
func (ix *VectorIndex) NextID() core.DocID {
	if len(ix.ids) == 0 {
		return 0
	}
	return ix.ids[len(ix.ids)-1] + 1
}

// AddDocument vectorizes text, stores it and returns its new id.
// Blank text is rejected before any state changes.
func (ix *VectorIndex) AddDocument(text string) (core.DocID, error) {
	if err := core.ValidateText(text); err != nil {
		return 0, err
	}
	id := ix.NextID()
	ix.insert(id, text)
	return id, nil
}

// Restore inserts text under a known id. It is used to replay persisted
// documents in ascending id order and goes through the same vectorization
// as AddDocument. The id must be larger than every live id.
func (ix *VectorIndex) Restore(id core.DocID, text string) error {
	if err := core.ValidateText(text); err != nil {
		return err
	}
	if id < ix.NextID() {
		return fmt.Errorf("%w: restore id %d is not after %d", core.ErrInvalidInput, id, ix.NextID()-1)
	}
	ix.insert(id, text)
	return nil
}

func (ix *VectorIndex) insert(id core.DocID, text string) {
	ix.docs[id] = &core.Document{
		ID:     id,
		Text:   text,
		Vector: ix.vectorizer.Vectorize(text),
	}
	ix.ids = append(ix.ids, id)
}

// RemoveDocument deletes a document and its contribution to the vocabulary
// statistics. It reports whether the id was present; unknown ids are a no-op.
func (ix *VectorIndex) RemoveDocument(id core.DocID) bool {
	doc, ok := ix.docs[id]
	if !ok {
		return false
	}

	ix.vectorizer.Forget(doc.Text)
	delete(ix.docs, id)
	if i, found := slices.BinarySearch(ix.ids, id); found {
		ix.ids = slices.Delete(ix.ids, i, i+1)
	}
	return true
}

// Search returns up to topK documents ranked by cosine similarity to query,
// highest first with ties broken by ascending id.
//
// A nil allowed slice searches the whole corpus. A non-nil slice restricts
// candidates to the listed ids; unknown ids are ignored, so an empty slice
// yields no results. Documents that share no features with the query are
// still candidates and score 0.
func (ix *VectorIndex) Search(query string, topK int, allowed []core.DocID) ([]core.SearchResult, error) {
	if topK < 1 {
		return nil, fmt.Errorf("%w: top_k must be at least 1, got %d", core.ErrInvalidInput, topK)
	}

	results := []core.SearchResult{}
	if len(ix.docs) == 0 {
		return results, nil
	}

	q := ix.vectorizer.VectorizeQuery(query)
	if q.Len() == 0 {
		return results, nil
	}

	candidates := ix.ids
	if allowed != nil {
		candidates = ix.filter(allowed)
	}

	scored := make([]core.SearchResult, 0, len(candidates))
	for _, id := range candidates {
		doc := ix.docs[id]
		scored = append(scored, core.SearchResult{
			DocID: id,
			Score: q.Cosine(doc.Vector),
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score == scored[j].Score {
			return scored[i].DocID < scored[j].DocID
		}
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	for i := range scored {
		scored[i].Snippet = Snippet(ix.docs[scored[i].DocID].Text, ix.snippetLen)
	}

	return append(results, scored...), nil
}

// filter returns the live ids in allowed, ascending and without duplicates.
func (ix *VectorIndex) filter(allowed []core.DocID) []core.DocID {
	seen := make(map[core.DocID]struct{}, len(allowed))
	out := make([]core.DocID, 0, len(allowed))
	for _, id := range allowed {
		if _, ok := ix.docs[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Document returns a copy of a stored document.
func (ix *VectorIndex) Document(id core.DocID) (core.Document, bool) {
	doc, ok := ix.docs[id]
	if !ok {
		return core.Document{}, false
	}
	return *doc, true
}

// Text returns the raw text of a document.
func (ix *VectorIndex) Text(id core.DocID) (string, bool) {
	doc, ok := ix.docs[id]
	if !ok {
		return "", false
	}
	return doc.Text, true
}

// Contains reports whether id is a live document.
func (ix *VectorIndex) Contains(id core.DocID) bool {
	_, ok := ix.docs[id]
	return ok
}

// Len returns the number of live documents.
func (ix *VectorIndex) Len() int {
	return len(ix.docs)
}

// IDs returns the live document ids in ascending order.
func (ix *VectorIndex) IDs() []core.DocID {
	return slices.Clone(ix.ids)
}

// Dimension returns the number of hash slots.
func (ix *VectorIndex) Dimension() int {
	return ix.vectorizer.Dimension()
}

// VocabularySize returns the number of distinct features in the corpus.
func (ix *VectorIndex) VocabularySize() int {
	return ix.vectorizer.VocabularySize()
}

// Snippet returns the first n runes of text.
func Snippet(text string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range text {
		if count == n {
			return text[:i]
		}
		count++
	}
	return text
}
