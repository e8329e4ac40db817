package vectorize

import (
	"math"
	"slices"

	"github.com/cespare/xxhash/v2"
	"github.com/poiesic/knowbank/core"
)

const (
	// DefaultDimension is the default number of hash slots.
	DefaultDimension = 1 << 18

	// DefaultNGramSize is the default character n-gram length.
	DefaultNGramSize = 3
)

// Vectorizer maps text to sparse tf-idf vectors and owns the document
// frequency statistics of the corpus it has seen.
type Vectorizer struct {
	dim   uint32
	ngram int
	df    map[string]int
	docs  int
}

// Option configures a Vectorizer.
type Option func(*Vectorizer) error

// WithDimension sets the number of hash slots.
// Default is DefaultDimension.
func WithDimension(dim int) Option {
	return func(v *Vectorizer) error {
		if dim <= 0 || dim > math.MaxUint32 {
			return ErrInvalidDimension
		}
		v.dim = uint32(dim)
		return nil
	}
}

// WithNGramSize sets the character n-gram length. Zero disables n-grams and
// only whole words are used.
// Default is DefaultNGramSize.
func WithNGramSize(n int) Option {
	return func(v *Vectorizer) error {
		if n < 0 {
			return ErrInvalidNGramSize
		}
		v.ngram = n
		return nil
	}
}

// New creates an empty Vectorizer.
func New(opts ...Option) (*Vectorizer, error) {
	v := &Vectorizer{
		dim:   DefaultDimension,
		ngram: DefaultNGramSize,
		df:    make(map[string]int),
	}
	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Dimension returns the number of hash slots.
func (v *Vectorizer) Dimension() int {
	return int(v.dim)
}

// Documents returns the number of documents currently counted in the
// statistics.
func (v *Vectorizer) Documents() int {
	return v.docs
}

// VocabularySize returns the number of distinct features with a non-zero
// document frequency.
func (v *Vectorizer) VocabularySize() int {
	return len(v.df)
}

// DocumentFrequency returns the number of counted documents containing the
// given token as a whole word. The token is normalized the same way document
// text is.
func (v *Vectorizer) DocumentFrequency(token string) int {
	toks := Tokenize(token)
	if len(toks) != 1 {
		return 0
	}
	return v.df[wordPrefix+toks[0]]
}

// Slot returns the hash slot of a feature.
func (v *Vectorizer) Slot(feature string) uint32 {
	return uint32(xxhash.Sum64String(feature) % uint64(v.dim))
}

// Vectorize counts text as a new document in the statistics and returns its
// vector weighted with the updated statistics.
func (v *Vectorizer) Vectorize(text string) core.SparseVector {
	tf := features(text, v.ngram)

	v.docs++
	for f := range tf {
		v.df[f]++
	}

	return v.weigh(tf)
}

// VectorizeQuery returns the vector of text using current statistics without
// changing them.
func (v *Vectorizer) VectorizeQuery(text string) core.SparseVector {
	return v.weigh(features(text, v.ngram))
}

// Forget removes a previously vectorized text from the statistics. Features
// whose document frequency drops to zero are deleted.
func (v *Vectorizer) Forget(text string) {
	tf := features(text, v.ngram)

	if v.docs > 0 {
		v.docs--
	}
	for f := range tf {
		n, ok := v.df[f]
		if !ok {
			continue
		}
		if n <= 1 {
			delete(v.df, f)
		} else {
			v.df[f] = n - 1
		}
	}
}

// Reset clears all statistics.
func (v *Vectorizer) Reset() {
	v.docs = 0
	v.df = make(map[string]int)
}

func (v *Vectorizer) idf(feature string) float64 {
	return math.Log(float64(v.docs+1)/float64(v.df[feature]+1)) + 1
}

func (v *Vectorizer) weigh(tf map[string]int) core.SparseVector {
	if len(tf) == 0 {
		return core.NewSparseVector(nil, nil)
	}

	acc := make(map[uint32]float64, len(tf))
	for f, n := range tf {
		acc[v.Slot(f)] += float64(n) * v.idf(f)
	}

	slots := make([]uint32, 0, len(acc))
	for s := range acc {
		slots = append(slots, s)
	}
	slices.Sort(slots)

	weights := make([]float64, len(slots))
	for i, s := range slots {
		weights[i] = acc[s]
	}

	return core.NewSparseVector(slots, weights)
}
