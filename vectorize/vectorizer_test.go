package vectorize

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func weightSum(ws []float64) float64 {
	var s float64
	for _, w := range ws {
		s += w
	}
	return s
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"simple", "Hello World", []string{"hello", "world"}},
		{"punctuation", "Hello, World! (really?)", []string{"hello", "world", "really"}},
		{"inner punctuation and symbols", "C++ is-great", []string{"c", "isgreat"}},
		{"case folding", "ÉCOLE Docker", []string{"école", "docker"}},
		{"only punctuation", "!!! ... ???", []string{}},
		{"empty", "", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.in))
		})
	}
}

func TestCharGrams(t *testing.T) {
	assert.Equal(t, []string{"^go", "go$"}, charGrams("go", 3))
	assert.Equal(t, []string{"^a$"}, charGrams("a", 3))
	assert.Equal(t, []string{"^do", "doc", "ock", "cke", "ker", "er$"}, charGrams("docker", 3))
}

func TestNew_Options(t *testing.T) {
	v, err := New()
	require.NoError(t, err)
	assert.Equal(t, DefaultDimension, v.Dimension())

	_, err = New(WithDimension(0))
	assert.ErrorIs(t, err, ErrInvalidDimension)

	_, err = New(WithNGramSize(-1))
	assert.ErrorIs(t, err, ErrInvalidNGramSize)
}

func TestVectorize_Weights(t *testing.T) {
	v, err := New(WithNGramSize(0), WithDimension(1<<20))
	require.NoError(t, err)

	// First document: N=1, df=1 for every word, so idf is exactly 1.
	first := v.Vectorize("alpha alpha beta")
	assert.InDelta(t, 3.0, weightSum(first.Weights), 1e-9)
	assert.Equal(t, 1, v.Documents())
	assert.Equal(t, 1, v.DocumentFrequency("alpha"))

	// Second document: alpha now has df=2 (idf 1), gamma df=1.
	second := v.Vectorize("alpha gamma")
	want := 1.0 + (math.Log(3.0/2.0) + 1)
	assert.InDelta(t, want, weightSum(second.Weights), 1e-9)
	assert.Equal(t, 2, v.DocumentFrequency("ALPHA"))

	// Earlier vectors keep their insertion-time weights.
	assert.InDelta(t, 3.0, weightSum(first.Weights), 1e-9)
}

func TestVectorize_SlotsSortedAndInRange(t *testing.T) {
	v, err := New(WithDimension(16))
	require.NoError(t, err)

	vec := v.Vectorize("the quick brown fox jumps over the lazy dog")
	require.NotZero(t, vec.Len())
	for i, s := range vec.Slots {
		assert.Less(t, s, uint32(16))
		if i > 0 {
			assert.Greater(t, s, vec.Slots[i-1])
		}
	}
	for _, w := range vec.Weights {
		assert.Positive(t, w)
	}
}

func TestVectorize_Deterministic(t *testing.T) {
	a, err := New()
	require.NoError(t, err)
	b, err := New()
	require.NoError(t, err)

	va := a.Vectorize("Kubernetes orchestrates containers")
	vb := b.Vectorize("Kubernetes orchestrates containers")
	assert.Equal(t, va.Slots, vb.Slots)
	assert.Equal(t, va.Weights, vb.Weights)
}

func TestVectorizeQuery_DoesNotMutate(t *testing.T) {
	v, err := New()
	require.NoError(t, err)
	v.Vectorize("docker containers")
	vocab := v.VocabularySize()

	q := v.VectorizeQuery("kubernetes pods")
	assert.NotZero(t, q.Len())
	assert.Equal(t, 1, v.Documents())
	assert.Equal(t, vocab, v.VocabularySize())
	assert.Equal(t, 0, v.DocumentFrequency("kubernetes"))
}

func TestVectorizeQuery_Empty(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	q := v.VectorizeQuery("  ?!  ")
	assert.Equal(t, 0, q.Len())
	assert.Zero(t, q.Norm())
}

func TestForget(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	v.Vectorize("docker containers")
	v.Vectorize("docker images")
	v.Forget("docker containers")

	assert.Equal(t, 1, v.Documents())
	assert.Equal(t, 1, v.DocumentFrequency("docker"))
	assert.Equal(t, 0, v.DocumentFrequency("containers"))

	v.Forget("docker images")
	assert.Equal(t, 0, v.Documents())
	assert.Equal(t, 0, v.VocabularySize())
}

func TestSubwordFeaturesShareSlots(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	doc := v.Vectorize("containerization")
	q := v.VectorizeQuery("containers")
	assert.Greater(t, doc.Cosine(q), 0.0)
}
