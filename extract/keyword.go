package extract

import (
	"context"
	"log/slog"
	"sort"
	"unicode/utf8"

	"github.com/poiesic/knowbank/core"
	"github.com/poiesic/knowbank/vectorize"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Stop words ignored when picking keywords.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "were": true, "to": true, "of": true, "and": true, "or": true,
	"in": true, "that": true, "have": true, "has": true, "it": true, "its": true,
	"for": true, "not": true, "on": true, "with": true, "as": true, "you": true,
	"your": true, "do": true, "at": true, "this": true, "these": true, "but": true,
	"by": true, "from": true, "how": true, "what": true, "when": true, "why": true,
	"can": true, "will": true, "into": true, "about": true, "than": true,
	"then": true, "there": true, "their": true, "we": true, "our": true, "i": true,
	"if": true, "so": true, "use": true, "using": true, "used": true,
}

// Known terms and their categories. Anything else is a plain concept.
var knownTerms = map[string]core.Category{
	"docker": core.CategoryTool, "kubernetes": core.CategoryTool, "git": core.CategoryTool,
	"terraform": core.CategoryTool, "postgres": core.CategoryTool, "redis": core.CategoryTool,
	"linux": core.CategoryTool, "nginx": core.CategoryTool, "compose": core.CategoryTool,
	"go": core.CategoryLanguage, "golang": core.CategoryLanguage, "python": core.CategoryLanguage,
	"rust": core.CategoryLanguage, "java": core.CategoryLanguage, "javascript": core.CategoryLanguage,
	"typescript": core.CategoryLanguage, "sql": core.CategoryLanguage,
	"react": core.CategoryFramework, "django": core.CategoryFramework, "fastapi": core.CategoryFramework,
	"flask": core.CategoryFramework, "spring": core.CategoryFramework, "pytorch": core.CategoryFramework,
	"devops": core.CategoryDomain, "security": core.CategoryDomain, "networking": core.CategoryDomain,
	"database": core.CategoryDomain, "cooking": core.CategoryDomain, "baking": core.CategoryDomain,
	"debugging": core.CategorySkill, "testing": core.CategorySkill, "deployment": core.CategorySkill,
}

const (
	defaultMaxKeywords  = 5
	defaultMinKeywordLn = 3
)

// KeywordExtractor picks the most frequent non-stop-word tokens of a text as
// its concepts. It needs no external service and is deterministic.
type KeywordExtractor struct {
	maxKeywords int
	minLength   int
	logger      *slog.Logger
}

var _ ConceptExtractor = (*KeywordExtractor)(nil)

// KeywordOption configures a KeywordExtractor.
type KeywordOption func(*KeywordExtractor)

// WithMaxKeywords sets the maximum number of concepts returned.
// Default is 5.
func WithMaxKeywords(n int) KeywordOption {
	return func(k *KeywordExtractor) {
		if n > 0 {
			k.maxKeywords = n
		}
	}
}

// WithMinKeywordLength sets the minimum token length in runes. Known terms
// such as "go" are kept regardless.
// Default is 3.
func WithMinKeywordLength(n int) KeywordOption {
	return func(k *KeywordExtractor) {
		if n > 0 {
			k.minLength = n
		}
	}
}

// WithKeywordLogger sets a custom logger.
func WithKeywordLogger(logger *slog.Logger) KeywordOption {
	return func(k *KeywordExtractor) {
		if logger != nil {
			k.logger = logger
		}
	}
}

// NewKeywordExtractor creates a KeywordExtractor.
func NewKeywordExtractor(opts ...KeywordOption) *KeywordExtractor {
	k := &KeywordExtractor{
		maxKeywords: defaultMaxKeywords,
		minLength:   defaultMinKeywordLn,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(k)
	}
	k.logger = k.logger.With("component", "keyword-extractor")
	return k
}

// Extract returns the most frequent keywords of text. Confidence is the
// keyword's frequency relative to the most frequent keyword. The suggested
// cluster is the title-cased top keyword.
func (k *KeywordExtractor) Extract(ctx context.Context, text string, sourceType string) (core.Extraction, error) {
	if err := ctx.Err(); err != nil {
		return core.Extraction{}, err
	}

	counts := make(map[string]int)
	first := make(map[string]int)
	for i, tok := range vectorize.Tokenize(text) {
		if stopWords[tok] {
			continue
		}
		if _, known := knownTerms[tok]; !known && utf8.RuneCountInString(tok) < k.minLength {
			continue
		}
		if _, seen := first[tok]; !seen {
			first[tok] = i
		}
		counts[tok]++
	}
	if len(counts) == 0 {
		return core.FallbackExtraction(), nil
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	// Known terms first, then frequency, then first appearance.
	sort.Slice(words, func(i, j int) bool {
		_, ki := knownTerms[words[i]]
		_, kj := knownTerms[words[j]]
		if ki != kj {
			return ki
		}
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return first[words[i]] < first[words[j]]
	})
	if len(words) > k.maxKeywords {
		words = words[:k.maxKeywords]
	}

	top := 0
	for _, w := range words {
		if counts[w] > top {
			top = counts[w]
		}
	}

	concepts := make([]core.Concept, len(words))
	for i, w := range words {
		category, ok := knownTerms[w]
		if !ok {
			category = core.CategoryConcept
		}
		concepts[i] = core.Concept{
			Name:       w,
			Category:   category,
			Confidence: float64(counts[w]) / float64(top),
		}
	}

	title := cases.Title(language.English).String(words[0])
	ext := core.Extraction{
		Concepts:         concepts,
		SkillLevel:       core.SkillUnknown,
		PrimaryTopic:     words[0],
		SuggestedCluster: title,
	}

	k.logger.Debug("extracted keywords",
		"source_type", sourceType, "concepts", len(concepts), "cluster", title)
	return ext, nil
}
