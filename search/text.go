package search

import "github.com/poiesic/knowbank/vectorize"

// Stop words ignored when checking for verbatim matches
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "be": {}, "is": {}, "are": {}, "was": {},
	"to": {}, "of": {}, "and": {}, "in": {}, "that": {}, "have": {}, "it": {},
	"for": {}, "not": {}, "on": {}, "with": {}, "as": {}, "you": {}, "do": {},
	"at": {}, "this": {}, "but": {}, "by": {}, "from": {}, "how": {}, "what": {},
}

// contentWords tokenizes text the way the index does and drops stop words.
func contentWords(text string) []string {
	tokens := vectorize.Tokenize(text)
	out := tokens[:0]
	for _, tok := range tokens {
		if _, stop := stopWords[tok]; !stop {
			out = append(out, tok)
		}
	}
	return out
}

// containsAllQueryWords reports whether every content word of query occurs
// in document. A query with no content words never matches.
func containsAllQueryWords(document, query string) bool {
	queryWords := contentWords(query)
	if len(queryWords) == 0 {
		return false
	}

	docWords := make(map[string]struct{})
	for _, w := range contentWords(document) {
		docWords[w] = struct{}{}
	}
	for _, w := range queryWords {
		if _, ok := docWords[w]; !ok {
			return false
		}
	}
	return true
}
