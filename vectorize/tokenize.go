package vectorize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// Tokenize case folds text, splits it on whitespace and removes punctuation
// and symbol runes from every token. Empty tokens are dropped.
func Tokenize(text string) []string {
	// A Caser carries state, so each call gets its own.
	folded := cases.Fold().String(text)
	words := strings.Fields(folded)
	tokens := make([]string, 0, len(words))

	for _, word := range words {
		cleaned := strings.Map(func(r rune) rune {
			if unicode.IsPunct(r) || unicode.IsSymbol(r) {
				return -1
			}
			return r
		}, word)
		if cleaned != "" {
			tokens = append(tokens, cleaned)
		}
	}

	return tokens
}

const (
	wordPrefix = "w:"
	gramPrefix = "g:"
	gramStart  = '^'
	gramEnd    = '$'
)

// charGrams returns the padded character n-grams of token. Tokens shorter
// than n after padding yield the padded token itself.
func charGrams(token string, n int) []string {
	runes := make([]rune, 0, len(token)+2)
	runes = append(runes, gramStart)
	runes = append(runes, []rune(token)...)
	runes = append(runes, gramEnd)

	if len(runes) <= n {
		return []string{string(runes)}
	}

	grams := make([]string, 0, len(runes)-n+1)
	for i := 0; i+n <= len(runes); i++ {
		grams = append(grams, string(runes[i:i+n]))
	}
	return grams
}

// features returns the raw term frequency of every feature in text.
func features(text string, ngram int) map[string]int {
	tokens := Tokenize(text)
	tf := make(map[string]int, len(tokens)*4)

	for _, tok := range tokens {
		tf[wordPrefix+tok]++
		if ngram > 0 {
			for _, g := range charGrams(tok, ngram) {
				tf[gramPrefix+g]++
			}
		}
	}

	return tf
}
