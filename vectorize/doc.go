// Package vectorize turns text into hashed tf-idf sparse vectors.
//
// Text is case folded, split on whitespace and stripped of punctuation and
// symbols. Each token contributes a whole-word feature and, optionally, its
// character n-grams padded with '^' and '$'. Features are hashed with xxhash
// into a fixed number of slots; collisions add weight to the same slot.
//
// Weights use idf = ln((N+1)/(df+1)) + 1 with N and df taken when the
// document is added. Vectors of existing documents are never rescaled when
// later documents shift the statistics.
//
// A Vectorizer is not safe for concurrent mutation. Query vectorization only
// reads statistics and may run concurrently with other queries.
package vectorize
