// Package index stores documents as hashed tf-idf vectors and answers
// cosine-similarity queries over them by exhaustive scan.
//
// Document ids start at 0. Each new id is one more than the largest live id,
// so removing the newest document frees its id for the next insertion.
//
// A VectorIndex is not safe for concurrent use; callers serialize access.
package index
