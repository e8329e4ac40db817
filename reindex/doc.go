// Package reindex rebuilds a bank from its persisted documents.
//
// Vectors and vocabulary statistics are never stored, so a bank opened with a
// different hashing dimension or n-gram size is rebuilt by replaying the
// stored texts. With Recluster set, every document is also run through the
// concept extractor again and placed into freshly built clusters; extractor
// calls are retried with exponential backoff and fall back to the default
// extraction when every attempt fails.
package reindex
