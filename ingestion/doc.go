// Package ingestion provides pipeline orchestration for adding documents to
// a bank.
//
// The Pipeline type manages the ingestion workflow, including:
//   - Extracting concepts concurrently on a worker pool, outside the bank lock
//   - Committing each document and its cluster decision to the bank in input order
//   - Persisting each commit through an optional Persister
//
// A failed or slow extraction never fails a document: the pipeline logs it
// and commits with the fallback extraction instead.
package ingestion
