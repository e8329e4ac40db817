// Package export writes one cluster or a whole bank as JSON or Markdown.
//
// Exports are built from a single bank snapshot, so documents, metadata and
// clusters in one export are always mutually consistent.
package export
