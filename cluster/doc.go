// Package cluster places documents into topical clusters.
//
// The Assigner is stateless apart from its configuration: every operation
// takes the Registry it should read or mutate, and the caller owns and
// serializes access to that registry.
//
// A document is eligible for an existing cluster when the suggested cluster
// name matches the cluster name case-insensitively, or when the Jaccard
// overlap between the document's concept names and the cluster's primary
// concepts reaches the overlap threshold. Among eligible clusters the highest
// overlap wins, then the larger cluster, then the lowest id.
//
// Primary concepts are chosen when a cluster is created and are not
// recomputed as the cluster grows.
package cluster
