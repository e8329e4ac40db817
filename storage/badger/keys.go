package badger

import (
	"encoding/binary"

	"github.com/poiesic/knowbank/core"
)

// Key prefixes for different data types
const (
	documentPrefix = "doc:"
	metadataPrefix = "meta:"
	clusterPrefix  = "clu:"
)

// makeIDKey appends id to prefix in BigEndian order so lexicographic
// iteration returns records in ascending id order.
func makeIDKey(prefix string, id uint64) []byte {
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], id)
	return buf
}

// makeDocumentKey generates a key for a document by ID.
func makeDocumentKey(id core.DocID) []byte {
	return makeIDKey(documentPrefix, uint64(id))
}

// makeMetadataKey generates a key for a document's metadata.
func makeMetadataKey(id core.DocID) []byte {
	return makeIDKey(metadataPrefix, uint64(id))
}

// makeClusterKey generates a key for a cluster by ID.
func makeClusterKey(id core.ClusterID) []byte {
	return makeIDKey(clusterPrefix, uint64(id))
}
