package core

import (
	"crypto/sha256"
	"time"
)

// ReplicaID identifies a storage replica within a row of the selection
// table. The RPC transport that resolves an id to a network endpoint is an
// external collaborator (see ReplicaTransport).
type ReplicaID string

// Chunk is a fixed-size slice of a blob, carrying enough metadata for a
// replica to verify and reassemble it independently.
type Chunk struct {
	Index     uint32
	Digest    [32]byte
	Timestamp uint64 // client wall-clock, nanoseconds since epoch
	TotalSize uint64
	Data      []byte
}

// ChunkCount returns the number of chunks a blob of size totalSize splits
// into under ChunkSize.
func ChunkCount(totalSize uint64) uint32 {
	if totalSize == 0 {
		return 1
	}
	n := totalSize / ChunkSize
	if totalSize%ChunkSize != 0 {
		n++
	}
	return uint32(n)
}

// SplitBlob computes the digest and chunk stream for a blob, in ascending
// index order, as push_blob does in the spec.
func SplitBlob(blob []byte, now time.Time) (digest [32]byte, chunks []Chunk) {
	digest = sha256.Sum256(blob)
	total := uint64(len(blob))
	ts := uint64(now.UnixNano())

	n := ChunkCount(total)
	chunks = make([]Chunk, 0, n)
	for i := uint32(0); i < n; i++ {
		start := uint64(i) * ChunkSize
		end := start + ChunkSize
		if end > total {
			end = total
		}
		data := make([]byte, end-start)
		copy(data, blob[start:end])
		chunks = append(chunks, Chunk{
			Index:     i,
			Digest:    digest,
			Timestamp: ts,
			TotalSize: total,
			Data:      data,
		})
	}
	return digest, chunks
}

// RoutingInfo records where a blob was dispersed to and how large it is.
type RoutingInfo struct {
	TotalSize    uint64
	HostReplicas []ReplicaID
}

// BlobKey is the client-held handle produced by PushBlob. It is opaque to
// replicas and the signer.
type BlobKey struct {
	Digest            [32]byte
	ExpiryTimestampNs uint64
	Routing           RoutingInfo
}

// Expired reports whether the key has passed its expiry relative to now.
func (k BlobKey) Expired(now time.Time) bool {
	return k.ExpiryTimestampNs < uint64(now.UnixNano())
}

// CID renders the blob's digest as a CIDv1 string via MultihashKey, the
// same raw-codec, SHA2-256 multihash encoding the teacher's storage
// gateway uses for its pinned content addresses. It is a display/logging
// convenience only; the KV and wire protocol key everything off the raw
// digest.
func (k BlobKey) CID() (string, error) {
	return MultihashKey(k.Digest)
}
