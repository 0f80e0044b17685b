package core

// Storage replica — per-replica ingest state machine.
//
// A digest moves Absent -> Partial -> Complete -> Retired. Every handler
// below runs to completion with respect to the retention heap and the KV;
// the only suspension point is the fire-and-forget signer notification,
// which is scheduled only after the local state transition has committed,
// so the KV never reenters mid-write.

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/sirupsen/logrus"
)

// SignerNotifier is the replica-to-signer relay. The real RPC/actor
// transport that carries this call is an external collaborator; the
// replica only needs this seam.
type SignerNotifier interface {
	NotifyGenerateConfirmation(digest [32]byte)
}

// StorageConfig governs a single replica instance.
type StorageConfig struct {
	CanisterStorageThreshold int
	QueryResponseSize        int
	WriterReplicas           map[ReplicaID]struct{}
	Owner                    string
}

// DefaultStorageConfig returns the spec's default constants.
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		CanisterStorageThreshold: CanisterStorageThreshold,
		QueryResponseSize:        QueryResponseSize,
		WriterReplicas:           map[ReplicaID]struct{}{},
	}
}

// BlobWindow is the bounded read response shape shared by GetBlob and
// GetBlobWithIndex.
type BlobWindow struct {
	Data []byte
	Next *uint64
}

// blobState tracks in-flight assembly for a digest that has not yet
// reached Complete.
type blobState struct {
	totalSize uint64
	digest    [32]byte
}

// Replica is a single storage replica instance: chunk assembly,
// deduplication, whole-blob digest verification, and retention-capped
// persistence, per spec §4.2.
type Replica struct {
	mu sync.Mutex

	id     ReplicaID
	cfg    StorageConfig
	log    *logrus.Logger
	kv     KVStore
	heap   *RetentionHeap
	signer SignerNotifier

	partial map[[32]byte]*blobState
	metrics *Metrics
}

// NewReplica wires a Replica instance.
func NewReplica(id ReplicaID, cfg StorageConfig, log *logrus.Logger, kv KVStore, signer SignerNotifier, m *Metrics) *Replica {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if m == nil {
		m = NewMetrics()
	}
	return &Replica{
		id:      id,
		cfg:     cfg,
		log:     log,
		kv:      kv,
		heap:    NewRetentionHeap(cfg.CanisterStorageThreshold),
		signer:  signer,
		partial: make(map[[32]byte]*blobState),
		metrics: m,
	}
}

func blobKVKey(digest [32]byte) []byte {
	return []byte(hex.EncodeToString(digest[:]))
}

// MultihashKey renders a digest as a CIDv1 string for diagnostics and
// operator-facing logging, adapting core/storage.go's Pin CID computation.
// It never replaces the wire key, which stays hex(digest).
func MultihashKey(digest [32]byte) (string, error) {
	encoded, err := mh.Encode(digest[:], mh.SHA2_256)
	if err != nil {
		return "", err
	}
	return cid.NewCidV1(cid.Raw, encoded).String(), nil
}

// authorize checks the writer allowlist. An empty allowlist permits any
// caller, matching a single-operator test/dev deployment.
func (r *Replica) authorize(caller ReplicaID) error {
	if len(r.cfg.WriterReplicas) == 0 {
		return nil
	}
	if _, ok := r.cfg.WriterReplicas[caller]; !ok {
		return ErrUnauthorized
	}
	return nil
}

// SaveBlob ingests one chunk, per the state machine of spec §4.2.1.
// caller identifies the authorized writer submitting the chunk (typically
// the client itself, or a relay acting on its behalf).
func (r *Replica) SaveBlob(caller ReplicaID, chunk Chunk) error {
	if err := r.authorize(caller); err != nil {
		return err
	}

	r.mu.Lock()

	_, isPartial := r.partial[chunk.Digest]
	inHeap := r.heap.Contains(chunk.Digest)

	switch {
	case inHeap && !isPartial:
		// Complete: duplicate save_blob on a finished digest is a no-op.
		r.mu.Unlock()
		return nil
	case !inHeap:
		// Absent -> Partial.
		if evicted, ok := r.heap.Insert(chunk.Timestamp, chunk.Digest); ok {
			_ = r.kv.Delete(blobKVKey(evicted))
			delete(r.partial, evicted)
			r.log.WithField("digest", hex.EncodeToString(evicted[:])).Debug("replica: retired blob on threshold eviction")
		}
		buf := make([]byte, chunk.TotalSize)
		if err := r.kv.Set(blobKVKey(chunk.Digest), buf); err != nil {
			r.mu.Unlock()
			return fmt.Errorf("replica: allocate buffer: %w", err)
		}
		r.partial[chunk.Digest] = &blobState{totalSize: chunk.TotalSize, digest: chunk.Digest}
	}
	// else: already Partial, fall through to overwrite the chunk range.

	buf, err := r.kv.Get(blobKVKey(chunk.Digest))
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("replica: read buffer: %w", err)
	}

	start := uint64(chunk.Index) * ChunkSize
	end := start + uint64(len(chunk.Data))
	if end > chunk.TotalSize {
		end = chunk.TotalSize
	}
	if start > uint64(len(buf)) || end > uint64(len(buf)) {
		r.mu.Unlock()
		return fmt.Errorf("replica: chunk range out of bounds")
	}
	copy(buf[start:end], chunk.Data[:end-start])
	if err := r.kv.Set(blobKVKey(chunk.Digest), buf); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("replica: write chunk: %w", err)
	}

	finished := end == chunk.TotalSize
	if !finished {
		r.mu.Unlock()
		return nil
	}

	// Partial -> Complete digest check.
	sum := sha256.Sum256(buf)
	delete(r.partial, chunk.Digest)
	r.mu.Unlock()

	if sum != chunk.Digest {
		_ = r.kv.Delete(blobKVKey(chunk.Digest))
		r.heap.Remove(chunk.Digest)
		r.log.WithField("digest", hex.EncodeToString(chunk.Digest[:])).Warn("replica: digest mismatch on reassembly")
		return ErrDigestMismatch
	}

	r.metrics.BlobsCompleted.Inc()
	if cidStr, err := MultihashKey(chunk.Digest); err == nil {
		r.log.WithField("digest", hex.EncodeToString(chunk.Digest[:])).WithField("cid", cidStr).Debug("replica: blob complete")
	}
	if r.signer != nil {
		// Fire-and-forget, scheduled after the state transition commits so
		// the KV is never reentered mid-write. The notification is not
		// retried, and a repeated save_blob on a completed digest returns
		// early as a no-op, so it does not re-notify.
		go r.signer.NotifyGenerateConfirmation(chunk.Digest)
	}
	return nil
}

// GetBlob returns the first bounded window of a blob's bytes.
func (r *Replica) GetBlob(digest [32]byte) (BlobWindow, error) {
	return r.GetBlobWithIndex(digest, 0)
}

// GetBlobWithIndex returns bytes [i*Q, min((i+1)*Q, len)) for the blob
// identified by digest, per spec §4.2.2.
func (r *Replica) GetBlobWithIndex(digest [32]byte, index uint64) (BlobWindow, error) {
	buf, err := r.kv.Get(blobKVKey(digest))
	if err != nil {
		return BlobWindow{}, nil
	}

	q := uint64(r.cfg.QueryResponseSize)
	start := index * q
	if start >= uint64(len(buf)) {
		return BlobWindow{}, nil
	}
	end := start + q
	if end > uint64(len(buf)) {
		end = uint64(len(buf))
	}

	out := make([]byte, end-start)
	copy(out, buf[start:end])

	win := BlobWindow{Data: out}
	if end < uint64(len(buf)) {
		next := index + 1
		win.Next = &next
	}
	return win, nil
}

// UpdateConfig replaces the replica's configuration. Owner-only.
func (r *Replica) UpdateConfig(caller string, cfg StorageConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cfg.Owner != "" && caller != r.cfg.Owner {
		return ErrUnauthorized
	}
	r.cfg = cfg
	return nil
}

// RetentionLen exposes the current retention heap size, primarily for
// tests asserting the retention bound invariant.
func (r *Replica) RetentionLen() int { return r.heap.Len() }
