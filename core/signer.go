package core

// Signature authority — aggregates per-replica digest notifications into
// fixed-size Merkle batches, signs each root once, and serves per-leaf
// proofs. Single-threaded cooperative with respect to its own state: every
// insert_digest call updates the digest index and batch map atomically;
// the sign RPC itself is spawned as a separate goroutine so insert_digest
// never blocks on the external signer (spec §4.3, §5).

import (
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// SignatureConfig governs a signature authority instance.
type SignatureConfig struct {
	ConfirmationBatchSize int
	ConfirmationLiveTime  uint32
	WriterReplicas        map[ReplicaID]struct{}
	Owner                 string
}

// DefaultSignatureConfig returns the spec's default constants.
func DefaultSignatureConfig() SignatureConfig {
	return SignatureConfig{
		ConfirmationBatchSize: ConfirmationBatchSize,
		ConfirmationLiveTime:  ConfirmationLiveTime,
		WriterReplicas:        map[ReplicaID]struct{}{},
	}
}

// Batch is the signer's record for one Merkle batch. Signature is nil
// while the batch is open or awaiting its sign RPC; Root is recomputed
// on demand rather than persisted until signing (spec §3, §9).
type Batch struct {
	Index     uint32
	Signature *[64]byte
	Root      [32]byte
	Nodes     [][32]byte
}

// ConfirmationKind enumerates get_confirmation's three outcomes.
type ConfirmationKind int

const (
	StatusInvalid ConfirmationKind = iota
	StatusPending
	StatusConfirmed
)

// ConfirmationProof is the per-leaf Merkle inclusion proof.
type ConfirmationProof struct {
	ProofBytes []byte
	LeafIndex  int
	LeafDigest [32]byte
}

// Confirmation is the (root, proof, signature) triple bound to a digest.
type Confirmation struct {
	Root      [32]byte
	Proof     ConfirmationProof
	Signature string // hex-encoded 64-byte compact ECDSA signature
}

// ConfirmationStatus is the result of get_confirmation.
type ConfirmationStatus struct {
	Kind      ConfirmationKind
	Confirmed Confirmation
}

// Authority is the signature authority (C3): batch membership, Merkle
// batch closing/signing, proof serving, and expiry.
type Authority struct {
	mu sync.Mutex

	cfg    SignatureConfig
	log    *logrus.Logger
	signer Signer
	pubKey []byte

	batches      map[uint32]*Batch
	digestIndex  map[[32]byte]uint32
	currentIndex uint32

	metrics *Metrics
}

// NewAuthority wires an Authority instance, fetching and caching the
// signer's public key once at init (spec §4.3.5).
func NewAuthority(cfg SignatureConfig, log *logrus.Logger, signer Signer, m *Metrics) *Authority {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if m == nil {
		m = NewMetrics()
	}
	a := &Authority{
		cfg:         cfg,
		log:         log,
		signer:      signer,
		batches:     make(map[uint32]*Batch),
		digestIndex: make(map[[32]byte]uint32),
		metrics:     m,
	}
	if signer != nil {
		a.pubKey = signer.PublicKey()
	}
	return a
}

func (a *Authority) authorizeWriter(caller ReplicaID) error {
	if len(a.cfg.WriterReplicas) == 0 {
		return nil
	}
	if _, ok := a.cfg.WriterReplicas[caller]; !ok {
		return ErrUnauthorized
	}
	return nil
}

func (a *Authority) authorizeOwner(caller string) error {
	if a.cfg.Owner == "" {
		return nil
	}
	if caller != a.cfg.Owner {
		return ErrUnauthorized
	}
	return nil
}

// InsertDigest is insert_digest: idempotent ingestion of one digest into
// the currently open batch, closing and asynchronously signing the batch
// once it fills (spec §4.3.1).
func (a *Authority) InsertDigest(caller ReplicaID, digest [32]byte) error {
	if err := a.authorizeWriter(caller); err != nil {
		return err
	}

	a.mu.Lock()

	if _, ok := a.digestIndex[digest]; ok {
		a.mu.Unlock()
		return nil // idempotent
	}

	cur := a.currentIndex
	a.digestIndex[digest] = cur

	b, ok := a.batches[cur]
	if !ok {
		b = &Batch{Index: cur}
		a.batches[cur] = b
	}
	b.Nodes = append(b.Nodes, digest)
	a.metrics.DigestsInserted.Inc()

	var snapshot [][32]byte
	closed := len(b.Nodes)%a.cfg.ConfirmationBatchSize == 0
	if closed {
		a.pruneLocked(cur)
		a.currentIndex = cur + 1
		snapshot = make([][32]byte, len(b.Nodes))
		copy(snapshot, b.Nodes)
	}
	a.mu.Unlock()

	if closed {
		a.metrics.BatchesClosed.Inc()
		go a.signBatch(cur, snapshot)
	}
	return nil
}

// signBatch computes the Merkle root over nodes and requests the external
// signer to sign it, storing the result once it resumes (spec §4.3.2).
func (a *Authority) signBatch(index uint32, nodes [][32]byte) {
	root, err := MerkleRoot(nodes)
	if err != nil {
		a.log.WithError(err).WithField("batch", index).Error("signer: merkle root failed")
		return
	}
	if a.signer == nil {
		a.log.WithField("batch", index).Warn("signer: no external signer configured")
		return
	}
	sig, err := a.signer.Sign(root)
	if err != nil {
		a.metrics.SignFailures.Inc()
		a.log.WithError(err).WithField("batch", index).Warn("signer: external sign failed, batch remains unsigned")
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.batches[index]
	if !ok {
		// Batch was pruned before the sign RPC returned; discard.
		return
	}
	b.Root = root
	b.Signature = &sig
}

// pruneLocked removes the batch that fell out of the retention window as
// of the batch that just closed at index cur. Must be called with a.mu
// held. Pruning is defined in terms of confirmation_live_time (batches),
// never confirmation_batch_size (spec §4.3.4, §9).
func (a *Authority) pruneLocked(cur uint32) {
	if cur <= a.cfg.ConfirmationLiveTime {
		return
	}
	exp := cur - a.cfg.ConfirmationLiveTime
	b, ok := a.batches[exp]
	if !ok {
		return
	}
	for _, n := range b.Nodes {
		delete(a.digestIndex, n)
	}
	delete(a.batches, exp)
	a.metrics.BatchesPruned.Inc()
}

// GetConfirmation is get_confirmation (spec §4.3.3).
func (a *Authority) GetConfirmation(digest [32]byte) ConfirmationStatus {
	a.mu.Lock()
	defer a.mu.Unlock()

	idx, ok := a.digestIndex[digest]
	if !ok {
		return ConfirmationStatus{Kind: StatusInvalid}
	}
	b, ok := a.batches[idx]
	if !ok {
		a.log.WithError(ErrInvariantViolation).WithField("digest", hex.EncodeToString(digest[:])).Error("signer: indexed digest with no backing batch")
		return ConfirmationStatus{Kind: StatusInvalid}
	}
	if b.Signature == nil {
		return ConfirmationStatus{Kind: StatusPending}
	}

	leafIndex := -1
	for i, n := range b.Nodes {
		if n == digest {
			leafIndex = i
			break
		}
	}
	if leafIndex < 0 {
		return ConfirmationStatus{Kind: StatusInvalid}
	}

	proof, root, err := BuildMerkleProof(b.Nodes, leafIndex)
	if err != nil {
		a.log.WithError(err).WithField("batch", idx).Error("signer: proof build failed")
		return ConfirmationStatus{Kind: StatusInvalid}
	}

	return ConfirmationStatus{
		Kind: StatusConfirmed,
		Confirmed: Confirmation{
			Root: root,
			Proof: ConfirmationProof{
				ProofBytes: proof.Flatten(),
				LeafIndex:  leafIndex,
				LeafDigest: digest,
			},
			Signature: hex.EncodeToString(b.Signature[:]),
		},
	}
}

// SpeedUpConfirmation is the owner-only admin op that retries the sign RPC
// for a batch that closed without a signature (spec §4.3.2, §7).
func (a *Authority) SpeedUpConfirmation(caller string, index uint32) error {
	if err := a.authorizeOwner(caller); err != nil {
		return err
	}

	a.mu.Lock()
	b, ok := a.batches[index]
	if !ok {
		a.mu.Unlock()
		return ErrNotFound
	}
	if b.Signature != nil {
		a.mu.Unlock()
		return nil
	}
	if index >= a.currentIndex {
		a.mu.Unlock()
		return fmt.Errorf("%w: batch %d has not closed", ErrNotFound, index)
	}
	nodes := make([][32]byte, len(b.Nodes))
	copy(nodes, b.Nodes)
	a.mu.Unlock()

	a.signBatch(index, nodes)

	a.mu.Lock()
	signed := a.batches[index] != nil && a.batches[index].Signature != nil
	a.mu.Unlock()
	if !signed {
		return fmt.Errorf("%w: batch %d still unsigned", ErrSignerUnavailable, index)
	}
	return nil
}

// GetPublicKey returns the cached signer public key (empty if
// uninitialized).
func (a *Authority) GetPublicKey() []byte {
	out := make([]byte, len(a.pubKey))
	copy(out, a.pubKey)
	return out
}

// UpdateConfig replaces the authority's configuration. Owner-only.
func (a *Authority) UpdateConfig(caller string, cfg SignatureConfig) error {
	if err := a.authorizeOwner(caller); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg = cfg
	return nil
}

// CurrentIndex returns the currently open batch index, for tests and
// monitoring.
func (a *Authority) CurrentIndex() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentIndex
}
