package core

import "context"

// ReplicaTransport is the client's view of a storage replica: the
// RPC/actor transport that actually carries these calls is an external
// collaborator (spec §1); this interface is the seam the disperser talks
// through, mirroring how core/replication.go abstracts peer networking
// behind a PeerManager interface.
type ReplicaTransport interface {
	SaveBlob(ctx context.Context, replica ReplicaID, chunk Chunk) error
	GetBlob(ctx context.Context, replica ReplicaID, digest [32]byte) (BlobWindow, error)
	GetBlobWithIndex(ctx context.Context, replica ReplicaID, digest [32]byte, index uint64) (BlobWindow, error)
}

// LocalReplicaTransport dispatches directly to in-process Replica
// instances, keyed by id. It is the reference transport used for tests
// and single-process demos; a networked deployment replaces it with a
// real RPC client.
type LocalReplicaTransport struct {
	replicas map[ReplicaID]*Replica
	callerID ReplicaID
}

// NewLocalReplicaTransport wires a transport over the given replica set.
// callerID is the writer identity presented to each replica's allowlist
// check.
func NewLocalReplicaTransport(replicas map[ReplicaID]*Replica, callerID ReplicaID) *LocalReplicaTransport {
	return &LocalReplicaTransport{replicas: replicas, callerID: callerID}
}

func (t *LocalReplicaTransport) lookup(id ReplicaID) (*Replica, error) {
	r, ok := t.replicas[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (t *LocalReplicaTransport) SaveBlob(_ context.Context, replica ReplicaID, chunk Chunk) error {
	r, err := t.lookup(replica)
	if err != nil {
		return err
	}
	return r.SaveBlob(t.callerID, chunk)
}

func (t *LocalReplicaTransport) GetBlob(_ context.Context, replica ReplicaID, digest [32]byte) (BlobWindow, error) {
	r, err := t.lookup(replica)
	if err != nil {
		return BlobWindow{}, err
	}
	return r.GetBlob(digest)
}

func (t *LocalReplicaTransport) GetBlobWithIndex(_ context.Context, replica ReplicaID, digest [32]byte, index uint64) (BlobWindow, error) {
	r, err := t.lookup(replica)
	if err != nil {
		return BlobWindow{}, err
	}
	return r.GetBlobWithIndex(digest, index)
}
