package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLocalReplicaTransport_RoundTrip(t *testing.T) {
	r := NewReplica("r1", DefaultStorageConfig(), testLogger(), NewInMemoryStore(), nil, NewMetrics())
	transport := NewLocalReplicaTransport(map[ReplicaID]*Replica{"r1": r}, "writer")

	digest, chunks := SplitBlob([]byte("transport test"), time.Now())
	ctx := context.Background()
	if err := transport.SaveBlob(ctx, "r1", chunks[0]); err != nil {
		t.Fatalf("SaveBlob failed: %v", err)
	}

	win, err := transport.GetBlob(ctx, "r1", digest)
	if err != nil {
		t.Fatalf("GetBlob failed: %v", err)
	}
	if string(win.Data) != "transport test" {
		t.Fatalf("got %q", win.Data)
	}
}

func TestLocalReplicaTransport_UnknownReplica(t *testing.T) {
	transport := NewLocalReplicaTransport(map[ReplicaID]*Replica{}, "writer")
	ctx := context.Background()
	_, chunks := SplitBlob([]byte("x"), time.Now())
	if err := transport.SaveBlob(ctx, "missing", chunks[0]); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
