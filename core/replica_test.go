package core

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type stubNotifier struct {
	mu      sync.Mutex
	digests [][32]byte
	done    chan struct{}
}

func newStubNotifier(expect int) *stubNotifier {
	return &stubNotifier{done: make(chan struct{}, expect)}
}

func (s *stubNotifier) NotifyGenerateConfirmation(digest [32]byte) {
	s.mu.Lock()
	s.digests = append(s.digests, digest)
	s.mu.Unlock()
	s.done <- struct{}{}
}

func (s *stubNotifier) waitOne(t *testing.T) {
	t.Helper()
	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for signer notification")
	}
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestReplica_SaveBlob_SingleChunkHappyPath(t *testing.T) {
	notifier := newStubNotifier(1)
	r := NewReplica("r1", DefaultStorageConfig(), testLogger(), NewInMemoryStore(), notifier, NewMetrics())

	digest, chunks := SplitBlob([]byte("payload"), time.Now())
	if err := r.SaveBlob("writer", chunks[0]); err != nil {
		t.Fatalf("SaveBlob failed: %v", err)
	}
	notifier.waitOne(t)

	win, err := r.GetBlob(digest)
	if err != nil {
		t.Fatalf("GetBlob failed: %v", err)
	}
	if string(win.Data) != "payload" {
		t.Fatalf("got %q, want payload", win.Data)
	}
	if win.Next != nil {
		t.Fatalf("expected no next page for a single small blob")
	}
}

func TestReplica_SaveBlob_MultiChunkReassembly(t *testing.T) {
	notifier := newStubNotifier(1)
	r := NewReplica("r1", DefaultStorageConfig(), testLogger(), NewInMemoryStore(), notifier, NewMetrics())

	blob := make([]byte, QueryResponseSize+50)
	for i := range blob {
		blob[i] = byte(i % 251)
	}
	digest, chunks := SplitBlob(blob, time.Now())

	// Write out of strict order to exercise independent offset writes.
	if err := r.SaveBlob("writer", chunks[1]); err != nil {
		t.Fatalf("save chunk 1: %v", err)
	}
	if err := r.SaveBlob("writer", chunks[0]); err != nil {
		t.Fatalf("save chunk 0: %v", err)
	}
	if err := r.SaveBlob("writer", chunks[2]); err != nil {
		t.Fatalf("save chunk 2: %v", err)
	}
	notifier.waitOne(t)

	win, err := r.GetBlob(digest)
	if err != nil {
		t.Fatalf("GetBlob failed: %v", err)
	}
	if win.Next == nil {
		t.Fatalf("expected pagination for a blob larger than QueryResponseSize")
	}
}

func TestReplica_SaveBlob_DigestMismatch(t *testing.T) {
	notifier := newStubNotifier(1)
	r := NewReplica("r1", DefaultStorageConfig(), testLogger(), NewInMemoryStore(), notifier, NewMetrics())

	_, chunks := SplitBlob([]byte("abc"), time.Now())
	bad := chunks[0]
	bad.Data = []byte("xyz") // same length, different content than digest covers

	err := r.SaveBlob("writer", bad)
	if !errors.Is(err, ErrDigestMismatch) {
		t.Fatalf("expected ErrDigestMismatch, got %v", err)
	}

	if _, err := r.GetBlob(bad.Digest); err != nil {
		t.Fatalf("GetBlob after mismatch should not error: %v", err)
	}
	if r.heap.Contains(bad.Digest) {
		t.Fatalf("digest mismatch must fully reset the retention heap entry")
	}
	if r.RetentionLen() != 0 {
		t.Fatalf("got retention len %d, want 0 after mismatch reset", r.RetentionLen())
	}

	// The digest must be re-deliverable from Absent after the reset.
	if err := r.SaveBlob("writer", chunks[0]); err != nil {
		t.Fatalf("resend after mismatch reset should succeed, got %v", err)
	}
	notifier.waitOne(t)
	if win, err := r.GetBlob(chunks[0].Digest); err != nil || string(win.Data) != "abc" {
		t.Fatalf("expected resent blob readable, got %+v, %v", win, err)
	}
}

func TestReplica_SaveBlob_DuplicateCompleteIsNoOp(t *testing.T) {
	notifier := newStubNotifier(1)
	r := NewReplica("r1", DefaultStorageConfig(), testLogger(), NewInMemoryStore(), notifier, NewMetrics())

	_, chunks := SplitBlob([]byte("idempotent"), time.Now())
	if err := r.SaveBlob("writer", chunks[0]); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	notifier.waitOne(t)

	if err := r.SaveBlob("writer", chunks[0]); err != nil {
		t.Fatalf("duplicate save on completed digest should be a no-op, got %v", err)
	}
}

func TestReplica_SaveBlob_UnauthorizedWriter(t *testing.T) {
	cfg := DefaultStorageConfig()
	cfg.WriterReplicas = map[ReplicaID]struct{}{"allowed": {}}
	r := NewReplica("r1", cfg, testLogger(), NewInMemoryStore(), nil, NewMetrics())

	_, chunks := SplitBlob([]byte("x"), time.Now())
	err := r.SaveBlob("someone-else", chunks[0])
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestReplica_GetBlob_AbsentDigestReturnsEmptyWindow(t *testing.T) {
	r := NewReplica("r1", DefaultStorageConfig(), testLogger(), NewInMemoryStore(), nil, NewMetrics())
	win, err := r.GetBlob(digestOf(42))
	if err != nil {
		t.Fatalf("unexpected error for absent digest: %v", err)
	}
	if win.Data != nil || win.Next != nil {
		t.Fatalf("expected empty window for absent digest, got %+v", win)
	}
}

func TestRetentionHeap_EvictionThroughReplica(t *testing.T) {
	cfg := DefaultStorageConfig()
	cfg.CanisterStorageThreshold = 1
	r := NewReplica("r1", cfg, testLogger(), NewInMemoryStore(), newStubNotifier(2), NewMetrics())

	d1, c1 := SplitBlob([]byte("first"), time.Unix(1, 0))
	d2, c2 := SplitBlob([]byte("second"), time.Unix(2, 0))

	if err := r.SaveBlob("w", c1[0]); err != nil {
		t.Fatalf("save first: %v", err)
	}
	if err := r.SaveBlob("w", c2[0]); err != nil {
		t.Fatalf("save second: %v", err)
	}

	if r.RetentionLen() != 1 {
		t.Fatalf("got retention len %d, want 1", r.RetentionLen())
	}
	if _, err := r.kv.Get(blobKVKey(d1)); err == nil {
		t.Fatalf("expected evicted digest's buffer to be gone")
	}
	if win, err := r.GetBlob(d2); err != nil || string(win.Data) != "second" {
		t.Fatalf("expected surviving digest readable, got %+v, %v", win, err)
	}
}

func TestMultihashKey_DeterministicAndDistinct(t *testing.T) {
	d1, _ := SplitBlob([]byte("alpha"), time.Unix(1, 0))
	d2, _ := SplitBlob([]byte("beta"), time.Unix(1, 0))

	k1a, err := MultihashKey(d1)
	if err != nil {
		t.Fatalf("MultihashKey: %v", err)
	}
	k1b, err := MultihashKey(d1)
	if err != nil {
		t.Fatalf("MultihashKey: %v", err)
	}
	if k1a != k1b {
		t.Fatalf("MultihashKey not deterministic: %q vs %q", k1a, k1b)
	}

	k2, err := MultihashKey(d2)
	if err != nil {
		t.Fatalf("MultihashKey: %v", err)
	}
	if k2 == k1a {
		t.Fatalf("distinct digests produced the same CID")
	}
}
