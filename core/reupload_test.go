package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestSpillChunk_RoundTripsThroughLoadSpillFile(t *testing.T) {
	dir := t.TempDir()
	_, chunks := SplitBlob([]byte("spill me"), time.Now())
	if err := spillChunk(dir, "replica-a", chunks[0]); err != nil {
		t.Fatalf("spillChunk failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d files, want 2 (chunk file and its manifest)", len(entries))
	}
	name := entries[0].Name()
	if !spillNamePattern.MatchString(name) {
		t.Fatalf("filename %q does not match expected pattern", name)
	}
	if _, ok := parseSpillTimestamp(name); !ok {
		t.Fatalf("could not parse timestamp out of %q", name)
	}

	replica, chunk, err := loadSpillFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("loadSpillFile failed: %v", err)
	}
	if replica != "replica-a" {
		t.Fatalf("got replica %q, want replica-a", replica)
	}
	if chunk.Digest != chunks[0].Digest || string(chunk.Data) != string(chunks[0].Data) {
		t.Fatalf("round-tripped chunk does not match original")
	}
}

func TestReuploadLoop_DeliversSpilledChunkAndRemovesFile(t *testing.T) {
	r := NewReplica("r1", DefaultStorageConfig(), testLogger(), NewInMemoryStore(), nil, NewMetrics())
	transport := NewLocalReplicaTransport(map[ReplicaID]*Replica{"r1": r}, "client")
	table, err := NewSelectionTable([]ReplicaID{"r1"}, 1, 1)
	if err != nil {
		t.Fatalf("build table: %v", err)
	}

	spillDir := t.TempDir()
	_, chunks := SplitBlob([]byte("recovered"), time.Now())
	if err := spillChunk(spillDir, "r1", chunks[0]); err != nil {
		t.Fatalf("spillChunk failed: %v", err)
	}

	cfg := DefaultClientConfig()
	cfg.SpillDir = spillDir
	cfg.ReuploadScan = 20 * time.Millisecond
	cfg.ReuploadRetry = 20 * time.Millisecond
	client := NewClient(cfg, logrus.New(), transport, table, nil)

	client.StartReuploadLoop()
	defer client.StopReuploadLoop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		entries, err := os.ReadDir(spillDir)
		if err == nil && len(entries) == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	entries, err := os.ReadDir(spillDir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected spill file removed after successful reupload, got %d remaining", len(entries))
	}

	win, err := r.GetBlob(chunks[0].Digest)
	if err != nil || string(win.Data) != "recovered" {
		t.Fatalf("expected replica to hold recovered blob, got %+v, %v", win, err)
	}
}

func TestStartReuploadLoop_SecondCallIsNoOp(t *testing.T) {
	client := NewClient(DefaultClientConfig(), logrus.New(), NewLocalReplicaTransport(nil, "client"), nil, nil)
	client.cfg.SpillDir = t.TempDir()
	client.cfg.ReuploadScan = time.Hour

	client.StartReuploadLoop()
	first := client.stopReupload
	client.StartReuploadLoop()
	if client.stopReupload != first {
		t.Fatalf("second StartReuploadLoop call should be a no-op")
	}
	client.StopReuploadLoop()
}
