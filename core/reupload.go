package core

// Spill-to-disk and background reupload. When a replica write exhausts its
// retry budget the chunk is serialized to SpillDir instead of being
// dropped; a background loop rediscovers spilled files and keeps retrying
// the write, forever, until it succeeds (spec §4.1.1, §9 supplemented
// feature — the original's client/src/upload.rs persists failed uploads
// to a local queue rather than losing them).

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// spillRecord is the on-disk encoding of one undelivered chunk. Fields are
// exported so rlp can encode/decode it without custom codecs, the same
// convention core/replication.go uses for its gossiped block payloads.
type spillRecord struct {
	Index     uint32
	Digest    []byte
	Timestamp uint64
	TotalSize uint64
	Data      []byte
	Replica   string
}

var spillNamePattern = regexp.MustCompile(`^([a-z0-9-]+)_chunk_(\d+)\.bin$`)

func spillFileName(replica ReplicaID, nanos int64) string {
	return fmt.Sprintf("%s_chunk_%d.bin", strings.ToLower(string(replica)), nanos)
}

func manifestFileName(binName string) string {
	return strings.TrimSuffix(binName, ".bin") + ".manifest.yaml"
}

// spillManifest is a human-readable sidecar next to each spilled .bin
// file, for operators inspecting a backlog without decoding rlp.
type spillManifest struct {
	Replica     string `yaml:"replica"`
	ChunkIndex  uint32 `yaml:"chunk_index"`
	Digest      string `yaml:"digest"`
	SpilledUnix int64  `yaml:"spilled_at_unix_nanos"`
}

// spillChunk persists a chunk that could not be delivered, named so the
// reupload loop can recover both the target replica and spill time from
// the filename alone. A YAML manifest alongside it records the same
// facts for human inspection of the backlog.
func spillChunk(dir string, replica ReplicaID, chunk Chunk) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	rec := spillRecord{
		Index:     chunk.Index,
		Digest:    append([]byte(nil), chunk.Digest[:]...),
		Timestamp: chunk.Timestamp,
		TotalSize: chunk.TotalSize,
		Data:      chunk.Data,
		Replica:   string(replica),
	}
	enc, err := rlp.EncodeToBytes(rec)
	if err != nil {
		return err
	}
	nanos := time.Now().UnixNano()
	name := spillFileName(replica, nanos)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, enc, 0o644); err != nil {
		return err
	}

	manifest := spillManifest{
		Replica:     string(replica),
		ChunkIndex:  chunk.Index,
		Digest:      hex.EncodeToString(chunk.Digest[:]),
		SpilledUnix: nanos,
	}
	manifestBytes, err := yaml.Marshal(manifest)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, manifestFileName(name)), manifestBytes, 0o644)
}

func loadSpillFile(path string) (ReplicaID, Chunk, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", Chunk{}, err
	}
	var rec spillRecord
	if err := rlp.DecodeBytes(raw, &rec); err != nil {
		return "", Chunk{}, err
	}
	var digest [32]byte
	copy(digest[:], rec.Digest)
	chunk := Chunk{
		Index:     rec.Index,
		Digest:    digest,
		Timestamp: rec.Timestamp,
		TotalSize: rec.TotalSize,
		Data:      rec.Data,
	}
	return ReplicaID(rec.Replica), chunk, nil
}

// StartReuploadLoop launches the background scan: every ReuploadScan
// interval it lists SpillDir and, for each file not already being
// retried, spawns a task that retries the write every ReuploadRetry
// interval forever until it succeeds, then deletes the file. Safe to call
// once per Client; a second call is a no-op.
func (c *Client) StartReuploadLoop() {
	if c.stopReupload != nil {
		return
	}
	c.stopReupload = make(chan struct{})
	c.reuploadDone = make(chan struct{})
	go c.reuploadScanLoop()
}

// StopReuploadLoop signals the scan loop to exit and waits for it.
func (c *Client) StopReuploadLoop() {
	if c.stopReupload == nil {
		return
	}
	close(c.stopReupload)
	<-c.reuploadDone
	c.stopReupload = nil
}

// inFlightSet tracks spill filenames currently being retried by a
// retrySpillFile goroutine, guarded by a mutex since the scan loop and
// every spawned retry goroutine touch it concurrently.
type inFlightSet struct {
	mu sync.Mutex
	m  map[string]struct{}
}

func (s *inFlightSet) tryAdd(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.m[name]; busy {
		return false
	}
	s.m[name] = struct{}{}
	return true
}

func (s *inFlightSet) remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, name)
}

func (c *Client) reuploadScanLoop() {
	defer close(c.reuploadDone)

	inFlight := &inFlightSet{m: make(map[string]struct{})}
	ticker := time.NewTicker(c.cfg.ReuploadScan)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopReupload:
			return
		case <-ticker.C:
			entries, err := os.ReadDir(c.cfg.SpillDir)
			if err != nil {
				continue
			}
			for _, e := range entries {
				if e.IsDir() || !spillNamePattern.MatchString(e.Name()) {
					continue
				}
				if !inFlight.tryAdd(e.Name()) {
					continue
				}
				path := filepath.Join(c.cfg.SpillDir, e.Name())
				go c.retrySpillFile(path, e.Name(), inFlight)
			}
		}
	}
}

// retrySpillFile retries a single spilled chunk at ReuploadRetry intervals
// until the write succeeds or the reupload loop is stopped. A file that
// cannot be read or decoded is left in place for the next scan.
func (c *Client) retrySpillFile(path, name string, inFlight *inFlightSet) {
	defer inFlight.remove(name)

	replica, chunk, err := loadSpillFile(path)
	if err != nil {
		c.log.WithError(err).WithField("file", name).Warn("reupload: spill file unreadable, leaving for next scan")
		return
	}

	ctx := context.Background()
	sugar := zap.L().Sugar()
	for {
		if err := c.transport.SaveBlob(ctx, replica, chunk); err == nil {
			_ = os.Remove(path)
			_ = os.Remove(filepath.Join(filepath.Dir(path), manifestFileName(name)))
			c.log.WithField("replica", replica).WithField("chunk", chunk.Index).Info("reupload: spilled chunk delivered")
			return
		}
		sugar.Debugf("reupload: retry still pending for %s chunk %d", replica, chunk.Index)
		select {
		case <-c.stopReupload:
			return
		case <-time.After(c.cfg.ReuploadRetry):
		}
	}
}

// parseSpillTimestamp extracts the nanosecond timestamp encoded in a spill
// filename, for tests and diagnostics.
func parseSpillTimestamp(name string) (int64, bool) {
	m := spillNamePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
