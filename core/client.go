package core

// Client disperser — chunks a blob, picks a replica set via round-robin,
// writes in parallel across replicas (sequentially within each replica to
// preserve fixed-offset write correctness), and composes the reader that
// races replicas and verifies the reassembled digest (spec §4.1).

import (
	"context"
	"crypto/sha256"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SignerQuery is the client's view of the signature authority: the RPC
// transport carrying these calls is an external collaborator, matching
// ReplicaTransport's role on the write/read side.
type SignerQuery interface {
	GetConfirmation(digest [32]byte) ConfirmationStatus
	GetPublicKey() []byte
}

// ClientConfig governs a Client instance.
type ClientConfig struct {
	WriteAttempts    int
	WriteBackoff     time.Duration
	BlobLiveTime     time.Duration
	ReuploadScan     time.Duration
	ReuploadRetry    time.Duration
	ReadPollInterval time.Duration
	SpillDir         string
}

// DefaultClientConfig returns the spec's default constants.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		WriteAttempts:    WriteAttempts,
		WriteBackoff:     WriteBackoff,
		BlobLiveTime:     BlobLiveTime,
		ReuploadScan:     ReuploadScanInterval,
		ReuploadRetry:    ReuploadRetryInterval,
		ReadPollInterval: ReadPollInterval,
		SpillDir:         "backup",
	}
}

// Client is the client disperser (C1).
type Client struct {
	cfg       ClientConfig
	log       *logrus.Logger
	transport ReplicaTransport
	table     *SelectionTable
	signer    SignerQuery

	pubKeyOnce sync.Once
	pubKey     []byte

	stopReupload chan struct{}
	reuploadDone chan struct{}
}

// NewClient wires a Client over a transport, a selection table and a
// signer query interface.
func NewClient(cfg ClientConfig, log *logrus.Logger, transport ReplicaTransport, table *SelectionTable, signer SignerQuery) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		cfg:       cfg,
		log:       log,
		transport: transport,
		table:     table,
		signer:    signer,
	}
}

// PushBlob splits blob into chunks, selects a replica set, and returns a
// BlobKey immediately; writes settle in the background (spec §4.1,
// push_blob).
func (c *Client) PushBlob(blob []byte) BlobKey {
	now := time.Now()
	digest, chunks := SplitBlob(blob, now)
	replicas := c.table.Next()

	key := BlobKey{
		Digest:            digest,
		ExpiryTimestampNs: uint64(now.Add(c.cfg.BlobLiveTime).UnixNano()),
		Routing: RoutingInfo{
			TotalSize:    uint64(len(blob)),
			HostReplicas: replicas,
		},
	}

	go c.writeAll(replicas, chunks)
	return key
}

// writeAll spawns one task per replica; a failure on one replica never
// cancels another (spec §4.1.1, §5). sessionID is a correlation id for the
// dispersal's log lines, generated once per push_blob call.
func (c *Client) writeAll(replicas []ReplicaID, chunks []Chunk) {
	sessionID := uuid.New().String()
	var wg sync.WaitGroup
	for _, replica := range replicas {
		wg.Add(1)
		go func(rep ReplicaID) {
			defer wg.Done()
			c.writeReplica(sessionID, rep, chunks)
		}(replica)
	}
	wg.Wait()
}

// writeReplica sends chunks to one replica in ascending index order,
// retrying each chunk up to WriteAttempts times with a fixed backoff. On
// exhaustion it spills the chunk to disk and aborts this replica's task.
func (c *Client) writeReplica(sessionID string, replica ReplicaID, chunks []Chunk) {
	ctx := context.Background()
	for _, chunk := range chunks {
		ok := false
		for attempt := 0; attempt < c.cfg.WriteAttempts; attempt++ {
			if err := c.transport.SaveBlob(ctx, replica, chunk); err == nil {
				ok = true
				break
			} else if attempt < c.cfg.WriteAttempts-1 {
				time.Sleep(c.cfg.WriteBackoff)
			}
		}
		if !ok {
			if err := spillChunk(c.cfg.SpillDir, replica, chunk); err != nil {
				c.log.WithError(err).WithField("replica", replica).WithField("session", sessionID).Error("client: spill failed")
			}
			c.log.WithField("replica", replica).WithField("chunk", chunk.Index).WithField("session", sessionID).
				Warn("client: chunk write exhausted retries, spilled and aborting replica task")
			return
		}
	}
}

// readResult carries a verified reassembled blob back from a racing read
// task.
type readResult struct {
	data []byte
}

// GetBlob contacts every replica in the key's routing set in parallel,
// and returns the first reassembled buffer whose digest matches
// key.Digest (spec §4.1.4).
func (c *Client) GetBlob(ctx context.Context, key BlobKey) ([]byte, error) {
	if key.Expired(time.Now()) {
		return nil, ErrExpired
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	resultCh := make(chan readResult, 1)
	var wg sync.WaitGroup
	for _, replica := range key.Routing.HostReplicas {
		wg.Add(1)
		go func(rep ReplicaID) {
			defer wg.Done()
			buf, ok := c.readReplica(ctx, rep, key.Digest)
			if !ok {
				return
			}
			select {
			case resultCh <- readResult{data: buf}:
			default:
			}
		}(replica)
	}

	doneCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneCh)
	}()

	ticker := time.NewTicker(c.cfg.ReadPollInterval)
	defer ticker.Stop()
	for {
		select {
		case res := <-resultCh:
			return res.data, nil
		case <-doneCh:
			select {
			case res := <-resultCh:
				return res.data, nil
			default:
				return nil, ErrNotRetrievable
			}
		case <-ticker.C:
			// Drained-channel poll cadence only; loop continues.
		}
	}
}

// readReplica streams a blob back from one replica, following the
// next-window chain, and verifies the reassembled digest.
func (c *Client) readReplica(ctx context.Context, replica ReplicaID, digest [32]byte) ([]byte, bool) {
	win, err := c.transport.GetBlob(ctx, replica, digest)
	if err != nil || win.Data == nil {
		return nil, false
	}
	buf := append([]byte(nil), win.Data...)
	next := win.Next
	for next != nil {
		select {
		case <-ctx.Done():
			return nil, false
		default:
		}
		w, err := c.transport.GetBlobWithIndex(ctx, replica, digest, *next)
		if err != nil || w.Data == nil {
			return nil, false
		}
		buf = append(buf, w.Data...)
		next = w.Next
	}

	if sha256.Sum256(buf) != digest {
		return nil, false
	}
	return buf, true
}

// GetConfirmation is get_confirmation: a thin relay to the signature
// authority.
func (c *Client) GetConfirmation(digest [32]byte) ConfirmationStatus {
	return c.signer.GetConfirmation(digest)
}

// VerifyConfirmation is the pure verify_confirmation function, using the
// authority's public key (fetched once and cached).
func (c *Client) VerifyConfirmation(conf Confirmation) VerifyResult {
	c.pubKeyOnce.Do(func() {
		c.pubKey = c.signer.GetPublicKey()
	})
	return VerifyConfirmation(c.pubKey, conf)
}
