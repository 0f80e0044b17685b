package core

import "time"

// Protocol-wide defaults. All are config-overridable except ChunkSize, which
// is fixed so that offset math at a replica never depends on who wrote a
// chunk.
const (
	// ChunkSize is the fixed byte length of every chunk but the last.
	ChunkSize = 1 << 20 // 1 MiB

	// QueryResponseSize bounds a single replica read response.
	QueryResponseSize = 2_621_440 // 2.5 MiB

	// ConfirmationBatchSize is the number of leaves per signed Merkle batch.
	ConfirmationBatchSize = 12

	// ConfirmationLiveTime is the number of batches kept before pruning.
	ConfirmationLiveTime uint32 = 120_961

	// BlobLiveTime is the client-side expiry horizon for a BlobKey.
	BlobLiveTime = 7 * 24 * time.Hour

	// CanisterStorageThreshold caps the number of distinct blobs a replica
	// retains.
	CanisterStorageThreshold = 30_240

	// WriteAttempts is the number of per-chunk write attempts before spill.
	WriteAttempts = 3

	// WriteBackoff is the fixed delay between write attempts.
	WriteBackoff = 5 * time.Second

	// ReuploadScanInterval is how often the reupload loop scans the spill
	// directory.
	ReuploadScanInterval = 600 * time.Second

	// ReuploadRetryInterval is the per-file retry cadence in the reupload
	// loop.
	ReuploadRetryInterval = 60 * time.Second

	// ReadPollInterval is how often the read race checks for all-closed
	// senders.
	ReadPollInterval = 1 * time.Second

	// DefaultReplicaNum is the default size of a write replica set.
	DefaultReplicaNum = 3

	// DefaultCollectionSize is the default row count of the selection table.
	DefaultCollectionSize = 64
)

// SpillFileExt is the extension used for spilled chunk files.
const SpillFileExt = ".bin"
