package core

import (
	"crypto/rand"
	"encoding/binary"
	"math/big"
	"sync/atomic"
)

// SelectionTable is the compile-time (here: construction-time)
// CollectionSize x ReplicaNum table the client's round-robin selector
// indexes into. Each row is one replica set; all replicas in a row
// receive the same blob.
type SelectionTable struct {
	rows [][]ReplicaID
	idx  uint64 // atomic, seeded randomly at construction
}

// NewSelectionTable builds a table by repeating replicas across rows of
// size replicaNum, total collectionSize rows, round-robin over the
// provided replica ids. The starting index is seeded uniformly at random
// so concurrent processes sharing the same table layout do not all start
// at row 0.
func NewSelectionTable(replicas []ReplicaID, collectionSize, replicaNum int) (*SelectionTable, error) {
	if len(replicas) == 0 {
		return nil, ErrInvalidConfig
	}
	if collectionSize <= 0 || replicaNum <= 0 {
		return nil, ErrInvalidConfig
	}

	rows := make([][]ReplicaID, collectionSize)
	cursor := 0
	for r := 0; r < collectionSize; r++ {
		row := make([]ReplicaID, replicaNum)
		for c := 0; c < replicaNum; c++ {
			row[c] = replicas[cursor%len(replicas)]
			cursor++
		}
		rows[r] = row
	}

	seed, err := randomUint64(uint64(collectionSize))
	return &SelectionTable{rows: rows, idx: seed}, err
}

func randomUint64(mod uint64) (uint64, error) {
	if mod == 0 {
		return 0, nil
	}
	n, err := rand.Int(rand.Reader, new(big.Int).SetUint64(mod))
	if err != nil {
		return 0, err
	}
	var b [8]byte
	n.FillBytes(b[:])
	return binary.BigEndian.Uint64(b[:]), nil
}

// Next atomically advances the process-wide round-robin index and returns
// the replica set for the selected row. Concurrent callers never draw the
// same index value; rows repeat once every CollectionSize draws.
func (t *SelectionTable) Next() []ReplicaID {
	i := atomic.AddUint64(&t.idx, 1) - 1
	row := t.rows[i%uint64(len(t.rows))]
	out := make([]ReplicaID, len(row))
	copy(out, row)
	return out
}
