package core

import "testing"

func TestNewSelectionTable_RejectsEmptyReplicas(t *testing.T) {
	if _, err := NewSelectionTable(nil, 4, 3); err == nil {
		t.Fatalf("expected error for empty replica set")
	}
}

func TestNewSelectionTable_RejectsNonPositiveDims(t *testing.T) {
	replicas := []ReplicaID{"a", "b"}
	if _, err := NewSelectionTable(replicas, 0, 3); err == nil {
		t.Fatalf("expected error for zero collectionSize")
	}
	if _, err := NewSelectionTable(replicas, 4, 0); err == nil {
		t.Fatalf("expected error for zero replicaNum")
	}
}

func TestSelectionTable_RowShapeCyclesReplicas(t *testing.T) {
	replicas := []ReplicaID{"a", "b", "c"}
	table, err := NewSelectionTable(replicas, 5, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 10; i++ {
		row := table.Next()
		if len(row) != 2 {
			t.Fatalf("row length = %d, want 2", len(row))
		}
		for _, id := range row {
			found := false
			for _, r := range replicas {
				if r == id {
					found = true
				}
			}
			if !found {
				t.Fatalf("row contains unknown replica %q", id)
			}
		}
	}
}

func TestSelectionTable_NextAdvancesSequentially(t *testing.T) {
	replicas := []ReplicaID{"r1", "r2", "r3", "r4"}
	table, err := NewSelectionTable(replicas, 4, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Collect CollectionSize draws; with one-replica rows the sequence
	// over a full cycle must touch every row exactly once before repeating.
	seen := make(map[ReplicaID]int)
	for i := 0; i < 4; i++ {
		row := table.Next()
		seen[row[0]]++
	}
	for _, id := range replicas {
		if seen[id] != 1 {
			t.Fatalf("replica %q seen %d times in one full cycle, want 1", id, seen[id])
		}
	}
}

func TestSelectionTable_NextReturnsDefensiveCopy(t *testing.T) {
	replicas := []ReplicaID{"a", "b"}
	table, err := NewSelectionTable(replicas, 2, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	row := table.Next()
	row[0] = "tampered"
	row2 := table.Next()
	for _, id := range row2 {
		if id == "tampered" {
			t.Fatalf("mutation of returned row leaked into table state")
		}
	}
}
