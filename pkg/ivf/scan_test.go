package ivf

import "testing"

// Invariant 6 (equivalence law): batched and serial scan modes must agree
// on ids and distances within tolerance.
func TestBatchedAndSerialScanAgree(t *testing.T) {
	store := NewMemoryPartitionStore()
	store.AddPartition(Partition{
		ID:      0,
		IDs:     []int64{1, 2, 3, 4},
		Vectors: [][]float32{{0, 0}, {1, 1}, {2, 2}, {3, 3}},
	})
	store.AddPartition(Partition{
		ID:      1,
		IDs:     []int64{5, 6},
		Vectors: [][]float32{{5, 5}, {6, 6}},
	})

	queries := [][]float32{{0, 0}, {6, 6}}
	partitionIDs := [][]int64{{0, 1}, {0, 1}}

	batchedCoord, _ := New(nil, store, nil, L2, 0)
	batched, err := batchedCoord.ScanPartitions(queries, partitionIDs, SearchParams{K: 3, BatchedScan: true})
	if err != nil {
		t.Fatalf("batched ScanPartitions: %v", err)
	}

	serialCoord, _ := New(nil, store, nil, L2, 0)
	serial, err := serialCoord.ScanPartitions(queries, partitionIDs, SearchParams{K: 3, BatchedScan: false})
	if err != nil {
		t.Fatalf("serial ScanPartitions: %v", err)
	}

	for row := range batched.IDs {
		for i := range batched.IDs[row] {
			if batched.IDs[row][i] != serial.IDs[row][i] {
				t.Errorf("row %d slot %d: batched id %d != serial id %d", row, i, batched.IDs[row][i], serial.IDs[row][i])
			}
			diff := batched.Distances[row][i] - serial.Distances[row][i]
			if diff < 0 {
				diff = -diff
			}
			if diff > 1e-4 {
				t.Errorf("row %d slot %d: batched dist %v != serial dist %v", row, i, batched.Distances[row][i], serial.Distances[row][i])
			}
		}
	}
}

func TestBatchedScanParallelWorkersMatchesInline(t *testing.T) {
	store := NewMemoryPartitionStore()
	store.AddPartition(Partition{
		ID:      0,
		IDs:     []int64{1, 2, 3},
		Vectors: [][]float32{{0, 0}, {1, 0}, {0, 1}},
	})

	queries := [][]float32{{0, 0}}
	partitionIDs := [][]int64{{0}}

	inlineCoord, _ := New(nil, store, nil, L2, 0)
	inline, err := inlineCoord.ScanPartitions(queries, partitionIDs, SearchParams{K: 2, BatchedScan: true})
	if err != nil {
		t.Fatalf("inline: %v", err)
	}

	parallelCoord, _ := New(nil, store, nil, L2, 4)
	defer parallelCoord.ShutdownWorkers()
	parallel, err := parallelCoord.ScanPartitions(queries, partitionIDs, SearchParams{K: 2, BatchedScan: true})
	if err != nil {
		t.Fatalf("parallel: %v", err)
	}

	if inline.IDs[0][0] != parallel.IDs[0][0] || inline.IDs[0][1] != parallel.IDs[0][1] {
		t.Errorf("expected matching ids, got inline=%v parallel=%v", inline.IDs[0], parallel.IDs[0])
	}
}
