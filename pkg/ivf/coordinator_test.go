package ivf

import (
	"math"
	"testing"
)

func smallPartitions() *MemoryPartitionStore {
	store := NewMemoryPartitionStore()
	store.AddPartition(Partition{
		ID:      0,
		IDs:     []int64{1, 2, 3},
		Vectors: [][]float32{{0, 0}, {1, 0}, {0, 1}},
	})
	store.AddPartition(Partition{
		ID:      1,
		IDs:     []int64{4, 5},
		Vectors: [][]float32{{10, 10}, {10, 11}},
	})
	return store
}

func flatParent(t *testing.T) *FlatParentIndex {
	t.Helper()
	parent, err := NewFlatParentIndex(L2, []int64{0, 1}, [][]float32{{0, 0}, {10, 10}})
	if err != nil {
		t.Fatalf("NewFlatParentIndex: %v", err)
	}
	return parent
}

// S1: flat (null parent) search returns the global top-k across every
// partition.
func TestSearchFlatNullParent(t *testing.T) {
	store := smallPartitions()
	coord, err := New(nil, store, nil, L2, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := coord.Search([][]float32{{0, 0}}, SearchParams{K: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !res.ForcedBatched {
		t.Error("expected ForcedBatched true in flat mode")
	}
	if res.IDs[0][0] != 1 {
		t.Errorf("expected nearest id 1, got %d", res.IDs[0][0])
	}
}

// S2: IVF search with nprobe restricts the candidate set to the probed
// partitions.
func TestSearchIVFWithNprobe(t *testing.T) {
	store := smallPartitions()
	coord, err := New(flatParent(t), store, nil, L2, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := coord.Search([][]float32{{0, 0}}, SearchParams{K: 2, Nprobe: 1, BatchedScan: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, id := range res.IDs[0] {
		if id == 4 || id == 5 {
			t.Errorf("nprobe=1 should not touch partition 1, got id %d", id)
		}
	}
}

// S3: empty query batch returns an empty result without touching workers.
func TestSearchEmptyQueries(t *testing.T) {
	store := smallPartitions()
	coord, err := New(nil, store, nil, L2, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := coord.Search(nil, SearchParams{K: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.IDs) != 0 {
		t.Errorf("expected empty result, got %d rows", len(res.IDs))
	}
}

// S4: a nil partition manager at construction fails immediately.
func TestNewRejectsNilPartitionManager(t *testing.T) {
	_, err := New(nil, nil, nil, L2, 0)
	if err == nil {
		t.Fatal("expected error for nil partition manager")
	}
	if kind, ok := KindOf(err); !ok || kind != ErrInvalidState {
		t.Errorf("expected ErrInvalidState, got %v (ok=%v)", kind, ok)
	}
}

// S5: pre-filtering only returns ids whose attribute passes the predicate.
func TestSearchPreFilter(t *testing.T) {
	store := smallPartitions()
	attrs := NewMemoryAttributeTable()
	attrs.SetColumn("tier", map[int64]any{1: "gold", 2: "silver", 3: "gold", 4: "gold", 5: "silver"})

	coord, err := New(nil, store, attrs, L2, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := coord.Search([][]float32{{0, 0}}, SearchParams{
		K: 5, FilterColumn: "tier", FilterOp: "equal", FilterValue: "gold", FilteringType: FilterPre,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, id := range res.IDs[0] {
		if id == -1 {
			continue
		}
		if id != 1 && id != 3 && id != 4 {
			t.Errorf("expected only gold-tier ids (1,3,4), got %d", id)
		}
	}
}

// S6: post-filtering with a sufficient overfetch factor returns the same id
// set as pre-filtering for the same predicate (invariant 7).
func TestSearchPreAndPostFilterAgree(t *testing.T) {
	store := smallPartitions()
	attrs := NewMemoryAttributeTable()
	attrs.SetColumn("tier", map[int64]any{1: "gold", 2: "silver", 3: "gold", 4: "gold", 5: "silver"})

	preCoord, _ := New(nil, store, attrs, L2, 0)
	postCoord, _ := New(nil, store, attrs, L2, 0)

	pre, err := preCoord.Search([][]float32{{0, 0}}, SearchParams{
		K: 3, FilterColumn: "tier", FilterOp: "equal", FilterValue: "gold", FilteringType: FilterPre,
	})
	if err != nil {
		t.Fatalf("pre Search: %v", err)
	}
	post, err := postCoord.Search([][]float32{{0, 0}}, SearchParams{
		K: 3, FilterColumn: "tier", FilterOp: "equal", FilterValue: "gold", FilteringType: FilterPost, OverfetchFactor: 5,
	})
	if err != nil {
		t.Fatalf("post Search: %v", err)
	}

	preSet := map[int64]bool{}
	for _, id := range pre.IDs[0] {
		if id != -1 {
			preSet[id] = true
		}
	}
	postSet := map[int64]bool{}
	for _, id := range post.IDs[0] {
		if id != -1 {
			postSet[id] = true
		}
	}
	if len(preSet) != len(postSet) {
		t.Fatalf("pre/post filter id-set size mismatch: pre=%v post=%v", preSet, postSet)
	}
	for id := range preSet {
		if !postSet[id] {
			t.Errorf("id %d present in pre-filter result but not post-filter", id)
		}
	}
}

// S7: k larger than the total candidate set pads the remainder with
// sentinels (invariant 4).
func TestSearchKLargerThanPartitionSize(t *testing.T) {
	store := NewMemoryPartitionStore()
	store.AddPartition(Partition{ID: 0, IDs: []int64{1}, Vectors: [][]float32{{0, 0}}})
	coord, _ := New(nil, store, nil, L2, 0)

	res, err := coord.Search([][]float32{{0, 0}}, SearchParams{K: 4})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.IDs[0][0] != 1 {
		t.Errorf("expected first slot id 1, got %d", res.IDs[0][0])
	}
	for i := 1; i < 4; i++ {
		if res.IDs[0][i] != -1 {
			t.Errorf("slot %d: expected sentinel, got %d", i, res.IDs[0][i])
		}
		if !math.IsInf(float64(res.Distances[0][i]), 1) {
			t.Errorf("slot %d: expected +Inf sentinel distance, got %v", i, res.Distances[0][i])
		}
	}
}

// Determinism law (invariant 5): results are identical across worker counts
// 0, 1 and 4, each on a freshly constructed Coordinator.
func TestSearchDeterministicAcrossWorkerCounts(t *testing.T) {
	store := smallPartitions()

	var results [][][]int64
	for _, workers := range []int{0, 1, 4} {
		coord, err := New(nil, store, nil, L2, workers)
		if err != nil {
			t.Fatalf("New(workers=%d): %v", workers, err)
		}
		res, err := coord.Search([][]float32{{0, 0}, {10, 10}}, SearchParams{K: 3})
		if err != nil {
			t.Fatalf("Search(workers=%d): %v", workers, err)
		}
		results = append(results, res.IDs)
		coord.ShutdownWorkers()
	}

	for i := 1; i < len(results); i++ {
		for row := range results[0] {
			for j := range results[0][row] {
				if results[0][row][j] != results[i][row][j] {
					t.Errorf("worker-count mismatch at row %d slot %d: %v vs %v", row, j, results[0][row], results[i][row])
				}
			}
		}
	}
}

// S9: ScanPartitions tolerates -1 entries and yields an all-sentinel result
// when no real partitions are supplied.
func TestScanPartitionsAllSentinelRow(t *testing.T) {
	store := smallPartitions()
	coord, _ := New(nil, store, nil, L2, 0)

	res, err := coord.ScanPartitions([][]float32{{0, 0}}, [][]int64{{-1, -1}}, SearchParams{K: 2})
	if err != nil {
		t.Fatalf("ScanPartitions: %v", err)
	}
	for _, id := range res.IDs[0] {
		if id != -1 {
			t.Errorf("expected all-sentinel row, got id %d", id)
		}
	}
}

// Invariant 1 & 2: output shape is rectangular and distances are monotone.
func TestSearchResultShapeAndMonotonicity(t *testing.T) {
	store := smallPartitions()
	coord, _ := New(nil, store, nil, L2, 0)

	res, err := coord.Search([][]float32{{0, 0}, {10, 10}}, SearchParams{K: 3})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.IDs) != 2 || len(res.Distances) != 2 {
		t.Fatalf("expected 2 rows, got %d ids rows / %d dist rows", len(res.IDs), len(res.Distances))
	}
	for r := range res.IDs {
		if len(res.IDs[r]) != 3 || len(res.Distances[r]) != 3 {
			t.Errorf("row %d: expected 3 columns, got %d/%d", r, len(res.IDs[r]), len(res.Distances[r]))
		}
		for i := 1; i < len(res.Distances[r]); i++ {
			if res.Distances[r][i] < res.Distances[r][i-1] {
				t.Errorf("row %d: distances not monotone non-decreasing: %v", r, res.Distances[r])
			}
		}
	}
}

func TestSearchRejectsNonPositiveK(t *testing.T) {
	store := smallPartitions()
	coord, _ := New(nil, store, nil, L2, 0)
	if _, err := coord.Search([][]float32{{0, 0}}, SearchParams{K: 0}); err == nil {
		t.Fatal("expected error for k=0")
	}
}

// Timing breakdown: when a partition holds more candidates
// than k, the buffer must evict at least once, and that cost is surfaced
// as TimingInfo.BoundaryDistance.
func TestSearchRecordsBoundaryDistanceOnEviction(t *testing.T) {
	store := NewMemoryPartitionStore()
	store.AddPartition(Partition{
		ID:      0,
		IDs:     []int64{1, 2, 3, 4, 5},
		Vectors: [][]float32{{0, 0}, {1, 0}, {2, 0}, {3, 0}, {4, 0}},
	})
	coord, _ := New(nil, store, nil, L2, 0)

	res, err := coord.Search([][]float32{{0, 0}}, SearchParams{K: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Timing.BoundaryDistance <= 0 {
		t.Errorf("expected BoundaryDistance > 0 when candidates exceed k, got %v", res.Timing.BoundaryDistance)
	}
}

func TestSearchRejectsRaggedQueries(t *testing.T) {
	store := smallPartitions()
	coord, _ := New(nil, store, nil, L2, 0)
	if _, err := coord.Search([][]float32{{0, 0}, {0, 0, 0}}, SearchParams{K: 1}); err == nil {
		t.Fatal("expected error for ragged query dimensions")
	}
}
