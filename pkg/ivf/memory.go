package ivf

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// FlatParentIndex is a brute-force reference ParentIndex: it holds one
// centroid vector per partition and, on Search, ranks every centroid
// against each query. Good enough to exercise a Coordinator in tests and
// the demo server; not a production clustering index (construction lives
// in BuildReferenceIndex).
type FlatParentIndex struct {
	mu         sync.RWMutex
	metric     Metric
	partitions []int64
	centroids  [][]float32
}

// NewFlatParentIndex builds a parent index over the given (partitionID,
// centroid) pairs. partitionIDs and centroids must be the same length.
func NewFlatParentIndex(metric Metric, partitionIDs []int64, centroids [][]float32) (*FlatParentIndex, error) {
	if len(partitionIDs) != len(centroids) {
		return nil, fmt.Errorf("ivf: partitionIDs (%d) and centroids (%d) length mismatch", len(partitionIDs), len(centroids))
	}
	return &FlatParentIndex{
		metric:     metric,
		partitions: append([]int64(nil), partitionIDs...),
		centroids:  centroids,
	}, nil
}

func (f *FlatParentIndex) Search(queries [][]float32, nprobe int) ([][]int64, time.Duration, error) {
	start := time.Now()
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([][]int64, len(queries))
	type scored struct {
		pid  int64
		dist float32
	}
	for qi, q := range queries {
		scores := make([]scored, len(f.centroids))
		for i, c := range f.centroids {
			scores[i] = scored{pid: f.partitions[i], dist: f.metric.distance(q, c)}
		}
		sort.Slice(scores, func(i, j int) bool {
			return f.metric.better(scores[i].dist, scores[j].dist)
		})
		limit := nprobe
		if limit > len(scores) {
			limit = len(scores)
		}
		row := make([]int64, limit)
		for i := 0; i < limit; i++ {
			row[i] = scores[i].pid
		}
		out[qi] = row
	}
	return out, time.Since(start), nil
}

// MemoryPartitionStore is a read-only-during-search, appendable-at-build
// in-memory PartitionManager.
type MemoryPartitionStore struct {
	mu    sync.RWMutex
	parts map[int64]Partition
	order []int64
}

func NewMemoryPartitionStore() *MemoryPartitionStore {
	return &MemoryPartitionStore{parts: make(map[int64]Partition)}
}

// AddPartition inserts or replaces a partition. Intended for build-time use
// only; callers must not mutate a live snapshot concurrently with a Search.
func (s *MemoryPartitionStore) AddPartition(p Partition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.parts[p.ID]; !exists {
		s.order = append(s.order, p.ID)
	}
	s.parts[p.ID] = p
}

func (s *MemoryPartitionStore) GetPartition(pid int64) (Partition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.parts[pid]
	return p, ok
}

func (s *MemoryPartitionStore) ListPartitions() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int64, len(s.order))
	copy(out, s.order)
	return out
}

func (s *MemoryPartitionStore) NumVectorsIn(pid int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.parts[pid].IDs)
}

// MemoryAttributeTable stores one map[int64]any per column and evaluates
// the minimal comparison operator set described by SearchParams.FilterOp.
type MemoryAttributeTable struct {
	mu      sync.RWMutex
	columns map[string]map[int64]any
}

func NewMemoryAttributeTable() *MemoryAttributeTable {
	return &MemoryAttributeTable{columns: make(map[string]map[int64]any)}
}

// SetColumn replaces the values for a column. Intended for build-time use.
func (t *MemoryAttributeTable) SetColumn(name string, values map[int64]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.columns[name] = values
}

func (t *MemoryAttributeTable) Evaluate(column, op string, literal any, ids []int64) ([]bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	col, ok := t.columns[column]
	if !ok {
		return nil, fmt.Errorf("ivf: unknown attribute column %q", column)
	}
	cmp, err := operatorFunc(op)
	if err != nil {
		return nil, err
	}

	out := make([]bool, len(ids))
	for i, id := range ids {
		v, ok := col[id]
		if !ok {
			out[i] = false
			continue
		}
		out[i] = cmp(v, literal)
	}
	return out, nil
}

func operatorFunc(op string) (func(a, b any) bool, error) {
	switch op {
	case "equal":
		return valuesEqual, nil
	case "not_equal":
		return func(a, b any) bool { return !valuesEqual(a, b) }, nil
	case "less":
		return func(a, b any) bool { r, ok := compareValues(a, b); return ok && r < 0 }, nil
	case "less_equal":
		return func(a, b any) bool { r, ok := compareValues(a, b); return ok && r <= 0 }, nil
	case "greater":
		return func(a, b any) bool { r, ok := compareValues(a, b); return ok && r > 0 }, nil
	case "greater_equal":
		return func(a, b any) bool { r, ok := compareValues(a, b); return ok && r >= 0 }, nil
	default:
		return nil, fmt.Errorf("ivf: unrecognized filter operator %q", op)
	}
}

func valuesEqual(a, b any) bool {
	if r, ok := compareValues(a, b); ok {
		return r == 0
	}
	return a == b
}

// compareValues coerces a and b to a common comparable type (numeric or
// string) and returns their ordering; ok is false for incomparable types.
func compareValues(a, b any) (int, bool) {
	af, aok := toFloat64(a)
	bf, bok := toFloat64(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch {
		case as < bs:
			return -1, true
		case as > bs:
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}
