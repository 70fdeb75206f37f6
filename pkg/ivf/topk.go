package ivf

import (
	"container/heap"
	"time"
)

// candidate is one (id, distance) pair tracked by a topKBuffer.
type candidate struct {
	id       int64
	distance float32
}

// topKBuffer is a bounded heap of capacity k retaining the best candidates
// seen for a single query. The heap root is always the worst candidate
// currently retained, so a new better candidate can evict it in O(log k).
// Metric picks max-heap-of-worst-is-largest (L2) or
// min-heap-of-worst-is-smallest (inner product) ordering via worseThan.
type topKBuffer struct {
	metric Metric
	k      int
	items  []candidate

	// boundaryTime accumulates time spent re-establishing the top-k
	// boundary (evicting the current worst candidate and re-heapifying)
	// once the buffer is full. Callers serialize Offer per query (scan.go
	// holds the query's lock across the call), so plain accumulation here
	// needs no additional synchronization.
	boundaryTime time.Duration
}

func newTopKBuffer(metric Metric, k int) *topKBuffer {
	return &topKBuffer{metric: metric, k: k, items: make([]candidate, 0, k)}
}

// worseThan reports whether a is a worse candidate than c under metric,
// i.e. c should be preferred and evicted last.
func (b *topKBuffer) worseThan(a, c candidate) bool {
	if b.metric.better(a.distance, c.distance) {
		return false
	}
	if b.metric.better(c.distance, a.distance) {
		return true
	}
	// tie: larger id is "worse" so smaller-id-first survives ties at
	// extraction time per the deterministic merge order requirement.
	return a.id > c.id
}

// Len, Less, Swap, Push, Pop implement container/heap.Interface with the
// root always the worst retained candidate.
func (b *topKBuffer) Len() int { return len(b.items) }

func (b *topKBuffer) Less(i, j int) bool {
	return b.worseThan(b.items[i], b.items[j])
}

func (b *topKBuffer) Swap(i, j int) { b.items[i], b.items[j] = b.items[j], b.items[i] }

func (b *topKBuffer) Push(x any) {
	b.items = append(b.items, x.(candidate))
}

func (b *topKBuffer) Pop() any {
	old := b.items
	n := len(old)
	item := old[n-1]
	b.items = old[:n-1]
	return item
}

// worst returns the current worst retained candidate; ok is false when the
// buffer is not yet full to k.
func (b *topKBuffer) worst() (candidate, bool) {
	if len(b.items) < b.k {
		return candidate{}, false
	}
	return b.items[0], true
}

// Offer considers a new candidate for inclusion in the top-k.
func (b *topKBuffer) Offer(id int64, distance float32) {
	c := candidate{id: id, distance: distance}
	if len(b.items) < b.k {
		heap.Push(b, c)
		return
	}
	worst, ok := b.worst()
	if !ok || !b.worseThan(worst, c) {
		// buffer is already full of k entries all at least as good as c
		return
	}
	start := time.Now()
	heap.Pop(b)
	heap.Push(b, c)
	b.boundaryTime += time.Since(start)
}

// Extract drains the buffer into a rank-ordered (best first, ties by
// smaller id) slice padded with sentinels out to k entries.
func (b *topKBuffer) Extract() ([]int64, []float32) {
	n := len(b.items)
	ids := make([]int64, b.k)
	dists := make([]float32, b.k)
	sentinel := b.metric.sentinel()

	ordered := make([]candidate, n)
	tmp := &topKBuffer{metric: b.metric, k: b.k, items: append([]candidate(nil), b.items...)}
	for i := n - 1; i >= 0; i-- {
		ordered[i] = heap.Pop(tmp).(candidate)
	}

	for i := 0; i < b.k; i++ {
		if i < n {
			ids[i] = ordered[i].id
			dists[i] = ordered[i].distance
		} else {
			ids[i] = -1
			dists[i] = sentinel
		}
	}
	return ids, dists
}

// mergeBuffers folds a set of partial buffers for the same query into a
// single topKBuffer. The Coordinator does not call it: its workers all offer
// into one shared, mutex-guarded buffer per query, so there are no partial
// buffers to merge.
func mergeBuffers(metric Metric, k int, parts []*topKBuffer) *topKBuffer {
	merged := newTopKBuffer(metric, k)
	for _, p := range parts {
		if p == nil {
			continue
		}
		for _, c := range p.items {
			merged.Offer(c.id, c.distance)
		}
	}
	return merged
}
