package ivf

import "sync"

// scanContext carries everything a partition visit needs: the metric, the
// per-query top-k buffers being filled, and the optional filter mask
// builder. It is shared read-only across worker goroutines once built; the
// only mutation is Offer on a query's own buffer, which several jobs may
// reach concurrently (one per partition in either mode), so every Offer is
// made while holding that query's mutex.
type scanContext struct {
	metric  Metric
	buffers []*topKBuffer // one per query row
	locks   []sync.Mutex  // locks[i] guards buffers[i] in both scan modes
	filter  *filterPlan
}

// filterPlan holds a resolved pre-filter predicate: a lookup from id to
// whether it survives. nil means no filtering, or filtering is deferred to
// post-scan (handled by the Dispatcher after ScanEngine returns).
type filterPlan struct {
	allowed map[int64]bool
}

func (f *filterPlan) passes(id int64) bool {
	if f == nil {
		return true
	}
	ok, known := f.allowed[id]
	return known && ok
}

// scanPartitionBatched computes distances from every query assigned to
// partition part against that partition's vector block in one pass,
// updating each assigned query's buffer immediately. queryIdx lists which
// query indices (into ctx.buffers and queries) want this partition
// scanned; queries holds every query vector of the call.
func scanPartitionBatched(ctx *scanContext, part Partition, queryIdx []int, queries [][]float32) {
	for _, qi := range queryIdx {
		q := queries[qi]
		buf := ctx.buffers[qi]
		ctx.locks[qi].Lock()
		for j, id := range part.IDs {
			if !ctx.filter.passes(id) {
				continue
			}
			d := ctx.metric.distance(q, part.Vectors[j])
			buf.Offer(id, d)
		}
		ctx.locks[qi].Unlock()
	}
}

// scanPartitionSerial computes distances for a single query against a
// single partition. Used by the serial scan mode, one (query, partition)
// job at a time.
func scanPartitionSerial(ctx *scanContext, part Partition, qi int, query []float32) {
	buf := ctx.buffers[qi]
	for j, id := range part.IDs {
		if !ctx.filter.passes(id) {
			continue
		}
		d := ctx.metric.distance(query, part.Vectors[j])
		ctx.locks[qi].Lock()
		buf.Offer(id, d)
		ctx.locks[qi].Unlock()
	}
}
