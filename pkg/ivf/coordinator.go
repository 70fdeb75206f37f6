package ivf

import (
	"sync"
	"time"
)

// Coordinator dispatches a query batch across selected partitions, merges
// per-query top-k results, and applies attribute filtering. It holds
// non-owning, read-only handles to its three external collaborators;
// construction is always per-index via New, never a process-wide
// singleton.
type Coordinator struct {
	parent     ParentIndex // nil means flat (single implicit partition) mode
	partitions PartitionManager
	attrs      AttributeTable
	metric     Metric
	pool       *workerPool
}

// New constructs a Coordinator. partitions must be non-nil; parent may be
// nil to force flat-mode search over every live partition. attrs may be nil
// if no caller ever requests filtering. numWorkers is passed straight to
// InitializeWorkers; 0 means inline (no goroutines).
func New(parent ParentIndex, partitions PartitionManager, attrs AttributeTable, metric Metric, numWorkers int) (*Coordinator, error) {
	if partitions == nil {
		return nil, newError(ErrInvalidState, "New", errNilPartitionManager)
	}
	c := &Coordinator{
		parent:     parent,
		partitions: partitions,
		attrs:      attrs,
		metric:     metric,
		pool:       newWorkerPool(),
	}
	if err := c.pool.Initialize(numWorkers); err != nil {
		return nil, err
	}
	return c, nil
}

// InitializeWorkers (re)starts the worker pool with n workers. Safe to call
// after ShutdownWorkers.
func (c *Coordinator) InitializeWorkers(n int) error {
	return c.pool.Initialize(n)
}

// ShutdownWorkers drains in-flight jobs and stops the pool. The Coordinator
// itself remains usable; Search will fail with ErrInvalidState until
// InitializeWorkers is called again.
func (c *Coordinator) ShutdownWorkers() error {
	return c.pool.Shutdown()
}

// WorkersInitialized reports whether the pool is currently Running.
func (c *Coordinator) WorkersInitialized() bool {
	return c.pool.Initialized()
}

// PoolState reports the worker pool's lifecycle state
// ("uninitialized"/"running"/"draining"/"shutdown") and its configured
// worker count, for observability endpoints.
func (c *Coordinator) PoolState() (state string, numWorkers int) {
	return c.pool.State()
}

// PartitionCount reports the number of live partitions backing this
// Coordinator, for observability endpoints.
func (c *Coordinator) PartitionCount() int {
	if c.partitions == nil {
		return 0
	}
	return len(c.partitions.ListPartitions())
}

// Search validates queries, selects partitions (via the parent index, or
// every live partition in flat mode), scans them, merges top-k results, and
// applies attribute filtering per SearchParams.
func (c *Coordinator) Search(queries [][]float32, params SearchParams) (*SearchResult, error) {
	start := time.Now()

	if len(queries) == 0 {
		return newEmptyResult(), nil
	}
	if params.K <= 0 {
		return nil, newErrorf(ErrInvalidInput, "Search", "k must be > 0, got %d", params.K)
	}
	d := len(queries[0])
	for i, q := range queries {
		if len(q) != d {
			return nil, newErrorf(ErrInvalidInput, "Search", "query %d has dimension %d, want %d", i, len(q), d)
		}
	}
	if c.partitions == nil {
		return nil, newError(ErrInvalidState, "Search", errNilPartitionManager)
	}

	forcedBatched := false
	var parentTiming *TimingInfo
	var partitionIDs [][]int64

	if c.parent == nil {
		forcedBatched = true
		params.BatchedScan = true
		all := c.partitions.ListPartitions()
		partitionIDs = make([][]int64, len(queries))
		for i := range queries {
			partitionIDs[i] = all
		}
	} else {
		if params.Nprobe <= 0 {
			return nil, newErrorf(ErrInvalidInput, "Search", "nprobe must be > 0, got %d", params.Nprobe)
		}
		ids, pt, err := c.parent.Search(queries, params.Nprobe)
		if err != nil {
			return nil, newError(ErrBackendFailure, "Search", err)
		}
		partitionIDs = ids
		parentTiming = &TimingInfo{Total: pt}
	}

	result, err := c.scanPartitions(queries, partitionIDs, params)
	if err != nil {
		return nil, err
	}
	result.ForcedBatched = forcedBatched
	result.Timing.ParentInfo = parentTiming
	result.Timing.Total = time.Since(start)
	return result, nil
}

// ScanPartitions is the lower-level entry point that skips partition
// selection: callers supply per-query candidate partition ids directly (a
// -1 entry denotes "no more candidates" for that query row and is
// tolerated, not an error).
func (c *Coordinator) ScanPartitions(queries [][]float32, partitionIDs [][]int64, params SearchParams) (*SearchResult, error) {
	if len(queries) == 0 {
		return newEmptyResult(), nil
	}
	if params.K <= 0 {
		return nil, newErrorf(ErrInvalidInput, "ScanPartitions", "k must be > 0, got %d", params.K)
	}
	if len(partitionIDs) != len(queries) {
		return nil, newErrorf(ErrInvalidInput, "ScanPartitions", "partitionIDs has %d rows, want %d", len(partitionIDs), len(queries))
	}
	return c.scanPartitions(queries, partitionIDs, params)
}

func (c *Coordinator) scanPartitions(queries [][]float32, partitionIDs [][]int64, params SearchParams) (*SearchResult, error) {
	var bufferInit time.Duration
	bufStart := time.Now()

	n := len(queries)
	k := params.K
	scanK := k
	usingPostFilter := params.hasFilter() && params.FilteringType == FilterPost
	if usingPostFilter {
		scanK = k * params.overfetch()
	}

	buffers := make([]*topKBuffer, n)
	locks := make([]sync.Mutex, n)
	for i := range buffers {
		buffers[i] = newTopKBuffer(c.metric, scanK)
	}
	bufferInit = time.Since(bufStart)

	var plan *filterPlan
	if params.hasFilter() && params.FilteringType == FilterPre {
		p, err := c.buildFilterPlan(partitionIDs, params)
		if err != nil {
			return nil, err
		}
		plan = p
	}

	ctx := &scanContext{metric: c.metric, buffers: buffers, locks: locks, filter: plan}

	// Group work by partition for the batched path; by (query, partition)
	// for serial.
	enqueueStart := time.Now()
	var wg sync.WaitGroup
	var firstErr error
	var errOnce sync.Once
	recordErr := func(err error) {
		errOnce.Do(func() { firstErr = err })
	}

	if params.BatchedScan {
		groups := groupByPartition(partitionIDs)
		for pid, rows := range groups {
			part, ok := c.partitions.GetPartition(pid)
			if !ok {
				continue
			}
			rows, part := rows, part
			if err := c.pool.Submit(&wg, func() {
				scanPartitionBatched(ctx, part, rows, queries)
			}); err != nil {
				recordErr(err)
				break
			}
		}
	} else {
		for qi, pids := range partitionIDs {
			q := queries[qi]
			for _, pid := range pids {
				if pid < 0 {
					continue
				}
				part, ok := c.partitions.GetPartition(pid)
				if !ok {
					continue
				}
				qi, part := qi, part
				if err := c.pool.Submit(&wg, func() {
					scanPartitionSerial(ctx, part, qi, q)
				}); err != nil {
					recordErr(err)
					break
				}
			}
		}
	}
	enqueueDur := time.Since(enqueueStart)

	waitStart := time.Now()
	wg.Wait()
	waitDur := time.Since(waitStart)

	if firstErr != nil {
		return nil, firstErr
	}

	aggStart := time.Now()
	ids := make([][]int64, n)
	dists := make([][]float32, n)
	var boundaryDistance time.Duration
	for i, buf := range buffers {
		boundaryDistance += buf.boundaryTime
		rowIDs, rowDists := buf.Extract()
		if usingPostFilter {
			rowIDs, rowDists = c.applyPostFilter(rowIDs, rowDists, k, params)
		}
		ids[i] = rowIDs
		dists[i] = rowDists
	}
	aggDur := time.Since(aggStart)

	return &SearchResult{
		IDs:       ids,
		Distances: dists,
		Timing: TimingInfo{
			JobEnqueue:       enqueueDur,
			JobWait:          waitDur,
			BufferInit:       bufferInit,
			ResultAggregate:  aggDur,
			BoundaryDistance: boundaryDistance,
		},
	}, nil
}

// groupByPartition inverts the per-query partition-id rows into
// partition-id -> query-index lists, skipping -1 sentinels, for the batched
// scan path.
func groupByPartition(partitionIDs [][]int64) map[int64][]int {
	groups := make(map[int64][]int)
	for qi, pids := range partitionIDs {
		for _, pid := range pids {
			if pid < 0 {
				continue
			}
			groups[pid] = append(groups[pid], qi)
		}
	}
	return groups
}

// buildFilterPlan evaluates the predicate once over the union of
// candidate ids across all queries for pre-filtering.
func (c *Coordinator) buildFilterPlan(partitionIDs [][]int64, params SearchParams) (*filterPlan, error) {
	if c.attrs == nil {
		return nil, newError(ErrInvalidState, "Search", errNilAttributeTable)
	}
	seen := make(map[int64]bool)
	var candidateIDs []int64
	for _, pids := range partitionIDs {
		for _, pid := range pids {
			if pid < 0 {
				continue
			}
			part, ok := c.partitions.GetPartition(pid)
			if !ok {
				continue
			}
			for _, id := range part.IDs {
				if !seen[id] {
					seen[id] = true
					candidateIDs = append(candidateIDs, id)
				}
			}
		}
	}
	mask, err := c.attrs.Evaluate(params.FilterColumn, params.FilterOp, params.FilterValue, candidateIDs)
	if err != nil {
		return nil, newError(ErrBackendFailure, "Search", err)
	}
	allowed := make(map[int64]bool, len(candidateIDs))
	for i, id := range candidateIDs {
		allowed[id] = i < len(mask) && mask[i]
	}
	return &filterPlan{allowed: allowed}, nil
}

// applyPostFilter evaluates the predicate over an oversized candidate list
// and truncates to k, padding with sentinels if too few survive.
func (c *Coordinator) applyPostFilter(ids []int64, dists []float32, k int, params SearchParams) ([]int64, []float32) {
	sentinel := c.metric.sentinel()
	outIDs := make([]int64, 0, k)
	outDists := make([]float32, 0, k)

	live := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id != -1 {
			live = append(live, id)
		}
	}
	var mask []bool
	if c.attrs != nil && len(live) > 0 {
		m, err := c.attrs.Evaluate(params.FilterColumn, params.FilterOp, params.FilterValue, live)
		if err == nil {
			mask = m
		}
	}
	maskIdx := 0
	for i, id := range ids {
		if id == -1 {
			continue
		}
		pass := true
		if mask != nil {
			pass = maskIdx < len(mask) && mask[maskIdx]
			maskIdx++
		}
		if pass {
			outIDs = append(outIDs, id)
			outDists = append(outDists, dists[i])
			if len(outIDs) == k {
				break
			}
		}
	}
	for len(outIDs) < k {
		outIDs = append(outIDs, -1)
		outDists = append(outDists, sentinel)
	}
	return outIDs, outDists
}
