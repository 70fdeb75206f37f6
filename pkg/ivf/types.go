package ivf

import (
	"math"
	"time"

	"github.com/nnvector/ivfcoord/internal/quantization"
)

// Metric selects the distance function the coordinator scans with. Unlike
// SearchParams, the metric is fixed at coordinator construction time: a
// single coordinator instance never mixes metrics across calls.
type Metric int

const (
	// L2 is squared Euclidean distance. Smaller is better; unfilled ranks
	// carry +Inf.
	L2 Metric = iota
	// InnerProduct is the raw dot product. Larger is better; unfilled ranks
	// carry -Inf.
	InnerProduct
)

func (m Metric) sentinel() float32 {
	if m == InnerProduct {
		return float32(math.Inf(-1))
	}
	return float32(math.Inf(1))
}

// better reports whether candidate distance a should be preferred over b
// under this metric.
func (m Metric) better(a, b float32) bool {
	if m == InnerProduct {
		return a > b
	}
	return a < b
}

func (m Metric) distance(q, v []float32) float32 {
	switch m {
	case InnerProduct:
		return quantization.DotProductFloat32(q, v)
	default:
		return squaredL2(q, v)
	}
}

// squaredL2 mirrors quantization.EuclideanDistanceFloat32 but skips the
// sqrt: the coordinator only ever compares distances against each other, so
// the monotonic squared form is cheaper and exact for ranking purposes.
func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// DefaultOverfetchFactor is applied to k when SearchParams.OverfetchFactor
// is unset or non-positive, to size the oversized candidate set a
// post-filter search draws from before truncating to k.
const DefaultOverfetchFactor = 4

// FilteringType selects when an attribute predicate is applied relative to
// distance computation.
type FilteringType int

const (
	// FilterNone performs no attribute filtering.
	FilterNone FilteringType = iota
	// FilterPre evaluates the predicate before scanning and skips masked-out
	// candidates entirely.
	FilterPre
	// FilterPost scans an oversized top-k' and filters afterward.
	FilterPost
)

// Partition is a logical bucket of vectors sharing a coarse centroid
// assignment (or, in flat mode, the entire corpus).
type Partition struct {
	ID      int64
	IDs     []int64
	Vectors [][]float32
}

// SearchParams carries the per-call configuration of a Search. Metric is
// never part of SearchParams: it is fixed on the Coordinator at
// construction.
type SearchParams struct {
	K               int
	Nprobe          int
	BatchedScan     bool
	FilterColumn    string
	FilterOp        string
	FilterValue     any
	FilteringType   FilteringType
	OverfetchFactor int
}

func (p SearchParams) hasFilter() bool {
	return p.FilteringType != FilterNone && p.FilterColumn != "" && p.FilterOp != ""
}

func (p SearchParams) overfetch() int {
	if p.OverfetchFactor > 0 {
		return p.OverfetchFactor
	}
	return DefaultOverfetchFactor
}

// TimingInfo breaks down where a Search call spent its time. Durations are
// cumulative across every partition/job touched by the call.
type TimingInfo struct {
	Total            time.Duration
	JobEnqueue       time.Duration
	JobWait          time.Duration
	BufferInit       time.Duration
	ResultAggregate  time.Duration
	BoundaryDistance time.Duration
	ParentInfo       *TimingInfo
}

// SearchResult is the rectangular N×k output of a Search call. Unfilled
// ranks carry id -1 and the metric's sentinel distance.
type SearchResult struct {
	IDs           [][]int64
	Distances     [][]float32
	Timing        TimingInfo
	ForcedBatched bool
}

func newEmptyResult() *SearchResult {
	return &SearchResult{IDs: [][]int64{}, Distances: [][]float32{}}
}

func newSentinelRows(metric Metric, n, k int) ([][]int64, [][]float32) {
	ids := make([][]int64, n)
	dists := make([][]float32, n)
	sentinel := metric.sentinel()
	for i := 0; i < n; i++ {
		row := make([]int64, k)
		drow := make([]float32, k)
		for j := 0; j < k; j++ {
			row[j] = -1
			drow[j] = sentinel
		}
		ids[i] = row
		dists[i] = drow
	}
	return ids, dists
}
