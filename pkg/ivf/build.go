package ivf

import (
	"fmt"

	"github.com/nnvector/ivfcoord/internal/quantization"
)

// ReferenceIndex bundles the three reference collaborator implementations
// produced by BuildReferenceIndex, ready to pass to New.
type ReferenceIndex struct {
	Parent     *FlatParentIndex
	Partitions *MemoryPartitionStore
	Metric     Metric
}

// BuildReferenceIndex clusters vectors into numCentroids partitions with
// k-means++ and assembles an in-memory ParentIndex + PartitionManager pair.
// This is a convenience for tests and the demo server, not a production
// ingestion pipeline: persistence, incremental updates, and
// recall-optimized clustering all stay out of scope.
func BuildReferenceIndex(vectors [][]float32, ids []int64, numCentroids int, metric Metric) (*ReferenceIndex, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("ivf: no training vectors provided")
	}
	if len(vectors) != len(ids) {
		return nil, fmt.Errorf("ivf: vectors (%d) and ids (%d) length mismatch", len(vectors), len(ids))
	}
	if numCentroids <= 0 || numCentroids > len(vectors) {
		return nil, fmt.Errorf("ivf: numCentroids must be in [1, %d], got %d", len(vectors), numCentroids)
	}

	qMetric := quantization.EuclideanDistance
	if metric == InnerProduct {
		qMetric = quantization.DotProductDistance
	}
	cfg := quantization.DefaultConfig()
	cfg.DistanceMetric = qMetric

	centroids, err := quantization.KMeansPlusPlus(vectors, numCentroids, cfg)
	if err != nil {
		return nil, fmt.Errorf("ivf: clustering failed: %w", err)
	}

	assignments := make([][]int, numCentroids)
	for i, v := range vectors {
		best := 0
		bestDist := metric.distance(v, centroids[0])
		for c := 1; c < numCentroids; c++ {
			d := metric.distance(v, centroids[c])
			if metric.better(d, bestDist) {
				bestDist = d
				best = c
			}
		}
		assignments[best] = append(assignments[best], i)
	}

	store := NewMemoryPartitionStore()
	partitionIDs := make([]int64, numCentroids)
	for c := 0; c < numCentroids; c++ {
		pid := int64(c)
		partitionIDs[c] = pid
		idxs := assignments[c]
		part := Partition{ID: pid, IDs: make([]int64, len(idxs)), Vectors: make([][]float32, len(idxs))}
		for j, idx := range idxs {
			part.IDs[j] = ids[idx]
			part.Vectors[j] = vectors[idx]
		}
		store.AddPartition(part)
	}

	parent, err := NewFlatParentIndex(metric, partitionIDs, centroids)
	if err != nil {
		return nil, err
	}

	return &ReferenceIndex{Parent: parent, Partitions: store, Metric: metric}, nil
}
