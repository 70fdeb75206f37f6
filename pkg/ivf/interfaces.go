package ivf

import "time"

// ParentIndex is the coarse centroid index a Coordinator probes to pick
// candidate partitions per query. It is treated as an external
// collaborator: construction, training, and persistence are out of scope
// here. See FlatParentIndex for a brute-force reference implementation.
type ParentIndex interface {
	// Search returns, for each query row, up to nprobe partition ids ordered
	// nearest-first. A returned id of -1 signals no more candidates for that
	// query.
	Search(queries [][]float32, nprobe int) (ids [][]int64, timing time.Duration, err error)
}

// PartitionManager gives the Coordinator read-only access to the live
// partitions during a single Search call. Implementations must present a
// stable snapshot for the duration of that call.
type PartitionManager interface {
	GetPartition(pid int64) (Partition, bool)
	ListPartitions() []int64
	NumVectorsIn(pid int64) int
}

// AttributeTable evaluates a single-column scalar predicate over a set of
// candidate ids. See MemoryAttributeTable for a reference implementation.
type AttributeTable interface {
	Evaluate(column, op string, literal any, ids []int64) ([]bool, error)
}
