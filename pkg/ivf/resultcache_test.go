package ivf

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nnvector/ivfcoord/pkg/observability"
)

func TestCachedCoordinatorHitsAndMisses(t *testing.T) {
	store := smallPartitions()
	coord, _ := New(nil, store, nil, L2, 0)
	cached := NewCachedCoordinator(coord, 10, 0, nil)

	params := SearchParams{K: 2}
	queries := [][]float32{{0, 0}}

	first, err := cached.Search(queries, params)
	if err != nil {
		t.Fatalf("first Search: %v", err)
	}
	hits, misses, size, _ := cached.CacheStats()
	if misses != 1 || hits != 0 || size != 1 {
		t.Fatalf("after first call: hits=%d misses=%d size=%d", hits, misses, size)
	}

	second, err := cached.Search(queries, params)
	if err != nil {
		t.Fatalf("second Search: %v", err)
	}
	hits, misses, _, _ = cached.CacheStats()
	if hits != 1 || misses != 1 {
		t.Fatalf("after second call: hits=%d misses=%d", hits, misses)
	}

	if first.IDs[0][0] != second.IDs[0][0] {
		t.Errorf("cached result mismatch: %v vs %v", first.IDs[0], second.IDs[0])
	}

	// mutating the returned result must not corrupt the cache
	second.IDs[0][0] = -999
	third, err := cached.Search(queries, params)
	if err != nil {
		t.Fatalf("third Search: %v", err)
	}
	if third.IDs[0][0] == -999 {
		t.Error("cache returned a mutable reference instead of a copy")
	}
}

func TestCachedCoordinatorRecordsMetrics(t *testing.T) {
	store := smallPartitions()
	coord, _ := New(nil, store, nil, L2, 0)
	metrics := observability.NewMetrics()
	cached := NewCachedCoordinator(coord, 10, 0, metrics)

	params := SearchParams{K: 2}
	queries := [][]float32{{0, 0}}

	if _, err := cached.Search(queries, params); err != nil {
		t.Fatalf("first Search: %v", err)
	}
	if got := testutil.ToFloat64(metrics.CacheMisses); got != 1 {
		t.Errorf("expected 1 recorded cache miss, got %v", got)
	}

	if _, err := cached.Search(queries, params); err != nil {
		t.Fatalf("second Search: %v", err)
	}
	if got := testutil.ToFloat64(metrics.CacheHits); got != 1 {
		t.Errorf("expected 1 recorded cache hit, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.CacheSize); got != 1 {
		t.Errorf("expected cache size gauge at 1, got %v", got)
	}
}

func TestCachedCoordinatorInvalidate(t *testing.T) {
	store := smallPartitions()
	coord, _ := New(nil, store, nil, L2, 0)
	cached := NewCachedCoordinator(coord, 10, 0, nil)

	params := SearchParams{K: 1}
	queries := [][]float32{{0, 0}}

	if _, err := cached.Search(queries, params); err != nil {
		t.Fatalf("Search: %v", err)
	}
	cached.Invalidate()
	_, misses, size, _ := cached.CacheStats()
	if size != 0 || misses != 0 {
		t.Fatalf("expected cleared stats after Invalidate, got size=%d misses=%d", size, misses)
	}
}
