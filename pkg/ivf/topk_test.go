package ivf

import "testing"

func TestTopKBufferOfferKeepsKBest(t *testing.T) {
	buf := newTopKBuffer(L2, 3)
	for _, d := range []float32{5, 1, 9, 2, 0, 7} {
		buf.Offer(int64(d), d)
	}
	ids, dists := buf.Extract()
	if len(ids) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(ids))
	}
	want := []float32{0, 1, 2}
	for i, d := range want {
		if dists[i] != d {
			t.Errorf("rank %d: got distance %v, want %v", i, dists[i], d)
		}
		if ids[i] != int64(d) {
			t.Errorf("rank %d: got id %v, want %v", i, ids[i], int64(d))
		}
	}
}

func TestTopKBufferInnerProductPrefersLarger(t *testing.T) {
	buf := newTopKBuffer(InnerProduct, 2)
	for _, d := range []float32{0.1, 0.9, 0.5, -2} {
		buf.Offer(int64(d*10), d)
	}
	_, dists := buf.Extract()
	if dists[0] != 0.9 || dists[1] != 0.5 {
		t.Errorf("expected [0.9, 0.5], got %v", dists)
	}
}

func TestTopKBufferSentinelPadding(t *testing.T) {
	buf := newTopKBuffer(L2, 5)
	buf.Offer(1, 1.0)
	buf.Offer(2, 2.0)
	ids, dists := buf.Extract()
	if len(ids) != 5 {
		t.Fatalf("expected 5 slots, got %d", len(ids))
	}
	for i := 2; i < 5; i++ {
		if ids[i] != -1 {
			t.Errorf("slot %d: expected sentinel id -1, got %d", i, ids[i])
		}
		if dists[i] != L2.sentinel() {
			t.Errorf("slot %d: expected sentinel distance, got %v", i, dists[i])
		}
	}
}

func TestTopKBufferTieBreakSmallerIDFirst(t *testing.T) {
	buf := newTopKBuffer(L2, 2)
	buf.Offer(5, 1.0)
	buf.Offer(3, 1.0)
	buf.Offer(9, 1.0)
	ids, _ := buf.Extract()
	if ids[0] != 3 || ids[1] != 5 {
		t.Errorf("expected ties broken by smaller id first, got %v", ids)
	}
}

// Offering more candidates than k forces at least one eviction once the
// buffer fills, which must be reflected in boundaryTime.
func TestTopKBufferTracksBoundaryTime(t *testing.T) {
	buf := newTopKBuffer(L2, 2)
	for _, d := range []float32{5, 1, 9, 2, 0, 7} {
		buf.Offer(int64(d), d)
	}
	if buf.boundaryTime <= 0 {
		t.Errorf("expected boundaryTime > 0 after evictions, got %v", buf.boundaryTime)
	}
}

func TestTopKBufferNoBoundaryTimeWithoutEviction(t *testing.T) {
	buf := newTopKBuffer(L2, 5)
	buf.Offer(1, 1.0)
	buf.Offer(2, 2.0)
	if buf.boundaryTime != 0 {
		t.Errorf("expected boundaryTime 0 when buffer never fills, got %v", buf.boundaryTime)
	}
}

func TestMergeBuffersEquivalentToSingleBuffer(t *testing.T) {
	single := newTopKBuffer(L2, 3)
	for _, d := range []float32{5, 1, 9, 2, 0, 7} {
		single.Offer(int64(d), d)
	}
	wantIDs, wantDists := single.Extract()

	a := newTopKBuffer(L2, 3)
	a.Offer(5, 5)
	a.Offer(1, 1)
	a.Offer(9, 9)
	b := newTopKBuffer(L2, 3)
	b.Offer(2, 2)
	b.Offer(0, 0)
	b.Offer(7, 7)

	merged := mergeBuffers(L2, 3, []*topKBuffer{a, b})
	gotIDs, gotDists := merged.Extract()

	for i := range wantIDs {
		if gotIDs[i] != wantIDs[i] || gotDists[i] != wantDists[i] {
			t.Errorf("rank %d: got (%d,%v), want (%d,%v)", i, gotIDs[i], gotDists[i], wantIDs[i], wantDists[i])
		}
	}
}
