package dedup

import "testing"

func TestDisjointSetUnionFind(t *testing.T) {
	ds := NewDisjointSet()
	for id := uint(1); id <= 6; id++ {
		ds.Add(id)
	}

	ds.Union(1, 2)
	ds.Union(3, 4)
	if ds.Connected(1, 3) {
		t.Fatalf("expected 1 and 3 to be in different sets")
	}

	// bridging 2 and 3 merges both groups
	ds.Union(2, 3)
	if !ds.Connected(1, 4) {
		t.Fatalf("expected the bridge to merge both groups")
	}

	groups := ds.Groups()
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, but got %d", len(groups))
	}
	if len(groups[0]) != 4 || groups[0][0] != 1 {
		t.Fatalf("expected the merged group first with ascending members, but got %v", groups[0])
	}
	if len(groups[1]) != 1 || groups[1][0] != 5 {
		t.Fatalf("expected singleton 5 second, but got %v", groups[1])
	}
}

func TestDisjointSetAddIsIdempotent(t *testing.T) {
	ds := NewDisjointSet()
	ds.Add(1)
	ds.Add(2)
	ds.Union(1, 2)
	ds.Add(1) // must not reset the existing set

	if !ds.Connected(1, 2) {
		t.Fatalf("expected re-adding an id to keep its set membership")
	}
}
