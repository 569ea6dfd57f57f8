package dedup

import "sort"

// DisjointSet is a union-find structure keyed by stable detection ids. The
// transitive-closure merge across the three duplicate-finding passes depends
// on it: any detection appearing in two groups causes those groups to merge.
type DisjointSet struct {
	parent map[uint]uint
	rank   map[uint]int
}

func NewDisjointSet() *DisjointSet {
	return &DisjointSet{
		parent: map[uint]uint{},
		rank:   map[uint]int{},
	}
}

func (ds *DisjointSet) Add(id uint) {
	if _, ok := ds.parent[id]; !ok {
		ds.parent[id] = id
		ds.rank[id] = 0
	}
}

func (ds *DisjointSet) Find(id uint) uint {
	ds.Add(id)
	root := id
	for ds.parent[root] != root {
		root = ds.parent[root]
	}
	for ds.parent[id] != root {
		ds.parent[id], id = root, ds.parent[id]
	}
	return root
}

func (ds *DisjointSet) Union(a, b uint) {
	ra, rb := ds.Find(a), ds.Find(b)
	if ra == rb {
		return
	}
	if ds.rank[ra] < ds.rank[rb] {
		ra, rb = rb, ra
	}
	ds.parent[rb] = ra
	if ds.rank[ra] == ds.rank[rb] {
		ds.rank[ra]++
	}
}

func (ds *DisjointSet) Connected(a, b uint) bool {
	return ds.Find(a) == ds.Find(b)
}

// Groups returns the current partition, with members and groups in ascending
// id order so iteration is deterministic.
func (ds *DisjointSet) Groups() [][]uint {
	byRoot := map[uint][]uint{}
	for id := range ds.parent {
		root := ds.Find(id)
		byRoot[root] = append(byRoot[root], id)
	}

	groups := make([][]uint, 0, len(byRoot))
	for _, members := range byRoot {
		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
		groups = append(groups, members)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0] < groups[j][0] })
	return groups
}
