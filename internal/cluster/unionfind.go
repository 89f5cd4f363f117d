package cluster

// UnionFind is a standard disjoint-set over int64 elements, union-by-rank
// with path compression (spec §9). Elements are registered with Add before
// they can be unioned; Add is idempotent.
type UnionFind struct {
	parent map[int64]int64
	rank   map[int64]int
	order  []int64
}

// NewUnionFind returns an empty disjoint-set.
func NewUnionFind() *UnionFind {
	return &UnionFind{
		parent: make(map[int64]int64),
		rank:   make(map[int64]int),
	}
}

// Add registers id as a singleton if it is not already known.
func (u *UnionFind) Add(id int64) {
	if _, ok := u.parent[id]; !ok {
		u.parent[id] = id
		u.rank[id] = 0
		u.order = append(u.order, id)
	}
}

// Find returns the representative of id's component, path-compressing
// along the way. id must have been added already.
func (u *UnionFind) Find(id int64) int64 {
	root := id
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for id != root {
		next := u.parent[id]
		u.parent[id] = root
		id = next
	}
	return root
}

// Union merges the components containing a and b. Both must have been
// added already.
func (u *UnionFind) Union(a, b int64) {
	ra, rb := u.Find(a), u.Find(b)
	if ra == rb {
		return
	}
	if u.rank[ra] < u.rank[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	if u.rank[ra] == u.rank[rb] {
		u.rank[ra]++
	}
}

// Components returns every connected component, in first-insertion order of
// each component's earliest-added member, with members in insertion order.
// Numbering downstream follows this iteration order (spec §4.6 step 6:
// "number them 0..C-1 in the iteration order of the union-find's
// components() view").
func (u *UnionFind) Components() [][]int64 {
	byRoot := make(map[int64][]int64)
	var rootOrder []int64
	for _, id := range u.order {
		root := u.Find(id)
		if _, seen := byRoot[root]; !seen {
			rootOrder = append(rootOrder, root)
		}
		byRoot[root] = append(byRoot[root], id)
	}

	components := make([][]int64, 0, len(rootOrder))
	for _, root := range rootOrder {
		components = append(components, byRoot[root])
	}
	return components
}
