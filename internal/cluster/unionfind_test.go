package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnionFindSingletonsUntilUnioned(t *testing.T) {
	u := NewUnionFind()
	u.Add(1)
	u.Add(2)
	u.Add(3)

	components := u.Components()
	assert.Len(t, components, 3)
}

func TestUnionFindMergesComponents(t *testing.T) {
	u := NewUnionFind()
	for _, id := range []int64{1, 2, 3, 4} {
		u.Add(id)
	}
	u.Union(1, 2)
	u.Union(3, 4)

	components := u.Components()
	assert.Len(t, components, 2)

	sets := toSets(components)
	assert.Contains(t, sets, set(1, 2))
	assert.Contains(t, sets, set(3, 4))
}

func TestUnionFindTransitiveClosure(t *testing.T) {
	u := NewUnionFind()
	for _, id := range []int64{1, 2, 3, 4} {
		u.Add(id)
	}
	u.Union(1, 2)
	u.Union(2, 3)

	components := u.Components()
	sets := toSets(components)
	assert.Contains(t, sets, set(1, 2, 3))
	assert.Contains(t, sets, set(4))
}

func TestUnionFindUnionIsIdempotent(t *testing.T) {
	u := NewUnionFind()
	u.Add(1)
	u.Add(2)
	u.Union(1, 2)
	u.Union(1, 2)
	u.Union(2, 1)

	assert.Len(t, u.Components(), 1)
}

func toSets(components [][]int64) []map[int64]bool {
	out := make([]map[int64]bool, len(components))
	for i, c := range components {
		out[i] = make(map[int64]bool, len(c))
		for _, id := range c {
			out[i][id] = true
		}
	}
	return out
}

func set(ids ...int64) map[int64]bool {
	m := make(map[int64]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}
