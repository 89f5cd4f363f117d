package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBKTreeFindsWithinThreshold(t *testing.T) {
	tree := NewBKTree()
	tree.Insert(0x0000000000000000)
	tree.Insert(0x0000000000000007) // Hamming 3
	tree.Insert(0xFFFFFFFFFFFFFFFF) // Hamming 64

	results := tree.Query(0x0000000000000000, 3)
	assert.Contains(t, results, uint64(0x0000000000000007))
	assert.NotContains(t, results, uint64(0xFFFFFFFFFFFFFFFF))
}

func TestBKTreeExcludesProbeItself(t *testing.T) {
	tree := NewBKTree()
	tree.Insert(99)
	results := tree.Query(99, 3)
	assert.Empty(t, results)
}

func TestBKTreeEmptyTreeReturnsEmpty(t *testing.T) {
	tree := NewBKTree()
	assert.Empty(t, tree.Query(1, 3))
}

func TestBKTreeManyInsertsStillFindsNeighbor(t *testing.T) {
	tree := NewBKTree()
	var values []uint64
	for i := uint64(0); i < 200; i++ {
		v := i * 1000003
		values = append(values, v)
		tree.Insert(v)
	}
	target := values[150]
	neighbor := target ^ 0x3 // Hamming distance 2 from target
	tree.Insert(neighbor)

	results := tree.Query(target, 3)
	assert.Contains(t, results, neighbor)
}
