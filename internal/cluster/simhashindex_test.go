package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimHashIndexFindsWithinThreshold(t *testing.T) {
	idx := NewSimHashIndex(4)
	idx.Insert(0x0000000000000000)
	idx.Insert(0x0000000000000001) // Hamming 1 from the above
	idx.Insert(0xFFFFFFFFFFFFFFFF) // Hamming 64 from the above

	results := idx.Query(0x0000000000000000, 3)
	assert.Contains(t, results, uint64(0x0000000000000001))
	assert.NotContains(t, results, uint64(0xFFFFFFFFFFFFFFFF))
}

func TestSimHashIndexExcludesProbeItself(t *testing.T) {
	idx := NewSimHashIndex(4)
	idx.Insert(42)
	results := idx.Query(42, 3)
	assert.Empty(t, results)
}

func TestSimHashIndexNoMatchReturnsEmpty(t *testing.T) {
	idx := NewSimHashIndex(4)
	idx.Insert(0x0000000000000000)
	results := idx.Query(0xFFFFFFFFFFFFFFFF, 3)
	assert.Empty(t, results)
}

func TestHammingDistance64(t *testing.T) {
	assert.Equal(t, 0, hammingDistance64(5, 5))
	assert.Equal(t, 1, hammingDistance64(0, 1))
	assert.Equal(t, 64, hammingDistance64(0, 0xFFFFFFFFFFFFFFFF))
}
