package rtps

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFibHeapExtractMinOrder(t *testing.T) {
	h := NewFibHeap[string]()
	h.Insert(5, "five")
	h.Insert(1, "one")
	h.Insert(3, "three")
	h.Insert(2, "two")
	h.Insert(4, "four")

	require.Equal(t, 5, h.Len())

	var order []string
	for h.Len() > 0 {
		n := h.ExtractMin()
		require.NotNil(t, n)
		order = append(order, n.Value())
	}
	assert.Equal(t, []string{"one", "two", "three", "four", "five"}, order)
}

func TestFibHeapDecreaseKeyReordersMin(t *testing.T) {
	h := NewFibHeap[string]()
	h.Insert(10, "a")
	b := h.Insert(20, "b")
	h.Insert(30, "c")

	h.DecreaseKey(b, 1)
	min := h.Min()
	require.NotNil(t, min)
	assert.Equal(t, "b", min.Value())
	assert.Equal(t, int64(1), min.Key())
}

func TestFibHeapDeleteArbitraryNode(t *testing.T) {
	h := NewFibHeap[int]()
	nodes := make([]*FibNode[int], 0, 20)
	for i := 0; i < 20; i++ {
		nodes = append(nodes, h.Insert(int64(i), i))
	}
	// delete every third node
	for i := 0; i < len(nodes); i += 3 {
		h.Delete(nodes[i])
	}
	require.Equal(t, 20-7, h.Len())

	var last int64 = -1
	for h.Len() > 0 {
		n := h.ExtractMin()
		assert.GreaterOrEqual(t, n.Key(), last)
		last = n.Key()
	}
}

func TestFibHeapRandomizedAgainstSortedOracle(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	h := NewFibHeap[int]()
	var keys []int64
	for i := 0; i < 500; i++ {
		k := rng.Int63n(10000)
		keys = append(keys, k)
		h.Insert(k, i)
	}

	// sort keys with insertion sort (small n, deterministic, no stdlib sort
	// needed to keep the oracle independent of the code under test)
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}

	for _, want := range keys {
		got := h.ExtractMin()
		require.NotNil(t, got)
		assert.Equal(t, want, got.Key())
	}
	assert.Equal(t, 0, h.Len())
}
