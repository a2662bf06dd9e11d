package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFIFOQueue_Order verifies first-in first-out ordering
// Given: A queue with three pushed values
// When: Values are popped
// Then: They come out in push order and the queue ends empty
func TestFIFOQueue_Order(t *testing.T) {
	q := newFIFOQueue[string]()
	q.Push("A")
	q.Push("B")
	q.Push("C")

	for _, want := range []string{"A", "B", "C"} {
		got, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}

	_, ok := q.Pop()
	assert.False(t, ok)
	assert.True(t, q.IsEmpty())
}

// TestFIFOQueue_PopBack verifies removal of the newest element
func TestFIFOQueue_PopBack(t *testing.T) {
	q := newFIFOQueue[int]()
	q.Push(1)
	q.Push(2)

	v, ok := q.PopBack()
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, q.Len())

	q.Clear()
	_, ok = q.PopBack()
	assert.False(t, ok)
}

// TestFIFOQueue_Clear verifies Clear reports the number of dropped elements
func TestFIFOQueue_Clear(t *testing.T) {
	q := newFIFOQueue[int]()
	for i := range 5 {
		q.Push(i)
	}

	assert.Equal(t, 5, q.Clear())
	assert.Equal(t, 0, q.Len())
}

// TestFIFOQueue_Compaction verifies the backing array shrinks after a burst
// Given: A queue grown well past compactMinCap
// When: Most elements are popped
// Then: Capacity shrinks while order is preserved
func TestFIFOQueue_Compaction(t *testing.T) {
	q := newFIFOQueue[int]()
	for i := range 1000 {
		q.Push(i)
	}
	grown := cap(q.items)

	for i := range 990 {
		v, ok := q.Pop()
		require.True(t, ok)
		require.Equal(t, i, v)
	}

	assert.Less(t, cap(q.items), grown)
	for i := 990; i < 1000; i++ {
		v, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}
