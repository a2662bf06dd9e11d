package core

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// fifoQueue is a slice-backed FIFO. It is not synchronized: every owner
// guards it with the same mutex that guards the rest of its state.
type fifoQueue[T any] struct {
	items []T
}

func newFIFOQueue[T any]() fifoQueue[T] {
	return fifoQueue[T]{items: make([]T, 0, defaultQueueCap)}
}

func (q *fifoQueue[T]) Push(v T) {
	q.items = append(q.items, v)
}

func (q *fifoQueue[T]) Pop() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	v := q.items[0]
	// Zero out the element in the underlying array to prevent memory leak
	q.items[0] = zero
	q.items = q.items[1:]
	q.maybeCompact()

	return v, true
}

// PopBack removes the most recently pushed element.
func (q *fifoQueue[T]) PopBack() (T, bool) {
	var zero T
	n := len(q.items)
	if n == 0 {
		return zero, false
	}
	v := q.items[n-1]
	q.items[n-1] = zero
	q.items = q.items[:n-1]
	return v, true
}

func (q *fifoQueue[T]) Len() int {
	return len(q.items)
}

func (q *fifoQueue[T]) IsEmpty() bool {
	return len(q.items) == 0
}

// Clear drops every element and releases references.
func (q *fifoQueue[T]) Clear() int {
	n := len(q.items)
	q.items = make([]T, 0, defaultQueueCap)
	return n
}

func (q *fifoQueue[T]) maybeCompact() {
	n := len(q.items)
	c := cap(q.items)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.items = make([]T, 0, defaultQueueCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)

	newSlice := make([]T, n, newCap)
	copy(newSlice, q.items)
	q.items = newSlice
}
