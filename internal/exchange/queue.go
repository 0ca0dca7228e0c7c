package exchange

import (
	"sync"
)

// Queue is an unbounded FIFO safe for many producers and consumers. Its ring
// doubles in size once it is 70% full, so Put never blocks.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ring   []T
	head   int // read position
	tail   int // write position
	count  int
	closed bool

	// Stats
	totalPut   int64
	totalTaken int64
	resizes    int
}

// QueueStats contains queue statistics.
type QueueStats struct {
	Len        int
	Cap        int
	TotalPut   int64
	TotalTaken int64
	Resizes    int
}

// NewQueue creates a queue with the given initial capacity.
func NewQueue[T any](initialCapacity int) *Queue[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	q := &Queue[T]{ring: make([]T, initialCapacity)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put appends item. It returns false once the queue is closed.
func (q *Queue[T]) Put(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	threshold := (len(q.ring) * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if q.count+1 >= threshold {
		q.grow()
	}

	q.ring[q.tail] = item
	q.tail = (q.tail + 1) % len(q.ring)
	q.count++
	q.totalPut++

	q.cond.Signal()
	return true
}

// Take removes the oldest item, blocking until one is available. After
// Close it keeps returning queued items, then the zero value and false.
func (q *Queue[T]) Take() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.pop(), true
}

// TryTake is Take without blocking.
func (q *Queue[T]) TryTake() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.pop(), true
}

// Close stops further Puts and wakes every blocked Take.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Stats returns queue statistics.
func (q *Queue[T]) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Len:        q.count,
		Cap:        len(q.ring),
		TotalPut:   q.totalPut,
		TotalTaken: q.totalTaken,
		Resizes:    q.resizes,
	}
}

// pop must be called with the lock held and count > 0.
func (q *Queue[T]) pop() T {
	item := q.ring[q.head]
	var zero T
	q.ring[q.head] = zero // Release the reference
	q.head = (q.head + 1) % len(q.ring)
	q.count--
	q.totalTaken++
	return item
}

// grow doubles the ring. Must be called with the lock held.
func (q *Queue[T]) grow() {
	ring := make([]T, len(q.ring)*2)

	if q.count > 0 {
		if q.head < q.tail {
			copy(ring, q.ring[q.head:q.tail])
		} else {
			// Wrapped: [head...end) + [0...tail)
			n := copy(ring, q.ring[q.head:])
			copy(ring[n:], q.ring[:q.tail])
		}
	}

	q.ring = ring
	q.head = 0
	q.tail = q.count
	q.resizes++
}
