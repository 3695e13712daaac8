// Package pipeline drives concurrent HEAD fetching over a fixed pool of
// workers, each owning an independent server session.
package pipeline

import "sync"

// Queue is the fixed backlog of article numbers for one run. Pop is
// non-blocking: an empty queue ends the calling worker. Numbers are handed
// out in FIFO order, but consumption across workers is concurrent, so
// completion order is not guaranteed.
type Queue struct {
	mu    sync.Mutex
	items []int64
	head  int
}

// NewQueue fills the backlog with every article number in [first, last].
func NewQueue(first, last int64) *Queue {
	if last < first {
		return &Queue{}
	}
	items := make([]int64, 0, last-first+1)
	for n := first; n <= last; n++ {
		items = append(items, n)
	}
	return &Queue{items: items}
}

// Pop removes and returns the next article number, reporting false when the
// backlog is exhausted.
func (q *Queue) Pop() (int64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head >= len(q.items) {
		return 0, false
	}
	n := q.items[q.head]
	q.head++
	return n, true
}

// Len returns the number of items not yet popped.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}
