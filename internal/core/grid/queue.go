package grid

import (
	"context"
	"sync"

	"github.com/yndnr/gridmesh-go/internal/core/domain"
)

// QueueState describes how full a bounded queue is.
type QueueState string

const (
	QueueEmpty   QueueState = "EMPTY"
	QueuePartial QueueState = "PARTIAL"
	QueueFull    QueueState = "FULL"
)

// BoundedQueue is a fixed-capacity FIFO shared by any number of producers and
// consumers. Put waits while the queue is full and Take waits while it is
// empty; blocked callers are served in arrival order.
//
// Items are accepted into the total order at the moment Put succeeds, under
// the queue mutex. A producer that finds a consumer already waiting hands the
// item over directly, which is equivalent to enqueue followed by an immediate
// dequeue.
type BoundedQueue struct {
	name     string
	capacity int
	done     <-chan struct{}

	mu      sync.Mutex
	ring    [][]byte
	head    int
	size    int
	takers  []*queueWaiter // non-empty only while size == 0
	putters []*queueWaiter // non-empty only while size == capacity
}

type queueWaiter struct {
	item    []byte
	ready   chan struct{}
	granted bool
}

// NewBoundedQueue creates a queue with the given capacity. done, when
// closed, fails every blocked and future Put and Take with
// domain.ErrGridClosed.
func NewBoundedQueue(name string, capacity int, done <-chan struct{}) (*BoundedQueue, error) {
	if capacity <= 0 {
		return nil, domain.ErrInvalidCapacity.WithDetails(name)
	}
	return &BoundedQueue{
		name:     name,
		capacity: capacity,
		done:     done,
		ring:     make([][]byte, capacity),
	}, nil
}

// Name returns the queue name.
func (q *BoundedQueue) Name() string {
	return q.name
}

// Capacity returns the maximum number of buffered items.
func (q *BoundedQueue) Capacity() int {
	return q.capacity
}

// Len returns the number of buffered items.
func (q *BoundedQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// State returns EMPTY, PARTIAL or FULL.
func (q *BoundedQueue) State() QueueState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stateLocked()
}

func (q *BoundedQueue) stateLocked() QueueState {
	switch q.size {
	case 0:
		return QueueEmpty
	case q.capacity:
		return QueueFull
	default:
		return QueuePartial
	}
}

// Waiting returns the number of blocked consumers and producers.
func (q *BoundedQueue) Waiting() (takers, putters int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.takers), len(q.putters)
}

// Put appends item to the tail, waiting while the queue is full. If ctx ends
// after the item was already accepted, Put still reports success.
func (q *BoundedQueue) Put(ctx context.Context, item []byte) error {
	q.mu.Lock()
	if q.closed() {
		q.mu.Unlock()
		return domain.ErrGridClosed
	}
	if len(q.takers) > 0 {
		w := q.takers[0]
		q.takers[0] = nil
		q.takers = q.takers[1:]
		w.item, w.granted = item, true
		close(w.ready)
		q.mu.Unlock()
		return nil
	}
	if q.size < q.capacity {
		q.push(item)
		q.mu.Unlock()
		return nil
	}
	w := &queueWaiter{item: item, ready: make(chan struct{})}
	q.putters = append(q.putters, w)
	q.mu.Unlock()

	var err error
	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		err = ctx.Err()
	case <-q.done:
		err = domain.ErrGridClosed
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if w.granted {
		return nil
	}
	q.putters = removeWaiter(q.putters, w)
	return err
}

// Take removes and returns the head item, waiting while the queue is empty.
// If ctx ends after an item was already handed over, Take returns the item.
func (q *BoundedQueue) Take(ctx context.Context) ([]byte, error) {
	q.mu.Lock()
	if q.closed() {
		q.mu.Unlock()
		return nil, domain.ErrGridClosed
	}
	if q.size > 0 {
		item := q.pop()
		if len(q.putters) > 0 {
			w := q.putters[0]
			q.putters[0] = nil
			q.putters = q.putters[1:]
			q.push(w.item)
			w.granted = true
			close(w.ready)
		}
		q.mu.Unlock()
		return item, nil
	}
	w := &queueWaiter{ready: make(chan struct{})}
	q.takers = append(q.takers, w)
	q.mu.Unlock()

	var err error
	select {
	case <-w.ready:
		return w.item, nil
	case <-ctx.Done():
		err = ctx.Err()
	case <-q.done:
		err = domain.ErrGridClosed
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if w.granted {
		return w.item, nil
	}
	q.takers = removeWaiter(q.takers, w)
	return nil, err
}

func (q *BoundedQueue) closed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

func (q *BoundedQueue) push(item []byte) {
	q.ring[(q.head+q.size)%q.capacity] = item
	q.size++
}

func (q *BoundedQueue) pop() []byte {
	item := q.ring[q.head]
	q.ring[q.head] = nil
	q.head = (q.head + 1) % q.capacity
	q.size--
	return item
}

func removeWaiter(ws []*queueWaiter, w *queueWaiter) []*queueWaiter {
	for i, cur := range ws {
		if cur == w {
			copy(ws[i:], ws[i+1:])
			ws[len(ws)-1] = nil
			return ws[:len(ws)-1]
		}
	}
	return ws
}
