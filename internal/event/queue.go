package event

import "sync"

// Publisher accepts events for later dispatch.
type Publisher interface {
	Push(Event)
}

// Queue is an unbounded FIFO safe for many producers and one consumer.
type Queue struct {
	mu    sync.Mutex
	items []Event
	head  int
}

// NewQueue allocates a queue with an initial capacity hint.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{items: make([]Event, 0, capacity)}
}

// Push appends e. A nil event is enqueued as-is so the consumer can treat it as malformed.
func (q *Queue) Push(e Event) {
	q.mu.Lock()
	q.items = append(q.items, e)
	q.mu.Unlock()
}

// TryPop removes the oldest event without blocking; ok is false when the queue is empty.
func (q *Queue) TryPop() (e Event, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head >= len(q.items) {
		return nil, false
	}
	e = q.items[q.head]
	q.items[q.head] = nil
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 64 && q.head*2 > len(q.items) {
		n := copy(q.items, q.items[q.head:])
		q.items = q.items[:n]
		q.head = 0
	}
	return e, true
}

// Len reports the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}
