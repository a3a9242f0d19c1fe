package padapi

import "sync"

// EventQueue buffers raw events between a backend's producer and a controller's
// non-blocking drain. When full, new events are rejected and counted.
type EventQueue struct {
	mu      sync.Mutex
	events  []RawEvent
	limit   int
	dropped uint64
}

func NewEventQueue(limit int) *EventQueue {
	return &EventQueue{limit: limit}
}

// Push appends events in order and returns how many were rejected.
func (q *EventQueue) Push(events ...RawEvent) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	rejected := 0
	for _, ev := range events {
		if q.limit > 0 && len(q.events) >= q.limit {
			rejected++
			continue
		}
		q.events = append(q.events, ev)
	}
	q.dropped += uint64(rejected)
	return rejected
}

// Take removes and returns at most max events from the head of the queue.
func (q *EventQueue) Take(max int) []RawEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.events)
	if max > 0 && n > max {
		n = max
	}
	if n == 0 {
		return nil
	}
	out := make([]RawEvent, n)
	copy(out, q.events[:n])
	rest := copy(q.events, q.events[n:])
	clear(q.events[rest:])
	q.events = q.events[:rest]
	return out
}

func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

func (q *EventQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
