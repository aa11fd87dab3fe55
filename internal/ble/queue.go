package ble

import "sync"

type eventKind int

const (
	eventState eventKind = iota
	eventNotify
)

type event struct {
	kind  eventKind
	state State
	err   error
	gen   uint64
	data  []byte
}

// eventQueue is an unbounded FIFO drained by one goroutine. push never
// blocks, so transport callbacks return immediately and nothing is dropped.
type eventQueue struct {
	mu     sync.Mutex
	items  []event
	closed bool
	wake   chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{wake: make(chan struct{}, 1)}
}

func (q *eventQueue) push(e event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, e)
	q.mu.Unlock()
	q.signal()
}

func (q *eventQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// close stops accepting events; run returns after draining what is queued.
func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

// run hands every event to handle in push order until close.
func (q *eventQueue) run(handle func(event)) {
	for {
		q.mu.Lock()
		items := q.items
		q.items = nil
		closed := q.closed
		q.mu.Unlock()

		for _, e := range items {
			handle(e)
		}
		if len(items) > 0 {
			continue
		}
		if closed {
			return
		}
		<-q.wake
	}
}
