package connection

import (
	"livon-client/internal/core/domain"
	"slices"
	"sync"
)

// eventQueue delivers state events in order without ever blocking the
// goroutine that produced them.
type eventQueue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	pending  []domain.StateEvent
	watchers []func(domain.StateEvent)
	closed   bool
	done     chan struct{}
}

func newEventQueue() *eventQueue {
	q := &eventQueue{done: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

func (q *eventQueue) watch(fn func(domain.StateEvent)) {
	q.mu.Lock()
	q.watchers = append(q.watchers, fn)
	q.mu.Unlock()
}

func (q *eventQueue) push(evt domain.StateEvent) {
	q.mu.Lock()
	if !q.closed {
		q.pending = append(q.pending, evt)
		q.cond.Signal()
	}
	q.mu.Unlock()
}

func (q *eventQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.cond.Signal()
	q.mu.Unlock()
	<-q.done
}

func (q *eventQueue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		evt := q.pending[0]
		q.pending = q.pending[1:]
		watchers := slices.Clone(q.watchers)
		q.mu.Unlock()
		for _, fn := range watchers {
			fn(evt)
		}
	}
}
