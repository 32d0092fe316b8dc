package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrQueueClosed = errors.New("request queue closed")

// Request is one raw line of user text waiting to be handled.
type Request struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Queue is an unbounded FIFO of requests. Dequeued requests are never
// re-queued.
type Queue struct {
	mu       sync.Mutex
	items    []Request
	closed   bool
	notify   chan struct{}
	done     chan struct{}
	listener func(queueLength int)
}

func NewQueue() *Queue {
	return &Queue{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// OnChange registers fn to be called with the queue length after every
// enqueue and dequeue. It must be set before the queue is shared.
func (q *Queue) OnChange(fn func(queueLength int)) {
	q.mu.Lock()
	q.listener = fn
	q.mu.Unlock()
}

func (q *Queue) Enqueue(text string) (Request, error) {
	r := Request{
		ID:         uuid.NewString(),
		Text:       strings.TrimSpace(text),
		EnqueuedAt: time.Now().UTC(),
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return Request{}, ErrQueueClosed
	}
	q.items = append(q.items, r)
	n := len(q.items)
	fn := q.listener
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	if fn != nil {
		fn(n)
	}
	return r, nil
}

// Dequeue blocks until a request is available, the queue is closed and
// drained, or ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (Request, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			r := q.items[0]
			q.items[0] = Request{}
			q.items = q.items[1:]
			n := len(q.items)
			fn := q.listener
			q.mu.Unlock()
			if n > 0 {
				// Another waiter may be parked on the same signal.
				select {
				case q.notify <- struct{}{}:
				default:
				}
			}
			if fn != nil {
				fn(n)
			}
			return r, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return Request{}, ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return Request{}, ctx.Err()
		case <-q.done:
		case <-q.notify:
		}
	}
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting requests. Queued requests can still be dequeued.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}
