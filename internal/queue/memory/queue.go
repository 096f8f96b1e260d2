// Package memory is an in-process queue with SQS-like receive/delete
// semantics, used by tests and single-process runs.
package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/aliskhannn/image-distributor/internal/queue"
)

// Queue holds pending bodies and in-flight deliveries. Received messages
// stay in flight until deleted or released; there is no visibility timeout.
type Queue struct {
	mu       sync.Mutex
	pending  []string
	inflight map[string]string
	next     int
	notify   chan struct{}
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{
		inflight: make(map[string]string),
		notify:   make(chan struct{}),
	}
}

// Send appends body to the queue.
func (q *Queue) Send(_ context.Context, body string) error {
	q.mu.Lock()
	q.pending = append(q.pending, body)
	close(q.notify)
	q.notify = make(chan struct{})
	q.mu.Unlock()
	return nil
}

// Receive returns up to maxCount messages, waiting up to wait for the first one.
func (q *Queue) Receive(ctx context.Context, maxCount int, wait time.Duration) ([]queue.Message, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			msgs := q.take(maxCount)
			q.mu.Unlock()
			return msgs, nil
		}
		notify := q.notify
		q.mu.Unlock()

		select {
		case <-notify:
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (q *Queue) take(maxCount int) []queue.Message {
	n := min(max(maxCount, 1), len(q.pending))
	msgs := make([]queue.Message, 0, n)
	for _, body := range q.pending[:n] {
		q.next++
		handle := strconv.Itoa(q.next)
		q.inflight[handle] = body
		msgs = append(msgs, queue.Message{Body: body, Handle: handle})
	}
	q.pending = q.pending[n:]
	return msgs
}

// Delete acknowledges an in-flight message.
func (q *Queue) Delete(_ context.Context, handle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.inflight[handle]; !ok {
		return queue.ErrUnknownHandle
	}
	delete(q.inflight, handle)
	return nil
}

// Release puts an in-flight message back at the head of the queue.
func (q *Queue) Release(_ context.Context, handle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	body, ok := q.inflight[handle]
	if !ok {
		return queue.ErrUnknownHandle
	}
	delete(q.inflight, handle)
	q.pending = append([]string{body}, q.pending...)
	close(q.notify)
	q.notify = make(chan struct{})
	return nil
}

// Bodies returns a snapshot of the pending bodies.
func (q *Queue) Bodies() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.pending...)
}

// InFlight returns the number of received but undeleted messages.
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inflight)
}
