// Package queue defines the message queue contract and decorators that
// serialize and retry calls on a shared queue client.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aliskhannn/image-distributor/internal/retry"
)

// ErrUnknownHandle is returned by Delete for a handle the queue did not hand
// out or has already deleted.
var ErrUnknownHandle = errors.New("unknown message handle")

// Message is a received queue message. Handle identifies the delivery and
// is passed back to Delete.
type Message struct {
	Body   string
	Handle string
}

// Queue is a durable message queue with explicit deletion of received messages.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxCount int, wait time.Duration) ([]Message, error)
	Delete(ctx context.Context, handle string) error
}

// Releaser is implemented by queues that can hand a received message back
// for redelivery without deleting it.
type Releaser interface {
	Release(ctx context.Context, handle string) error
}

// Release hands the message back when q supports it and does nothing
// otherwise.
func Release(ctx context.Context, q Queue, handle string) error {
	if r, ok := q.(Releaser); ok {
		return r.Release(ctx, handle)
	}
	return nil
}

// Synchronized allows only one call in flight on the wrapped queue.
type Synchronized struct {
	mu    sync.Mutex
	queue Queue
}

// Synchronize wraps q with a mutex.
func Synchronize(q Queue) *Synchronized {
	return &Synchronized{queue: q}
}

// Send sends body while holding the lock.
func (s *Synchronized) Send(ctx context.Context, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Send(ctx, body)
}

// Receive long-polls while holding the lock.
func (s *Synchronized) Receive(ctx context.Context, maxCount int, wait time.Duration) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Receive(ctx, maxCount, wait)
}

// Delete removes a message while holding the lock.
func (s *Synchronized) Delete(ctx context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Delete(ctx, handle)
}

// Release hands a message back while holding the lock.
func (s *Synchronized) Release(ctx context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Release(ctx, s.queue, handle)
}

type retrier interface {
	Do(ctx context.Context, name string, op func(ctx context.Context) error) error
}

// Retrying retries Send and Delete. Receive is passed through: a failed
// receive aborts the caller's iteration instead.
type Retrying struct {
	queue   Queue
	retrier retrier
	name    string
}

// WithRetry decorates q. name is used in log lines.
func WithRetry(q Queue, r retrier, name string) *Retrying {
	return &Retrying{queue: q, retrier: r, name: name}
}

// Send sends body, retrying transient failures.
func (r *Retrying) Send(ctx context.Context, body string) error {
	return r.retrier.Do(ctx, "send "+r.name, func(ctx context.Context) error {
		return r.queue.Send(ctx, body)
	})
}

// Receive calls the underlying queue once.
func (r *Retrying) Receive(ctx context.Context, maxCount int, wait time.Duration) ([]Message, error) {
	return r.queue.Receive(ctx, maxCount, wait)
}

// Delete removes a message, retrying transient failures. An unknown
// handle is not retried.
func (r *Retrying) Delete(ctx context.Context, handle string) error {
	return r.retrier.Do(ctx, "delete "+r.name, func(ctx context.Context) error {
		err := r.queue.Delete(ctx, handle)
		if errors.Is(err, ErrUnknownHandle) {
			return retry.Permanent(err)
		}
		return err
	})
}

// Release hands a message back, retrying transient failures.
func (r *Retrying) Release(ctx context.Context, handle string) error {
	return r.retrier.Do(ctx, "release "+r.name, func(ctx context.Context) error {
		err := Release(ctx, r.queue, handle)
		if errors.Is(err, ErrUnknownHandle) {
			return retry.Permanent(err)
		}
		return err
	})
}
