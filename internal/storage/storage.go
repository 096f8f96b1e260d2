// Package storage defines the object store contract shared by the
// coordinator and the task service, and decorators over it.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/aliskhannn/image-distributor/internal/retry"
)

// ErrNotFound is returned when the requested object does not exist.
var ErrNotFound = errors.New("object not found")

// Store is an S3-like object store addressed by container and key.
type Store interface {
	Put(ctx context.Context, container, key string, data []byte) error
	Get(ctx context.Context, container, key string) ([]byte, error)
}

// retrier is the subset of retry.Retrier used by the decorator.
type retrier interface {
	Do(ctx context.Context, name string, op func(ctx context.Context) error) error
}

// Retrying wraps every call of a Store with a retrier. Missing objects are
// not retried.
type Retrying struct {
	store   Store
	retrier retrier
}

// WithRetry decorates s with r.
func WithRetry(s Store, r retrier) *Retrying {
	return &Retrying{store: s, retrier: r}
}

// Put uploads data, retrying transient failures.
func (s *Retrying) Put(ctx context.Context, container, key string, data []byte) error {
	return s.retrier.Do(ctx, fmt.Sprintf("put %s/%s", container, key), func(ctx context.Context) error {
		return s.store.Put(ctx, container, key, data)
	})
}

// Get downloads an object, retrying transient failures.
func (s *Retrying) Get(ctx context.Context, container, key string) ([]byte, error) {
	var data []byte
	err := s.retrier.Do(ctx, fmt.Sprintf("get %s/%s", container, key), func(ctx context.Context) error {
		var err error
		data, err = s.store.Get(ctx, container, key)
		if errors.Is(err, ErrNotFound) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	return data, nil
}
