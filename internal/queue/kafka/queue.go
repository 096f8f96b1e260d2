// Package kafka implements the queue contract on a Kafka topic. Deleting a
// message commits its offset for the consumer group. Messages cannot be
// released; an uncommitted one is read again after the group rebalances.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-distributor/internal/queue"
)

// linger bounds how long Receive keeps fetching once it has a message.
const linger = 100 * time.Millisecond

// once is the strategy handed to the producer; retries happen in the
// caller's reliability wrapper.
var once = retry.Strategy{Attempts: 1, Backoff: 1}

// Queue binds a producer and a consumer group to one topic.
type Queue struct {
	producer *wbfkafka.Producer
	consumer *wbfkafka.Consumer
	topic    string

	mu      sync.Mutex
	pending map[string]kafka.Message
}

// New creates a Queue on topic.
func New(brokers []string, topic, groupID string) *Queue {
	return &Queue{
		producer: wbfkafka.NewProducer(brokers, topic),
		consumer: wbfkafka.NewConsumer(brokers, topic, groupID),
		topic:    topic,
		pending:  make(map[string]kafka.Message),
	}
}

// Send produces body to the topic.
func (q *Queue) Send(ctx context.Context, body string) error {
	if err := q.producer.SendWithRetry(ctx, once, nil, []byte(body)); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", q.topic, err)
	}

	return nil
}

// Receive fetches up to maxCount messages, waiting up to wait for the first.
func (q *Queue) Receive(ctx context.Context, maxCount int, wait time.Duration) ([]queue.Message, error) {
	var msgs []queue.Message
	window := wait

	for len(msgs) < max(maxCount, 1) {
		fctx, cancel := context.WithTimeout(ctx, window)
		msg, err := q.consumer.Fetch(fctx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return msgs, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return msgs, fmt.Errorf("failed to fetch from %s: %w", q.topic, err)
		}

		handle := fmt.Sprintf("%d:%d", msg.Partition, msg.Offset)

		q.mu.Lock()
		q.pending[handle] = msg
		q.mu.Unlock()

		msgs = append(msgs, queue.Message{Body: string(msg.Value), Handle: handle})
		window = linger
	}

	return msgs, nil
}

// Delete commits the offset of the message.
func (q *Queue) Delete(ctx context.Context, handle string) error {
	q.mu.Lock()
	msg, ok := q.pending[handle]
	q.mu.Unlock()
	if !ok {
		return queue.ErrUnknownHandle
	}

	if err := q.consumer.Commit(ctx, msg); err != nil {
		return fmt.Errorf("failed to commit %s on %s: %w", handle, q.topic, err)
	}

	q.mu.Lock()
	delete(q.pending, handle)
	q.mu.Unlock()

	return nil
}

// Close closes the producer and consumer clients.
func (q *Queue) Close() error {
	var errs []error
	if err := q.producer.Close(); err != nil {
		zlog.Logger.Error().Err(err).Str("topic", q.topic).Msg("failed to close kafka producer client")
		errs = append(errs, err)
	}
	if err := q.consumer.Close(); err != nil {
		zlog.Logger.Error().Err(err).Str("topic", q.topic).Msg("failed to close kafka consumer client")
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
