// Package rabbitmq implements the queue contract on a RabbitMQ queue.
// Receive uses basic.get without auto-ack; Delete acknowledges.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/aliskhannn/image-distributor/internal/queue"
)

// pollInterval is the pause between empty basic.get calls.
const pollInterval = 200 * time.Millisecond

// Queue is a durable RabbitMQ queue reached through the default exchange.
type Queue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	name    string
}

// Dial connects to url and declares the durable queue name.
func Dial(url, name string) (*Queue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		name,  // name
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", name, err)
	}

	return &Queue{conn: conn, channel: ch, name: name}, nil
}

// Send publishes body as a persistent message.
func (q *Queue) Send(ctx context.Context, body string) error {
	err := q.channel.PublishWithContext(ctx,
		"",     // exchange
		q.name, // routing key
		false,  // mandatory
		false,  // immediate
		amqp.Publishing{
			ContentType:  "text/plain",
			DeliveryMode: amqp.Persistent,
			Body:         []byte(body),
		})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", q.name, err)
	}

	return nil
}

// Receive polls the queue until it has maxCount messages or wait elapses
// with nothing received.
func (q *Queue) Receive(ctx context.Context, maxCount int, wait time.Duration) ([]queue.Message, error) {
	deadline := time.Now().Add(wait)
	var msgs []queue.Message

	for len(msgs) < max(maxCount, 1) {
		d, ok, err := q.channel.Get(q.name, false)
		if err != nil {
			return msgs, fmt.Errorf("failed to get from %s: %w", q.name, err)
		}
		if ok {
			msgs = append(msgs, queue.Message{
				Body:   string(d.Body),
				Handle: strconv.FormatUint(d.DeliveryTag, 10),
			})
			continue
		}
		if len(msgs) > 0 || !time.Now().Before(deadline) {
			break
		}

		select {
		case <-ctx.Done():
			return msgs, ctx.Err()
		case <-time.After(min(pollInterval, time.Until(deadline))):
		}
	}

	return msgs, nil
}

// Delete acknowledges the delivery.
func (q *Queue) Delete(_ context.Context, handle string) error {
	tag, err := parseTag(handle)
	if err != nil {
		return err
	}

	if err := q.channel.Ack(tag, false); err != nil {
		return fmt.Errorf("failed to ack %d on %s: %w", tag, q.name, err)
	}

	return nil
}

// Release rejects the delivery with requeue so the broker hands it out again.
func (q *Queue) Release(_ context.Context, handle string) error {
	tag, err := parseTag(handle)
	if err != nil {
		return err
	}

	if err := q.channel.Nack(tag, false, true); err != nil {
		return fmt.Errorf("failed to nack %d on %s: %w", tag, q.name, err)
	}

	return nil
}

func parseTag(handle string) (uint64, error) {
	tag, err := strconv.ParseUint(handle, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: delivery tag %q: %v", queue.ErrUnknownHandle, handle, err)
	}
	return tag, nil
}

// Close closes the channel and connection.
func (q *Queue) Close() error {
	return errors.Join(q.channel.Close(), q.conn.Close())
}
