// Package sqs implements the queue contract on Amazon SQS.
package sqs

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/service/sqs"

	"github.com/aliskhannn/image-distributor/internal/queue"
)

// maxWait is the longest long-poll SQS accepts.
const maxWait = 20 * time.Second

// Queue is a single SQS queue.
type Queue struct {
	client *sqs.SQS
	url    string
}

// New creates a Queue for the queue at url.
func New(p client.ConfigProvider, url string) *Queue {
	return &Queue{client: sqs.New(p), url: url}
}

// Send publishes body.
func (q *Queue) Send(ctx context.Context, body string) error {
	_, err := q.client.SendMessageWithContext(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.url),
		MessageBody: aws.String(body),
	})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

// Receive long-polls for up to maxCount messages (SQS caps it at 10).
func (q *Queue) Receive(ctx context.Context, maxCount int, wait time.Duration) ([]queue.Message, error) {
	out, err := q.client.ReceiveMessageWithContext(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.url),
		MaxNumberOfMessages: aws.Int64(int64(min(max(maxCount, 1), 10))),
		WaitTimeSeconds:     aws.Int64(int64(min(wait, maxWait) / time.Second)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive messages: %w", err)
	}

	msgs := make([]queue.Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, queue.Message{
			Body:   aws.StringValue(m.Body),
			Handle: aws.StringValue(m.ReceiptHandle),
		})
	}

	return msgs, nil
}

// Delete removes the message identified by its receipt handle.
func (q *Queue) Delete(ctx context.Context, handle string) error {
	_, err := q.client.DeleteMessageWithContext(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.url),
		ReceiptHandle: aws.String(handle),
	})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	return nil
}

// Release makes the message visible again right away.
func (q *Queue) Release(ctx context.Context, handle string) error {
	_, err := q.client.ChangeMessageVisibilityWithContext(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(q.url),
		ReceiptHandle:     aws.String(handle),
		VisibilityTimeout: aws.Int64(0),
	})
	if err != nil {
		return fmt.Errorf("failed to release message: %w", err)
	}

	return nil
}
