// Package s3 implements the object store on Amazon S3.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/aliskhannn/image-distributor/internal/storage"
)

// Storage stores objects in S3 buckets.
type Storage struct {
	client *s3.S3
}

// NewStorage creates a Storage from an AWS session.
func NewStorage(p client.ConfigProvider) *Storage {
	return &Storage{client: s3.New(p)}
}

// Put uploads data to container/key.
func (s *Storage) Put(ctx context.Context, container, key string, data []byte) error {
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to put s3://%s/%s: %w", container, key, err)
	}

	return nil
}

// Get downloads container/key.
func (s *Storage) Get(ctx context.Context, container, key string) ([]byte, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", container, key, classify(err))
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", container, key, err)
	}

	return data, nil
}

func classify(err error) error {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket, "NotFound":
			return errors.Join(storage.ErrNotFound, err)
		}
	}
	return err
}
