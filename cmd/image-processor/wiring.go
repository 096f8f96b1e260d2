package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/wb-go/wbf/dbpg"
	wbfretry "github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-distributor/internal/config"
	"github.com/aliskhannn/image-distributor/internal/queue"
	"github.com/aliskhannn/image-distributor/internal/queue/kafka"
	memqueue "github.com/aliskhannn/image-distributor/internal/queue/memory"
	"github.com/aliskhannn/image-distributor/internal/queue/rabbitmq"
	"github.com/aliskhannn/image-distributor/internal/queue/sqs"
	taskrepo "github.com/aliskhannn/image-distributor/internal/repository/task"
	"github.com/aliskhannn/image-distributor/internal/retry"
	"github.com/aliskhannn/image-distributor/internal/storage"
	"github.com/aliskhannn/image-distributor/internal/storage/memory"
	"github.com/aliskhannn/image-distributor/internal/storage/minio"
	"github.com/aliskhannn/image-distributor/internal/storage/s3"
)

// backends holds the clients shared by the subcommands of one process.
type backends struct {
	store      storage.Store
	tasks      queue.Queue
	notices    queue.Queue
	deadLetter queue.Queue // nil when not configured
	ledger     *taskrepo.Repository

	closers []io.Closer
	db      *dbpg.DB
}

var (
	shared     *backends
	sharedErr  error
	sharedOnce sync.Once
)

// connect builds the backends described by cfg once per process, so that
// the in-memory drivers are shared between the API and the coordinator.
func connect(ctx context.Context) (*backends, error) {
	sharedOnce.Do(func() {
		shared, sharedErr = newBackends(ctx, cfg)
	})
	return shared, sharedErr
}

func newBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	r := retry.New(wbfretry.Strategy{
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
		Backoff:  cfg.Retry.Backoff,
	})

	b := &backends{}

	store, err := newStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	b.store = storage.WithRetry(store, r)

	open := func(name string) (queue.Queue, error) {
		q, err := newQueue(cfg.Queue, name)
		if err != nil {
			return nil, err
		}
		if c, ok := q.(io.Closer); ok {
			b.closers = append(b.closers, c)
		}
		return queue.WithRetry(queue.Synchronize(q), r, name), nil
	}

	if b.tasks, err = open(cfg.Queue.Tasks); err != nil {
		b.Close()
		return nil, err
	}
	if b.notices, err = open(cfg.Queue.Notices); err != nil {
		b.Close()
		return nil, err
	}
	if cfg.Queue.DeadLetter != "" {
		if b.deadLetter, err = open(cfg.Queue.DeadLetter); err != nil {
			b.Close()
			return nil, err
		}
	}

	if cfg.Database.Enabled {
		if err := b.openLedger(ctx, cfg.Database); err != nil {
			b.Close()
			return nil, err
		}
	}

	return b, nil
}

func newStore(ctx context.Context, c config.Storage) (storage.Store, error) {
	switch c.Driver {
	case "minio":
		s, err := minio.NewStorage(ctx, c.Endpoint, c.AccessKey, c.SecretKey, c.UseSSL, c.Buckets.Source, c.Buckets.Result)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to storage: %w", err)
		}
		return s, nil
	case "s3":
		sess, err := session.NewSession(&aws.Config{Region: aws.String(c.Region)})
		if err != nil {
			return nil, fmt.Errorf("failed to create aws session: %w", err)
		}
		return s3.NewStorage(sess), nil
	case "memory":
		return memory.NewStorage(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", c.Driver)
	}
}

func newQueue(c config.Queue, name string) (queue.Queue, error) {
	switch c.Driver {
	case "sqs":
		awsCfg := &aws.Config{Region: aws.String(c.SQS.Region)}
		if c.SQS.Endpoint != "" {
			awsCfg.Endpoint = aws.String(c.SQS.Endpoint)
		}
		sess, err := session.NewSession(awsCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create aws session: %w", err)
		}
		return sqs.New(sess, name), nil
	case "kafka":
		return kafka.New(c.Kafka.Brokers, name, c.Kafka.GroupID), nil
	case "rabbitmq":
		q, err := rabbitmq.Dial(c.RabbitMQ.URL, name)
		if err != nil {
			return nil, err
		}
		return q, nil
	case "memory":
		return memqueue.New(), nil
	default:
		return nil, fmt.Errorf("unknown queue driver %q", c.Driver)
	}
}

func (b *backends) openLedger(ctx context.Context, c config.Database) error {
	opts := &dbpg.Options{
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}

	slaveDSNs := make([]string, 0, len(c.Slaves))
	for _, s := range c.Slaves {
		slaveDSNs = append(slaveDSNs, s.DSN())
	}

	db, err := dbpg.New(c.Master.DSN(), slaveDSNs, opts)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	b.db = db

	repo := taskrepo.NewRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		return err
	}
	b.ledger = repo

	return nil
}

// Close releases queue clients and database connections.
func (b *backends) Close() error {
	var errs []error
	for _, c := range b.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if b.db != nil {
		if err := b.db.Master.Close(); err != nil {
			zlog.Logger.Printf("failed to close master DB: %v", err)
			errs = append(errs, err)
		}
		for i, s := range b.db.Slaves {
			if err := s.Close(); err != nil {
				zlog.Logger.Printf("failed to close slave DB %d: %v", i, err)
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}
