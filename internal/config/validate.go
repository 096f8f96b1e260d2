package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/aliskhannn/image-distributor/internal/cluster"
	"github.com/aliskhannn/image-distributor/internal/coordinator"
)

// Validate checks enum values, required names and credentials.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case "minio":
		if c.Storage.Endpoint == "" {
			errs = append(errs, errors.New("storage.endpoint is required for minio"))
		}
		if c.Storage.AccessKey == "" || c.Storage.SecretKey == "" {
			errs = append(errs, fmt.Errorf("%w: storage access and secret key", ErrMissingCredentials))
		}
	case "s3":
		if c.Storage.Region == "" {
			errs = append(errs, errors.New("storage.region is required for s3"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	if c.Storage.Buckets.Source == "" {
		errs = append(errs, errors.New("storage.buckets.source is required"))
	}

	switch c.Queue.Driver {
	case "sqs":
		if c.Queue.SQS.Region == "" {
			errs = append(errs, errors.New("queue.sqs.region is required for sqs"))
		}
	case "kafka":
		if len(c.Queue.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("queue.kafka.brokers is required for kafka"))
		}
	case "rabbitmq":
		if c.Queue.RabbitMQ.URL == "" {
			errs = append(errs, fmt.Errorf("%w: queue.rabbitmq.url", ErrMissingCredentials))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown queue driver %q", c.Queue.Driver))
	}
	if c.Queue.Driver != "memory" && (c.Queue.Tasks == "" || c.Queue.Notices == "") {
		errs = append(errs, errors.New("queue.tasks and queue.notices are required"))
	}

	if c.Server.WriteTimeout <= 20*time.Second {
		errs = append(errs, errors.New("server.write_timeout must exceed the 20s results poll"))
	}

	if c.Retry.Attempts < 1 {
		errs = append(errs, errors.New("retry.attempts must be at least 1"))
	}
	if c.Cluster.Size < 1 {
		errs = append(errs, errors.New("cluster.size must be at least 1"))
	}
	if _, err := cluster.ParseDegraded(c.Cluster.Degraded); err != nil {
		errs = append(errs, err)
	}
	if _, err := coordinator.ParsePolicy(c.Coordinator.FailurePolicy); err != nil {
		errs = append(errs, err)
	}

	if c.Database.Enabled && (c.Database.Master.User == "" || c.Database.Master.Pass == "") {
		errs = append(errs, fmt.Errorf("%w: database user and password", ErrMissingCredentials))
	}

	return errors.Join(errs...)
}
