package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/wb-go/wbf/zlog"
)

// ErrMissingCredentials is returned by Validate when a backend that needs
// credentials has none configured.
var ErrMissingCredentials = errors.New("missing credentials")

// Config holds the main configuration for the application.
type Config struct {
	Log         Log         `mapstructure:"log"`
	Server      Server      `mapstructure:"server"`
	Database    Database    `mapstructure:"database"`
	Storage     Storage     `mapstructure:"storage"`
	Queue       Queue       `mapstructure:"queue"`
	Retry       Retry       `mapstructure:"retry"`
	Cluster     Cluster     `mapstructure:"cluster"`
	Coordinator Coordinator `mapstructure:"coordinator"`
	Producer    Producer    `mapstructure:"producer"`
	Debug       Debug       `mapstructure:"debug"`
}

// Log holds logging configuration.
type Log struct {
	Level string `mapstructure:"level"` // zerolog level name
}

// Server holds HTTP server-related configuration.
type Server struct {
	HTTPPort        string        `mapstructure:"http_port"` // HTTP port to listen on
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"` // must exceed the 20s results poll
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Database holds the task ledger connection. The ledger is off unless Enabled.
type Database struct {
	Enabled bool           `mapstructure:"enabled"`
	Master  DatabaseNode   `mapstructure:"master"`
	Slaves  []DatabaseNode `mapstructure:"slaves"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DatabaseNode holds connection parameters for a single database node.
type DatabaseNode struct {
	Host    string `mapstructure:"host"`
	Port    string `mapstructure:"port"`
	User    string `mapstructure:"user"`
	Pass    string `mapstructure:"pass"`
	Name    string `mapstructure:"name"`
	SSLMode string `mapstructure:"ssl_mode"`
}

// Storage holds configuration for the object store.
type Storage struct {
	Driver    string  `mapstructure:"driver"` // minio, s3 or memory
	Endpoint  string  `mapstructure:"endpoint"`
	AccessKey string  `mapstructure:"access_key"`
	SecretKey string  `mapstructure:"secret_key"`
	UseSSL    bool    `mapstructure:"use_ssl"`
	Region    string  `mapstructure:"region"` // s3 only
	Buckets   Buckets `mapstructure:"buckets"`
}

// Buckets names the containers for uploaded sources and results.
type Buckets struct {
	Source string `mapstructure:"source"`
	Result string `mapstructure:"result"`
}

// Queue holds configuration for the task and notice queues. Queue names
// are SQS URLs, Kafka topics or RabbitMQ queue names depending on Driver.
type Queue struct {
	Driver     string   `mapstructure:"driver"` // sqs, kafka, rabbitmq or memory
	Tasks      string   `mapstructure:"tasks"`
	Notices    string   `mapstructure:"notices"`
	DeadLetter string   `mapstructure:"dead_letter"` // optional
	SQS        SQS      `mapstructure:"sqs"`
	Kafka      Kafka    `mapstructure:"kafka"`
	RabbitMQ   RabbitMQ `mapstructure:"rabbitmq"`
}

// SQS holds AWS settings for the sqs driver.
type SQS struct {
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"` // optional, for local emulators
}

// Kafka holds configuration for the kafka driver.
type Kafka struct {
	GroupID string   `mapstructure:"group_id"` // Consumer group ID
	Brokers []string `mapstructure:"brokers"`  // List of Kafka broker addresses
}

// RabbitMQ holds configuration for the rabbitmq driver.
type RabbitMQ struct {
	URL string `mapstructure:"url"`
}

// Retry defines retry policy configuration.
type Retry struct {
	Attempts int           `mapstructure:"attempts"` // Number of retry attempts
	Delay    time.Duration `mapstructure:"delay"`    // Initial delay between retries
	Backoff  float64       `mapstructure:"backoff"`  // Backoff multiplier for delays
}

// Cluster configures the worker group.
type Cluster struct {
	Size         int           `mapstructure:"size"`
	RoundTimeout time.Duration `mapstructure:"round_timeout"` // 0 waits forever
	Degraded     string        `mapstructure:"degraded"`      // fail or reassign
}

// Coordinator configures the claim loop.
type Coordinator struct {
	Wait            time.Duration `mapstructure:"wait"`
	ExitWhenIdle    bool          `mapstructure:"exit_when_idle"`
	FailurePolicy   string        `mapstructure:"failure_policy"` // drop, requeue or dead_letter
	MaxRedeliveries int           `mapstructure:"max_redeliveries"`
	RejectUnknown   bool          `mapstructure:"reject_unknown"`
	ResultPrefix    string        `mapstructure:"result_prefix"`
}

// Producer configures task submission.
type Producer struct {
	StrictOperations bool `mapstructure:"strict_operations"`
}

// Debug holds diagnostic switches.
type Debug struct {
	Overlay bool `mapstructure:"overlay"` // upload partition overlays
}

// DSN returns the PostgreSQL DSN string for connecting to this database node.
func (n DatabaseNode) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		n.User, n.Pass, n.Host, n.Port, n.Name, n.SSLMode,
	)
}

// Apply sets the global zerolog level.
func (l Log) Apply() error {
	if l.Level == "" {
		return nil
	}

	level, err := zerolog.ParseLevel(l.Level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("server.http_port", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("storage.driver", "minio")
	v.SetDefault("storage.buckets.source", "images")

	v.SetDefault("queue.driver", "sqs")
	v.SetDefault("queue.kafka.group_id", "image-distributor")

	v.SetDefault("retry.attempts", 3)
	v.SetDefault("retry.delay", time.Second)
	v.SetDefault("retry.backoff", 2.0)

	v.SetDefault("cluster.size", 4)
	v.SetDefault("cluster.round_timeout", 30*time.Second)
	v.SetDefault("cluster.degraded", "fail")

	v.SetDefault("coordinator.wait", 10*time.Second)
	v.SetDefault("coordinator.exit_when_idle", true)
	v.SetDefault("coordinator.failure_policy", "drop")
	v.SetDefault("coordinator.max_redeliveries", 3)
	v.SetDefault("coordinator.result_prefix", "result_")

	v.SetDefault("producer.strict_operations", true)
}

// bindEnv binds credentials and endpoints to environment variables.
func bindEnv(v *viper.Viper) error {
	bindings := map[string]string{
		"storage.access_key":   "STORAGE_ACCESS_KEY",
		"storage.secret_key":   "STORAGE_SECRET_KEY",
		"storage.region":       "AWS_REGION",
		"queue.sqs.region":     "AWS_REGION",
		"queue.rabbitmq.url":   "RABBITMQ_URL",
		"database.master.host": "DB_HOST",
		"database.master.port": "DB_PORT",
		"database.master.user": "DB_USER",
		"database.master.pass": "DB_PASSWORD",
		"database.master.name": "DB_NAME",
	}

	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind env %s: %w", env, err)
		}
	}

	return nil
}

// Load reads the YAML file at path, applies defaults and environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad loads the configuration from the specified file path.
// It panics if the configuration cannot be loaded or is invalid.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		zlog.Logger.Panic().Err(err).Msg("failed to load config")
	}

	return cfg
}
