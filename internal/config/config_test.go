package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: memory
queue:
  driver: memory
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Cluster.Size != 4 || cfg.Cluster.RoundTimeout != 30*time.Second || cfg.Cluster.Degraded != "fail" {
		t.Errorf("unexpected cluster defaults %+v", cfg.Cluster)
	}
	if cfg.Coordinator.Wait != 10*time.Second || !cfg.Coordinator.ExitWhenIdle || cfg.Coordinator.ResultPrefix != "result_" {
		t.Errorf("unexpected coordinator defaults %+v", cfg.Coordinator)
	}
	if cfg.Retry.Attempts != 3 || cfg.Retry.Delay != time.Second || cfg.Retry.Backoff != 2 {
		t.Errorf("unexpected retry defaults %+v", cfg.Retry)
	}
	if !cfg.Producer.StrictOperations {
		t.Error("expected strict operations by default")
	}
	if cfg.Server.WriteTimeout != 30*time.Second || cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Errorf("unexpected server defaults %+v", cfg.Server)
	}
}

func TestLoadFromFileAndEnv(t *testing.T) {
	t.Setenv("STORAGE_ACCESS_KEY", "minio")
	t.Setenv("STORAGE_SECRET_KEY", "minio123")
	t.Setenv("CLUSTER_SIZE", "8")

	path := writeConfig(t, `
storage:
  driver: minio
  endpoint: localhost:9000
  buckets:
    source: uploads
    result: results
queue:
  driver: kafka
  tasks: tasks
  notices: notices
  kafka:
    brokers: ["localhost:9092"]
cluster:
  round_timeout: 5s
  degraded: reassign
coordinator:
  failure_policy: requeue
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Storage.AccessKey != "minio" || cfg.Storage.SecretKey != "minio123" {
		t.Errorf("credentials not taken from env: %+v", cfg.Storage)
	}
	if cfg.Cluster.Size != 8 {
		t.Errorf("expected cluster size from env, got %d", cfg.Cluster.Size)
	}
	if cfg.Cluster.RoundTimeout != 5*time.Second || cfg.Cluster.Degraded != "reassign" {
		t.Errorf("unexpected cluster %+v", cfg.Cluster)
	}
	if cfg.Storage.Buckets.Result != "results" || cfg.Queue.Kafka.Brokers[0] != "localhost:9092" {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestValidateMissingCredentials(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: minio
  endpoint: localhost:9000
queue:
  driver: memory
`)

	_, err := Load(path)
	if !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestValidateEnums(t *testing.T) {
	cfg := Config{
		Storage:     Storage{Driver: "floppy", Buckets: Buckets{Source: "a"}},
		Queue:       Queue{Driver: "memory"},
		Retry:       Retry{Attempts: 1},
		Cluster:     Cluster{Size: 1, Degraded: "panic"},
		Coordinator: Coordinator{FailurePolicy: "ignore"},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"floppy", "panic", "ignore", "write_timeout"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}

func TestLogApply(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.GlobalLevel())

	if err := (Log{Level: "debug"}).Apply(); err != nil {
		t.Errorf("Apply failed: %v", err)
	}
	if err := (Log{Level: "loud"}).Apply(); err == nil {
		t.Error("expected error for unknown level")
	}
}
