package task_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	wbfretry "github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-distributor/internal/model"
	"github.com/aliskhannn/image-distributor/internal/queue"
	"github.com/aliskhannn/image-distributor/internal/queue/memory"
	"github.com/aliskhannn/image-distributor/internal/retry"
	"github.com/aliskhannn/image-distributor/internal/service/task"
	memstore "github.com/aliskhannn/image-distributor/internal/storage/memory"
)

func TestMain(m *testing.M) {
	zlog.Init()
	os.Exit(m.Run())
}

func TestSubmitTask(t *testing.T) {
	store := memstore.NewStorage()
	tasks := memory.New()
	svc := task.NewService(store, tasks, memory.New(), "uploads", true)

	path := filepath.Join(t.TempDir(), "cat.png")
	if err := os.WriteFile(path, []byte("image bytes"), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := svc.SubmitTask(context.Background(), path, model.Operation("colorinversion"))
	if err != nil {
		t.Fatalf("SubmitTask failed: %v", err)
	}
	if got.Location != "s3://uploads/cat.png" || got.Operation != model.ColorInversion {
		t.Errorf("unexpected task %+v", got)
	}

	data, err := store.Get(context.Background(), "uploads", "cat.png")
	if err != nil || string(data) != "image bytes" {
		t.Errorf("expected uploaded file, got %q, %v", data, err)
	}

	bodies := tasks.Bodies()
	if len(bodies) != 1 {
		t.Fatalf("expected one task message, got %d", len(bodies))
	}
	sent, err := model.DecodeTask(bodies[0])
	if err != nil {
		t.Fatalf("DecodeTask failed: %v", err)
	}
	if sent.ID != got.ID {
		t.Errorf("sent task %s, returned %s", sent.ID, got.ID)
	}
}

func TestSubmitRejectsUnknownOperation(t *testing.T) {
	store := memstore.NewStorage()
	tasks := memory.New()
	svc := task.NewService(store, tasks, memory.New(), "uploads", true)

	_, err := svc.SubmitReader(context.Background(), "a.png", bytes.NewReader([]byte("x")), "sepia")
	if !errors.Is(err, model.ErrUnknownOperation) {
		t.Fatalf("expected ErrUnknownOperation, got %v", err)
	}
	if store.Len() != 0 || len(tasks.Bodies()) != 0 {
		t.Error("nothing should be uploaded or sent for a rejected task")
	}

	lenient := task.NewService(store, tasks, memory.New(), "uploads", false)
	if _, err := lenient.SubmitReader(context.Background(), "a.png", bytes.NewReader([]byte("x")), "sepia"); err != nil {
		t.Errorf("non-strict submit failed: %v", err)
	}
}

type brokenSender struct{}

func (brokenSender) Send(context.Context, string) error { return errors.New("queue unreachable") }

func TestSubmitReportsOrphanedUpload(t *testing.T) {
	store := memstore.NewStorage()
	svc := task.NewService(store, brokenSender{}, memory.New(), "uploads", true)

	_, err := svc.SubmitReader(context.Background(), "dir/a.png", bytes.NewReader([]byte("x")), model.Blur)
	if !errors.Is(err, task.ErrOrphanedUpload) {
		t.Fatalf("expected ErrOrphanedUpload, got %v", err)
	}
	if _, err := store.Get(context.Background(), "uploads", "a.png"); err != nil {
		t.Errorf("orphaned object should remain in the store: %v", err)
	}
}

func TestConcurrentSubmitsDoNotInterleave(t *testing.T) {
	tasks := memory.New()
	svc := task.NewService(memstore.NewStorage(), queue.Synchronize(tasks), memory.New(), "uploads", true)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("img-%02d.png", i)
			if _, err := svc.SubmitReader(context.Background(), name, bytes.NewReader([]byte{byte(i)}), model.Erosion); err != nil {
				t.Errorf("SubmitReader failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	bodies := tasks.Bodies()
	if len(bodies) != 32 {
		t.Fatalf("expected 32 task messages, got %d", len(bodies))
	}

	seen := make(map[string]bool)
	for _, b := range bodies {
		tk, err := model.DecodeTask(b)
		if err != nil {
			t.Fatalf("body %q is not a task: %v", b, err)
		}
		seen[tk.Location] = true
	}
	if len(seen) != 32 {
		t.Errorf("expected 32 distinct locations, got %d", len(seen))
	}
}

func TestSubmitMany(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"a.png", "b.png"} {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(name), 0o600); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, p)
	}
	paths = append(paths, filepath.Join(dir, "missing.png"))

	svc := task.NewService(memstore.NewStorage(), memory.New(), memory.New(), "uploads", true)
	got, err := svc.SubmitMany(context.Background(), paths, model.Dilation)
	if err == nil {
		t.Error("expected an error for the missing file")
	}
	if len(got) != 2 {
		t.Errorf("expected 2 submitted tasks, got %d", len(got))
	}
}

func TestPollResultsSkipsForeignMessages(t *testing.T) {
	ctx := context.Background()
	notices := memory.New()
	notices.Send(ctx, "hello")
	notices.Send(ctx, "s3://results/result_a.png")
	notices.Send(ctx, "s3://results/result_b.png")

	svc := task.NewService(memstore.NewStorage(), memory.New(), notices, "uploads", true)
	got, err := svc.PollResults(ctx, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("PollResults failed: %v", err)
	}

	want := []string{"s3://results/result_a.png", "s3://results/result_b.png"}
	if !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if n := notices.InFlight(); n != 0 {
		t.Errorf("expected no message left in flight, got %d", n)
	}
	if bodies := notices.Bodies(); !slices.Equal(bodies, []string{"hello"}) {
		t.Errorf("expected the foreign message back on the queue, got %v", bodies)
	}
}

func TestPollResultsReleasesThroughDecorators(t *testing.T) {
	ctx := context.Background()
	notices := memory.New()
	notices.Send(ctx, "hello")

	r := retry.New(wbfretry.Strategy{Attempts: 2, Delay: time.Millisecond, Backoff: 1})
	svc := task.NewService(memstore.NewStorage(), memory.New(), queue.WithRetry(queue.Synchronize(notices), r, "notices"), "uploads", true)

	got, err := svc.PollResults(ctx, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("PollResults failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no results, got %v", got)
	}

	// The released message is delivered again on the next poll.
	msgs, err := notices.Receive(ctx, 10, 10*time.Millisecond)
	if err != nil || len(msgs) != 1 || msgs[0].Body != "hello" {
		t.Errorf("expected the foreign message to be redelivered, got %v, %v", msgs, err)
	}
}

func TestWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notices := memory.New()
	svc := task.NewService(memstore.NewStorage(), memory.New(), notices, "uploads", true)
	results := svc.Watch(ctx, 20*time.Millisecond)

	notices.Send(ctx, "s3://results/result_a.png")

	select {
	case r := <-results:
		if r != "s3://results/result_a.png" {
			t.Errorf("unexpected result %q", r)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no result delivered")
	}

	cancel()
	for range results {
	}
}
