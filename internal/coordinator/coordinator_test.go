package coordinator_test

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-distributor/internal/cluster"
	"github.com/aliskhannn/image-distributor/internal/coordinator"
	"github.com/aliskhannn/image-distributor/internal/model"
	"github.com/aliskhannn/image-distributor/internal/pixel"
	"github.com/aliskhannn/image-distributor/internal/queue/memory"
	memstore "github.com/aliskhannn/image-distributor/internal/storage/memory"
	"github.com/aliskhannn/image-distributor/internal/transform"
)

func TestMain(m *testing.M) {
	zlog.Init()
	os.Exit(m.Run())
}

type ledger struct {
	mu      sync.Mutex
	records []model.Record
}

func (l *ledger) Save(_ context.Context, rec model.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	return nil
}

func (l *ledger) last() model.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.records) == 0 {
		return model.Record{}
	}
	return l.records[len(l.records)-1]
}

type fixture struct {
	group   *cluster.Group
	store   *memstore.Storage
	tasks   *memory.Queue
	notices *memory.Queue
	dlq     *memory.Queue
	ledger  *ledger

	mu        sync.Mutex
	shutdowns []int
}

func newFixture(t *testing.T, size int) *fixture {
	t.Helper()

	f := &fixture{
		store:   memstore.NewStorage(),
		tasks:   memory.New(),
		notices: memory.New(),
		dlq:     memory.New(),
		ledger:  &ledger{},
	}

	g, err := cluster.New(cluster.Options{
		Size: size,
		OnShutdown: func(rank int) {
			f.mu.Lock()
			f.shutdowns = append(f.shutdowns, rank)
			f.mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("cluster.New failed: %v", err)
	}
	g.Start(context.Background())
	t.Cleanup(func() { g.Close() })
	f.group = g

	return f
}

func (f *fixture) coordinator(opts coordinator.Options) *coordinator.Coordinator {
	opts.ExitWhenIdle = true
	opts.Wait = 20 * time.Millisecond

	return coordinator.New(coordinator.Deps{
		Root:       f.group.Root(),
		Store:      f.store,
		Tasks:      f.tasks,
		Notices:    f.notices,
		DeadLetter: f.dlq,
		Ledger:     f.ledger,
	}, opts)
}

func (f *fixture) putImage(t *testing.T, key string, buf pixel.Buffer) {
	t.Helper()

	data, err := pixel.EncodeBytes(buf, key)
	if err != nil {
		t.Fatalf("EncodeBytes failed: %v", err)
	}
	if err := f.store.Put(context.Background(), "uploads", key, data); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
}

func (f *fixture) submit(t *testing.T, key string, op model.Operation) model.Task {
	t.Helper()

	task := model.NewTask(model.Location{Container: "uploads", Key: key}, op)
	body, err := task.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	f.tasks.Send(context.Background(), body)

	return task
}

func noise(w, h int) pixel.Buffer {
	r := rand.New(rand.NewSource(int64(w*h + 1)))
	buf := pixel.New(w, h, 3)
	for i := range buf.Pix {
		buf.Pix[i] = uint8(r.Intn(256))
	}
	return buf
}

func run(t *testing.T, c *coordinator.Coordinator) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}

func TestEmptyQueueShutsDownGroup(t *testing.T) {
	f := newFixture(t, 4)
	c := f.coordinator(coordinator.Options{})

	var states []coordinator.State
	done := make(chan struct{})
	go func() {
		for e := range c.Events() {
			states = append(states, e.State)
		}
		close(done)
	}()

	run(t, c)
	<-done

	if err := f.group.Wait(); err != nil {
		t.Fatalf("group Wait failed: %v", err)
	}

	slices.Sort(f.shutdowns)
	if !slices.Equal(f.shutdowns, []int{0, 1, 2, 3}) {
		t.Errorf("expected every rank to shut down once, got %v", f.shutdowns)
	}
	if len(states) == 0 || states[len(states)-1] != coordinator.Shutdown {
		t.Errorf("expected the last event to be shutdown, got %v", states)
	}

	if err := c.Run(context.Background()); !errors.Is(err, coordinator.ErrStopped) {
		t.Errorf("expected ErrStopped on second run, got %v", err)
	}
}

func TestProcessesTaskAndPublishesNotice(t *testing.T) {
	f := newFixture(t, 3)
	src := noise(17, 11)
	f.putImage(t, "photos/cat.png", src)
	task := f.submit(t, "photos/cat.png", model.ColorInversion)

	run(t, f.coordinator(coordinator.Options{ResultContainer: "results"}))

	notices := f.notices.Bodies()
	if !slices.Equal(notices, []string{"s3://results/result_cat.png"}) {
		t.Fatalf("unexpected notices %v", notices)
	}

	data, err := f.store.Get(context.Background(), "results", "result_cat.png")
	if err != nil {
		t.Fatalf("result not uploaded: %v", err)
	}
	got, err := pixel.DecodeBytes(data)
	if err != nil {
		t.Fatalf("DecodeBytes failed: %v", err)
	}
	if !got.Equal(transform.Apply(src, model.ColorInversion)) {
		t.Error("published image differs from the inverted source")
	}

	if f.tasks.InFlight() != 0 || len(f.tasks.Bodies()) != 0 {
		t.Error("expected the task to be claimed and deleted")
	}

	rec := f.ledger.last()
	if rec.ID != task.ID || rec.Status != model.StatusDone || rec.Result != notices[0] {
		t.Errorf("unexpected ledger record %+v", rec)
	}
}

func TestEdgeDetectionResultIsSingleChannel(t *testing.T) {
	f := newFixture(t, 2)
	f.putImage(t, "a.png", noise(12, 9))
	f.submit(t, "a.png", model.Operation("edgedetection"))

	run(t, f.coordinator(coordinator.Options{}))

	data, err := f.store.Get(context.Background(), "uploads", "result_a.png")
	if err != nil {
		t.Fatalf("result not uploaded: %v", err)
	}
	got, err := pixel.DecodeBytes(data)
	if err != nil {
		t.Fatalf("DecodeBytes failed: %v", err)
	}
	if got.Width != 12 || got.Height != 9 {
		t.Errorf("unexpected result shape %s", got)
	}
}

type failingPut struct {
	*memstore.Storage
}

func (failingPut) Put(context.Context, string, string, []byte) error {
	return errors.New("store unavailable")
}

func TestUploadFailureSendsNoNotice(t *testing.T) {
	f := newFixture(t, 2)
	f.putImage(t, "a.png", noise(8, 8))
	f.submit(t, "a.png", model.Blur)

	c := coordinator.New(coordinator.Deps{
		Root:    f.group.Root(),
		Store:   failingPut{f.store},
		Tasks:   f.tasks,
		Notices: f.notices,
		Ledger:  f.ledger,
	}, coordinator.Options{ExitWhenIdle: true, Wait: 20 * time.Millisecond})
	run(t, c)

	if n := f.notices.Bodies(); len(n) != 0 {
		t.Errorf("expected no notice after failed upload, got %v", n)
	}
	if rec := f.ledger.last(); rec.Status != model.StatusDropped {
		t.Errorf("expected dropped record, got %+v", rec)
	}
}

func TestDownloadFailurePolicies(t *testing.T) {
	tests := []struct {
		name        string
		policy      coordinator.Policy
		wantDLQ     int
		wantAttempt int
		wantStatus  model.Status
	}{
		{name: "drop", policy: coordinator.Drop, wantStatus: model.StatusDropped},
		{name: "dead letter", policy: coordinator.DeadLetter, wantDLQ: 1, wantStatus: model.StatusDeadLettered},
		{name: "requeue", policy: coordinator.Requeue, wantDLQ: 1, wantAttempt: 2, wantStatus: model.StatusDeadLettered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 2)
			f.submit(t, "missing.png", model.Erosion)

			run(t, f.coordinator(coordinator.Options{Policy: tt.policy, MaxRedeliveries: 2}))

			if n := f.notices.Bodies(); len(n) != 0 {
				t.Errorf("expected no notice, got %v", n)
			}
			if n := len(f.tasks.Bodies()); n != 0 {
				t.Errorf("expected an empty task queue, got %d", n)
			}

			dead := f.dlq.Bodies()
			if len(dead) != tt.wantDLQ {
				t.Fatalf("expected %d dead-lettered tasks, got %d", tt.wantDLQ, len(dead))
			}
			if tt.wantDLQ > 0 {
				task, err := model.DecodeTask(dead[0])
				if err != nil {
					t.Fatalf("dead-lettered body is not a task: %v", err)
				}
				if task.Attempt != tt.wantAttempt {
					t.Errorf("expected attempt %d, got %d", tt.wantAttempt, task.Attempt)
				}
			}

			if rec := f.ledger.last(); rec.Status != tt.wantStatus || rec.Reason == "" {
				t.Errorf("unexpected ledger record %+v", rec)
			}
		})
	}
}

func TestMalformedTaskIsDeadLettered(t *testing.T) {
	f := newFixture(t, 2)
	f.tasks.Send(context.Background(), "not a task")

	run(t, f.coordinator(coordinator.Options{Policy: coordinator.Requeue}))

	if dead := f.dlq.Bodies(); !slices.Equal(dead, []string{"not a task"}) {
		t.Errorf("expected the raw body in the dead-letter queue, got %v", dead)
	}
	if len(f.tasks.Bodies()) != 0 {
		t.Error("malformed task must not be requeued")
	}
}

func TestUnknownOperation(t *testing.T) {
	t.Run("passes through", func(t *testing.T) {
		f := newFixture(t, 3)
		src := noise(6, 7)
		f.putImage(t, "a.png", src)
		f.submit(t, "a.png", model.Operation("sepia"))

		run(t, f.coordinator(coordinator.Options{}))

		data, err := f.store.Get(context.Background(), "uploads", "result_a.png")
		if err != nil {
			t.Fatalf("result not uploaded: %v", err)
		}
		got, err := pixel.DecodeBytes(data)
		if err != nil {
			t.Fatalf("DecodeBytes failed: %v", err)
		}
		if !got.Equal(src) {
			t.Error("expected the source image unchanged")
		}
	})

	t.Run("rejected", func(t *testing.T) {
		f := newFixture(t, 3)
		f.putImage(t, "a.png", noise(6, 7))
		f.submit(t, "a.png", model.Operation("sepia"))

		run(t, f.coordinator(coordinator.Options{RejectUnknown: true}))

		if n := f.notices.Bodies(); len(n) != 0 {
			t.Errorf("expected no notice, got %v", n)
		}
		if rec := f.ledger.last(); rec.Status != model.StatusDropped {
			t.Errorf("expected dropped record, got %+v", rec)
		}
	})
}

func TestOverlayIsUploaded(t *testing.T) {
	f := newFixture(t, 3)
	f.putImage(t, "dog.jpg", noise(10, 12))
	f.submit(t, "dog.jpg", model.Dilation)

	run(t, f.coordinator(coordinator.Options{Overlay: true}))

	if _, err := f.store.Get(context.Background(), "uploads", "debug_dog.png"); err != nil {
		t.Errorf("overlay not uploaded: %v", err)
	}
	if _, err := f.store.Get(context.Background(), "uploads", "result_dog.jpg"); err != nil {
		t.Errorf("result not uploaded: %v", err)
	}
}

func TestCancelledRunStillShutsDown(t *testing.T) {
	f := newFixture(t, 3)
	c := coordinator.New(coordinator.Deps{
		Root:    f.group.Root(),
		Store:   f.store,
		Tasks:   f.tasks,
		Notices: f.notices,
	}, coordinator.Options{Wait: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	if err := f.group.Wait(); err != nil {
		t.Fatalf("group Wait failed: %v", err)
	}
	if len(f.shutdowns) != 3 {
		t.Errorf("expected 3 shutdowns, got %v", f.shutdowns)
	}
}

func TestStateString(t *testing.T) {
	if coordinator.Gather.String() != "gather" || coordinator.State(42).String() != "state(42)" {
		t.Error("unexpected state names")
	}
}
