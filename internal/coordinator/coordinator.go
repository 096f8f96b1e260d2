// Package coordinator runs the rank 0 loop: it claims tasks from the task
// queue, drives a dispatch round per task and publishes the result.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-distributor/internal/cluster"
	"github.com/aliskhannn/image-distributor/internal/model"
	"github.com/aliskhannn/image-distributor/internal/overlay"
	"github.com/aliskhannn/image-distributor/internal/pixel"
	"github.com/aliskhannn/image-distributor/internal/queue"
	"github.com/aliskhannn/image-distributor/internal/storage"
	"github.com/aliskhannn/image-distributor/internal/transform"
)

// ErrStopped is returned by Run on a coordinator that already ran.
var ErrStopped = errors.New("coordinator stopped")

const (
	defaultWait         = 10 * time.Second
	defaultPause        = time.Second
	defaultResultPrefix = "result_"
	debugPrefix         = "debug_"
	shutdownTimeout     = 10 * time.Second
	eventBuffer         = 64
)

// Ledger keeps a row per claimed task.
type Ledger interface {
	Save(ctx context.Context, rec model.Record) error
}

// Options tunes the loop.
type Options struct {
	Wait            time.Duration // long-poll wait on the task queue
	Pause           time.Duration // pause after a failed receive
	ExitWhenIdle    bool          // shut the group down on an empty receive
	Policy          Policy
	MaxRedeliveries int
	RejectUnknown   bool
	ResultPrefix    string
	ResultContainer string // defaults to the source container
	Overlay         bool   // upload a partition overlay next to the result
}

// Deps are the collaborators of a Coordinator. DeadLetter and Ledger are optional.
type Deps struct {
	Root       *cluster.Root
	Store      storage.Store
	Tasks      queue.Queue
	Notices    queue.Queue
	DeadLetter queue.Queue
	Ledger     Ledger
}

// Coordinator is the root participant of the worker group.
type Coordinator struct {
	deps   Deps
	opts   Options
	events chan Event
	ran    atomic.Bool
}

// New creates a Coordinator. Zero options take their defaults.
func New(deps Deps, opts Options) *Coordinator {
	if opts.Wait <= 0 {
		opts.Wait = defaultWait
	}
	if opts.Pause <= 0 {
		opts.Pause = defaultPause
	}
	if opts.ResultPrefix == "" {
		opts.ResultPrefix = defaultResultPrefix
	}

	return &Coordinator{
		deps:   deps,
		opts:   opts,
		events: make(chan Event, eventBuffer),
	}
}

// Rank returns 0.
func (c *Coordinator) Rank() int { return 0 }

// Events returns state transitions. Events are dropped when the channel is
// full. The channel is closed after shutdown.
func (c *Coordinator) Events() <-chan Event { return c.events }

func (c *Coordinator) emit(s State, t model.Task) {
	select {
	case c.events <- Event{State: s, Task: t}:
	default:
	}
}

// Run claims and processes tasks until the task queue is empty (with
// ExitWhenIdle) or ctx is done, then broadcasts shutdown to the group.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.ran.CompareAndSwap(false, true) {
		return ErrStopped
	}
	defer close(c.events)

	for {
		c.emit(Idle, model.Task{})
		if ctx.Err() != nil {
			break
		}

		c.emit(Claim, model.Task{})
		msgs, err := c.deps.Tasks.Receive(ctx, 1, c.opts.Wait)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			zlog.Logger.Error().Err(err).Msg("failed to receive task")
			c.pause(ctx)
			continue
		}

		if len(msgs) == 0 {
			if c.opts.ExitWhenIdle {
				zlog.Logger.Info().Msg("task queue is empty")
				break
			}
			continue
		}

		msg := msgs[0]
		if err := c.deps.Tasks.Delete(ctx, msg.Handle); err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to claim task, leaving it on the queue")
			continue
		}

		c.handle(ctx, msg.Body)
	}

	return c.shutdown(ctx)
}

func (c *Coordinator) pause(ctx context.Context) {
	t := time.NewTimer(c.opts.Pause)
	defer t.Stop()

	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (c *Coordinator) shutdown(ctx context.Context) error {
	c.emit(Shutdown, model.Task{})

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := c.deps.Root.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}

// handle processes one claimed message body.
func (c *Coordinator) handle(ctx context.Context, body string) {
	t, err := model.DecodeTask(body)
	if err != nil {
		zlog.Logger.Error().Err(err).Str("body", truncate(body, 256)).Msg("discarding malformed task")
		c.failMalformed(ctx, body, err)
		return
	}

	zlog.Logger.Info().
		Str("task_id", t.ID.String()).
		Str("location", t.Location).
		Str("operation", t.Operation.String()).
		Int("attempt", t.Attempt).
		Msg("claimed task")
	c.record(ctx, t.Record(model.StatusClaimed))

	result, err := c.process(ctx, t)
	if err != nil {
		c.fail(ctx, t, err)
		return
	}

	rec := t.Record(model.StatusDone)
	rec.Result = result.String()
	c.record(ctx, rec)

	zlog.Logger.Info().
		Str("task_id", t.ID.String()).
		Str("result", result.String()).
		Msg("task processed")
}

// process runs the task through download, dispatch and publish, and
// returns the location of the uploaded result.
func (c *Coordinator) process(ctx context.Context, t model.Task) (model.Location, error) {
	if !t.Operation.Known() {
		if c.opts.RejectUnknown {
			return model.Location{}, fmt.Errorf("%w: %q", model.ErrUnknownOperation, t.Operation)
		}
		zlog.Logger.Warn().
			Str("task_id", t.ID.String()).
			Str("operation", t.Operation.String()).
			Msg("unknown operation, passing the image through unchanged")
	}

	src, err := t.Source()
	if err != nil {
		return model.Location{}, err
	}

	c.emit(Download, t)
	data, err := c.deps.Store.Get(ctx, src.Container, src.Key)
	if err != nil {
		return model.Location{}, fmt.Errorf("download %s: %w", src, err)
	}

	buf, err := pixel.DecodeBytes(data)
	if err != nil {
		return model.Location{}, fmt.Errorf("decode %s: %w", src, err)
	}

	c.emit(Partition, t)
	blocks, err := pixel.Partition(buf, c.deps.Root.Size(), transform.Halo(t.Operation))
	if err != nil {
		return model.Location{}, err
	}
	if c.opts.Overlay {
		c.uploadOverlay(ctx, t, src, buf, blocks)
	}

	c.emit(Dispatch, t)
	rd, err := c.deps.Root.Begin(ctx, t.Operation)
	if err != nil {
		return model.Location{}, fmt.Errorf("dispatch: %w", err)
	}
	defer rd.Close()

	if err := rd.Scatter(blocks); err != nil {
		return model.Location{}, fmt.Errorf("scatter: %w", err)
	}

	c.emit(Gather, t)
	out, err := rd.Gather()
	if err != nil {
		return model.Location{}, fmt.Errorf("gather: %w", err)
	}

	c.emit(Assemble, t)
	result, err := pixel.Concat(out)
	if err != nil {
		return model.Location{}, fmt.Errorf("assemble: %w", err)
	}

	encoded, err := pixel.EncodeBytes(result, src.Key)
	if err != nil {
		return model.Location{}, err
	}

	c.emit(Publish, t)
	dst := model.Location{
		Container: c.resultContainer(src),
		Key:       c.opts.ResultPrefix + path.Base(src.Key),
	}
	if err := c.deps.Store.Put(ctx, dst.Container, dst.Key, encoded); err != nil {
		return model.Location{}, fmt.Errorf("upload %s: %w", dst, err)
	}

	if err := c.deps.Notices.Send(ctx, dst.String()); err != nil {
		return model.Location{}, fmt.Errorf("notify %s: %w", dst, err)
	}

	return dst, nil
}

func (c *Coordinator) resultContainer(src model.Location) string {
	if c.opts.ResultContainer != "" {
		return c.opts.ResultContainer
	}
	return src.Container
}

// uploadOverlay stores the partition overlay. Failures are only logged.
func (c *Coordinator) uploadOverlay(ctx context.Context, t model.Task, src model.Location, buf pixel.Buffer, blocks []pixel.Block) {
	data, err := overlay.PNG(buf, blocks)
	if err != nil {
		zlog.Logger.Error().Err(err).Str("task_id", t.ID.String()).Msg("failed to render overlay")
		return
	}

	base := path.Base(src.Key)
	key := debugPrefix + strings.TrimSuffix(base, path.Ext(base)) + ".png"
	if err := c.deps.Store.Put(ctx, c.resultContainer(src), key, data); err != nil {
		zlog.Logger.Error().Err(err).Str("task_id", t.ID.String()).Msg("failed to upload overlay")
	}
}

func (c *Coordinator) record(ctx context.Context, rec model.Record) {
	if c.deps.Ledger == nil {
		return
	}

	rec.UpdatedAt = time.Now().UTC()
	if err := c.deps.Ledger.Save(ctx, rec); err != nil {
		zlog.Logger.Error().Err(err).Str("task_id", rec.ID.String()).Msg("failed to save task record")
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
