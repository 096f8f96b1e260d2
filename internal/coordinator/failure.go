package coordinator

import (
	"context"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-distributor/internal/model"
)

// fail applies the failure policy to a claimed task. It keeps going after
// ctx is cancelled so that an interrupted task is still requeued or
// dead-lettered.
func (c *Coordinator) fail(ctx context.Context, t model.Task, cause error) {
	ctx = context.WithoutCancel(ctx)

	zlog.Logger.Error().
		Err(cause).
		Str("task_id", t.ID.String()).
		Str("location", t.Location).
		Str("operation", t.Operation.String()).
		Int("attempt", t.Attempt).
		Str("policy", c.opts.Policy.String()).
		Msg("task failed")

	rec := t.Record(model.StatusFailed)
	rec.Reason = cause.Error()
	c.record(ctx, rec)

	switch c.opts.Policy {
	case Requeue:
		if t.Attempt < c.opts.MaxRedeliveries {
			if c.requeue(ctx, t) {
				rec.Status = model.StatusRequeued
				c.record(ctx, rec)
				return
			}
		}
		fallthrough
	case DeadLetter:
		body, err := t.Encode()
		if err == nil && c.deadLetter(ctx, t.ID, body) {
			rec.Status = model.StatusDeadLettered
			c.record(ctx, rec)
			return
		}
	}

	rec.Status = model.StatusDropped
	c.record(ctx, rec)
}

// failMalformed handles a body that is not a task. It cannot be requeued.
func (c *Coordinator) failMalformed(ctx context.Context, body string, cause error) {
	ctx = context.WithoutCancel(ctx)

	rec := model.Record{
		ID:     uuid.New(),
		Status: model.StatusDropped,
		Reason: cause.Error(),
	}

	if c.opts.Policy != Drop && c.deadLetter(ctx, rec.ID, body) {
		rec.Status = model.StatusDeadLettered
	}
	c.record(ctx, rec)
}

func (c *Coordinator) requeue(ctx context.Context, t model.Task) bool {
	t.Attempt++

	body, err := t.Encode()
	if err != nil {
		zlog.Logger.Error().Err(err).Str("task_id", t.ID.String()).Msg("failed to encode requeued task")
		return false
	}

	if err := c.deps.Tasks.Send(ctx, body); err != nil {
		zlog.Logger.Error().Err(err).Str("task_id", t.ID.String()).Msg("failed to requeue task")
		return false
	}

	zlog.Logger.Info().Str("task_id", t.ID.String()).Int("attempt", t.Attempt).Msg("task requeued")
	return true
}

// deadLetter sends body to the dead-letter queue, if there is one.
func (c *Coordinator) deadLetter(ctx context.Context, id uuid.UUID, body string) bool {
	if c.deps.DeadLetter == nil {
		return false
	}

	if err := c.deps.DeadLetter.Send(ctx, body); err != nil {
		zlog.Logger.Error().Err(err).Str("task_id", id.String()).Msg("failed to dead-letter task")
		return false
	}

	zlog.Logger.Info().Str("task_id", id.String()).Msg("task dead-lettered")
	return true
}
