package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-distributor/internal/model"
	"github.com/aliskhannn/image-distributor/internal/queue"
)

// ErrOrphanedUpload is returned when the image was uploaded but its task
// could not be sent. The object stays in the store.
var ErrOrphanedUpload = errors.New("image uploaded but task not sent")

// pollBatch is the most notices taken per receive.
const pollBatch = 10

// objectStore defines the interface for uploading source images.
type objectStore interface {
	Put(ctx context.Context, container, key string, data []byte) error
}

// sender defines the interface for enqueueing task descriptors.
type sender interface {
	Send(ctx context.Context, body string) error
}

// noticeQueue defines the interface for consuming completion notices.
type noticeQueue interface {
	Receive(ctx context.Context, maxCount int, wait time.Duration) ([]queue.Message, error)
	Delete(ctx context.Context, handle string) error
}

// Service uploads images, enqueues tasks for them and delivers the
// completion notices back to the caller.
type Service struct {
	store     objectStore
	tasks     sender
	notices   noticeQueue
	container string
	strict    bool
}

// NewService creates a Service uploading into container. With strict set,
// unknown operations are rejected before anything is uploaded.
func NewService(store objectStore, tasks sender, notices noticeQueue, container string, strict bool) *Service {
	return &Service{
		store:     store,
		tasks:     tasks,
		notices:   notices,
		container: container,
		strict:    strict,
	}
}

// SubmitTask uploads the file at filePath and enqueues a task for it.
func (s *Service) SubmitTask(ctx context.Context, filePath string, op model.Operation) (model.Task, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return model.Task{}, fmt.Errorf("submit: %w", err)
	}
	defer f.Close()

	return s.SubmitReader(ctx, filePath, f, op)
}

// SubmitReader uploads r under the base name of name and enqueues a task for it.
func (s *Service) SubmitReader(ctx context.Context, name string, r io.Reader, op model.Operation) (model.Task, error) {
	op = model.ParseOperation(string(op))
	if s.strict {
		if err := op.Validate(); err != nil {
			return model.Task{}, fmt.Errorf("submit: %w: %q", err, op)
		}
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return model.Task{}, fmt.Errorf("submit: failed to read %s: %w", name, err)
	}

	loc := model.Location{Container: s.container, Key: filepath.Base(name)}
	if err := s.store.Put(ctx, loc.Container, loc.Key, data); err != nil {
		return model.Task{}, fmt.Errorf("submit: failed to upload %s: %w", loc, err)
	}

	task := model.NewTask(loc, op)
	body, err := task.Encode()
	if err != nil {
		return model.Task{}, fmt.Errorf("submit: %w", err)
	}

	if err := s.tasks.Send(ctx, body); err != nil {
		zlog.Logger.Error().
			Err(err).
			Str("location", loc.String()).
			Str("task_id", task.ID.String()).
			Msg("task not sent, uploaded image is orphaned")
		return model.Task{}, fmt.Errorf("submit: %w: %s: %w", ErrOrphanedUpload, loc, err)
	}

	zlog.Logger.Info().
		Str("task_id", task.ID.String()).
		Str("location", loc.String()).
		Str("operation", op.String()).
		Msg("task submitted")

	return task, nil
}

// SubmitMany submits every file with the same operation. Files that fail
// do not stop the others; their errors are joined.
func (s *Service) SubmitMany(ctx context.Context, paths []string, op model.Operation) ([]model.Task, error) {
	var (
		tasks []model.Task
		errs  []error
	)

	for _, p := range paths {
		task, err := s.SubmitTask(ctx, p, op)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		tasks = append(tasks, task)
	}

	return tasks, errors.Join(errs...)
}

// PollResults receives up to 10 completion notices, waiting up to wait.
// Bodies that are not object locations are released back to the queue
// when it supports that.
func (s *Service) PollResults(ctx context.Context, wait time.Duration) ([]string, error) {
	msgs, err := s.notices.Receive(ctx, pollBatch, wait)
	if err != nil {
		return nil, fmt.Errorf("poll: %w", err)
	}

	var results []string
	for _, m := range msgs {
		if !model.IsNotice(m.Body) {
			zlog.Logger.Warn().Str("body", m.Body).Msg("ignoring message that is not a completion notice")
			if r, ok := s.notices.(queue.Releaser); ok {
				if err := r.Release(ctx, m.Handle); err != nil {
					zlog.Logger.Error().Err(err).Str("body", m.Body).Msg("failed to release message")
				}
			}
			continue
		}

		if err := s.notices.Delete(ctx, m.Handle); err != nil {
			zlog.Logger.Error().Err(err).Str("result", m.Body).Msg("failed to delete notice")
		}
		results = append(results, m.Body)
	}

	return results, nil
}

// Watch polls for notices until ctx is done and delivers each one on the
// returned channel, which is closed on exit.
func (s *Service) Watch(ctx context.Context, wait time.Duration) <-chan string {
	out := make(chan string)

	go func() {
		defer close(out)

		for ctx.Err() == nil {
			results, err := s.PollResults(ctx, wait)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				zlog.Logger.Error().Err(err).Msg("failed to poll results")
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}

			for _, r := range results {
				select {
				case out <- r:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
