package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-distributor/internal/api/respond"
	"github.com/aliskhannn/image-distributor/internal/model"
	taskrepo "github.com/aliskhannn/image-distributor/internal/repository/task"
)

// maxPollWait caps the wait query parameter of the results endpoint.
const maxPollWait = 20 * time.Second

// service defines the interface for task submission and result polling.
type service interface {
	SubmitReader(ctx context.Context, name string, r io.Reader, op model.Operation) (model.Task, error)
	PollResults(ctx context.Context, wait time.Duration) ([]string, error)
}

// ledger defines the interface for reading task records.
type ledger interface {
	Get(ctx context.Context, id uuid.UUID) (model.Record, error)
}

// Handler provides HTTP handlers for task endpoints.
type Handler struct {
	service service
	ledger  ledger
}

// NewHandler creates a new Handler. l may be nil when no ledger is configured.
func NewHandler(s service, l ledger) *Handler {
	return &Handler{service: s, ledger: l}
}

// Submit reads the multipart "image" file and the "operation" field,
// uploads the image and enqueues its task.
func (h *Handler) Submit(c *ginext.Context) {
	if err := c.Request.ParseMultipartForm(10 << 20); err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("parse multipart form failed: %v", err))
		return
	}

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		zlog.Logger.Err(err).Msg("failed to read the uploaded file")
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("failed to retrieve the file"))
		return
	}
	defer file.Close()

	op := c.PostForm("operation")
	if op == "" {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("operation field is required"))
		return
	}

	task, err := h.service.SubmitReader(c.Request.Context(), header.Filename, file, model.Operation(op))
	if err != nil {
		if errors.Is(err, model.ErrUnknownOperation) {
			respond.Fail(c, http.StatusBadRequest, err)
			return
		}

		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("submit %s: %w", header.Filename, err))
		return
	}

	respond.Created(c, task)
}

// Get returns the ledger record of a task.
func (h *Handler) Get(c *ginext.Context) {
	if h.ledger == nil {
		respond.Fail(c, http.StatusNotFound, fmt.Errorf("task ledger is disabled"))
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid id: %v", err))
		return
	}

	rec, err := h.ledger.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, taskrepo.ErrTaskNotFound) {
			respond.Fail(c, http.StatusNotFound, fmt.Errorf("task not found"))
			return
		}

		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("get task %s: %w", id, err))
		return
	}

	respond.OK(c, rec)
}

// Results returns the completion notices currently available. The wait
// query parameter (a duration such as "5s") long-polls for up to 20s.
func (h *Handler) Results(c *ginext.Context) {
	var wait time.Duration
	if s := c.Query("wait"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d < 0 {
			respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid wait %q", s))
			return
		}
		wait = min(d, maxPollWait)
	}

	results, err := h.service.PollResults(c.Request.Context(), wait)
	if err != nil {
		respond.Fail(c, http.StatusBadGateway, err)
		return
	}
	if results == nil {
		results = []string{}
	}

	respond.OK(c, results)
}

// Operations lists the supported operations.
func (h *Handler) Operations(c *ginext.Context) {
	respond.OK(c, model.Operations())
}
