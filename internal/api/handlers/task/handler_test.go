package task_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-distributor/internal/api/handlers/task"
	"github.com/aliskhannn/image-distributor/internal/api/router"
	"github.com/aliskhannn/image-distributor/internal/model"
	taskrepo "github.com/aliskhannn/image-distributor/internal/repository/task"
)

func TestMain(m *testing.M) {
	zlog.Init()
	os.Exit(m.Run())
}

type fakeService struct {
	name    string
	data    []byte
	results []string
	pollErr error
}

func (f *fakeService) SubmitReader(_ context.Context, name string, r io.Reader, op model.Operation) (model.Task, error) {
	op = model.ParseOperation(string(op))
	if err := op.Validate(); err != nil {
		return model.Task{}, fmt.Errorf("submit: %w", err)
	}

	f.name = name
	f.data, _ = io.ReadAll(r)
	return model.NewTask(model.Location{Container: "uploads", Key: name}, op), nil
}

func (f *fakeService) PollResults(context.Context, time.Duration) ([]string, error) {
	return f.results, f.pollErr
}

type fakeLedger map[uuid.UUID]model.Record

func (l fakeLedger) Get(_ context.Context, id uuid.UUID) (model.Record, error) {
	rec, ok := l[id]
	if !ok {
		return model.Record{}, taskrepo.ErrTaskNotFound
	}
	return rec, nil
}

func upload(t *testing.T, h http.Handler, op string) *httptest.ResponseRecorder {
	t.Helper()

	body := new(bytes.Buffer)
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile("image", "cat.png")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("png bytes"))
	if op != "" {
		mw.WriteField("operation", op)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/tasks", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	return w
}

func TestSubmit(t *testing.T) {
	svc := &fakeService{}
	r := router.Setup(task.NewHandler(svc, nil))

	w := upload(t, r, "blur")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Result model.Task `json:"result"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.Result.Operation != model.Blur || resp.Result.Location != "s3://uploads/cat.png" {
		t.Errorf("unexpected task %+v", resp.Result)
	}
	if svc.name != "cat.png" || string(svc.data) != "png bytes" {
		t.Errorf("service got %q with %q", svc.name, svc.data)
	}
}

func TestSubmitBadRequests(t *testing.T) {
	r := router.Setup(task.NewHandler(&fakeService{}, nil))

	if w := upload(t, r, ""); w.Code != http.StatusBadRequest {
		t.Errorf("missing operation: expected 400, got %d", w.Code)
	}
	if w := upload(t, r, "sepia"); w.Code != http.StatusBadRequest {
		t.Errorf("unknown operation: expected 400, got %d", w.Code)
	}
}

func TestResults(t *testing.T) {
	svc := &fakeService{results: []string{"s3://results/result_a.png"}}
	r := router.Setup(task.NewHandler(svc, nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/results?wait=1s", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Result []string `json:"result"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if len(resp.Result) != 1 || resp.Result[0] != "s3://results/result_a.png" {
		t.Errorf("unexpected results %v", resp.Result)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/results?wait=soon", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid wait: expected 400, got %d", w.Code)
	}
}

func TestServerErrorHidesDetails(t *testing.T) {
	svc := &fakeService{pollErr: errors.New("dial tcp sqs.internal:443: connection refused")}
	r := router.Setup(task.NewHandler(svc, nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/results", nil))
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}

	var resp struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.Message != http.StatusText(http.StatusBadGateway) {
		t.Errorf("expected status text, got %q", resp.Message)
	}
}

func TestGetTask(t *testing.T) {
	known := model.NewTask(model.Location{Container: "uploads", Key: "a.png"}, model.Erosion)
	l := fakeLedger{known.ID: known.Record(model.StatusDone)}
	r := router.Setup(task.NewHandler(&fakeService{}, l))

	cases := map[string]int{
		"/api/tasks/" + known.ID.String(): http.StatusOK,
		"/api/tasks/" + uuid.NewString():  http.StatusNotFound,
		"/api/tasks/not-a-uuid":           http.StatusBadRequest,
	}
	for path, want := range cases {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != want {
			t.Errorf("%s: expected %d, got %d", path, want, w.Code)
		}
	}
}

func TestOperations(t *testing.T) {
	r := router.Setup(task.NewHandler(&fakeService{}, nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/operations", nil))

	var resp struct {
		Result []model.Operation `json:"result"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if len(resp.Result) != len(model.Operations()) {
		t.Errorf("expected %d operations, got %v", len(model.Operations()), resp.Result)
	}
}
