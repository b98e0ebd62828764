package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/mmk-jobpipe/internal/data"
	"github.com/target/mmk-jobpipe/internal/domain/model"
	apperrors "github.com/target/mmk-jobpipe/internal/errors"
	"github.com/target/mmk-jobpipe/internal/mocks"
	"github.com/target/mmk-jobpipe/internal/service"
)

type jobHandlerHarness struct {
	h     *JobHandlers
	store *mocks.MockJobStore
	queue *mocks.MockTaskQueue
}

func newJobHandlersWithMocks(t *testing.T) jobHandlerHarness {
	t.Helper()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockJobStore(ctrl)
	queue := mocks.NewMockTaskQueue(ctrl)
	svc := service.MustNewJobService(service.JobServiceOptions{Store: store, Queue: queue})
	return jobHandlerHarness{h: &JobHandlers{Svc: svc}, store: store, queue: queue}
}

func submitBody(t *testing.T, req model.CreateJobRequest) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(req)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func validSubmission() model.CreateJobRequest {
	return model.CreateJobRequest{
		DocID:      "doc-1",
		Payload:    json.RawMessage(`{"a":1}`),
		WebhookURL: "https://example.com/hook",
	}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var got ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	return got
}

func TestCreateJob_NewJobIsQueued(t *testing.T) {
	hh := newJobHandlersWithMocks(t)
	created := &model.Job{ID: "job-1", DocID: "doc-1", Status: model.JobStatusPending}

	gomock.InOrder(
		hh.store.EXPECT().
			CreateJob(gomock.Any(), "doc-1", json.RawMessage(`{"a":1}`), "https://example.com/hook").
			Return(created, true, nil),
		hh.queue.EXPECT().Enqueue(gomock.Any(), "job-1").Return("task-1", nil),
		hh.store.EXPECT().RecordDispatch(gomock.Any(), "job-1", "task-1").Return(nil),
	)

	r := httptest.NewRequest(http.MethodPost, "/jobs", submitBody(t, validSubmission()))
	w := httptest.NewRecorder()
	hh.h.CreateJob(w, r)

	require.Equal(t, http.StatusCreated, w.Code)
	var got model.CreateJobResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, model.CreateJobResponse{
		JobID:   "job-1",
		DocID:   "doc-1",
		Status:  model.JobStatusPending,
		IsNew:   true,
		Message: "Job created and queued for processing",
	}, got)
}

func TestCreateJob_DuplicateReturnsExisting(t *testing.T) {
	hh := newJobHandlersWithMocks(t)
	taskID := "task-0"
	existing := &model.Job{ID: "job-1", DocID: "doc-1", Status: model.JobStatusSucceeded, DispatchTaskID: &taskID}

	hh.store.EXPECT().CreateJob(gomock.Any(), "doc-1", gomock.Any(), gomock.Any()).Return(existing, false, nil)

	r := httptest.NewRequest(http.MethodPost, "/jobs", submitBody(t, validSubmission()))
	w := httptest.NewRecorder()
	hh.h.CreateJob(w, r)

	require.Equal(t, http.StatusCreated, w.Code)
	var got model.CreateJobResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.False(t, got.IsNew)
	assert.Equal(t, "Job already exists with status: SUCCEEDED", got.Message)
}

func TestCreateJob_InvalidJSON(t *testing.T) {
	hh := newJobHandlersWithMocks(t)

	r := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewBufferString("{bad"))
	w := httptest.NewRecorder()
	hh.h.CreateJob(w, r)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_json", decodeError(t, w).Code)
}

func TestCreateJob_UnknownFieldRejected(t *testing.T) {
	hh := newJobHandlersWithMocks(t)

	body := `{"doc_id":"d","payload":{},"webhook_url":"https://x.test","extra":1}`
	r := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	hh.h.CreateJob(w, r)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateJob_ValidationErrors(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*model.CreateJobRequest)
		wantField string
	}{
		{name: "missing doc id", mutate: func(r *model.CreateJobRequest) { r.DocID = "" }, wantField: "doc_id"},
		{name: "missing payload", mutate: func(r *model.CreateJobRequest) { r.Payload = nil }, wantField: "payload"},
		{name: "bad webhook", mutate: func(r *model.CreateJobRequest) { r.WebhookURL = "ftp://x" }, wantField: "webhook_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hh := newJobHandlersWithMocks(t)
			req := validSubmission()
			tt.mutate(&req)

			r := httptest.NewRequest(http.MethodPost, "/jobs", submitBody(t, req))
			w := httptest.NewRecorder()
			hh.h.CreateJob(w, r)

			require.Equal(t, http.StatusBadRequest, w.Code)
			got := decodeError(t, w)
			assert.Equal(t, "validation", got.Code)
			assert.Equal(t, tt.wantField, got.Field)
		})
	}
}

func TestCreateJob_StoreUnavailable(t *testing.T) {
	hh := newJobHandlersWithMocks(t)

	hh.store.EXPECT().CreateJob(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, false, apperrors.Storage(errors.New("dial tcp: refused"), "create job"))

	r := httptest.NewRequest(http.MethodPost, "/jobs", submitBody(t, validSubmission()))
	w := httptest.NewRecorder()
	hh.h.CreateJob(w, r)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	got := decodeError(t, w)
	assert.Equal(t, "storage", got.Code)
	assert.NotContains(t, got.Error, "dial tcp")
}

func TestCreateJob_EnqueueFailure(t *testing.T) {
	hh := newJobHandlersWithMocks(t)

	hh.store.EXPECT().CreateJob(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&model.Job{ID: "job-1", DocID: "doc-1", Status: model.JobStatusPending}, true, nil)
	hh.queue.EXPECT().Enqueue(gomock.Any(), "job-1").Return("", errors.New("redis down"))

	r := httptest.NewRequest(http.MethodPost, "/jobs", submitBody(t, validSubmission()))
	w := httptest.NewRecorder()
	hh.h.CreateJob(w, r)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal", decodeError(t, w).Code)
}

func TestGetStatus_Success(t *testing.T) {
	hh := newJobHandlersWithMocks(t)
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	step := model.StepDeliver
	job := &model.Job{
		ID:               "job-1",
		DocID:            "doc-1",
		Status:           model.JobStatusSucceeded,
		CurrentStep:      &step,
		Result:           json.RawMessage(`{"data_hash":"abc"}`),
		DeliveryAttempts: 1,
		CreatedAt:        created,
		UpdatedAt:        created,
		CompletedAt:      &created,
	}
	hh.store.EXPECT().GetJob(gomock.Any(), "job-1").Return(job, nil)

	r := httptest.NewRequest(http.MethodGet, "/jobs/job-1", nil)
	r.SetPathValue("id", "job-1")
	w := httptest.NewRecorder()
	hh.h.GetStatus(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var got model.JobStatusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, "job-1", got.JobID)
	assert.Equal(t, model.JobStatusSucceeded, got.Status)
	assert.JSONEq(t, `{"data_hash":"abc"}`, string(got.Result))
	assert.Equal(t, 1, got.DeliveryAttempts)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, created.Equal(*got.CompletedAt))
}

func TestGetStatus_NotFound(t *testing.T) {
	hh := newJobHandlersWithMocks(t)
	hh.store.EXPECT().GetJob(gomock.Any(), "missing").Return(nil, data.ErrJobNotFound)

	r := httptest.NewRequest(http.MethodGet, "/jobs/missing", nil)
	r.SetPathValue("id", "missing")
	w := httptest.NewRecorder()
	hh.h.GetStatus(w, r)

	require.Equal(t, http.StatusNotFound, w.Code)
	got := decodeError(t, w)
	assert.Equal(t, "not_found", got.Code)
	assert.Equal(t, "Job missing not found", got.Error)
}

func TestGetStatus_MissingID(t *testing.T) {
	hh := newJobHandlersWithMocks(t)

	r := httptest.NewRequest(http.MethodGet, "/jobs/", nil)
	w := httptest.NewRecorder()
	hh.h.GetStatus(w, r)

	require.Equal(t, http.StatusBadRequest, w.Code)
}
