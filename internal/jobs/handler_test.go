package jobs

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bereka/backend/internal/middleware"
	"github.com/bereka/backend/internal/models"
	"github.com/bereka/backend/internal/services"
)

func newTestHandler(t *testing.T, f *fixture) *Handler {
	t.Helper()
	v, err := services.NewValidator()
	require.NoError(t, err)
	return NewHandler(f.svc, v, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func call(h http.HandlerFunc, method, target, id string, as uuid.UUID, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if id != "" {
		req.SetPathValue("id", id)
	}
	req = req.WithContext(middleware.WithUser(req.Context(), &middleware.User{ID: as}))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestHandler_CreateJob(t *testing.T) {
	f := newFixture(t)
	h := newTestHandler(t, f)
	creator := f.user(t, 0)

	rec := call(h.CreateJob, http.MethodPost, "/api/v1/jobs", "", creator,
		`{"title":"Write API docs","description":"OpenAPI for 12 endpoints","budgetSats":1500}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var job models.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "Write API docs", job.Title)
	assert.Equal(t, int64(1500), job.BudgetSats)
	assert.Equal(t, models.JobStatusOpen, job.Status)
}

func TestHandler_CreateJob_SchemaViolations(t *testing.T) {
	f := newFixture(t)
	h := newTestHandler(t, f)
	creator := f.user(t, 0)

	for _, body := range []string{
		`{"title":"Write API docs"}`,
		`{"title":"Write API docs","budgetSats":0}`,
		`{"title":"Write API docs","budgetSats":"1500"}`,
		`{"title":"x","budgetSats":10,"extra":true}`,
		`not json`,
	} {
		rec := call(h.CreateJob, http.MethodPost, "/api/v1/jobs", "", creator, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestHandler_AssignAndSubmit(t *testing.T) {
	f := newFixture(t)
	h := newTestHandler(t, f)
	creator, jobID := f.funded(t, 2000)
	worker := f.user(t, 0)

	rec := call(h.AssignWorker, http.MethodPost, "/", jobID.String(), creator, `{"workerId":"`+worker.String()+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = call(h.SubmitWork, http.MethodPost, "/", jobID.String(), creator, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "creator cannot submit")
	assert.Contains(t, rec.Body.String(), "only the assigned worker")

	rec = call(h.SubmitWork, http.MethodPost, "/", jobID.String(), worker, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.JobStatusReview, f.status(t, jobID))
}

func TestHandler_OpenDispute(t *testing.T) {
	f := newFixture(t)
	h := newTestHandler(t, f)
	creator, jobID := f.funded(t, 2000)
	worker := f.user(t, 0)
	_, err := f.svc.AssignWorker(t.Context(), jobID, creator, worker)
	require.NoError(t, err)

	rec := call(h.OpenDispute, http.MethodPost, "/", jobID.String(), creator, `{"reason":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(h.OpenDispute, http.MethodPost, "/", jobID.String(), creator, `{"reason":"work never delivered"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var d models.Dispute
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, jobID, d.JobID)
	assert.Equal(t, models.DisputeStatusOpen, d.Status)
}

func TestHandler_GetAndList(t *testing.T) {
	f := newFixture(t)
	h := newTestHandler(t, f)
	creator, jobID := f.funded(t, 2000)

	rec := call(h.GetJob, http.MethodGet, "/", jobID.String(), creator, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = call(h.GetJob, http.MethodGet, "/", "not-a-uuid", creator, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(h.GetJob, http.MethodGet, "/", uuid.NewString(), creator, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "not found")

	rec = call(h.ListJobs, http.MethodGet, "/api/v1/jobs?role=creator&status=FUNDED", "", creator, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, jobID, list[0].ID)

	rec = call(h.ListJobs, http.MethodGet, "/api/v1/jobs?role=worker", "", creator, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = call(h.ListJobs, http.MethodGet, "/api/v1/jobs?role=admin", "", creator, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
