package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/bereka/backend/internal/httpx"
	"github.com/bereka/backend/internal/middleware"
	"github.com/bereka/backend/internal/models"
	"github.com/bereka/backend/internal/services"
)

// Request bodies use camelCase keys.

type CreateJobRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	BudgetSats  int64      `json:"budgetSats"`
	Deadline    *time.Time `json:"deadline"`
}

type AssignWorkerRequest struct {
	WorkerID uuid.UUID `json:"workerId"`
}

type OpenDisputeRequest struct {
	Reason string `json:"reason"`
}

// Validator checks request bodies against the named JSON schema.
type Validator interface {
	Validate(ctx context.Context, schema string, body []byte) error
}

type Handler struct {
	svc       Service
	validator Validator
	log       *slog.Logger
}

func NewHandler(svc Service, validator Validator, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, validator: validator, log: log}
}

func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	var req CreateJobRequest
	if !h.decode(w, r, services.SchemaCreateJob, &req) {
		return
	}
	job, err := h.svc.CreateJob(r.Context(), user.ID, CreateJobInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		BudgetSats:  req.BudgetSats,
		Deadline:    req.Deadline,
	})
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, job)
}

// ListJobs serves GET /jobs?status=&role=creator|worker&limit=.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	q := r.URL.Query()
	f := Filter{Status: q.Get("status")}
	switch q.Get("role") {
	case "":
	case "creator":
		f.CreatorID = &user.ID
	case "worker":
		f.WorkerID = &user.ID
	default:
		httpx.WriteMessage(w, http.StatusBadRequest, "role must be creator or worker")
		return
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httpx.WriteMessage(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		f.Limit = n
	}
	list, err := h.svc.ListJobs(r.Context(), f)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	if list == nil {
		list = []*models.Job{}
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}
	job, err := h.svc.GetJob(r.Context(), jobID)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, job)
}

func (h *Handler) AssignWorker(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}
	var req AssignWorkerRequest
	if !h.decode(w, r, services.SchemaAssignWorker, &req) {
		return
	}
	user := middleware.UserFromCtx(r.Context())
	job, err := h.svc.AssignWorker(r.Context(), jobID, user.ID, req.WorkerID)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, job)
}

func (h *Handler) SubmitWork(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}
	user := middleware.UserFromCtx(r.Context())
	job, err := h.svc.SubmitWork(r.Context(), jobID, user.ID)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, job)
}

func (h *Handler) OpenDispute(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}
	var req OpenDisputeRequest
	if !h.decode(w, r, services.SchemaOpenDispute, &req) {
		return
	}
	user := middleware.UserFromCtx(r.Context())
	d, err := h.svc.OpenDispute(r.Context(), jobID, user.ID, req.Reason)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, d)
}

func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}
	user := middleware.UserFromCtx(r.Context())
	job, err := h.svc.CancelJob(r.Context(), jobID, user.ID)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, job)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, schema string, v any) bool {
	body, err := httpx.ReadBody(w, r)
	if err == nil {
		err = h.validator.Validate(r.Context(), schema, body)
	}
	if err == nil {
		err = httpx.Decode(body, v)
	}
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return false
	}
	return true
}

func pathJobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, fmt.Sprintf("invalid job id %q", r.PathValue("id")))
		return uuid.Nil, false
	}
	return id, true
}
