package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/target/prepflow/internal/domain/model"
	apperrors "github.com/target/prepflow/internal/errors"
)

// Dispatcher is the part of service.Dispatcher the API exposes.
type Dispatcher interface {
	TriggerGeneration(ctx context.Context, t model.GenerationTrigger) (*model.Job, error)
	TriggerGrading(ctx context.Context, t model.GradingTrigger) (*model.Job, error)
	TriggerDeletion(ctx context.Context, t model.DeletionTrigger) (*model.Job, error)
	TriggerNotification(ctx context.Context, t model.NotificationTrigger) (*model.Job, error)
	JobStatus(ctx context.Context, tenantID, jobID string) (*model.JobStatusView, error)
	Stats(ctx context.Context, tenantID string) (*model.JobStats, error)
}

// TriggerHandlers accept trigger events and expose the job polling surface.
type TriggerHandlers struct {
	Svc    Dispatcher
	Logger *slog.Logger
}

// TriggerResponse is returned for an accepted trigger.
type TriggerResponse struct {
	JobID  string          `json:"jobId"`
	Kind   model.JobKind   `json:"kind"`
	Status model.JobStatus `json:"status"`
}

// bindTenant reconciles the body's tenant with the header's. A body naming another tenant is rejected.
func bindTenant(r *http.Request, body *string) error {
	tenantID, _ := TenantFromContext(r.Context())
	if *body != "" && strings.TrimSpace(*body) != tenantID {
		return apperrors.ValidationField("tenantId", "tenantId does not match "+TenantHeader)
	}
	*body = tenantID
	return nil
}

func (h *TriggerHandlers) accept(w http.ResponseWriter, r *http.Request, job *model.Job, err error) {
	if err != nil {
		RespondError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, TriggerResponse{JobID: job.ID, Kind: job.Kind, Status: job.Status})
}

// Generation handles POST /v1/triggers/generation.
func (h *TriggerHandlers) Generation(w http.ResponseWriter, r *http.Request) {
	var t model.GenerationTrigger
	if !DecodeJSON(w, r, &t) {
		return
	}
	if err := bindTenant(r, &t.TenantID); err != nil {
		RespondError(w, r, h.Logger, err)
		return
	}
	job, err := h.Svc.TriggerGeneration(r.Context(), t)
	h.accept(w, r, job, err)
}

// Grading handles POST /v1/triggers/grading.
func (h *TriggerHandlers) Grading(w http.ResponseWriter, r *http.Request) {
	var t model.GradingTrigger
	if !DecodeJSON(w, r, &t) {
		return
	}
	if err := bindTenant(r, &t.TenantID); err != nil {
		RespondError(w, r, h.Logger, err)
		return
	}
	job, err := h.Svc.TriggerGrading(r.Context(), t)
	h.accept(w, r, job, err)
}

// Deletion handles POST /v1/triggers/deletion.
func (h *TriggerHandlers) Deletion(w http.ResponseWriter, r *http.Request) {
	var t model.DeletionTrigger
	if !DecodeJSON(w, r, &t) {
		return
	}
	if err := bindTenant(r, &t.TenantID); err != nil {
		RespondError(w, r, h.Logger, err)
		return
	}
	job, err := h.Svc.TriggerDeletion(r.Context(), t)
	h.accept(w, r, job, err)
}

// Notification handles POST /v1/triggers/notification.
func (h *TriggerHandlers) Notification(w http.ResponseWriter, r *http.Request) {
	var t model.NotificationTrigger
	if !DecodeJSON(w, r, &t) {
		return
	}
	if err := bindTenant(r, &t.TenantID); err != nil {
		RespondError(w, r, h.Logger, err)
		return
	}
	job, err := h.Svc.TriggerNotification(r.Context(), t)
	h.accept(w, r, job, err)
}

// JobStatus handles GET /v1/jobs/{id}. Jobs of other tenants answer 404.
func (h *TriggerHandlers) JobStatus(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := TenantFromContext(r.Context())
	view, err := h.Svc.JobStatus(r.Context(), tenantID, chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

// Stats handles GET /v1/jobs/stats.
func (h *TriggerHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := TenantFromContext(r.Context())
	stats, err := h.Svc.Stats(r.Context(), tenantID)
	if err != nil {
		RespondError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}
