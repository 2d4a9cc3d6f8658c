package httptransport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"recipe-extraction-service/internal/entity"
	"recipe-extraction-service/internal/service"
)

type Handler struct {
	jobs     *service.ExtractionService
	platform *service.PlatformTracker
	ledger   *service.CostLedger
	validate *validator.Validate
}

func NewHandler(jobs *service.ExtractionService, platform *service.PlatformTracker, ledger *service.CostLedger) *Handler {
	return &Handler{
		jobs:     jobs,
		platform: platform,
		ledger:   ledger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

type submitJobDTO struct {
	SourceType string   `json:"source_type" validate:"required,oneof=video photo voice paste link"`
	SourceURLs []string `json:"source_urls" validate:"omitempty,dive,min=1"`
	PasteText  *string  `json:"paste_text,omitempty"`
	MediaRef   *string  `json:"media_ref,omitempty"`
}

type submitJobResp struct {
	ID string `json:"id"`
}

type jobSnapshotResp struct {
	ID               string  `json:"id"`
	SourceType       string  `json:"source_type"`
	Status           string  `json:"status"`
	ContentType      *string `json:"content_type,omitempty"`
	ExtractionMethod *string `json:"extraction_method,omitempty"`
	FailureReason    *string `json:"failure_reason,omitempty"`
	ExistingRecipeID *string `json:"existing_recipe_id,omitempty"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
}

// SubmitJob godoc
// @Summary Submit an extraction job
// @Description Validates the source, creates a pending job and enqueues it for the worker.
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body submitJobDTO true "job source (at most 5 urls)"
// @Success 201 {object} submitJobResp
// @Failure 400 {object} apiError
// @Failure 500 {object} apiError
// @Router /jobs [post]
func (h *Handler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var dto submitJobDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.jobs.SubmitJob(r.Context(), service.SubmitRequest{
		SourceType: entity.SourceType(dto.SourceType),
		SourceURLs: dto.SourceURLs,
		PasteText:  dto.PasteText,
		MediaRef:   dto.MediaRef,
	})
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, submitJobResp{ID: id.String()})
}

// GetJob godoc
// @Summary Get job status
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} jobSnapshotResp
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Router /jobs/{id} [get]
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	j, err := h.jobs.GetJob(r.Context(), id)
	if err != nil {
		writeDomainErr(w, err)
		return
	}

	resp := jobSnapshotResp{
		ID:         j.ID.String(),
		SourceType: string(j.SourceType),
		Status:     string(j.Status),
		CreatedAt:  j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  j.UpdatedAt.Format(time.RFC3339),
	}
	if j.ContentType != nil {
		s := string(*j.ContentType)
		resp.ContentType = &s
	}
	if j.ExtractionMethod != nil {
		s := string(*j.ExtractionMethod)
		resp.ExtractionMethod = &s
	}
	if j.FailureReason != nil {
		s := string(*j.FailureReason)
		resp.FailureReason = &s
	}
	if j.ExistingRecipeID != nil {
		s := j.ExistingRecipeID.String()
		resp.ExistingRecipeID = &s
	}
	writeJSON(w, http.StatusOK, resp)
}

// CancelJob godoc
// @Summary Cancel a job
// @Description Legal from pending or processing; cancelling a terminal job is a 409 no-op.
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} map[string]string
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Failure 409 {object} apiError
// @Router /jobs/{id}/cancel [post]
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.jobs.CancelJob(r.Context(), id); err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(entity.StatusCancelled)})
}

// GetJobCosts godoc
// @Summary Get a job's AI cost summary
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} service.CostSummary
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Router /jobs/{id}/costs [get]
func (h *Handler) GetJobCosts(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	summary, err := h.ledger.Summary(r.Context(), id)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type platformPolicyResp struct {
	PlatformDomain         string `json:"platform_domain"`
	RequiresClientDownload bool   `json:"requires_client_download"`
	FailureCount           int    `json:"failure_count"`
}

// GetPlatformPolicy godoc
// @Summary Get extraction policy for a platform domain
// @Tags platforms
// @Produce json
// @Param domain path string true "registrable domain"
// @Success 200 {object} platformPolicyResp
// @Router /platforms/{domain}/policy [get]
func (h *Handler) GetPlatformPolicy(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	ps, err := h.platform.GetStatus(r.Context(), domain)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, platformPolicyResp{
		PlatformDomain:         domain,
		RequiresClientDownload: ps.RequiresClientDownload,
		FailureCount:           ps.FailureCount,
	})
}

type platformPolicyDTO struct {
	RequiresClientDownload bool `json:"requires_client_download"`
}

// SetPlatformPolicy godoc
// @Summary Administratively override a platform's client-download policy
// @Tags platforms
// @Accept json
// @Produce json
// @Param domain path string true "registrable domain"
// @Param request body platformPolicyDTO true "policy"
// @Success 200 {object} platformPolicyResp
// @Failure 400 {object} apiError
// @Router /platforms/{domain}/policy [put]
func (h *Handler) SetPlatformPolicy(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	var dto platformPolicyDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.platform.SetRequireClientDownload(r.Context(), domain, dto.RequiresClientDownload); err != nil {
		writeDomainErr(w, err)
		return
	}
	ps, err := h.platform.GetStatus(r.Context(), domain)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, platformPolicyResp{
		PlatformDomain:         domain,
		RequiresClientDownload: ps.RequiresClientDownload,
		FailureCount:           ps.FailureCount,
	})
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}
