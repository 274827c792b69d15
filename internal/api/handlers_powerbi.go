package api

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/osservatorio-istat/osservatorio/internal/apperrors"
	"github.com/osservatorio-istat/osservatorio/internal/powerbi"
	"github.com/osservatorio-istat/osservatorio/internal/validation"
)

// PowerBIHandler exposes C7-C10 over HTTP, per §6.Go EXTERNAL INTERFACES
// ADDITIONS.
type PowerBIHandler struct {
	optimizer *powerbi.Optimizer
	refresh   *powerbi.RefreshManager
	template  *powerbi.TemplateGenerator
	bridge    *powerbi.Bridge
}

// NewPowerBIHandler builds a PowerBIHandler.
func NewPowerBIHandler(optimizer *powerbi.Optimizer, refresh *powerbi.RefreshManager, template *powerbi.TemplateGenerator, bridge *powerbi.Bridge) *PowerBIHandler {
	return &PowerBIHandler{optimizer: optimizer, refresh: refresh, template: template, bridge: bridge}
}

// StarSchema handles GET /api/powerbi/datasets/{id}/star-schema.
func (h *PowerBIHandler) StarSchema(w http.ResponseWriter, r *http.Request) {
	star, err := h.optimizer.GenerateStarSchema(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, star)
}

// DaxMeasures handles GET /api/powerbi/datasets/{id}/dax-measures.
func (h *PowerBIHandler) DaxMeasures(w http.ResponseWriter, r *http.Request) {
	set, err := h.optimizer.GenerateDaxMeasures(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

// PerformanceEstimate handles GET /api/powerbi/datasets/{id}/performance-estimate.
func (h *PowerBIHandler) PerformanceEstimate(w http.ResponseWriter, r *http.Request) {
	est, err := h.optimizer.EstimatePerformance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, est)
}

// refreshPolicyRequest is the PUT body for setting a dataset's refresh policy.
type refreshPolicyRequest struct {
	IncrementalWindowDays int    `json:"incremental_window_days" validate:"required,min=1,max=3650"`
	HistoricalWindowYears int    `json:"historical_window_years" validate:"required,min=1,max=50"`
	RefreshFrequency      string `json:"refresh_frequency" validate:"required,oneof=daily weekly monthly"`
}

// GetRefreshPolicy handles GET /api/powerbi/datasets/{id}/refresh-policy.
func (h *PowerBIHandler) GetRefreshPolicy(w http.ResponseWriter, r *http.Request) {
	policy, err := h.refresh.GetRefreshPolicy(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if policy == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no refresh policy configured"})
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

// PutRefreshPolicy handles PUT /api/powerbi/datasets/{id}/refresh-policy.
func (h *PowerBIHandler) PutRefreshPolicy(w http.ResponseWriter, r *http.Request) {
	var req refreshPolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, apperrors.Wrap(apperrors.ErrValidation, "malformed refresh policy body", apperrors.ErrValidation))
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		apiErr := verr.ToAPIError()
		WriteError(w, r, apperrors.Wrap(apperrors.ErrValidation, apiErr.Message, apperrors.ErrValidation))
		return
	}

	policy, err := h.refresh.CreateRefreshPolicy(r.Context(), chi.URLParam(r, "id"),
		req.IncrementalWindowDays, req.HistoricalWindowYears, req.RefreshFrequency)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

// ExecuteRefresh handles POST /api/powerbi/datasets/{id}/refresh.
func (h *PowerBIHandler) ExecuteRefresh(w http.ResponseWriter, r *http.Request) {
	powerBIDatasetID := r.URL.Query().Get("powerbi_dataset_id")
	force := r.URL.Query().Get("force") == "true"

	result, err := h.refresh.ExecuteIncrementalRefresh(r.Context(), chi.URLParam(r, "id"), powerBIDatasetID, force)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RefreshStatus handles GET /api/powerbi/datasets/{id}/refresh-status.
func (h *PowerBIHandler) RefreshStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.refresh.GetRefreshStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Template handles POST /api/powerbi/datasets/{id}/template: it generates
// the descriptor, then streams the written .pbit bytes back as the
// response body.
func (h *PowerBIHandler) Template(w http.ResponseWriter, r *http.Request) {
	datasetID := chi.URLParam(r, "id")
	desc, err := h.template.GenerateTemplate(r.Context(), datasetID)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	data, err := os.ReadFile(desc.Path)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", "attachment; filename="+datasetID+".pbit")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Governance handles GET /api/powerbi/datasets/{id}/governance and
// GET /api/powerbi/governance (id empty -> aggregate report).
func (h *PowerBIHandler) Governance(w http.ResponseWriter, r *http.Request) {
	report, err := h.bridge.GetGovernanceReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
