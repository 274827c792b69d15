package api

import (
	"net/http"

	"github.com/osservatorio-istat/osservatorio/internal/ingestion"
	"github.com/osservatorio-istat/osservatorio/internal/middleware"
)

// IngestionHandler supplements the export-only surface named in §6.2 with
// the original implementation's ingestion-status/trigger endpoints,
// grounded on its Flask `/api/ingestion/status` route.
type IngestionHandler struct {
	pipeline *ingestion.Pipeline
}

// NewIngestionHandler builds an IngestionHandler.
func NewIngestionHandler(pipeline *ingestion.Pipeline) *IngestionHandler {
	return &IngestionHandler{pipeline: pipeline}
}

// Status handles GET /api/ingestion/status.
func (h *IngestionHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pipeline.GetIngestionStatus())
}

// Run handles POST /api/ingestion/run: it triggers
// ingest_all_priority_datasets synchronously and returns the batch
// summary, per §7's "some failures -> 200 with per-dataset results".
func (h *IngestionHandler) Run(w http.ResponseWriter, r *http.Request) {
	triggeredBy := middleware.GetRequestID(r.Context())
	result, err := h.pipeline.IngestAllPriorityDatasets(r.Context(), triggeredBy)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
