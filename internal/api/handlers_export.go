package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/osservatorio-istat/osservatorio/internal/apperrors"
	"github.com/osservatorio-istat/osservatorio/internal/export"
	"github.com/osservatorio-istat/osservatorio/internal/logging"
	"github.com/osservatorio-istat/osservatorio/internal/repository"
)

// ExportHandler implements §6.2's export surface over the export engine (C6).
type ExportHandler struct {
	repo   *repository.Repository
	engine *export.Engine
}

// NewExportHandler builds an ExportHandler.
func NewExportHandler(repo *repository.Repository, engine *export.Engine) *ExportHandler {
	return &ExportHandler{repo: repo, engine: engine}
}

func parseExportFilter(r *http.Request) export.Filter {
	q := r.URL.Query()
	var columns []string
	if c := q.Get("columns"); c != "" {
		columns = strings.Split(c, ",")
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	return export.Filter{
		Columns:   columns,
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
		Limit:     limit,
	}
}

// Export handles GET /api/datasets/{id}/export.
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	datasetID := chi.URLParam(r, "id")
	ctx := r.Context()

	d, err := h.repo.Metadata().Datasets().Get(ctx, datasetID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if d == nil {
		WriteError(w, r, apperrors.Wrap(apperrors.ErrNotFound, fmt.Sprintf("dataset %s is not registered", datasetID), apperrors.ErrNotFound))
		return
	}

	format := export.Format(r.URL.Query().Get("format"))
	if format == "" {
		format = export.FormatCSV
	}
	filter := parseExportFilter(r)

	filename := fmt.Sprintf("%s_export_%s.%s", datasetID, time.Now().UTC().Format("20060102T150405Z"), export.FileExtension(format))
	w.Header().Set("Content-Type", export.ContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	if r.URL.Query().Get("stream") == "true" {
		w.WriteHeader(http.StatusOK)
		if err := h.engine.ExportStream(ctx, w, datasetID, format, filter); err != nil {
			// headers and a partial body are already on the wire; the
			// client sees a truncated file, so all we can do is log.
			logging.Error().Err(err).Str("dataset_id", datasetID).Msg("export stream failed mid-write")
		}
		return
	}

	result, err := h.engine.Export(ctx, datasetID, format, filter)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

// ExportInfo handles GET /api/datasets/{id}/export/info.
func (h *ExportHandler) ExportInfo(w http.ResponseWriter, r *http.Request) {
	datasetID := chi.URLParam(r, "id")
	ctx := r.Context()

	complete, err := h.repo.GetDatasetComplete(ctx, datasetID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if complete == nil {
		WriteError(w, r, apperrors.Wrap(apperrors.ErrNotFound, fmt.Sprintf("dataset %s is not registered", datasetID), apperrors.ErrNotFound))
		return
	}

	estimate, err := h.engine.EstimateSize(ctx, datasetID)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	recommendations := []string{}
	if estimate.RecommendedStreaming {
		recommendations = append(recommendations, "use stream=true for this dataset's row count")
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"metadata":          complete.Dataset,
		"available_columns": availableColumns(complete),
		"size_estimates":    estimate.EstimatedSizes,
		"supported_formats": []export.Format{export.FormatCSV, export.FormatJSON, export.FormatParquet},
		"recommendations":   recommendations,
	})
}

func availableColumns(d *repository.DatasetComplete) []string {
	cols := []string{"dataset_id", "record_id", "obs_value", "time_period", "ingestion_timestamp"}
	if d.AnalyticsStats != nil {
		cols = append(cols, "min_time_period", "max_time_period")
	}
	return cols
}

// Formats handles GET /api/datasets/export/formats.
func (h *ExportHandler) Formats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"formats": []map[string]string{
			{"format": string(export.FormatCSV), "description": "Comma-separated values, one row per observation"},
			{"format": string(export.FormatJSON), "description": "JSON object with export metadata and a data array of observation objects"},
			{"format": string(export.FormatParquet), "description": "Columnar Apache Parquet, suitable for analytical tools"},
		},
	})
}
