// Package export implements the CSV/JSON/Parquet export engine (C6): it
// reads observations back out of the analytics store, applies column
// projection and date-range filtering, and serializes the result in
// buffered or chunked-streaming mode.
package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/osservatorio-istat/osservatorio/internal/analytics"
	"github.com/osservatorio-istat/osservatorio/internal/logging"
)

// Format is one of the three export formats C6 supports.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatParquet Format = "parquet"
)

// ContentType returns the HTTP content type for f.
func ContentType(f Format) string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatJSON:
		return "application/json"
	case FormatParquet:
		return "application/octet-stream"
	default:
		return "application/octet-stream"
	}
}

// FileExtension returns the file extension for f, without a leading dot.
func FileExtension(f Format) string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatJSON:
		return "json"
	case FormatParquet:
		return "parquet"
	default:
		return "bin"
	}
}

// Filter narrows an export per §4.6: column projection, a date range
// matched against whichever column looks like a date, and a head limit.
type Filter struct {
	Columns   []string
	StartDate string
	EndDate   string
	Limit     int
}

// SizeEstimate is the result of estimate_export_size.
type SizeEstimate struct {
	RowCount             int64
	EstimatedSizes       map[string]float64
	RecommendedStreaming bool
}

const (
	csvBytesPerRow     = 100
	jsonBytesPerRow    = 150
	parquetBytesPerRow = 50
	streamingThreshold = 50_000

	// DefaultChunkSize is the row count per emitted chunk in streaming mode.
	DefaultChunkSize = 10_000
)

// Result is a fully-buffered export.
type Result struct {
	ContentType string
	Extension   string
	Data        []byte
}

// Engine is the export engine (C6), built around an analytics store.
type Engine struct {
	store *analytics.Store
	now   func() time.Time
}

// New builds an Engine around store.
func New(store *analytics.Store) *Engine {
	return &Engine{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// EstimateSize implements estimate_export_size: per-format byte-per-row
// coefficients times the dataset's row count, plus the streaming
// recommendation threshold from §4.6.
func (e *Engine) EstimateSize(ctx context.Context, datasetID string) (SizeEstimate, error) {
	count, err := e.store.CountByDataset(ctx, datasetID)
	if err != nil {
		return SizeEstimate{}, fmt.Errorf("estimate export size for %s: %w", datasetID, err)
	}
	mb := func(bytesPerRow int64) float64 { return float64(count*bytesPerRow) / (1024 * 1024) }
	return SizeEstimate{
		RowCount: count,
		EstimatedSizes: map[string]float64{
			"csv_mb":     mb(csvBytesPerRow),
			"json_mb":    mb(jsonBytesPerRow),
			"parquet_mb": mb(parquetBytesPerRow),
		},
		RecommendedStreaming: count > streamingThreshold,
	}, nil
}

// Export buffers the full serialized export into memory.
func (e *Engine) Export(ctx context.Context, datasetID string, format Format, filter Filter) (Result, error) {
	columns, rows, err := e.rows(ctx, datasetID, filter)
	if err != nil {
		return Result{}, err
	}

	var buf bytes.Buffer
	switch format {
	case FormatCSV:
		if len(rows) == 0 {
			// §4.6 "Empty data": CSV is an empty payload, not a bare header.
			return Result{ContentType: ContentType(format), Extension: FileExtension(format), Data: []byte{}}, nil
		}
		if err := writeCSV(&buf, columns, rows); err != nil {
			return Result{}, err
		}
	case FormatJSON:
		if err := writeJSON(&buf, datasetID, columns, rows, e.now()); err != nil {
			return Result{}, err
		}
	case FormatParquet:
		data, err := e.exportParquet(ctx, datasetID, filter, columns, rows)
		if err != nil {
			return Result{}, err
		}
		buf.Write(data)
	default:
		return Result{}, fmt.Errorf("unsupported export format %q", format)
	}

	return Result{ContentType: ContentType(format), Extension: FileExtension(format), Data: buf.Bytes()}, nil
}

// ExportStream writes the serialized export to w in chunks of
// DefaultChunkSize rows, per §4.6's streaming-emission contract. If w
// implements Flush(), it is flushed at each chunk boundary.
func (e *Engine) ExportStream(ctx context.Context, w io.Writer, datasetID string, format Format, filter Filter) error {
	columns, rows, err := e.rows(ctx, datasetID, filter)
	if err != nil {
		return err
	}

	switch format {
	case FormatCSV:
		return streamCSV(w, columns, rows, DefaultChunkSize)
	case FormatJSON:
		return streamJSON(w, datasetID, columns, rows, e.now(), DefaultChunkSize)
	case FormatParquet:
		data, err := e.exportParquet(ctx, datasetID, filter, columns, rows)
		if err != nil {
			return err
		}
		return streamBytes(w, data, 64*1024)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

// exportParquet prefers DuckDB's native COPY when the filter requires no
// in-process row manipulation (§4.6), falling back to the arrow-go writer
// over the already-filtered row set otherwise.
func (e *Engine) exportParquet(ctx context.Context, datasetID string, filter Filter, columns []string, rows []map[string]any) ([]byte, error) {
	if isUnfiltered(filter) {
		data, err := e.exportParquetViaCopy(ctx, datasetID)
		if err == nil {
			return data, nil
		}
		logging.Warn().Err(err).Str("dataset_id", datasetID).
			Msg("duckdb parquet COPY failed, falling back to in-process writer")
	}
	return buildParquetBytes(columns, rows)
}

func (e *Engine) exportParquetViaCopy(ctx context.Context, datasetID string) ([]byte, error) {
	tmp, err := os.CreateTemp("", "istat-export-*.parquet")
	if err != nil {
		return nil, fmt.Errorf("create temp parquet file: %w", err)
	}
	path := tmp.Name()
	tmp.Close()
	defer os.Remove(path)

	query := `SELECT dataset_id, record_id, obs_value, time_period, additional_attributes, ingestion_timestamp
		FROM istat_observations WHERE dataset_id = ?`
	if err := e.store.CopyToParquet(ctx, path, query, datasetID); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func isUnfiltered(f Filter) bool {
	return len(f.Columns) == 0 && f.StartDate == "" && f.EndDate == "" && f.Limit <= 0
}

// rows fetches a dataset's observations and flattens each one into a
// column-named map: the fixed observation columns plus every distinct
// additional_attributes key seen across the result set, in sorted order.
// Column projection and the date-range filter both run here since
// additional_attributes is opaque JSON to the store and can't be pushed
// into SQL generically.
func (e *Engine) rows(ctx context.Context, datasetID string, filter Filter) ([]string, []map[string]any, error) {
	obs, err := e.store.Query(ctx, analytics.QueryFilter{DatasetID: datasetID})
	if err != nil {
		return nil, nil, fmt.Errorf("query observations for %s: %w", datasetID, err)
	}

	baseColumns := []string{"dataset_id", "record_id", "obs_value", "time_period", "ingestion_timestamp"}
	attrKeys := map[string]struct{}{}
	rows := make([]map[string]any, 0, len(obs))
	for _, o := range obs {
		row := map[string]any{
			"dataset_id":          o.DatasetID,
			"record_id":           o.RecordID,
			"obs_value":           o.ObsValue,
			"time_period":         o.TimePeriod,
			"ingestion_timestamp": o.IngestionTimestamp.UTC().Format(time.RFC3339),
		}
		for k, v := range o.AdditionalAttributes {
			row[k] = v
			attrKeys[k] = struct{}{}
		}
		rows = append(rows, row)
	}

	extra := make([]string, 0, len(attrKeys))
	for k := range attrKeys {
		extra = append(extra, k)
	}
	sort.Strings(extra)
	columns := append(append([]string{}, baseColumns...), extra...)

	columns, rows = applyColumnProjection(columns, rows, filter.Columns)
	rows = applyDateFilter(columns, rows, filter.StartDate, filter.EndDate)

	if filter.Limit > 0 && len(rows) > filter.Limit {
		rows = rows[:filter.Limit]
	}
	return columns, rows, nil
}

// applyColumnProjection narrows columns to the requested subset, preserving
// column order and ignoring names that don't exist. An empty or
// entirely-invalid requested set leaves the projection unchanged, per
// §4.6's "empty projection -> all columns".
func applyColumnProjection(columns []string, rows []map[string]any, requested []string) ([]string, []map[string]any) {
	if len(requested) == 0 {
		return columns, rows
	}
	want := make(map[string]struct{}, len(requested))
	for _, c := range requested {
		want[c] = struct{}{}
	}

	valid := make([]string, 0, len(columns))
	for _, c := range columns {
		if _, ok := want[c]; ok {
			valid = append(valid, c)
		}
	}
	if len(valid) == 0 {
		return columns, rows
	}

	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		nr := make(map[string]any, len(valid))
		for _, c := range valid {
			if v, ok := r[c]; ok {
				nr[c] = v
			}
		}
		out[i] = nr
	}
	return valid, out
}

var dateColumnHints = []string{"time", "date", "anno", "year"}

// findDateColumn returns the first column (in column order) whose name
// contains, case-insensitively, any of §4.6's date-hint substrings.
func findDateColumn(columns []string) string {
	for _, c := range columns {
		lc := strings.ToLower(c)
		for _, hint := range dateColumnHints {
			if strings.Contains(lc, hint) {
				return c
			}
		}
	}
	return ""
}

var dateLayouts = []string{time.RFC3339, "2006-01-02", "2006-01", "2006"}

func parseFlexibleDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// applyDateFilter excludes rows whose date column falls outside
// [start, end], and rows whose value doesn't parse at all (logged, not
// treated as an error) per §4.6. No date column, or no bounds given, is a
// no-op.
func applyDateFilter(columns []string, rows []map[string]any, start, end string) []map[string]any {
	if start == "" && end == "" {
		return rows
	}
	col := findDateColumn(columns)
	if col == "" {
		return rows
	}

	var startT, endT time.Time
	var hasStart, hasEnd bool
	if start != "" {
		if t, ok := parseFlexibleDate(start); ok {
			startT, hasStart = t, true
		}
	}
	if end != "" {
		if t, ok := parseFlexibleDate(end); ok {
			endT, hasEnd = t, true
		}
	}

	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		raw := fmt.Sprintf("%v", r[col])
		t, ok := parseFlexibleDate(raw)
		if !ok {
			logging.Warn().Str("column", col).Str("value", raw).Msg("export: unparseable date value, excluding row")
			continue
		}
		if hasStart && t.Before(startT) {
			continue
		}
		if hasEnd && t.After(endT) {
			continue
		}
		out = append(out, r)
	}
	return out
}
