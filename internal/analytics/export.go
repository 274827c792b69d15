package analytics

import (
	"context"
	"fmt"
)

// CopyToParquet exports the result of query (already parameterized with
// args) to outputPath using DuckDB's native COPY with SNAPPY compression,
// the same temp-table-then-COPY idiom as the teacher's ExportGeoParquet —
// minus the spatial ordering, which has no analogue over tabular SDMX
// observations.
func (s *Store) CopyToParquet(ctx context.Context, outputPath, query string, args ...any) error {
	createTemp := fmt.Sprintf(`CREATE TEMPORARY TABLE IF NOT EXISTS temp_export_observations AS %s`, query)
	if _, err := s.conn.ExecContext(ctx, createTemp, args...); err != nil {
		return fmt.Errorf("create temporary export table: %w", err)
	}
	defer s.conn.ExecContext(ctx, `DROP TABLE IF EXISTS temp_export_observations`)

	exportQuery := `
		COPY temp_export_observations TO ? (
			FORMAT PARQUET,
			COMPRESSION SNAPPY
		)`
	if _, err := s.conn.ExecContext(ctx, exportQuery, outputPath); err != nil {
		return fmt.Errorf("copy to parquet %s: %w", outputPath, err)
	}
	return nil
}
