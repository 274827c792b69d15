package analytics

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
)

// BulkInsert appends rows to istat_observations inside a single
// transaction with a prepared statement, the same shape as the
// teacher's InsertPlaybackEventsBatch: begin, prepare once, exec per
// row, commit — rolling back entirely on any row's failure since
// observation ingestion has no partial-success semantics per dataset.
func (s *Store) BulkInsert(ctx context.Context, rows []Observation) (inserted int, err error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin bulk insert transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO istat_observations
			(dataset_id, record_id, obs_value, time_period, additional_attributes, ingestion_timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare bulk insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		attrs := "{}"
		if r.AdditionalAttributes != nil {
			b, mErr := json.Marshal(r.AdditionalAttributes)
			if mErr != nil {
				err = fmt.Errorf("marshal additional_attributes for dataset %s: %w", r.DatasetID, mErr)
				return 0, err
			}
			attrs = string(b)
		}
		if _, execErr := stmt.ExecContext(ctx,
			r.DatasetID, r.RecordID, r.ObsValue, r.TimePeriod, attrs, r.IngestionTimestamp); execErr != nil {
			err = fmt.Errorf("insert observation %s/%d: %w", r.DatasetID, r.RecordID, execErr)
			return 0, err
		}
		inserted++
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit bulk insert: %w", err)
	}
	return inserted, nil
}

// ExecuteQuery runs a parameterized SELECT and returns rows as
// column-name-keyed maps, the shape export and the PowerBI analytics
// views both consume.
func (s *Store) ExecuteQuery(ctx context.Context, query string, params ...any) ([]map[string]any, error) {
	rows, err := s.conn.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	var out []map[string]any
	for rows.Next() {
		dest := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan query row: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = dest[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Query returns istat_observations rows matching filter. Every column is
// always selected: filter.Columns is not applied. DatasetID is required.
func (s *Store) Query(ctx context.Context, filter QueryFilter) ([]Observation, error) {
	columns := "dataset_id, record_id, obs_value, time_period, additional_attributes, ingestion_timestamp"
	query := "SELECT " + columns + " FROM istat_observations WHERE dataset_id = ?"
	args := []any{filter.DatasetID}

	if filter.TimePeriodGTE != "" {
		query += " AND time_period >= ?"
		args = append(args, filter.TimePeriodGTE)
	}
	if filter.TimePeriodLTE != "" {
		query += " AND time_period <= ?"
		args = append(args, filter.TimePeriodLTE)
	}
	query += " ORDER BY record_id"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query observations for %s: %w", filter.DatasetID, err)
	}
	defer rows.Close()

	var out []Observation
	for rows.Next() {
		var o Observation
		var attrs string
		if err := rows.Scan(&o.DatasetID, &o.RecordID, &o.ObsValue, &o.TimePeriod, &attrs, &o.IngestionTimestamp); err != nil {
			return nil, fmt.Errorf("scan observation row: %w", err)
		}
		if attrs != "" {
			_ = json.Unmarshal([]byte(attrs), &o.AdditionalAttributes)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// CountByDataset returns the number of observations already stored for
// id, used for skip-if-fresh and export size estimates.
func (s *Store) CountByDataset(ctx context.Context, id string) (int64, error) {
	var count int64
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM istat_observations WHERE dataset_id = ?`, id).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count observations for %s: %w", id, err)
	}
	return count, nil
}

// DeleteByDataset truncate-and-reloads a dataset's observations ahead
// of an explicit re-ingestion — the only maintenance operation the
// store permits in steady state.
func (s *Store) DeleteByDataset(ctx context.Context, id string) (int64, error) {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM istat_observations WHERE dataset_id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("delete observations for %s: %w", id, err)
	}
	return res.RowsAffected()
}
