package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// datasetManager is the DatasetManager (C1) from §4.1: CRUD and stats
// maintenance over dataset_registrations.
type datasetManager struct {
	s *Store
}

// Register creates or replaces the active registration for id —
// REPLACE-on-register semantics so exactly one active row exists per
// dataset_id.
func (m *datasetManager) Register(ctx context.Context, d Dataset) (bool, error) {
	if d.DatasetID == "" {
		return false, fmt.Errorf("dataset_id is required")
	}
	if d.SourceAgency == "" {
		d.SourceAgency = "ISTAT"
	}
	if d.Priority == 0 {
		d.Priority = 5
	}
	if d.Priority < 1 || d.Priority > 10 {
		return false, fmt.Errorf("priority must be between 1 and 10, got %d", d.Priority)
	}

	meta := "{}"
	if d.Metadata != nil {
		b, err := json.Marshal(d.Metadata)
		if err != nil {
			return false, fmt.Errorf("marshal dataset metadata: %w", err)
		}
		meta = string(b)
	}

	_, err := m.s.writeDB.ExecContext(ctx, `
		INSERT INTO dataset_registrations
			(dataset_id, name, category, description, source_agency, priority, is_active, metadata, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(dataset_id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			description = excluded.description,
			source_agency = excluded.source_agency,
			priority = excluded.priority,
			is_active = 1,
			metadata = excluded.metadata,
			updated_at = CURRENT_TIMESTAMP
	`, d.DatasetID, d.Name, d.Category, d.Description, d.SourceAgency, d.Priority, meta)
	if err != nil {
		return false, fmt.Errorf("register dataset %s: %w", d.DatasetID, err)
	}
	return true, nil
}

// Get returns the dataset registration for id, or nil if absent.
func (m *datasetManager) Get(ctx context.Context, id string) (*Dataset, error) {
	row := m.s.readDB.QueryRowContext(ctx, `
		SELECT dataset_id, name, category, description, source_agency, priority,
		       is_active, metadata, quality_score, record_count, created_at, updated_at, last_processed
		FROM dataset_registrations WHERE dataset_id = ?`, id)
	d, err := scanDataset(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get dataset %s: %w", id, err)
	}
	return d, nil
}

// List returns registrations ordered by priority DESC, name ASC,
// optionally filtered by category and active-only.
func (m *datasetManager) List(ctx context.Context, category string, activeOnly bool, limit, offset int) ([]Dataset, error) {
	query := `
		SELECT dataset_id, name, category, description, source_agency, priority,
		       is_active, metadata, quality_score, record_count, created_at, updated_at, last_processed
		FROM dataset_registrations WHERE 1=1`
	var args []any
	if category != "" {
		query += " AND category = ?"
		args = append(args, category)
	}
	if activeOnly {
		query += " AND is_active = 1"
	}
	query += " ORDER BY priority DESC, name ASC"
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}

	rows, err := m.s.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close()

	var out []Dataset
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dataset row: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// UpdateStats applies an ingestion run's results to a registration.
func (m *datasetManager) UpdateStats(ctx context.Context, id string, recordCount *int64, qualityScore *float64, lastProcessed *time.Time) (bool, error) {
	sets := []string{"updated_at = CURRENT_TIMESTAMP"}
	var args []any
	if recordCount != nil {
		sets = append(sets, "record_count = ?")
		args = append(args, *recordCount)
	}
	if qualityScore != nil {
		sets = append(sets, "quality_score = ?")
		args = append(args, *qualityScore)
	}
	if lastProcessed != nil {
		sets = append(sets, "last_processed = ?")
		args = append(args, *lastProcessed)
	}
	args = append(args, id)

	query := "UPDATE dataset_registrations SET "
	for i, s := range sets {
		if i > 0 {
			query += ", "
		}
		query += s
	}
	query += " WHERE dataset_id = ?"

	res, err := m.s.writeDB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update dataset stats %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// UpdateCategory applies the categorization engine's classification to an
// existing registration.
func (m *datasetManager) UpdateCategory(ctx context.Context, id, category string) (bool, error) {
	res, err := m.s.writeDB.ExecContext(ctx,
		`UPDATE dataset_registrations SET category = ?, updated_at = CURRENT_TIMESTAMP WHERE dataset_id = ?`, category, id)
	if err != nil {
		return false, fmt.Errorf("update dataset category %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Deactivate sets is_active=false. Registrations are never hard-deleted.
func (m *datasetManager) Deactivate(ctx context.Context, id string) (bool, error) {
	res, err := m.s.writeDB.ExecContext(ctx,
		`UPDATE dataset_registrations SET is_active = 0, updated_at = CURRENT_TIMESTAMP WHERE dataset_id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deactivate dataset %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Categories returns the distinct categories among active registrations.
func (m *datasetManager) Categories(ctx context.Context) ([]string, error) {
	rows, err := m.s.readDB.QueryContext(ctx,
		`SELECT DISTINCT category FROM dataset_registrations WHERE is_active = 1 ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Summary returns registry-wide counters for the dashboard.
func (m *datasetManager) Summary(ctx context.Context) (DatasetSummary, error) {
	var s DatasetSummary
	row := m.s.readDB.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(is_active), 0),
		       COUNT(DISTINCT category),
		       COALESCE(SUM(record_count), 0),
		       COALESCE(AVG(quality_score), 0),
		       MAX(last_processed)
		FROM dataset_registrations`)

	var lastProcessed sql.NullTime
	if err := row.Scan(&s.Total, &s.Active, &s.Categories, &s.TotalRecords, &s.AvgQuality, &lastProcessed); err != nil {
		return s, fmt.Errorf("dataset summary: %w", err)
	}
	if lastProcessed.Valid {
		s.LastProcessing = &lastProcessed.Time
	}
	return s, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDataset(row rowScanner) (*Dataset, error) {
	var d Dataset
	var metaStr string
	var isActive int
	var lastProcessed sql.NullTime

	err := row.Scan(&d.DatasetID, &d.Name, &d.Category, &d.Description, &d.SourceAgency, &d.Priority,
		&isActive, &metaStr, &d.QualityScore, &d.RecordCount, &d.CreatedAt, &d.UpdatedAt, &lastProcessed)
	if err != nil {
		return nil, err
	}

	d.IsActive = isActive != 0
	if lastProcessed.Valid {
		d.LastProcessed = &lastProcessed.Time
	}
	if metaStr != "" {
		_ = json.Unmarshal([]byte(metaStr), &d.Metadata)
	}
	return &d, nil
}
