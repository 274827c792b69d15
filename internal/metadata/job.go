package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// BatchRun is a durable record of one ingest_all_priority_datasets()
// call, supplementing the distilled spec's in-memory-only ingestion
// status with a row that survives process restarts.
type BatchRun struct {
	ID          int64
	StartedAt   time.Time
	FinishedAt  *time.Time
	Successful  int
	Failed      int
	TriggeredBy string
}

// jobManager is the JobManager added in the expanded spec: CRUD over
// batch_runs.
type jobManager struct {
	s *Store
}

// Start inserts a new in-progress batch run and returns its id.
func (m *jobManager) Start(ctx context.Context, triggeredBy string) (int64, error) {
	if triggeredBy == "" {
		triggeredBy = "scheduler"
	}
	res, err := m.s.writeDB.ExecContext(ctx,
		`INSERT INTO batch_runs (started_at, triggered_by) VALUES (CURRENT_TIMESTAMP, ?)`, triggeredBy)
	if err != nil {
		return 0, fmt.Errorf("start batch run: %w", err)
	}
	return res.LastInsertId()
}

// Finish records a batch run's final counters.
func (m *jobManager) Finish(ctx context.Context, id int64, successful, failed int) error {
	_, err := m.s.writeDB.ExecContext(ctx,
		`UPDATE batch_runs SET finished_at = CURRENT_TIMESTAMP, successful = ?, failed = ? WHERE id = ?`,
		successful, failed, id)
	if err != nil {
		return fmt.Errorf("finish batch run %d: %w", id, err)
	}
	return nil
}

// ListBatchRuns returns the most recent batch runs, newest first.
func (m *jobManager) ListBatchRuns(ctx context.Context, limit int) ([]BatchRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := m.s.readDB.QueryContext(ctx,
		`SELECT id, started_at, finished_at, successful, failed, triggered_by
		 FROM batch_runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list batch runs: %w", err)
	}
	defer rows.Close()

	var out []BatchRun
	for rows.Next() {
		var r BatchRun
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.StartedAt, &finished, &r.Successful, &r.Failed, &r.TriggeredBy); err != nil {
			return nil, err
		}
		if finished.Valid {
			r.FinishedAt = &finished.Time
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
