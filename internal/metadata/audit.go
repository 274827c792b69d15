package metadata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/osservatorio-istat/osservatorio/internal/logging"
)

// securityActions are the actions get_security_events additionally
// matches, regardless of success.
var securityActions = map[string]bool{
	"LOGIN":           true,
	"LOGOUT":          true,
	"AUTH_FAIL":       true,
	"ACCESS_DENIED":   true,
	"PASSWORD_CHANGE": true,
}

// auditManager is the AuditManager (C1) from §4.1, and doubles as the
// Audit Logger (C12): once Start has run, writes are enqueued onto a
// buffered channel and drained by a single background goroutine, so
// concurrent ingestion/export events are persisted one at a time in
// enqueue order. LogAction still waits for its own row to be written
// before returning. This is the same buffered-channel-plus-drain-goroutine
// shape as the teacher's audit.Logger.
type auditManager struct {
	s *Store

	eventChan chan auditWrite
	stopChan  chan struct{}
	wg        sync.WaitGroup
	once      sync.Once
}

type auditWrite struct {
	event AuditEvent
	done  chan error // nil channel means fire-and-forget
}

const auditBufferSize = 1000

// Start launches the background drain goroutine. Safe to call once per
// Store lifetime; Stop must be called to drain pending writes on exit.
func (m *auditManager) Start() {
	m.once.Do(func() {
		m.eventChan = make(chan auditWrite, auditBufferSize)
		m.stopChan = make(chan struct{})
		m.wg.Add(1)
		go m.drain()
	})
}

func (m *auditManager) drain() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopChan:
			for {
				select {
				case w := <-m.eventChan:
					m.write(w)
				default:
					return
				}
			}
		case w := <-m.eventChan:
			m.write(w)
		}
	}
}

func (m *auditManager) write(w auditWrite) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := m.insert(ctx, w.event)
	if err != nil {
		logging.Error().Err(err).Str("action", w.event.Action).Msg("failed to persist audit event")
	}
	if w.done != nil {
		w.done <- err
	}
}

// Stop drains pending writes and stops the background goroutine.
func (m *auditManager) Stop() {
	if m.stopChan == nil {
		return
	}
	close(m.stopChan)
	m.wg.Wait()
}

// LogAction enqueues an audit event for commit-ordered persistence by the
// drain goroutine and waits for that write's result. If Start was never
// called, the write happens directly on the caller's goroutine.
func (m *auditManager) LogAction(ctx context.Context, e AuditEvent) (bool, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	if m.eventChan == nil {
		if err := m.insert(ctx, e); err != nil {
			return false, err
		}
		return true, nil
	}

	done := make(chan error, 1)
	m.eventChan <- auditWrite{event: e, done: done}
	return true, <-done
}

func (m *auditManager) insert(ctx context.Context, e AuditEvent) error {
	details := "{}"
	if e.Details != nil {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
		details = string(b)
	}

	_, err := m.s.writeDB.ExecContext(ctx, `
		INSERT INTO audit_events
			(user_id, action, resource_type, resource_id, details, ip_address, user_agent,
			 success, error_message, execution_time_ms, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.UserID, e.Action, e.ResourceType, e.ResourceID, details, e.IPAddress, e.UserAgent,
		e.Success, e.ErrorMessage, e.ExecutionTimeMs, e.Timestamp)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// GetAuditLogs returns events matching filter, newest first.
func (m *auditManager) GetAuditLogs(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	query := `SELECT id, user_id, action, resource_type, resource_id, details, ip_address, user_agent,
	                 success, error_message, execution_time_ms, timestamp FROM audit_events WHERE 1=1`
	var args []any

	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.Action != "" {
		query += " AND action = ?"
		args = append(args, filter.Action)
	}
	if filter.ResourceType != "" {
		query += " AND resource_type = ?"
		args = append(args, filter.ResourceType)
	}
	if filter.Success != nil {
		query += " AND success = ?"
		args = append(args, *filter.Success)
	}
	if filter.Since != nil {
		query += " AND timestamp >= ?"
		args = append(args, *filter.Since)
	}
	if filter.Until != nil {
		query += " AND timestamp <= ?"
		args = append(args, *filter.Until)
	}

	query += " ORDER BY timestamp DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := m.s.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get audit logs: %w", err)
	}
	defer rows.Close()

	var out []AuditEvent
	for rows.Next() {
		e, err := scanAuditEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// GetUserActivity returns events for userID since a cutoff, newest first.
func (m *auditManager) GetUserActivity(ctx context.Context, userID string, since time.Time, limit int) ([]AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	filter := AuditFilter{UserID: userID, Limit: limit}
	if !since.IsZero() {
		filter.Since = &since
	}
	return m.GetAuditLogs(ctx, filter)
}

// GetSecurityEvents returns events that are either a recognized security
// action or a failed operation, newest first.
func (m *auditManager) GetSecurityEvents(ctx context.Context, since time.Time, limit int) ([]AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, user_id, action, resource_type, resource_id, details, ip_address, user_agent,
	                 success, error_message, execution_time_ms, timestamp FROM audit_events
	          WHERE (action IN ('LOGIN','LOGOUT','AUTH_FAIL','ACCESS_DENIED','PASSWORD_CHANGE') OR success = 0)`
	var args []any
	if !since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, since)
	}
	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := m.s.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get security events: %w", err)
	}
	defer rows.Close()

	var out []AuditEvent
	for rows.Next() {
		e, err := scanAuditEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// ActionSummary is one row of GetActionSummary.
type ActionSummary struct {
	Action       string
	Count        int64
	SuccessCount int64
}

// GetActionSummary counts events per action since a cutoff.
func (m *auditManager) GetActionSummary(ctx context.Context, since time.Time) ([]ActionSummary, error) {
	query := `SELECT action, COUNT(*), COALESCE(SUM(success), 0) FROM audit_events WHERE 1=1`
	var args []any
	if !since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, since)
	}
	query += " GROUP BY action ORDER BY COUNT(*) DESC"

	rows, err := m.s.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get action summary: %w", err)
	}
	defer rows.Close()

	var out []ActionSummary
	for rows.Next() {
		var a ActionSummary
		if err := rows.Scan(&a.Action, &a.Count, &a.SuccessCount); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AuditStatistics summarizes overall audit volume since a cutoff.
type AuditStatistics struct {
	TotalEvents   int64
	SuccessEvents int64
	FailureEvents int64
	UniqueUsers   int64
}

// GetAuditStatistics returns overall counters since a cutoff.
func (m *auditManager) GetAuditStatistics(ctx context.Context, since time.Time) (AuditStatistics, error) {
	var stats AuditStatistics
	query := `SELECT COUNT(*), COALESCE(SUM(success), 0), COUNT(DISTINCT user_id) FROM audit_events WHERE 1=1`
	var args []any
	if !since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, since)
	}

	if err := m.s.readDB.QueryRowContext(ctx, query, args...).
		Scan(&stats.TotalEvents, &stats.SuccessEvents, &stats.UniqueUsers); err != nil {
		return stats, fmt.Errorf("get audit statistics: %w", err)
	}
	stats.FailureEvents = stats.TotalEvents - stats.SuccessEvents
	return stats, nil
}

// CleanupOldLogs deletes audit events older than daysToKeep days.
func (m *auditManager) CleanupOldLogs(ctx context.Context, daysToKeep int) (int64, error) {
	if daysToKeep <= 0 {
		daysToKeep = 90
	}
	cutoff := time.Now().AddDate(0, 0, -daysToKeep)
	res, err := m.s.writeDB.ExecContext(ctx, `DELETE FROM audit_events WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup old audit logs: %w", err)
	}
	return res.RowsAffected()
}

func scanAuditEvent(row rowScanner) (*AuditEvent, error) {
	var e AuditEvent
	var detailsStr string
	var success int

	err := row.Scan(&e.ID, &e.UserID, &e.Action, &e.ResourceType, &e.ResourceID, &detailsStr,
		&e.IPAddress, &e.UserAgent, &success, &e.ErrorMessage, &e.ExecutionTimeMs, &e.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("scan audit event: %w", err)
	}
	e.Success = success != 0
	if detailsStr != "" {
		_ = json.Unmarshal([]byte(detailsStr), &e.Details)
	}
	return &e, nil
}
