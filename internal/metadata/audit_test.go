package metadata

import (
	"context"
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func TestAuditLogActionSynchronousFallback(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	ok, err := s.Audit().LogAction(ctx, AuditEvent{
		Action:       "ingestion_run",
		ResourceType: "dataset",
		ResourceID:   strPtr("101_1015"),
		Success:      true,
	})
	if err != nil {
		t.Fatalf("LogAction: %v", err)
	}
	if !ok {
		t.Fatalf("expected LogAction to report success")
	}

	logs, err := s.Audit().GetAuditLogs(ctx, AuditFilter{Action: "ingestion_run"})
	if err != nil {
		t.Fatalf("GetAuditLogs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 matching log, got %d", len(logs))
	}
	if logs[0].ResourceID == nil || *logs[0].ResourceID != "101_1015" {
		t.Fatalf("expected resource_id to round-trip, got %+v", logs[0])
	}
}

func TestAuditStartStopAsyncDrain(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	s.Audit().Start()

	for i := 0; i < 5; i++ {
		if _, err := s.Audit().LogAction(ctx, AuditEvent{Action: "export_run", ResourceType: "export", Success: true}); err != nil {
			t.Fatalf("LogAction: %v", err)
		}
	}
	s.Audit().Stop()

	logs, err := s.Audit().GetAuditLogs(ctx, AuditFilter{Action: "export_run"})
	if err != nil {
		t.Fatalf("GetAuditLogs: %v", err)
	}
	if len(logs) != 5 {
		t.Fatalf("expected all 5 async writes drained before Stop returned, got %d", len(logs))
	}
}

func TestAuditGetSecurityEvents(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.Audit().LogAction(ctx, AuditEvent{Action: "LOGIN", ResourceType: "session", Success: true}); err != nil {
		t.Fatalf("LogAction LOGIN: %v", err)
	}
	if _, err := s.Audit().LogAction(ctx, AuditEvent{Action: "export_run", ResourceType: "export", Success: false}); err != nil {
		t.Fatalf("LogAction failed export: %v", err)
	}
	if _, err := s.Audit().LogAction(ctx, AuditEvent{Action: "export_run", ResourceType: "export", Success: true}); err != nil {
		t.Fatalf("LogAction successful export: %v", err)
	}

	events, err := s.Audit().GetSecurityEvents(ctx, time.Time{}, 0)
	if err != nil {
		t.Fatalf("GetSecurityEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected LOGIN and the failed export, got %d: %+v", len(events), events)
	}
}

func TestAuditGetActionSummaryAndStatistics(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.Audit().LogAction(ctx, AuditEvent{Action: "ingestion_run", ResourceType: "dataset", Success: true}); err != nil {
			t.Fatalf("LogAction: %v", err)
		}
	}
	if _, err := s.Audit().LogAction(ctx, AuditEvent{Action: "ingestion_run", ResourceType: "dataset", Success: false}); err != nil {
		t.Fatalf("LogAction: %v", err)
	}

	summary, err := s.Audit().GetActionSummary(ctx, time.Time{})
	if err != nil {
		t.Fatalf("GetActionSummary: %v", err)
	}
	if len(summary) != 1 || summary[0].Count != 4 || summary[0].SuccessCount != 3 {
		t.Fatalf("unexpected action summary: %+v", summary)
	}

	stats, err := s.Audit().GetAuditStatistics(ctx, time.Time{})
	if err != nil {
		t.Fatalf("GetAuditStatistics: %v", err)
	}
	if stats.TotalEvents != 4 || stats.SuccessEvents != 3 || stats.FailureEvents != 1 {
		t.Fatalf("unexpected audit statistics: %+v", stats)
	}
}

func TestAuditCleanupOldLogs(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	old := time.Now().AddDate(0, 0, -100)
	if _, err := s.Audit().LogAction(ctx, AuditEvent{Action: "old_event", ResourceType: "x", Success: true, Timestamp: old}); err != nil {
		t.Fatalf("LogAction old: %v", err)
	}
	if _, err := s.Audit().LogAction(ctx, AuditEvent{Action: "recent_event", ResourceType: "x", Success: true}); err != nil {
		t.Fatalf("LogAction recent: %v", err)
	}

	n, err := s.Audit().CleanupOldLogs(ctx, 90)
	if err != nil {
		t.Fatalf("CleanupOldLogs: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 old log removed, got %d", n)
	}

	logs, err := s.Audit().GetAuditLogs(ctx, AuditFilter{})
	if err != nil {
		t.Fatalf("GetAuditLogs: %v", err)
	}
	if len(logs) != 1 || logs[0].Action != "recent_event" {
		t.Fatalf("expected only the recent event to remain, got %+v", logs)
	}
}
