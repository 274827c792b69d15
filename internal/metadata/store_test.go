package metadata

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	dir := t.TempDir()
	s, err := New(context.Background(), filepath.Join(dir, "metadata.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func TestNewBootstrapsDefaultCategorizationRules(t *testing.T) {
	s := setupTestStore(t)

	rules, err := s.Categorization().GetRules(context.Background(), "", false)
	if err != nil {
		t.Fatalf("GetRules: %v", err)
	}
	if len(rules) != len(defaultCategorizationRules) {
		t.Fatalf("expected %d seeded rules, got %d", len(defaultCategorizationRules), len(rules))
	}
}

func TestNewIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metadata.db")

	s1, err := New(context.Background(), path)
	if err != nil {
		t.Fatalf("first New: %v", err)
	}
	s1.Close()

	s2, err := New(context.Background(), path)
	if err != nil {
		t.Fatalf("second New: %v", err)
	}
	defer s2.Close()

	rules, err := s2.Categorization().GetRules(context.Background(), "", false)
	if err != nil {
		t.Fatalf("GetRules: %v", err)
	}
	if len(rules) != len(defaultCategorizationRules) {
		t.Fatalf("expected rules not duplicated across reopen, got %d", len(rules))
	}
}

func TestPing(t *testing.T) {
	s := setupTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO dataset_registrations (dataset_id, name, category, description, source_agency, priority, is_active, metadata)
			VALUES ('101_TX', 'tx test', 'test', '', 'ISTAT', 5, 1, '{}')`); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom error, got %v", err)
	}

	d, err := s.Datasets().Get(ctx, "101_TX")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d != nil {
		t.Fatalf("expected rollback to discard the insert, found %+v", d)
	}
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO dataset_registrations (dataset_id, name, category, description, source_agency, priority, is_active, metadata)
			VALUES ('101_TX2', 'tx test 2', 'test', '', 'ISTAT', 5, 1, '{}')`)
		return err
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}

	d, err := s.Datasets().Get(ctx, "101_TX2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d == nil {
		t.Fatalf("expected committed insert to be visible")
	}
}
