package metadata

import (
	"context"
	"testing"
	"time"
)

func TestUserPreferenceCRUD(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.Users().SetPreference(ctx, "u1", "theme", "dark", false); err != nil {
		t.Fatalf("SetPreference: %v", err)
	}
	got, err := s.Users().GetPreference(ctx, "u1", "theme", "light")
	if err != nil {
		t.Fatalf("GetPreference: %v", err)
	}
	if got != "dark" {
		t.Fatalf("expected dark, got %#v", got)
	}

	if err := s.Users().SetPreference(ctx, "u1", "notifications", true, false); err != nil {
		t.Fatalf("SetPreference bool: %v", err)
	}
	all, err := s.Users().GetPreferences(ctx, "u1")
	if err != nil {
		t.Fatalf("GetPreferences: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 preferences, got %d: %v", len(all), all)
	}
	if all["notifications"] != true {
		t.Fatalf("expected notifications=true, got %#v", all["notifications"])
	}

	if err := s.Users().DeletePreference(ctx, "u1", "theme"); err != nil {
		t.Fatalf("DeletePreference: %v", err)
	}
	got, err = s.Users().GetPreference(ctx, "u1", "theme", "light")
	if err != nil {
		t.Fatalf("GetPreference after delete: %v", err)
	}
	if got != "light" {
		t.Fatalf("expected default after delete, got %#v", got)
	}

	if err := s.Users().DeleteAllPreferences(ctx, "u1"); err != nil {
		t.Fatalf("DeleteAllPreferences: %v", err)
	}
	all, err = s.Users().GetPreferences(ctx, "u1")
	if err != nil {
		t.Fatalf("GetPreferences after delete-all: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected no preferences, got %v", all)
	}
}

func TestUserBulkSetPreferencesIsAtomic(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	err := s.Users().BulkSetPreferences(ctx, "u2", map[string]PreferenceInput{
		"theme":         {Value: "dark"},
		"items_per_page": {Value: 50.0},
	})
	if err != nil {
		t.Fatalf("BulkSetPreferences: %v", err)
	}

	all, err := s.Users().GetPreferences(ctx, "u2")
	if err != nil {
		t.Fatalf("GetPreferences: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 preferences written atomically, got %d: %v", len(all), all)
	}
}

func TestUserAPICredentialsStoreAndVerify(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	err := s.Users().StoreAPICredentials(ctx, "istat-sdmx", "super-secret-key", "", "https://sdmx.istat.it", 100, nil)
	if err != nil {
		t.Fatalf("StoreAPICredentials: %v", err)
	}

	ok, err := s.Users().VerifyAPICredentials(ctx, "istat-sdmx", "super-secret-key")
	if err != nil {
		t.Fatalf("VerifyAPICredentials: %v", err)
	}
	if !ok {
		t.Fatalf("expected correct key to verify")
	}

	ok, err = s.Users().VerifyAPICredentials(ctx, "istat-sdmx", "wrong-key")
	if err != nil {
		t.Fatalf("VerifyAPICredentials wrong key: %v", err)
	}
	if ok {
		t.Fatalf("expected wrong key to fail verification")
	}
}

func TestUserAPICredentialsExpiry(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	err := s.Users().StoreAPICredentials(ctx, "expired-service", "the-key", "", "", 100, &past)
	if err != nil {
		t.Fatalf("StoreAPICredentials: %v", err)
	}

	ok, err := s.Users().VerifyAPICredentials(ctx, "expired-service", "the-key")
	if err != nil {
		t.Fatalf("VerifyAPICredentials: %v", err)
	}
	if ok {
		t.Fatalf("expected expired credential to fail verification")
	}
}

func TestUserAPICredentialsUnknownService(t *testing.T) {
	s := setupTestStore(t)
	ok, err := s.Users().VerifyAPICredentials(context.Background(), "no-such-service", "anything")
	if err != nil {
		t.Fatalf("VerifyAPICredentials: %v", err)
	}
	if ok {
		t.Fatalf("expected unknown service to fail verification")
	}
}
