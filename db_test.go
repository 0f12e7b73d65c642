package main

import (
	"path/filepath"
	"testing"
	"time"

	"go.etcd.io/bbolt"
)

func openTestDB(t *testing.T) *BboltDB {
	t.Helper()
	db, err := bbolt.Open(filepath.Join(t.TempDir(), "test.db"), 0600, nil)
	if err != nil {
		t.Fatalf("could not open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &BboltDB{DB: db}
}

func TestBboltScanRoundTrip(t *testing.T) {
	db := openTestDB(t)
	record := ScanRecord{
		ID:        "scan-1",
		URL:       "https://example.com",
		Email:     "tester@example.com",
		Verdict:   "safe",
		RiskScore: 10,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.AddScan(record); err != nil {
		t.Fatalf("AddScan: %v", err)
	}

	got, err := db.GetScan("scan-1")
	if err != nil {
		t.Fatalf("GetScan: %v", err)
	}
	if got.URL != record.URL || got.Verdict != record.Verdict || got.RiskScore != record.RiskScore {
		t.Errorf("round trip mismatch: %+v", got)
	}

	if _, err := db.GetScan("missing"); err == nil {
		t.Errorf("expected error for missing scan")
	}

	if err := db.DeleteScan("scan-1"); err != nil {
		t.Fatalf("DeleteScan: %v", err)
	}
	if _, err := db.GetScan("scan-1"); err == nil {
		t.Errorf("expected error after delete")
	}
}

func TestBboltGetScansOrderAndLimit(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC()
	for i, age := range []time.Duration{72 * time.Hour, time.Hour, 24 * time.Hour} {
		record := ScanRecord{
			ID:        string(rune('a' + i)),
			URL:       "https://example.com",
			CreatedAt: now.Add(-age),
		}
		if err := db.AddScan(record); err != nil {
			t.Fatalf("AddScan: %v", err)
		}
	}

	scans, err := db.GetScans(now.Add(-30*24*time.Hour), 0)
	if err != nil {
		t.Fatalf("GetScans: %v", err)
	}
	if len(scans) != 3 {
		t.Fatalf("scan count = %d; want 3", len(scans))
	}
	for i := 1; i < len(scans); i++ {
		if scans[i].CreatedAt.After(scans[i-1].CreatedAt) {
			t.Errorf("scans not sorted newest first")
		}
	}

	scans, err = db.GetScans(now.Add(-30*24*time.Hour), 2)
	if err != nil {
		t.Fatalf("GetScans with limit: %v", err)
	}
	if len(scans) != 2 {
		t.Errorf("limited scan count = %d; want 2", len(scans))
	}

	// Cutoff excludes the oldest entry.
	scans, err = db.GetScans(now.Add(-48*time.Hour), 0)
	if err != nil {
		t.Fatalf("GetScans with cutoff: %v", err)
	}
	if len(scans) != 2 {
		t.Errorf("recent scan count = %d; want 2", len(scans))
	}
}

func TestBboltCleanScans(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC()
	old := ScanRecord{ID: "old", CreatedAt: now.AddDate(0, 0, -100)}
	fresh := ScanRecord{ID: "fresh", CreatedAt: now}
	if err := db.AddScan(old); err != nil {
		t.Fatalf("AddScan: %v", err)
	}
	if err := db.AddScan(fresh); err != nil {
		t.Fatalf("AddScan: %v", err)
	}

	if err := db.CleanScans(90); err != nil {
		t.Fatalf("CleanScans: %v", err)
	}
	if _, err := db.GetScan("old"); err == nil {
		t.Errorf("stale scan survived cleanup")
	}
	if _, err := db.GetScan("fresh"); err != nil {
		t.Errorf("fresh scan removed by cleanup: %v", err)
	}
}

func TestBboltUserRoundTrip(t *testing.T) {
	db := openTestDB(t)
	user, err := NewUser("tester@example.com", "hunter22", true)
	if err != nil {
		t.Fatalf("could not build user: %v", err)
	}
	if err := db.AddUser(*user); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	got, err := db.GetUserByEmail("tester@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if got.Email != user.Email || got.Key != user.Key || !got.Admin {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if !got.CheckPassword("hunter22") {
		t.Errorf("password hash did not survive the round trip")
	}

	if _, err := db.GetUserByEmail("ghost@example.com"); err == nil {
		t.Errorf("expected error for missing user")
	}

	users, err := db.GetAllUsers()
	if err != nil {
		t.Fatalf("GetAllUsers: %v", err)
	}
	if len(users) != 1 {
		t.Errorf("user count = %d; want 1", len(users))
	}

	if err := db.DeleteUser("tester@example.com"); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if _, err := db.GetUserByEmail("tester@example.com"); err == nil {
		t.Errorf("expected error after delete")
	}
}

func TestBboltTokenRoundTrip(t *testing.T) {
	db := openTestDB(t)
	tk, err := NewToken("tester@example.com", time.Hour)
	if err != nil {
		t.Fatalf("could not build token: %v", err)
	}
	if err := db.SaveToken(*tk); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}

	got, err := db.GetTokenByValue(tk.Token)
	if err != nil {
		t.Fatalf("GetTokenByValue: %v", err)
	}
	if got.Email != "tester@example.com" {
		t.Errorf("token email = %s; want tester@example.com", got.Email)
	}

	if _, err := db.GetTokenByValue("missing"); err == nil {
		t.Errorf("expected error for missing token")
	}
}
