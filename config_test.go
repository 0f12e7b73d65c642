package main

import (
	"os"
	"path/filepath"
	"testing"

	"urlsentry/providers"
)

func TestApplyDefaults(t *testing.T) {
	var cfg Configuration
	cfg.ApplyDefaults()

	if cfg.DatabaseType != "bbolt" {
		t.Errorf("database type = %s; want bbolt", cfg.DatabaseType)
	}
	if cfg.DBLocation != "urlsentry.db" {
		t.Errorf("db location = %s; want urlsentry.db", cfg.DBLocation)
	}
	if cfg.HTTPPort != "8080" {
		t.Errorf("http port = %s; want 8080", cfg.HTTPPort)
	}
	if cfg.SessionTokenTTL != 24 {
		t.Errorf("session ttl = %d; want 24", cfg.SessionTokenTTL)
	}
	if cfg.ScanRetentionDays != 90 {
		t.Errorf("retention = %d; want 90", cfg.ScanRetentionDays)
	}
	if cfg.Reputation.BaseURL == "" || cfg.ThreatList.BaseURL == "" || cfg.Geolocation.BaseURL == "" {
		t.Errorf("provider base URLs should default: %+v", cfg)
	}
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := Configuration{
		DatabaseType: "postgres",
		DBLocation:   "postgres://localhost/urlsentry",
		HTTPPort:     "9999",
	}
	cfg.ApplyDefaults()

	if cfg.DatabaseType != "postgres" {
		t.Errorf("database type overwritten: %s", cfg.DatabaseType)
	}
	if cfg.DBLocation != "postgres://localhost/urlsentry" {
		t.Errorf("db location overwritten: %s", cfg.DBLocation)
	}
	if cfg.HTTPPort != "9999" {
		t.Errorf("http port overwritten: %s", cfg.HTTPPort)
	}
}

func TestPopulateFromJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"database_type": "bbolt",
		"db_location": "custom.db",
		"http_port": "9090",
		"reputation": {"api_key": "realkey123"},
		"threat_list": {"api_key": "your_threatlist_api_key_here"}
	}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("could not write config: %v", err)
	}

	var cfg Configuration
	if err := cfg.PopulateFromJSONFile(path); err != nil {
		t.Fatalf("PopulateFromJSONFile: %v", err)
	}
	if cfg.DBLocation != "custom.db" {
		t.Errorf("db location = %s; want custom.db", cfg.DBLocation)
	}
	if cfg.HTTPPort != "9090" {
		t.Errorf("http port = %s; want 9090", cfg.HTTPPort)
	}
	if !cfg.Reputation.Configured() {
		t.Errorf("real key should count as configured")
	}
	// Placeholder keys are the documented way to force mock mode.
	if cfg.ThreatList.Configured() {
		t.Errorf("placeholder key should not count as configured")
	}
	// Defaults still fill the gaps.
	if cfg.SessionTokenTTL != 24 {
		t.Errorf("session ttl = %d; want 24", cfg.SessionTokenTTL)
	}

	var missing Configuration
	if err := missing.PopulateFromJSONFile(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Errorf("expected error for missing file")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("URLSENTRY_REPUTATION_KEY", "envkey123")

	cfg := Configuration{ThreatList: providers.Config{APIKey: "filekey"}}
	cfg.ApplyEnvOverrides()

	if cfg.Reputation.APIKey != "envkey123" {
		t.Errorf("empty key should pick up the environment, got %q", cfg.Reputation.APIKey)
	}
	if cfg.ThreatList.APIKey != "filekey" {
		t.Errorf("file key overwritten by environment: %q", cfg.ThreatList.APIKey)
	}
}

func TestDeleteConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{}`), 0600); err != nil {
		t.Fatalf("could not write config: %v", err)
	}
	if err := DeleteConfigFile(path); err != nil {
		t.Fatalf("DeleteConfigFile: %v", err)
	}
	if FileExists(path) {
		t.Errorf("config file still exists")
	}
	if err := DeleteConfigFile(path); err == nil {
		t.Errorf("expected error deleting a missing file")
	}
}
