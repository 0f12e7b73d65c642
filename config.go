package main

import (
	"encoding/json"
	"fmt"
	"os"

	"urlsentry/providers"
)

type Configuration struct {
	Cors              []string         `json:"cors"`
	DatabaseType      string           `json:"database_type"`
	DBLocation        string           `json:"db_location"`
	BindAddress       string           `json:"bind_address"`
	ServerID          string           `json:"server_id"`
	FirstUserMode     bool             `json:"first_user_mode"`
	FQDN              string           `json:"fqdn"`
	HTTPPort          string           `json:"http_port"`
	SessionTokenTTL   int              `json:"session_token_ttl"`
	ScanRetentionDays int              `json:"scan_retention_days"`
	StatCacheTickRate int              `json:"stat_cache_tick_rate"`
	UseBrowser        bool             `json:"use_browser"`
	BrowserNoSandbox  bool             `json:"browser_no_sandbox"`
	Reputation        providers.Config `json:"reputation"`
	ThreatList        providers.Config `json:"threat_list"`
	Geolocation       providers.Config `json:"geolocation"`
}

// ApplyEnvOverrides fills in provider credentials from the environment when
// the file left them blank. Placeholder values in the file are left alone on
// purpose: they are the documented way to force mock mode.
func (c *Configuration) ApplyEnvOverrides() {
	if c.Reputation.APIKey == "" {
		c.Reputation.APIKey = os.Getenv("URLSENTRY_REPUTATION_KEY")
	}
	if c.ThreatList.APIKey == "" {
		c.ThreatList.APIKey = os.Getenv("URLSENTRY_THREATLIST_KEY")
	}
	if c.Geolocation.APIKey == "" {
		c.Geolocation.APIKey = os.Getenv("URLSENTRY_GEOLOCATION_KEY")
	}
	if c.DBLocation == "" {
		c.DBLocation = os.Getenv("URLSENTRY_DB_LOCATION")
	}
}

func (c *Configuration) PopulateFromJSONFile(fh string) error {
	if !FileExists(fh) {
		return fmt.Errorf("file does not exist: %s", fh)
	}
	file, err := os.Open(fh)
	if err != nil {
		return fmt.Errorf("could not open file: %v", err)
	}
	defer file.Close()

	d := json.NewDecoder(file)
	if err := d.Decode(c); err != nil {
		return fmt.Errorf("could not decode file: %v", err)
	}

	c.ApplyEnvOverrides()
	c.ApplyDefaults()

	return nil
}

func (c *Configuration) ApplyDefaults() {
	if c.DatabaseType == "" {
		c.DatabaseType = "bbolt"
	}
	if c.DBLocation == "" && c.DatabaseType == "bbolt" {
		c.DBLocation = "urlsentry.db"
	}
	if c.HTTPPort == "" {
		c.HTTPPort = "8080"
	}
	if c.SessionTokenTTL == 0 {
		c.SessionTokenTTL = 24
	}
	if c.ScanRetentionDays == 0 {
		c.ScanRetentionDays = 90
	}
	if c.StatCacheTickRate == 0 {
		c.StatCacheTickRate = 30
	}
	if c.FQDN == "" {
		c.FQDN = "http://localhost"
	}
	if c.Reputation.BaseURL == "" {
		c.Reputation.BaseURL = "https://www.virustotal.com/vtapi/v2"
	}
	if c.ThreatList.BaseURL == "" {
		c.ThreatList.BaseURL = "https://safebrowsing.googleapis.com/v4"
	}
	if c.Geolocation.BaseURL == "" {
		c.Geolocation.BaseURL = "https://ipinfo.io"
	}
}

func DeleteConfigFile(fh string) error {
	if !FileExists(fh) {
		return fmt.Errorf("file does not exist: %s", fh)
	}
	return os.Remove(fh)
}

func FileExists(fh string) bool {
	info, err := os.Stat(fh)
	if os.IsNotExist(err) {
		return false
	}
	return info.Mode().IsRegular()
}
