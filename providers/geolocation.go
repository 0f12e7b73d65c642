package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
)

// GeolocationAnalysis is the normalized hosting location signal. It is
// informational only and never contributes risk on its own.
type GeolocationAnalysis struct {
	IsLocated bool            `json:"is_located"`
	IP        string          `json:"ip"`
	City      string          `json:"city"`
	Region    string          `json:"region"`
	Country   string          `json:"country"`
	Location  string          `json:"location"`
	Org       string          `json:"org"`
	Timezone  string          `json:"timezone"`
	RiskScore int             `json:"risk_score"`
	Details   string          `json:"details"`
	RawData   json.RawMessage `json:"raw_data,omitempty"`
}

type geolocationResponse struct {
	IP       string `json:"ip"`
	Hostname string `json:"hostname"`
	City     string `json:"city"`
	Region   string `json:"region"`
	Country  string `json:"country"`
	Loc      string `json:"loc"`
	Org      string `json:"org"`
	Postal   string `json:"postal"`
	Timezone string `json:"timezone"`
}

// GeolocationClient resolves where a host is served from via an ipinfo
// style lookup API.
type GeolocationClient struct {
	Cfg   Config
	HTTP  *http.Client
	Log   *log.Logger
	Synth *Synth
}

func NewGeolocationClient(cfg Config) *GeolocationClient {
	return &GeolocationClient{
		Cfg:   cfg,
		HTTP:  newHTTPClient(),
		Log:   log.Default(),
		Synth: newDefaultSynth(),
	}
}

func (c *GeolocationClient) Analyze(ctx context.Context, rawURL string) GeolocationAnalysis {
	if !c.Cfg.Configured() {
		return c.mock()
	}
	host, err := hostnameOf(rawURL)
	if err != nil || host == "" {
		c.Log.Println("geolocation: bad hostname:", err)
		return c.mock()
	}

	target := fmt.Sprintf("%s/%s?token=%s", c.Cfg.BaseURL, host, c.Cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		c.Log.Println("geolocation: request error:", err)
		return c.mock()
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		c.Log.Println("geolocation: provider error:", err)
		return c.mock()
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.Log.Println("geolocation: unexpected status", resp.StatusCode)
		return c.mock()
	}
	body, err := readAll(resp)
	if err != nil {
		return c.mock()
	}

	var result geolocationResponse
	if err := json.Unmarshal(body, &result); err != nil {
		c.Log.Println("geolocation: bad payload:", err)
		return c.mock()
	}
	return parseGeolocation(result, body)
}

func parseGeolocation(result geolocationResponse, raw []byte) GeolocationAnalysis {
	parts := []string{}
	for _, p := range []string{result.City, result.Region, result.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	location := strings.Join(parts, ", ")
	located := location != ""
	if location == "" {
		location = "Unknown"
	}
	return GeolocationAnalysis{
		IsLocated: located,
		IP:        result.IP,
		City:      result.City,
		Region:    result.Region,
		Country:   result.Country,
		Location:  location,
		Org:       result.Org,
		Timezone:  result.Timezone,
		RiskScore: 0,
		Details:   fmt.Sprintf("Server located in %s", location),
		RawData:   raw,
	}
}

func (c *GeolocationClient) mock() GeolocationAnalysis {
	return GeolocationAnalysis{
		IsLocated: true,
		IP:        "93.184.216.34",
		City:      "San Francisco",
		Region:    "CA",
		Country:   "US",
		Location:  "San Francisco, CA, US",
		Org:       "AS13335 Mock Hosting LLC",
		Timezone:  "America/Los_Angeles",
		RiskScore: 0,
		Details:   "Mock geolocation data used (API not configured)",
		RawData:   nil,
	}
}
