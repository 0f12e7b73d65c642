package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
)

// ThreatListAnalysis is the normalized Safe Browsing style signal.
type ThreatListAnalysis struct {
	IsSafe    bool            `json:"is_safe"`
	Threats   []string        `json:"threats"`
	RiskScore int             `json:"risk_score"`
	Details   string          `json:"details"`
	RawData   json.RawMessage `json:"raw_data,omitempty"`
}

// threatListedScore is the fixed score assigned to any listed URL.
const threatListedScore = 50

type threatMatch struct {
	ThreatType      string `json:"threatType"`
	PlatformType    string `json:"platformType"`
	ThreatEntryType string `json:"threatEntryType"`
	Threat          struct {
		URL string `json:"url"`
	} `json:"threat"`
	CacheDuration string `json:"cacheDuration"`
}

type threatMatchResponse struct {
	Matches []threatMatch `json:"matches"`
}

type threatMatchRequest struct {
	Client struct {
		ClientID      string `json:"clientId"`
		ClientVersion string `json:"clientVersion"`
	} `json:"client"`
	ThreatInfo struct {
		ThreatTypes      []string `json:"threatTypes"`
		PlatformTypes    []string `json:"platformTypes"`
		ThreatEntryTypes []string `json:"threatEntryTypes"`
		ThreatEntries    []struct {
			URL string `json:"url"`
		} `json:"threatEntries"`
	} `json:"threatInfo"`
}

// ThreatListClient posts URLs against a Safe Browsing compatible threat
// match API.
type ThreatListClient struct {
	Cfg   Config
	HTTP  *http.Client
	Log   *log.Logger
	Synth *Synth
}

func NewThreatListClient(cfg Config) *ThreatListClient {
	return &ThreatListClient{
		Cfg:   cfg,
		HTTP:  newHTTPClient(),
		Log:   log.Default(),
		Synth: newDefaultSynth(),
	}
}

func (c *ThreatListClient) Analyze(ctx context.Context, rawURL string) ThreatListAnalysis {
	if !c.Cfg.Configured() {
		return c.mock()
	}

	var payload threatMatchRequest
	payload.Client.ClientID = "urlsentry"
	payload.Client.ClientVersion = "1.0.0"
	payload.ThreatInfo.ThreatTypes = []string{
		"MALWARE",
		"SOCIAL_ENGINEERING",
		"UNWANTED_SOFTWARE",
		"POTENTIALLY_HARMFUL_APPLICATION",
	}
	payload.ThreatInfo.PlatformTypes = []string{"ANY_PLATFORM"}
	payload.ThreatInfo.ThreatEntryTypes = []string{"URL"}
	payload.ThreatInfo.ThreatEntries = []struct {
		URL string `json:"url"`
	}{{URL: rawURL}}

	out, err := json.Marshal(payload)
	if err != nil {
		c.Log.Println("threatlist: marshal error:", err)
		return c.mock()
	}

	target := fmt.Sprintf("%s/threatMatches:find?key=%s", c.Cfg.BaseURL, c.Cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewBuffer(out))
	if err != nil {
		c.Log.Println("threatlist: request error:", err)
		return c.mock()
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		c.Log.Println("threatlist: provider error:", err)
		return c.mock()
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.Log.Println("threatlist: unexpected status", resp.StatusCode)
		return c.mock()
	}
	body, err := readAll(resp)
	if err != nil {
		return c.mock()
	}

	var result threatMatchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		c.Log.Println("threatlist: bad payload:", err)
		return c.mock()
	}
	return parseThreatMatches(result, body)
}

func parseThreatMatches(result threatMatchResponse, raw []byte) ThreatListAnalysis {
	seen := make(map[string]bool)
	threats := []string{}
	for _, m := range result.Matches {
		if m.ThreatType != "" && !seen[m.ThreatType] {
			seen[m.ThreatType] = true
			threats = append(threats, m.ThreatType)
		}
	}
	if len(result.Matches) == 0 {
		return ThreatListAnalysis{
			IsSafe:    true,
			Threats:   threats,
			RiskScore: 0,
			Details:   "No threats detected",
			RawData:   raw,
		}
	}
	return ThreatListAnalysis{
		IsSafe:    false,
		Threats:   threats,
		RiskScore: threatListedScore,
		Details:   "Threats detected",
		RawData:   raw,
	}
}

func (c *ThreatListClient) mock() ThreatListAnalysis {
	isSafe := c.Synth.Float64() > 0.1
	if isSafe {
		return ThreatListAnalysis{
			IsSafe:    true,
			Threats:   []string{},
			RiskScore: 0,
			Details:   "No threats detected (mock data)",
			RawData:   nil,
		}
	}
	return ThreatListAnalysis{
		IsSafe:    false,
		Threats:   []string{"MALWARE", "SOCIAL_ENGINEERING"},
		RiskScore: threatListedScore,
		Details:   "Threats detected (mock data)",
		RawData:   nil,
	}
}
