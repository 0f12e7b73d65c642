package providers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// ReputationAnalysis is the normalized malware/URL scan signal.
// RawData is nil when the record was synthesized locally.
type ReputationAnalysis struct {
	IsClean        bool            `json:"is_clean"`
	Positives      int             `json:"positives"`
	Total          int             `json:"total"`
	DetectionRatio string          `json:"detection_ratio"`
	ScanDate       string          `json:"scan_date"`
	Permalink      string          `json:"permalink"`
	Threats        []string        `json:"threats"`
	RiskScore      int             `json:"risk_score"`
	RawData        json.RawMessage `json:"raw_data,omitempty"`
}

type reputationScanResult struct {
	ScanID       string `json:"scan_id"`
	ScanDate     string `json:"scan_date"`
	Permalink    string `json:"permalink"`
	VerboseMsg   string `json:"verbose_msg"`
	ResponseCode int    `json:"response_code"`
}

type reputationEngineResult struct {
	Detected bool   `json:"detected"`
	Version  string `json:"version"`
	Result   string `json:"result"`
	Update   string `json:"update"`
}

type reputationReport struct {
	ScanID       string                            `json:"scan_id"`
	ScanDate     string                            `json:"scan_date"`
	Permalink    string                            `json:"permalink"`
	VerboseMsg   string                            `json:"verbose_msg"`
	ResponseCode int                               `json:"response_code"`
	Positives    int                               `json:"positives"`
	Total        int                               `json:"total"`
	Scans        map[string]reputationEngineResult `json:"scans"`
}

// ReputationClient talks to a VirusTotal-compatible URL scan API.
type ReputationClient struct {
	Cfg    Config
	HTTP   *http.Client
	Log    *log.Logger
	Synth  *Synth
	Repoll time.Duration
}

func NewReputationClient(cfg Config) *ReputationClient {
	return &ReputationClient{
		Cfg:    cfg,
		HTTP:   newHTTPClient(),
		Log:    log.Default(),
		Synth:  newDefaultSynth(),
		Repoll: 2 * time.Second,
	}
}

// Analyze fetches the existing scan report for the URL. When the provider
// has never seen the URL it submits it for scanning and re-polls the report
// exactly once after Repoll. Any failure along the way yields a synthetic
// record.
func (c *ReputationClient) Analyze(ctx context.Context, rawURL string) ReputationAnalysis {
	if !c.Cfg.Configured() {
		return c.mock(rawURL)
	}

	report, err := c.fetchReport(ctx, rawURL)
	if err != nil {
		c.Log.Println("reputation: report error:", err)
		return c.mock(rawURL)
	}
	if report.ResponseCode != 1 {
		if err := c.submitScan(ctx, rawURL); err != nil {
			c.Log.Println("reputation: submit error:", err)
			return c.mock(rawURL)
		}
		select {
		case <-time.After(c.Repoll):
		case <-ctx.Done():
			return c.mock(rawURL)
		}
		report, err = c.fetchReport(ctx, rawURL)
		if err != nil || report.ResponseCode != 1 {
			return c.mock(rawURL)
		}
	}
	return c.parseReport(report)
}

func (c *ReputationClient) fetchReport(ctx context.Context, rawURL string) (*reputationReport, error) {
	form := url.Values{}
	form.Set("apikey", c.Cfg.APIKey)
	form.Set("resource", rawURL)
	body, err := c.postForm(ctx, c.Cfg.BaseURL+"/url/report", form)
	if err != nil {
		return nil, err
	}
	var report reputationReport
	if err := json.Unmarshal(body, &report); err != nil {
		return nil, fmt.Errorf("bad report payload: %w", err)
	}
	return &report, nil
}

func (c *ReputationClient) submitScan(ctx context.Context, rawURL string) error {
	form := url.Values{}
	form.Set("apikey", c.Cfg.APIKey)
	form.Set("url", rawURL)
	body, err := c.postForm(ctx, c.Cfg.BaseURL+"/url/scan", form)
	if err != nil {
		return err
	}
	var result reputationScanResult
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("bad scan payload: %w", err)
	}
	if result.ResponseCode != 1 {
		return fmt.Errorf("scan not queued: %s", result.VerboseMsg)
	}
	return nil
}

func (c *ReputationClient) postForm(ctx context.Context, target string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return readAll(resp)
}

func (c *ReputationClient) parseReport(report *reputationReport) ReputationAnalysis {
	isClean := report.Positives == 0

	// Engine names are sorted so the threat list is stable across runs.
	engines := make([]string, 0, len(report.Scans))
	for name := range report.Scans {
		engines = append(engines, name)
	}
	sort.Strings(engines)

	seen := make(map[string]bool)
	threats := []string{}
	for _, name := range engines {
		result := report.Scans[name]
		if result.Detected && result.Result != "" && !seen[result.Result] {
			seen[result.Result] = true
			threats = append(threats, result.Result)
		}
	}

	raw, err := json.Marshal(report)
	if err != nil {
		raw = nil
	}
	return ReputationAnalysis{
		IsClean:        isClean,
		Positives:      report.Positives,
		Total:          report.Total,
		DetectionRatio: fmt.Sprintf("%d/%d", report.Positives, report.Total),
		ScanDate:       report.ScanDate,
		Permalink:      report.Permalink,
		Threats:        threats,
		RiskScore:      ReputationRiskScore(report.Positives, report.Total),
		RawData:        raw,
	}
}

func (c *ReputationClient) mock(rawURL string) ReputationAnalysis {
	isClean := c.Synth.Float64() > 0.1
	total := 67
	positives := 0
	threats := []string{}
	if !isClean {
		positives = c.Synth.Intn(5) + 1
		threats = []string{"Malware", "Phishing"}
		if positives < 2 {
			threats = threats[:1]
		}
	}
	return ReputationAnalysis{
		IsClean:        isClean,
		Positives:      positives,
		Total:          total,
		DetectionRatio: fmt.Sprintf("%d/%d", positives, total),
		ScanDate:       time.Now().UTC().Format(time.RFC3339),
		Permalink:      fmt.Sprintf("https://www.virustotal.com/gui/url/%s", urlID(rawURL)),
		Threats:        threats,
		RiskScore:      ReputationRiskScore(positives, total),
		RawData:        nil,
	}
}

// ReputationRiskScore buckets the detection ratio into 0/25/50/75/100.
func ReputationRiskScore(positives, total int) int {
	if total == 0 || positives == 0 {
		return 0
	}
	ratio := float64(positives) / float64(total)
	switch {
	case ratio <= 0.1:
		return 25
	case ratio <= 0.3:
		return 50
	case ratio <= 0.6:
		return 75
	default:
		return 100
	}
}

// urlID derives the stable identifier the provider keys URL reports on.
func urlID(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}
