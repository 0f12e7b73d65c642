// Package providers wraps the external security data sources a URL check
// fans out to. Every client in this package follows the same contract:
// Analyze never fails. If a provider is unconfigured, unreachable, or
// returns garbage, the client degrades to a synthetic record whose raw
// payload is nil so callers can tell real data from simulated data.
package providers

import (
	"bytes"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const defaultTimeout = 10 * time.Second

// Config is the per-provider configuration surface. A missing key or a
// recognizable placeholder (your_..._here) switches the client into mock
// mode, which is a supported state rather than an error.
type Config struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
}

func (c Config) Configured() bool {
	if c.APIKey == "" {
		return false
	}
	if strings.HasPrefix(c.APIKey, "your_") && strings.HasSuffix(c.APIKey, "_here") {
		return false
	}
	return true
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultTimeout}
}

// Synth is the randomness source behind synthetic records. It exists so
// tests can seed it and get deterministic mock data.
type Synth struct {
	mu sync.Mutex
	r  *rand.Rand
}

func NewSynth(seed int64) *Synth {
	return &Synth{r: rand.New(rand.NewSource(seed))}
}

func newDefaultSynth() *Synth {
	return NewSynth(time.Now().UnixNano())
}

func (s *Synth) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}

func (s *Synth) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Intn(n)
}

func readAll(resp *http.Response) ([]byte, error) {
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func hostnameOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return u.Hostname(), nil
}

func daysUntil(t time.Time) int {
	return int(math.Ceil(time.Until(t).Hours() / 24))
}

func daysSince(t time.Time) int {
	return int(math.Ceil(time.Since(t).Hours() / 24))
}
