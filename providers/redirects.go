package providers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// RedirectHop is one observed response in a navigation chain.
type RedirectHop struct {
	URL        string    `json:"url"`
	StatusCode int       `json:"status_code"`
	Timestamp  time.Time `json:"timestamp"`
}

// RedirectAnalysis is the normalized redirect behavior signal. Chain always
// holds at least one entry and starts with the original URL.
type RedirectAnalysis struct {
	Chain                  []RedirectHop `json:"chain"`
	FinalURL               string        `json:"final_url"`
	TotalRedirects         int           `json:"total_redirects"`
	HasSuspiciousRedirects bool          `json:"has_suspicious_redirects"`
	RiskScore              int           `json:"risk_score"`
	Details                string        `json:"details"`
}

// shortenerMarkers flag link shortener and generic redirector services
// anywhere in a hop URL.
var shortenerMarkers = []string{"bit.ly", "tinyurl", "t.co", "short", "redirect"}

// RedirectTracer follows a URL end to end recording every 3xx hop. The
// default tracer walks Location headers with a non-following HTTP client;
// UseBrowser switches to a headless Chrome navigation that also sees
// script-driven redirects. Either way the tracer degrades to a synthetic
// record on failure.
type RedirectTracer struct {
	HTTP       *http.Client
	MaxHops    int
	UseBrowser bool
	NoSandbox  bool
	Timeout    time.Duration
	Log        *log.Logger
	Synth      *Synth
}

func NewRedirectTracer() *RedirectTracer {
	return &RedirectTracer{
		HTTP: &http.Client{
			Timeout: defaultTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		MaxHops: 10,
		Timeout: defaultTimeout,
		Log:     log.Default(),
		Synth:   newDefaultSynth(),
	}
}

func (t *RedirectTracer) Analyze(ctx context.Context, rawURL string) RedirectAnalysis {
	var (
		chain    []RedirectHop
		finalURL string
		err      error
	)
	if t.UseBrowser {
		chain, finalURL, err = t.traceBrowser(ctx, rawURL)
	} else {
		chain, finalURL, err = t.traceHTTP(ctx, rawURL)
	}
	if err != nil {
		t.Log.Println("redirects: trace error:", err)
		return t.mock(rawURL)
	}
	return analyzeRedirectChain(chain, finalURL, rawURL)
}

// traceHTTP walks Location headers without auto-following, so every hop is
// recorded with its own status code.
func (t *RedirectTracer) traceHTTP(ctx context.Context, rawURL string) ([]RedirectHop, string, error) {
	chain := []RedirectHop{}
	current := rawURL
	for hop := 0; hop <= t.MaxHops; hop++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
		if err != nil {
			return nil, "", err
		}
		resp, err := t.HTTP.Do(req)
		if err != nil {
			return nil, "", err
		}
		chain = append(chain, RedirectHop{
			URL:        current,
			StatusCode: resp.StatusCode,
			Timestamp:  time.Now().UTC(),
		})
		if resp.StatusCode < 300 || resp.StatusCode >= 400 {
			resp.Body.Close()
			return chain, current, nil
		}
		next, err := resp.Location()
		resp.Body.Close()
		if err != nil {
			return chain, current, nil
		}
		current = next.String()
	}
	return chain, current, nil
}

// traceBrowser drives a headless Chrome navigation, collecting 3xx
// document responses. The browser is scoped to this one call and torn down
// on every exit path via the stacked cancels.
func (t *RedirectTracer) traceBrowser(ctx context.Context, rawURL string) ([]RedirectHop, string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if t.NoSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, t.Timeout)
	defer cancelTimeout()

	var mu sync.Mutex
	redirects := []RedirectHop{}
	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || resp.Type != network.ResourceTypeDocument {
			return
		}
		status := int(resp.Response.Status)
		if status >= 300 && status < 400 {
			mu.Lock()
			redirects = append(redirects, RedirectHop{
				URL:        resp.Response.URL,
				StatusCode: status,
				Timestamp:  time.Now().UTC(),
			})
			mu.Unlock()
		}
	})

	var finalURL string
	err := chromedp.Run(browserCtx,
		network.Enable(),
		chromedp.Navigate(rawURL),
		chromedp.Location(&finalURL),
	)
	if err != nil {
		return nil, "", err
	}

	mu.Lock()
	defer mu.Unlock()
	chain := []RedirectHop{}
	if len(redirects) == 0 || redirects[0].URL != rawURL {
		chain = append(chain, RedirectHop{URL: rawURL, StatusCode: http.StatusOK, Timestamp: time.Now().UTC()})
	}
	chain = append(chain, redirects...)
	if finalURL != "" && finalURL != chain[len(chain)-1].URL {
		chain = append(chain, RedirectHop{URL: finalURL, StatusCode: http.StatusOK, Timestamp: time.Now().UTC()})
	}
	if finalURL == "" {
		finalURL = rawURL
	}
	return chain, finalURL, nil
}

func analyzeRedirectChain(chain []RedirectHop, finalURL, originalURL string) RedirectAnalysis {
	if len(chain) == 0 {
		chain = []RedirectHop{{URL: originalURL, StatusCode: http.StatusOK, Timestamp: time.Now().UTC()}}
	}
	if finalURL == "" {
		finalURL = originalURL
	}

	totalRedirects := 0
	for _, hop := range chain {
		if hop.StatusCode >= 300 && hop.StatusCode < 400 {
			totalRedirects++
		}
	}

	riskScore := 0
	suspicious := false
	var details string
	switch totalRedirects {
	case 0:
		details = "No redirects detected - direct connection"
	case 1:
		details = "Single redirect detected"
	default:
		details = fmt.Sprintf("%d redirects detected", totalRedirects)
		if totalRedirects > 3 {
			riskScore += 20
			suspicious = true
			details += " (multiple redirects - potentially suspicious)"
		}
	}

	originHost := ""
	if u, err := url.Parse(originalURL); err == nil {
		originHost = u.Hostname()
	}

scan:
	for _, hop := range chain {
		hopURL := strings.ToLower(hop.URL)
		for _, marker := range shortenerMarkers {
			if strings.Contains(hopURL, marker) {
				riskScore += 15
				suspicious = true
				details += " (contains URL shorteners or suspicious domains)"
				break scan
			}
		}
		if u, err := url.Parse(hop.URL); err == nil && originHost != "" && u.Hostname() != originHost {
			riskScore += 10
			details += " (redirects to different domain)"
		}
	}

	return RedirectAnalysis{
		Chain:                  chain,
		FinalURL:               finalURL,
		TotalRedirects:         totalRedirects,
		HasSuspiciousRedirects: suspicious,
		RiskScore:              riskScore,
		Details:                details,
	}
}

func (t *RedirectTracer) mock(rawURL string) RedirectAnalysis {
	now := time.Now().UTC()
	if t.Synth.Float64() > 0.7 && strings.HasPrefix(rawURL, "http://") {
		upgraded := strings.Replace(rawURL, "http://", "https://", 1)
		return RedirectAnalysis{
			Chain: []RedirectHop{
				{URL: rawURL, StatusCode: http.StatusMovedPermanently, Timestamp: now},
				{URL: upgraded, StatusCode: http.StatusOK, Timestamp: now},
			},
			FinalURL:       upgraded,
			TotalRedirects: 1,
			RiskScore:      0,
			Details:        "HTTP to HTTPS redirect (mock data)",
		}
	}
	return RedirectAnalysis{
		Chain:          []RedirectHop{{URL: rawURL, StatusCode: http.StatusOK, Timestamp: now}},
		FinalURL:       rawURL,
		TotalRedirects: 0,
		RiskScore:      0,
		Details:        "No redirects detected (mock data)",
	}
}
