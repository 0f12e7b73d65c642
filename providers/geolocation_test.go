package providers

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testGeolocationClient(ts *httptest.Server) *GeolocationClient {
	c := NewGeolocationClient(Config{APIKey: "testtoken", BaseURL: ts.URL})
	c.HTTP = ts.Client()
	c.Log = log.New(io.Discard, "", 0)
	c.Synth = NewSynth(1)
	return c
}

func TestGeolocationAnalyze(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/example.com" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("token") != "testtoken" {
			t.Errorf("missing token in query")
		}
		fmt.Fprint(w, `{
			"ip": "203.0.113.10",
			"city": "Dallas",
			"region": "Texas",
			"country": "US",
			"loc": "32.7767,-96.7970",
			"org": "AS13335 Example Hosting",
			"timezone": "America/Chicago"
		}`)
	}))
	defer ts.Close()

	result := testGeolocationClient(ts).Analyze(context.Background(), "https://example.com/page")

	if !result.IsLocated {
		t.Errorf("expected a located result")
	}
	if result.Location != "Dallas, Texas, US" {
		t.Errorf("location = %s; want Dallas, Texas, US", result.Location)
	}
	if result.Details != "Server located in Dallas, Texas, US" {
		t.Errorf("unexpected details: %s", result.Details)
	}
	if result.RiskScore != 0 {
		t.Errorf("geolocation must never contribute risk, got %d", result.RiskScore)
	}
	if result.RawData == nil {
		t.Errorf("expected raw provider data on a live result")
	}
}

func TestParseGeolocationUnknownLocation(t *testing.T) {
	result := parseGeolocation(geolocationResponse{IP: "203.0.113.10"}, []byte(`{}`))

	if result.IsLocated {
		t.Errorf("empty location should not count as located")
	}
	if result.Location != "Unknown" {
		t.Errorf("location = %s; want Unknown", result.Location)
	}
	if result.Details != "Server located in Unknown" {
		t.Errorf("unexpected details: %s", result.Details)
	}
}

func TestGeolocationAnalyzeDegradesToMock(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	result := testGeolocationClient(ts).Analyze(context.Background(), "https://example.com")

	if result.RawData != nil {
		t.Errorf("synthetic record must carry nil raw data")
	}
	if result.Details != "Mock geolocation data used (API not configured)" {
		t.Errorf("unexpected details: %s", result.Details)
	}
}

func TestGeolocationAnalyzeUnconfigured(t *testing.T) {
	c := NewGeolocationClient(Config{APIKey: "your_geolocation_token_here"})
	result := c.Analyze(context.Background(), "https://example.com")
	if result.RawData != nil {
		t.Errorf("unconfigured client must synthesize, raw data should be nil")
	}
	if !result.IsLocated {
		t.Errorf("synthetic record still reports a plausible location")
	}
}
