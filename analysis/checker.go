// Package analysis fans a URL check out to every provider, folds the
// results into one weighted risk verdict, and projects that verdict into
// display-ready findings.
package analysis

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"urlsentry/providers"
)

// CombinedAnalysis is the full report for one checked URL: the six
// normalized provider records plus the aggregate verdict.
type CombinedAnalysis struct {
	URL          string                         `json:"url"`
	Reputation   providers.ReputationAnalysis   `json:"reputation"`
	ThreatList   providers.ThreatListAnalysis   `json:"threat_list"`
	Registration providers.RegistrationAnalysis `json:"registration"`
	Certificate  providers.CertificateAnalysis  `json:"certificate"`
	Redirects    providers.RedirectAnalysis     `json:"redirects"`
	Geolocation  providers.GeolocationAnalysis  `json:"geolocation"`
	RiskAnalysis RiskAnalysis                   `json:"risk_analysis"`
	CheckedAt    time.Time                      `json:"checked_at"`
}

type ReputationAnalyzer interface {
	Analyze(ctx context.Context, rawURL string) providers.ReputationAnalysis
}

type ThreatListAnalyzer interface {
	Analyze(ctx context.Context, rawURL string) providers.ThreatListAnalysis
}

type RegistrationAnalyzer interface {
	Analyze(ctx context.Context, rawURL string) providers.RegistrationAnalysis
}

type CertificateAnalyzer interface {
	Analyze(ctx context.Context, rawURL string) providers.CertificateAnalysis
}

type RedirectAnalyzer interface {
	Analyze(ctx context.Context, rawURL string) providers.RedirectAnalysis
}

type GeolocationAnalyzer interface {
	Analyze(ctx context.Context, rawURL string) providers.GeolocationAnalysis
}

// Checker coordinates one URL check across all providers. Providers are
// plain interfaces so tests can swap in stubs.
type Checker struct {
	Reputation   ReputationAnalyzer
	ThreatList   ThreatListAnalyzer
	Registration RegistrationAnalyzer
	Certificate  CertificateAnalyzer
	Redirects    RedirectAnalyzer
	Geolocation  GeolocationAnalyzer
	Weights      Weights
	Log          *log.Logger
}

func NewChecker(rep ReputationAnalyzer, tl ThreatListAnalyzer, reg RegistrationAnalyzer, cert CertificateAnalyzer, red RedirectAnalyzer, geo GeolocationAnalyzer) *Checker {
	return &Checker{
		Reputation:   rep,
		ThreatList:   tl,
		Registration: reg,
		Certificate:  cert,
		Redirects:    red,
		Geolocation:  geo,
		Weights:      DefaultWeights(),
		Log:          log.Default(),
	}
}

// CheckURL runs all six provider checks concurrently and joins on all of
// them before combining. Providers never return errors; a panic inside one
// is caught here and replaced with a conservative default so a single bad
// provider cannot sink the whole check. Each goroutine writes a distinct
// field of the result, so no lock is needed.
func (c *Checker) CheckURL(ctx context.Context, rawURL string) CombinedAnalysis {
	result := CombinedAnalysis{URL: rawURL}
	secure := strings.HasPrefix(strings.ToLower(rawURL), "https://")

	var wg sync.WaitGroup
	wg.Add(6)
	go func() {
		defer wg.Done()
		defer c.rescue("reputation", func() { result.Reputation = conservativeReputation() })
		result.Reputation = c.Reputation.Analyze(ctx, rawURL)
	}()
	go func() {
		defer wg.Done()
		defer c.rescue("threatlist", func() { result.ThreatList = conservativeThreatList() })
		result.ThreatList = c.ThreatList.Analyze(ctx, rawURL)
	}()
	go func() {
		defer wg.Done()
		defer c.rescue("registration", func() { result.Registration = conservativeRegistration() })
		result.Registration = c.Registration.Analyze(ctx, rawURL)
	}()
	go func() {
		defer wg.Done()
		defer c.rescue("certificate", func() { result.Certificate = conservativeCertificate() })
		if !secure {
			// No handshake for plain http, just the fixed penalty record.
			result.Certificate = providers.PlaceholderCertificateAnalysis()
			return
		}
		result.Certificate = c.Certificate.Analyze(ctx, rawURL)
	}()
	go func() {
		defer wg.Done()
		defer c.rescue("redirects", func() { result.Redirects = conservativeRedirects(rawURL) })
		result.Redirects = c.Redirects.Analyze(ctx, rawURL)
	}()
	go func() {
		defer wg.Done()
		defer c.rescue("geolocation", func() { result.Geolocation = conservativeGeolocation() })
		result.Geolocation = c.Geolocation.Analyze(ctx, rawURL)
	}()
	wg.Wait()

	result.RiskAnalysis = Combine(c.Weights, result.Reputation, result.ThreatList,
		result.Registration, result.Certificate, result.Redirects, result.Geolocation)
	result.CheckedAt = time.Now().UTC()
	return result
}

// rescue runs inside a deferred call in each provider goroutine. It only
// fires on panic, which is a contract violation by the provider.
func (c *Checker) rescue(name string, fallback func()) {
	if r := recover(); r != nil {
		c.Log.Printf("checker: %s provider panicked: %v", name, r)
		fallback()
	}
}

// Conservative defaults assume the worst for the panicked signal while
// staying within the record's documented ranges.

func conservativeReputation() providers.ReputationAnalysis {
	return providers.ReputationAnalysis{
		IsClean:        false,
		DetectionRatio: "0/0",
		Threats:        []string{},
		RiskScore:      100,
	}
}

func conservativeThreatList() providers.ThreatListAnalysis {
	return providers.ThreatListAnalysis{
		IsSafe:    false,
		Threats:   []string{},
		RiskScore: 50,
		Details:   "Threat list check failed",
	}
}

func conservativeRegistration() providers.RegistrationAnalysis {
	return providers.RegistrationAnalysis{
		IsAvailable: false,
		RiskScore:   50,
		Details:     "Domain registration check failed",
	}
}

func conservativeCertificate() providers.CertificateAnalysis {
	return providers.CertificateAnalysis{
		Valid:     false,
		RiskScore: 50,
		Details:   "Failed to check SSL certificate.",
	}
}

func conservativeRedirects(rawURL string) providers.RedirectAnalysis {
	return providers.RedirectAnalysis{
		Chain:    []providers.RedirectHop{{URL: rawURL, Timestamp: time.Now().UTC()}},
		FinalURL: rawURL,
		Details:  "Redirect check failed",
	}
}

func conservativeGeolocation() providers.GeolocationAnalysis {
	return providers.GeolocationAnalysis{
		Location: "Unknown",
		Details:  "Geolocation unavailable",
	}
}
