package analysis

import (
	"fmt"
	"math"

	"urlsentry/providers"
)

// Verdict is the combined risk classification for a checked URL.
type Verdict string

const (
	VerdictSafe    Verdict = "safe"
	VerdictWarning Verdict = "warning"
	VerdictUnsafe  Verdict = "unsafe"
)

// RiskAnalysis is the aggregate verdict produced by Combine.
type RiskAnalysis struct {
	OverallRisk Verdict  `json:"overall_risk"`
	RiskScore   int      `json:"risk_score"`
	Reasons     []string `json:"reasons"`
	Confidence  int      `json:"confidence"`
	Summary     string   `json:"summary"`
}

// Weights holds the per-signal multipliers and verdict thresholds. The
// defaults are a design choice, not calibrated constants, which is exactly
// why they live in one tunable place.
type Weights struct {
	Reputation   float64
	ThreatList   float64
	Registration float64
	Certificate  float64
	Redirects    float64
	Geolocation  float64
	WarnAbove    int
	UnsafeAbove  int
}

func DefaultWeights() Weights {
	return Weights{
		Reputation:   0.4,
		ThreatList:   0.2,
		Registration: 0.1,
		Certificate:  0.1,
		Redirects:    0.1,
		Geolocation:  0,
		WarnAbove:    30,
		UnsafeAbove:  60,
	}
}

// Combine folds the six provider records into one weighted verdict. It is a
// pure function: same records in, byte-identical RiskAnalysis out. Reasons
// keep first-seen order and never repeat.
func Combine(w Weights, rep providers.ReputationAnalysis, tl providers.ThreatListAnalysis,
	reg providers.RegistrationAnalysis, cert providers.CertificateAnalysis,
	red providers.RedirectAnalysis, geo providers.GeolocationAnalysis) RiskAnalysis {

	totalRisk := 0.0
	reasons := []string{}
	seen := make(map[string]bool)
	addReason := func(text string) {
		if text == "" || seen[text] {
			return
		}
		seen[text] = true
		reasons = append(reasons, text)
	}

	if !rep.IsClean {
		totalRisk += float64(rep.RiskScore) * w.Reputation
		addReason(fmt.Sprintf("Reputation scan: detected threats (%s)", rep.DetectionRatio))
	} else {
		addReason("Reputation scan: no threats detected")
	}

	if !tl.IsSafe {
		totalRisk += float64(tl.RiskScore) * w.ThreatList
		addReason("Threat list: threats detected")
	} else {
		addReason("Threat list: no threats detected")
	}

	// An unregistered domain is the risky case; a registered one is only
	// described, never penalized here. Its own details string is the reason
	// either way.
	if reg.IsAvailable {
		totalRisk += float64(reg.RiskScore) * w.Registration
	}
	addReason(reg.Details)

	if !cert.Valid {
		totalRisk += float64(cert.RiskScore) * w.Certificate
	}
	addReason(cert.Details)

	if red.TotalRedirects > 0 {
		totalRisk += float64(red.RiskScore) * w.Redirects
	}
	addReason(red.Details)

	// Informational only. The weight is zero but kept in the formula so it
	// stays tunable alongside the others.
	totalRisk += float64(geo.RiskScore) * w.Geolocation
	addReason(geo.Details)

	riskScore := int(math.Round(totalRisk))
	if riskScore < 0 {
		riskScore = 0
	}

	verdict := VerdictSafe
	summary := "Low risk, appears safe"
	switch {
	case riskScore > w.UnsafeAbove:
		verdict = VerdictUnsafe
		summary = "High risk detected"
	case riskScore > w.WarnAbove:
		verdict = VerdictWarning
		summary = "Moderate risk, proceed with caution"
	}

	confidence := 80
	if rep.RawData != nil && tl.RawData != nil {
		confidence = 100
	}

	return RiskAnalysis{
		OverallRisk: verdict,
		RiskScore:   riskScore,
		Reasons:     reasons,
		Confidence:  confidence,
		Summary:     summary,
	}
}
