package analysis

import (
	"fmt"
	"strings"
)

// Finding is one display-ready entry in a check report.
type Finding struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Value       string `json:"value"`
	Category    string `json:"category"`
	Details     string `json:"details"`
}

const (
	StatusSafe    = "safe"
	StatusWarning = "warning"
	StatusDanger  = "danger"

	CategorySecurity  = "security"
	CategoryInfo      = "info"
	CategoryTechnical = "technical"
)

// Project flattens a combined analysis into findings for display: one per
// signal plus the overall verdict, always seven, always in the same order.
// Pure formatting, no I/O.
func Project(ca CombinedAnalysis, rawURL string) []Finding {
	findings := make([]Finding, 0, 7)

	overallStatus := StatusSafe
	switch ca.RiskAnalysis.OverallRisk {
	case VerdictWarning:
		overallStatus = StatusWarning
	case VerdictUnsafe:
		overallStatus = StatusDanger
	}
	findings = append(findings, Finding{
		ID:          "overall",
		Title:       "Overall Safety",
		Description: fmt.Sprintf("Combined verdict for %s", rawURL),
		Status:      overallStatus,
		Value:       fmt.Sprintf("%d/100", ca.RiskAnalysis.RiskScore),
		Category:    CategorySecurity,
		Details:     ca.RiskAnalysis.Summary,
	})

	repStatus := StatusSafe
	repDetails := "No engines flagged this URL"
	if !ca.Reputation.IsClean {
		repStatus = StatusDanger
		repDetails = "Flagged by scan engines"
		if len(ca.Reputation.Threats) > 0 {
			repDetails = "Flagged as: " + strings.Join(ca.Reputation.Threats, ", ")
		}
	}
	findings = append(findings, Finding{
		ID:          "reputation",
		Title:       "Malware Scan",
		Description: "Multi-engine URL reputation lookup",
		Status:      repStatus,
		Value:       ca.Reputation.DetectionRatio + " detections",
		Category:    CategorySecurity,
		Details:     repDetails,
	})

	tlStatus := StatusSafe
	tlValue := "Not listed"
	if !ca.ThreatList.IsSafe {
		tlStatus = StatusDanger
		tlValue = "Listed"
	}
	findings = append(findings, Finding{
		ID:          "threat-list",
		Title:       "Threat List",
		Description: "Known malware and phishing list lookup",
		Status:      tlStatus,
		Value:       tlValue,
		Category:    CategorySecurity,
		Details:     ca.ThreatList.Details,
	})

	regStatus := StatusSafe
	regValue := ca.Registration.Registrar
	switch {
	case ca.Registration.IsAvailable:
		regStatus = StatusDanger
		regValue = "Unregistered"
	case ca.Registration.RiskScore > 0:
		regStatus = StatusWarning
	}
	if regValue == "" {
		regValue = "Unknown registrar"
	}
	findings = append(findings, Finding{
		ID:          "registration",
		Title:       "Domain Registration",
		Description: "WHOIS registration record",
		Status:      regStatus,
		Value:       regValue,
		Category:    CategoryInfo,
		Details:     ca.Registration.Details,
	})

	certStatus := StatusDanger
	certValue := "Invalid"
	switch {
	case ca.Certificate.Valid && ca.Certificate.RiskScore == 0:
		certStatus = StatusSafe
		certValue = "Valid"
	case ca.Certificate.Valid:
		certStatus = StatusWarning
		certValue = "Expiring soon"
	}
	findings = append(findings, Finding{
		ID:          "certificate",
		Title:       "SSL Certificate",
		Description: "TLS certificate presented by the host",
		Status:      certStatus,
		Value:       certValue,
		Category:    CategoryTechnical,
		Details:     ca.Certificate.Details,
	})

	redStatus := StatusSafe
	if ca.Redirects.HasSuspiciousRedirects {
		redStatus = StatusWarning
	}
	findings = append(findings, Finding{
		ID:          "redirects",
		Title:       "Redirect Chain",
		Description: "Where the URL actually lands",
		Status:      redStatus,
		Value:       fmt.Sprintf("%d redirect(s)", ca.Redirects.TotalRedirects),
		Category:    CategoryTechnical,
		Details:     ca.Redirects.Details,
	})

	findings = append(findings, Finding{
		ID:          "geolocation",
		Title:       "Server Location",
		Description: "Where the host is served from",
		Status:      StatusSafe,
		Value:       ca.Geolocation.Location,
		Category:    CategoryInfo,
		Details:     ca.Geolocation.Details,
	})

	return findings
}
