package providers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"
	"golang.org/x/net/publicsuffix"
)

// RegistrationAnalysis is the normalized WHOIS signal. Data is nil when the
// record was synthesized locally.
type RegistrationAnalysis struct {
	IsAvailable         bool                `json:"is_available"`
	DomainAgeDays       *int                `json:"domain_age_days"`
	DaysUntilExpiration *int                `json:"days_until_expiration"`
	Registrar           string              `json:"registrar"`
	RiskScore           int                 `json:"risk_score"`
	Details             string              `json:"details"`
	Data                *RegistrationRecord `json:"data,omitempty"`
}

// RegistrationRecord carries the parsed registration fields for display.
type RegistrationRecord struct {
	Domain         string   `json:"domain"`
	Registrar      string   `json:"registrar"`
	CreatedDate    string   `json:"created_date"`
	ExpirationDate string   `json:"expiration_date"`
	NameServers    []string `json:"name_servers"`
	Status         []string `json:"status"`
	Raw            string   `json:"raw"`
}

// RegistrationClient resolves domain registration records over the WHOIS
// protocol. Lookup is injectable for tests.
type RegistrationClient struct {
	Lookup func(ctx context.Context, domain string) (string, error)
	Log    *log.Logger
	Synth  *Synth
}

func NewRegistrationClient() *RegistrationClient {
	client := whois.NewClient()
	client.SetTimeout(defaultTimeout)
	return &RegistrationClient{
		Lookup: func(ctx context.Context, domain string) (string, error) {
			return client.Whois(domain)
		},
		Log:   log.Default(),
		Synth: newDefaultSynth(),
	}
}

func (c *RegistrationClient) Analyze(ctx context.Context, rawURL string) RegistrationAnalysis {
	domain, err := hostnameOf(rawURL)
	if err != nil || domain == "" {
		c.Log.Println("registration: bad hostname:", err)
		return c.mock()
	}
	// WHOIS servers answer for the registrable domain, not subdomains.
	if apex, err := publicsuffix.EffectiveTLDPlusOne(domain); err == nil {
		domain = apex
	}
	raw, err := c.Lookup(ctx, domain)
	if err != nil {
		c.Log.Println("registration: lookup error:", err)
		return c.mock()
	}
	return analyzeRegistration(raw, domain)
}

func analyzeRegistration(raw, domain string) RegistrationAnalysis {
	lower := strings.ToLower(raw)
	notFound := strings.Contains(lower, "no match") || strings.Contains(lower, "not found")

	info, err := whoisparser.Parse(raw)
	if err != nil {
		if errors.Is(err, whoisparser.ErrNotFoundDomain) || notFound {
			return unregisteredDomain()
		}
		// Unparseable but present registration text: keep what little we
		// know rather than synthesizing.
		return RegistrationAnalysis{
			IsAvailable: false,
			RiskScore:   0,
			Details:     "Domain information available",
			Data:        &RegistrationRecord{Domain: domain, Raw: raw},
		}
	}
	if notFound {
		return unregisteredDomain()
	}

	record := &RegistrationRecord{Domain: domain, Raw: raw}
	var ageDays, expiryDays *int
	if info.Domain != nil {
		record.CreatedDate = info.Domain.CreatedDate
		record.ExpirationDate = info.Domain.ExpirationDate
		record.NameServers = info.Domain.NameServers
		record.Status = info.Domain.Status
		if info.Domain.CreatedDateInTime != nil {
			d := daysSince(*info.Domain.CreatedDateInTime)
			if d > 0 {
				ageDays = &d
			}
		}
		if info.Domain.ExpirationDateInTime != nil {
			d := daysUntil(*info.Domain.ExpirationDateInTime)
			expiryDays = &d
		}
	}
	if info.Registrar != nil {
		record.Registrar = info.Registrar.Name
	}

	riskScore := 0
	var details strings.Builder
	if ageDays != nil {
		switch {
		case *ageDays < 30:
			riskScore += 30
			details.WriteString("Very new domain (high risk). ")
		case *ageDays < 180:
			riskScore += 15
			details.WriteString("New domain (moderate risk). ")
		case *ageDays > 365*2:
			details.WriteString("Established domain (low risk). ")
		}
	}
	if expiryDays != nil {
		switch {
		case *expiryDays < 30:
			riskScore += 20
			details.WriteString("Domain expires soon. ")
		case *expiryDays > 365:
			details.WriteString("Domain has long-term registration. ")
		}
	}
	if strings.Contains(lower, "privacy") || strings.Contains(lower, "redacted") {
		details.WriteString("WHOIS privacy protection enabled. ")
	}

	text := strings.TrimSpace(details.String())
	if text == "" {
		text = "Domain information available"
	}
	return RegistrationAnalysis{
		IsAvailable:         false,
		DomainAgeDays:       ageDays,
		DaysUntilExpiration: expiryDays,
		Registrar:           record.Registrar,
		RiskScore:           riskScore,
		Details:             text,
		Data:                record,
	}
}

func unregisteredDomain() RegistrationAnalysis {
	return RegistrationAnalysis{
		IsAvailable: true,
		RiskScore:   100,
		Details:     "Domain is not registered (very high risk)",
	}
}

func (c *RegistrationClient) mock() RegistrationAnalysis {
	ageDays := c.Synth.Intn(1000) + 365
	expiryDays := c.Synth.Intn(365) + 30
	riskScore := 0
	if ageDays < 180 {
		riskScore = 15
	}
	return RegistrationAnalysis{
		IsAvailable:         false,
		DomainAgeDays:       &ageDays,
		DaysUntilExpiration: &expiryDays,
		Registrar:           "Mock Registrar Inc.",
		RiskScore:           riskScore,
		Details:             fmt.Sprintf("Domain age: %d years (mock data)", ageDays/365),
		Data:                nil,
	}
}
