package providers

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"log"
	"net"
	"net/url"
	"time"
)

// CertificateAnalysis is the normalized TLS certificate signal.
type CertificateAnalysis struct {
	Valid               bool   `json:"valid"`
	ExpiresOn           string `json:"expires_on"`
	IssuedBy            string `json:"issued_by"`
	IssuedTo            string `json:"issued_to"`
	DaysUntilExpiration *int   `json:"days_until_expiration"`
	RiskScore           int    `json:"risk_score"`
	Details             string `json:"details"`
}

// PlaceholderCertificateAnalysis is the fixed record substituted for plain
// http URLs, where no handshake is attempted at all.
func PlaceholderCertificateAnalysis() CertificateAnalysis {
	return CertificateAnalysis{
		Valid:     false,
		RiskScore: 20,
		Details:   "No HTTPS connection",
	}
}

// CertificateClient inspects the certificate presented on a TLS handshake
// to the target host. The handshake itself never rejects on validation
// failure; the chain is verified separately so an invalid certificate is a
// finding, not an error.
type CertificateClient struct {
	Port        string
	DialTimeout time.Duration
	Log         *log.Logger
}

func NewCertificateClient() *CertificateClient {
	return &CertificateClient{
		Port:        "443",
		DialTimeout: defaultTimeout,
		Log:         log.Default(),
	}
}

func (c *CertificateClient) Analyze(ctx context.Context, rawURL string) CertificateAnalysis {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		c.Log.Println("certificate: bad hostname:", err)
		return failedCertificateCheck()
	}
	if u.Scheme != "https" {
		return PlaceholderCertificateAnalysis()
	}
	host := u.Hostname()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: c.DialTimeout},
		Config: &tls.Config{
			ServerName:         host,
			InsecureSkipVerify: true,
		},
	}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, c.Port))
	if err != nil {
		c.Log.Println("certificate: handshake error:", err)
		return failedCertificateCheck()
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return failedCertificateCheck()
	}
	return inspectCertificates(host, state.PeerCertificates)
}

func inspectCertificates(host string, chain []*x509.Certificate) CertificateAnalysis {
	leaf := chain[0]

	intermediates := x509.NewCertPool()
	for _, cert := range chain[1:] {
		intermediates.AddCert(cert)
	}
	_, err := leaf.Verify(x509.VerifyOptions{
		DNSName:       host,
		Intermediates: intermediates,
	})
	valid := err == nil

	expiry := daysUntil(leaf.NotAfter)
	riskScore := 0
	details := "SSL certificate is valid."
	if !valid {
		details = "SSL certificate is invalid or self-signed."
	} else if expiry < 30 {
		riskScore = 20
		details = "SSL certificate is expiring soon!"
	}

	issuedBy := leaf.Issuer.CommonName
	if len(leaf.Issuer.Organization) > 0 {
		issuedBy = leaf.Issuer.Organization[0]
	}
	return CertificateAnalysis{
		Valid:               valid,
		ExpiresOn:           leaf.NotAfter.UTC().Format(time.RFC3339),
		IssuedBy:            issuedBy,
		IssuedTo:            leaf.Subject.CommonName,
		DaysUntilExpiration: &expiry,
		RiskScore:           riskScore,
		Details:             details,
	}
}

func failedCertificateCheck() CertificateAnalysis {
	return CertificateAnalysis{
		Valid:     false,
		RiskScore: 50,
		Details:   "Failed to check SSL certificate.",
	}
}
