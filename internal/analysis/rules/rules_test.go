package rules

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudauditor/internal/analysis"
	"cloudauditor/internal/domain"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func analyze(t *testing.T, b *domain.Bundle) domain.Analysis {
	t.Helper()
	out, err := New(clockwork.NewFakeClockAt(fixedNow)).Analyze(context.Background(), "s1", b)
	require.NoError(t, err)
	return out
}

func titles(vulns []domain.Vulnerability) []string {
	out := make([]string, 0, len(vulns))
	for _, v := range vulns {
		out = append(out, v.Title)
	}
	return out
}

func findFramework(t *testing.T, a domain.Analysis, short string) domain.ComplianceFramework {
	t.Helper()
	for _, fw := range a.Frameworks {
		if fw.ShortName == short {
			return fw
		}
	}
	t.Fatalf("framework %s not found", short)
	return domain.ComplianceFramework{}
}

func TestEmptyBundleYieldsOnlyNAControls(t *testing.T) {
	a := analyze(t, &domain.Bundle{TargetURL: "https://example.com", Technologies: []string{}})

	assert.Empty(t, a.Vulnerabilities)
	assert.Empty(t, a.Threats)
	require.Len(t, a.Frameworks, 3)
	for _, fw := range a.Frameworks {
		assert.Equal(t, fw.TotalControls, fw.NAControls, fw.ShortName)
		assert.Zero(t, fw.Score, fw.ShortName)
	}
	assert.Equal(t, 8, findFramework(t, a, "OWASP").TotalControls)
	assert.Equal(t, 8, findFramework(t, a, "CIS").TotalControls)
	assert.Equal(t, 7, findFramework(t, a, "NIST").TotalControls)
}

func TestMissingHeadersBecomeFindings(t *testing.T) {
	a := analyze(t, &domain.Bundle{
		TargetURL: "https://example.com",
		Headers: &domain.HeaderEvidence{
			Present: map[string]string{
				"server":                      "nginx/1.18.0",
				"access-control-allow-origin": "*",
				"x-frame-options":             "DENY",
				"x-content-type-options":      "nosniff",
				"referrer-policy":             "no-referrer",
				"permissions-policy":          "camera=()",
			},
			Missing: []string{"content-security-policy", "strict-transport-security"},
		},
	})

	assert.ElementsMatch(t, []string{
		"Missing Content-Security-Policy header",
		"Missing Strict-Transport-Security header",
		"Server version disclosed",
		"Permissive CORS policy",
	}, titles(a.Vulnerabilities))

	for _, v := range a.Vulnerabilities {
		assert.Equal(t, domain.VulnOpen, v.Status)
		assert.Equal(t, fixedNow, v.DiscoveredAt)
		if v.Title == "Missing Content-Security-Policy header" {
			assert.Equal(t, domain.SeverityHigh, v.Severity)
			assert.Equal(t, 6.1, v.CVSSScore)
		}
	}
	assert.Equal(t, "vuln-s1-1", a.Vulnerabilities[0].ID)

	owasp := findFramework(t, a, "OWASP")
	byDesc := map[string]domain.ControlStatus{}
	for _, c := range owasp.Controls {
		byDesc[c.Description] = c.Status
	}
	assert.Equal(t, domain.ControlFail, byDesc["Cross-origin reads are restricted to trusted origins"])
	assert.Equal(t, domain.ControlPass, byDesc["Framing by other origins is blocked"])
	assert.Equal(t, domain.ControlNA, byDesc["Site is served over HTTPS"])
	assert.Equal(t, domain.ControlNA, byDesc["No known CVEs are reported for the host"])

	require.NotEmpty(t, a.Threats)
	assert.Equal(t, "Client-side injection and clickjacking", a.Threats[0].Type)
}

func TestHostIntelFindingsArePassive(t *testing.T) {
	a := analyze(t, &domain.Bundle{
		TargetURL: "https://example.com",
		HostIntel: &domain.HostIntel{
			IP:    "203.0.113.7",
			Ports: []int{22, 443, 6379},
			Vulns: []string{"CVE-2023-44487"},
		},
	})

	assert.ElementsMatch(t, []string{
		"CVE-2023-44487 reported for host",
		"SSH service exposed on port 22",
		"Redis service exposed on port 6379",
	}, titles(a.Vulnerabilities))
	for _, v := range a.Vulnerabilities {
		assert.Contains(t, v.Description, "Passive host intelligence")
	}

	cis := findFramework(t, a, "CIS")
	for _, c := range cis.Controls {
		switch c.ControlID {
		case "CIS 4.4", "CIS 4.8", "CIS 7.1":
			assert.Equal(t, domain.ControlFail, c.Status, c.ControlID)
		case "CIS 9.5", "CIS 3.10":
			assert.Equal(t, domain.ControlNA, c.Status, c.ControlID)
		}
	}

	types := []string{}
	for _, th := range a.Threats {
		types = append(types, th.Type)
		assert.Equal(t, domain.ThreatActive, th.Status)
	}
	assert.Contains(t, types, "Exploitation of known vulnerabilities")
	assert.Contains(t, types, "Unauthorized access to exposed services")
}

func TestUnreachableTLS(t *testing.T) {
	a := analyze(t, &domain.Bundle{
		TargetURL: "https://example.com",
		TLS:       &domain.TLSEvidence{Reachable: false, Issues: []string{"SSL/TLS connection failed: x509"}},
	})

	require.Len(t, a.Vulnerabilities, 1)
	assert.Equal(t, "HTTPS endpoint not reachable", a.Vulnerabilities[0].Title)
	assert.Equal(t, 7.4, a.Vulnerabilities[0].CVSSScore)
	assert.Contains(t, a.Vulnerabilities[0].Description, "x509")

	nist := findFramework(t, a, "NIST")
	for _, c := range nist.Controls {
		if c.ControlID == "PR.DS-2" {
			assert.Equal(t, domain.ControlFail, c.Status)
		}
	}
}

func TestHSTSFindingOnlyWithoutHeaderEvidence(t *testing.T) {
	tlsOnly := analyze(t, &domain.Bundle{
		TargetURL: "https://example.com",
		TLS:       &domain.TLSEvidence{Reachable: true, Issues: []string{}},
	})
	assert.Equal(t, []string{"HSTS not enabled"}, titles(tlsOnly.Vulnerabilities))

	both := analyze(t, &domain.Bundle{
		TargetURL: "https://example.com",
		TLS:       &domain.TLSEvidence{Reachable: true, Issues: []string{}},
		Headers: &domain.HeaderEvidence{
			Present: map[string]string{},
			Missing: []string{"strict-transport-security"},
		},
	})
	assert.Equal(t, []string{"Missing Strict-Transport-Security header"}, titles(both.Vulnerabilities))
}

func TestDNSFindings(t *testing.T) {
	a := analyze(t, &domain.Bundle{
		TargetURL: "https://example.com",
		DNS:       &domain.DNSEvidence{Records: []domain.DNSRecord{}, HasSPF: true},
	})

	assert.ElementsMatch(t, []string{"Missing DMARC policy", "No DKIM key found for common selectors"}, titles(a.Vulnerabilities))
	for _, v := range a.Vulnerabilities {
		assert.Equal(t, "example.com", v.AffectedResource)
	}

	cis := findFramework(t, a, "CIS")
	assert.Equal(t, 1, cis.FailedControls)
	assert.Equal(t, 7, cis.NAControls)
	assert.Zero(t, cis.Score)
}

func TestAllPassingScoresHundred(t *testing.T) {
	present := map[string]string{
		"strict-transport-security": "max-age=31536000",
		"content-security-policy":   "default-src 'self'",
		"x-frame-options":           "DENY",
		"x-content-type-options":    "nosniff",
		"referrer-policy":           "no-referrer",
		"permissions-policy":        "camera=()",
		"server":                    "nginx",
	}
	a := analyze(t, &domain.Bundle{
		TargetURL: "https://example.com",
		Headers:   &domain.HeaderEvidence{Present: present, Missing: []string{}},
		HostIntel: &domain.HostIntel{IP: "203.0.113.7", Ports: []int{80, 443}, Vulns: []string{}},
		TLS:       &domain.TLSEvidence{Reachable: true, SupportsHSTS: true, Issues: []string{}},
		DNS:       &domain.DNSEvidence{HasSPF: true, HasDKIM: true, HasDMARC: true},
	})

	assert.Empty(t, a.Vulnerabilities)
	assert.Empty(t, a.Threats)
	for _, fw := range a.Frameworks {
		assert.Equal(t, 100, fw.Score, fw.ShortName)
		assert.Zero(t, fw.NAControls, fw.ShortName)
	}
}

func TestAnalyzeRejectsNilBundle(t *testing.T) {
	_, err := New(nil).Analyze(context.Background(), "s1", nil)
	assert.ErrorIs(t, err, analysis.ErrAnalysis)
}
