package rules

import (
	"strings"

	"cloudauditor/internal/analysis"
	"cloudauditor/internal/collectors"
	"cloudauditor/internal/domain"
)

// check evaluates one control. It returns na when the evidence it needs was
// not collected.
type check func(b *domain.Bundle) domain.ControlStatus

type control struct {
	id       string
	desc     string
	category string
	severity domain.Severity
	eval     check
}

type framework struct {
	name     string
	short    string
	controls []control
}

var catalog = []framework{
	{
		name:  "OWASP Top 10 2021",
		short: "OWASP",
		controls: []control{
			{"A01:2021", "Cross-origin reads are restricted to trusted origins", "Broken Access Control", domain.SeverityMedium, corsRestricted},
			{"A02:2021", "Site is served over HTTPS", "Cryptographic Failures", domain.SeverityHigh, httpsReachable},
			{"A02:2021", "Strict-Transport-Security is enforced", "Cryptographic Failures", domain.SeverityMedium, hstsEnforced},
			{"A03:2021", "Content-Security-Policy limits script sources", "Injection", domain.SeverityHigh, hasHeader("content-security-policy")},
			{"A04:2021", "Framing by other origins is blocked", "Insecure Design", domain.SeverityMedium, framingBlocked},
			{"A05:2021", "MIME sniffing is disabled", "Security Misconfiguration", domain.SeverityLow, hasHeader("x-content-type-options")},
			{"A05:2021", "Server software versions are not disclosed", "Security Misconfiguration", domain.SeverityLow, noVersionDisclosure},
			{"A06:2021", "No known CVEs are reported for the host", "Vulnerable and Outdated Components", domain.SeverityHigh, noKnownCVEs},
		},
	},
	{
		name:  "CIS Critical Security Controls v8",
		short: "CIS",
		controls: []control{
			{"CIS 3.10", "Sensitive data is encrypted in transit", "Data Protection", domain.SeverityHigh, httpsReachable},
			{"CIS 4.1", "Secure configuration hides software banners", "Secure Configuration", domain.SeverityLow, noVersionDisclosure},
			{"CIS 4.4", "Database and cache services are not internet facing", "Secure Configuration", domain.SeverityHigh, noExposed(false)},
			{"CIS 4.8", "Remote administration services are not internet facing", "Secure Configuration", domain.SeverityHigh, noExposed(true)},
			{"CIS 7.1", "Known vulnerabilities are remediated", "Vulnerability Management", domain.SeverityHigh, noKnownCVEs},
			{"CIS 9.5", "DMARC policy is published", "Email Protections", domain.SeverityMedium, dmarcPublished},
			{"CIS 12.6", "Transport security is enforced with HSTS", "Network Infrastructure", domain.SeverityMedium, hstsEnforced},
			{"CIS 16.1", "Browser hardening headers are deployed", "Application Security", domain.SeverityMedium, browserHardened},
		},
	},
	{
		name:  "NIST Cybersecurity Framework",
		short: "NIST",
		controls: []control{
			{"ID.RA-1", "Asset vulnerabilities are identified and addressed", "Risk Assessment", domain.SeverityHigh, noKnownCVEs},
			{"PR.AC-5", "Network integrity is protected from cross-origin access", "Access Control", domain.SeverityMedium, corsRestricted},
			{"PR.DS-2", "Data in transit is protected", "Data Security", domain.SeverityHigh, httpsReachable},
			{"PR.DS-5", "Referrer data leakage is limited", "Data Security", domain.SeverityLow, hasHeader("referrer-policy")},
			{"PR.DS-6", "Outbound mail is authenticated with SPF and DKIM", "Data Security", domain.SeverityMedium, mailAuthenticated},
			{"PR.IP-1", "Baseline security headers are configured", "Information Protection", domain.SeverityMedium, allRequiredHeaders},
			{"PR.PT-4", "Communications networks expose no risky services", "Protective Technology", domain.SeverityHigh, noRiskyPorts},
		},
	},
}

func frameworks(b *domain.Bundle) []analysis.FrameworkDraft {
	out := make([]analysis.FrameworkDraft, 0, len(catalog))
	for _, fw := range catalog {
		d := analysis.FrameworkDraft{Name: fw.name, ShortName: fw.short, Controls: make([]analysis.ControlDraft, 0, len(fw.controls))}
		for _, c := range fw.controls {
			d.Controls = append(d.Controls, analysis.ControlDraft{
				ControlID:   c.id,
				Description: c.desc,
				Status:      string(c.eval(b)),
				Category:    c.category,
				Severity:    string(c.severity),
			})
		}
		out = append(out, d)
	}
	return out
}

func passIf(ok bool) domain.ControlStatus {
	if ok {
		return domain.ControlPass
	}
	return domain.ControlFail
}

func hasHeader(name string) check {
	return func(b *domain.Bundle) domain.ControlStatus {
		if b.Headers == nil {
			return domain.ControlNA
		}
		return passIf(b.Headers.Present[name] != "")
	}
}

func corsRestricted(b *domain.Bundle) domain.ControlStatus {
	if b.Headers == nil {
		return domain.ControlNA
	}
	return passIf(strings.TrimSpace(b.Headers.Present["access-control-allow-origin"]) != "*")
}

func framingBlocked(b *domain.Bundle) domain.ControlStatus {
	if b.Headers == nil {
		return domain.ControlNA
	}
	csp := strings.ToLower(b.Headers.Present["content-security-policy"])
	return passIf(b.Headers.Present["x-frame-options"] != "" || strings.Contains(csp, "frame-ancestors"))
}

func noVersionDisclosure(b *domain.Bundle) domain.ControlStatus {
	if b.Headers == nil {
		return domain.ControlNA
	}
	return passIf(!versionRe.MatchString(b.Headers.Present["server"]) && b.Headers.Present["x-powered-by"] == "")
}

func browserHardened(b *domain.Bundle) domain.ControlStatus {
	if b.Headers == nil {
		return domain.ControlNA
	}
	return passIf(b.Headers.Present["content-security-policy"] != "" && framingBlocked(b) == domain.ControlPass)
}

func allRequiredHeaders(b *domain.Bundle) domain.ControlStatus {
	if b.Headers == nil {
		return domain.ControlNA
	}
	for _, name := range collectors.RequiredHeaders {
		if b.Headers.Present[name] == "" {
			return domain.ControlFail
		}
	}
	return domain.ControlPass
}

func httpsReachable(b *domain.Bundle) domain.ControlStatus {
	if b.TLS == nil {
		return domain.ControlNA
	}
	return passIf(b.TLS.Reachable)
}

func hstsEnforced(b *domain.Bundle) domain.ControlStatus {
	switch {
	case b.TLS != nil:
		return passIf(b.TLS.Reachable && b.TLS.SupportsHSTS)
	case b.Headers != nil:
		return passIf(b.Headers.Present["strict-transport-security"] != "")
	}
	return domain.ControlNA
}

func noKnownCVEs(b *domain.Bundle) domain.ControlStatus {
	if b.HostIntel == nil {
		return domain.ControlNA
	}
	return passIf(len(b.HostIntel.Vulns) == 0)
}

func noExposed(remote bool) check {
	return func(b *domain.Bundle) domain.ControlStatus {
		if b.HostIntel == nil {
			return domain.ControlNA
		}
		for _, p := range b.HostIntel.Ports {
			if svc, ok := riskyPorts[p]; ok && svc.remote == remote {
				return domain.ControlFail
			}
		}
		return domain.ControlPass
	}
}

func noRiskyPorts(b *domain.Bundle) domain.ControlStatus {
	if b.HostIntel == nil {
		return domain.ControlNA
	}
	for _, p := range b.HostIntel.Ports {
		if _, ok := riskyPorts[p]; ok {
			return domain.ControlFail
		}
	}
	return domain.ControlPass
}

func dmarcPublished(b *domain.Bundle) domain.ControlStatus {
	if b.DNS == nil {
		return domain.ControlNA
	}
	return passIf(b.DNS.HasDMARC)
}

func mailAuthenticated(b *domain.Bundle) domain.ControlStatus {
	if b.DNS == nil {
		return domain.ControlNA
	}
	return passIf(b.DNS.HasSPF && b.DNS.HasDKIM)
}
