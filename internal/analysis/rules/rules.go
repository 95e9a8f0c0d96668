// Package rules is the built-in analyzer. It derives findings from the
// evidence bundle with fixed rules and never looks past what was collected.
package rules

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jonboulle/clockwork"

	"cloudauditor/internal/analysis"
	"cloudauditor/internal/domain"
	"cloudauditor/internal/ports"
)

var _ ports.Analyzer = (*Analyzer)(nil)

const (
	categoryMisconfig = "Security Misconfiguration"
	categoryCrypto    = "Cryptographic Failures"
	categoryComponent = "Vulnerable Components"
	categoryExposure  = "Network Exposure"
	categoryEmail     = "Email Security"
	categoryDisclose  = "Information Disclosure"

	sourceHostIntel = "Passive host intelligence"
	sourceHeaders   = "HTTP response headers"
	sourceDNS       = "DNS records"
	sourceTLS       = "HTTPS probe"
)

var versionRe = regexp.MustCompile(`\d+\.\d+`)

type headerRule struct {
	title       string
	severity    domain.Severity
	cvss        float64
	description string
	remediation string
}

// missingHeaderRules covers every required header.
var missingHeaderRules = map[string]headerRule{
	"content-security-policy": {
		"Missing Content-Security-Policy header", domain.SeverityHigh, 6.1,
		"The response does not set Content-Security-Policy, so injected scripts run without restriction.",
		"Define a Content-Security-Policy that restricts script, style and frame sources to trusted origins.",
	},
	"strict-transport-security": {
		"Missing Strict-Transport-Security header", domain.SeverityMedium, 5.3,
		"The response does not set Strict-Transport-Security, leaving first visits open to protocol downgrade.",
		"Send Strict-Transport-Security with a max-age of at least one year and includeSubDomains.",
	},
	"x-frame-options": {
		"Missing X-Frame-Options header", domain.SeverityMedium, 4.3,
		"The page can be framed by other origins, enabling clickjacking.",
		"Send X-Frame-Options: DENY or a CSP frame-ancestors directive.",
	},
	"x-content-type-options": {
		"Missing X-Content-Type-Options header", domain.SeverityLow, 3.1,
		"Browsers may MIME-sniff responses into executable content types.",
		"Send X-Content-Type-Options: nosniff on every response.",
	},
	"referrer-policy": {
		"Missing Referrer-Policy header", domain.SeverityLow, 3.1,
		"Full URLs may leak to third parties through the Referer header.",
		"Send Referrer-Policy: strict-origin-when-cross-origin or stricter.",
	},
	"permissions-policy": {
		"Missing Permissions-Policy header", domain.SeverityLow, 2.6,
		"Powerful browser features are not explicitly restricted for embedded content.",
		"Send a Permissions-Policy that disables unused features such as camera, microphone and geolocation.",
	},
}

type exposedService struct {
	name     string
	severity domain.Severity
	cvss     float64
	remote   bool // remote administration rather than data service
}

var riskyPorts = map[int]exposedService{
	21:    {"FTP", domain.SeverityMedium, 5.3, true},
	22:    {"SSH", domain.SeverityMedium, 5.3, true},
	23:    {"Telnet", domain.SeverityHigh, 7.5, true},
	445:   {"SMB", domain.SeverityHigh, 8.1, true},
	3389:  {"RDP", domain.SeverityHigh, 7.5, true},
	5900:  {"VNC", domain.SeverityHigh, 7.5, true},
	1433:  {"MSSQL", domain.SeverityHigh, 7.5, false},
	3306:  {"MySQL", domain.SeverityHigh, 7.5, false},
	5432:  {"PostgreSQL", domain.SeverityHigh, 7.5, false},
	6379:  {"Redis", domain.SeverityHigh, 8.6, false},
	9200:  {"Elasticsearch", domain.SeverityHigh, 8.6, false},
	11211: {"Memcached", domain.SeverityHigh, 7.5, false},
	27017: {"MongoDB", domain.SeverityHigh, 8.6, false},
}

// Analyzer applies the fixed rule set.
type Analyzer struct {
	clock clockwork.Clock
}

func New(clock clockwork.Clock) *Analyzer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Analyzer{clock: clock}
}

func (a *Analyzer) Analyze(ctx context.Context, scanID string, b *domain.Bundle) (domain.Analysis, error) {
	if b == nil {
		return domain.Analysis{}, &analysis.Error{Reason: "no evidence bundle"}
	}
	if err := ctx.Err(); err != nil {
		return domain.Analysis{}, &analysis.Error{Reason: "cancelled", Err: err}
	}

	d := analysis.Draft{
		Vulnerabilities: vulnerabilities(b),
	}
	d.Threats = threats(b, d.Vulnerabilities)
	d.Frameworks = frameworks(b)

	return analysis.Finalize(scanID, d, a.clock.Now().UTC())
}

func vulnerabilities(b *domain.Bundle) []analysis.VulnerabilityDraft {
	out := []analysis.VulnerabilityDraft{}
	add := func(title string, sev domain.Severity, category string, cvss float64, resource, desc, fix string) {
		out = append(out, analysis.VulnerabilityDraft{
			Title:            title,
			Severity:         string(sev),
			Category:         category,
			CVSSScore:        cvss,
			AffectedResource: resource,
			Status:           string(domain.VulnOpen),
			Description:      desc,
			Remediation:      fix,
		})
	}

	if h := b.Headers; h != nil {
		for _, name := range h.Missing {
			r, ok := missingHeaderRules[name]
			if !ok {
				continue
			}
			add(r.title, r.severity, categoryMisconfig, r.cvss, b.TargetURL, r.description, r.remediation)
		}
		if server := h.Present["server"]; versionRe.MatchString(server) {
			add("Server version disclosed", domain.SeverityLow, categoryDisclose, 3.7, b.TargetURL,
				fmt.Sprintf("The Server header reveals %q, which helps attackers match known exploits.", server),
				"Suppress version details in the Server header.")
		}
		if powered := h.Present["x-powered-by"]; powered != "" {
			add("Technology disclosed via X-Powered-By", domain.SeverityLow, categoryDisclose, 3.7, b.TargetURL,
				fmt.Sprintf("The X-Powered-By header reveals %q.", powered),
				"Remove the X-Powered-By header.")
		}
		if strings.TrimSpace(h.Present["access-control-allow-origin"]) == "*" {
			add("Permissive CORS policy", domain.SeverityMedium, categoryMisconfig, 5.3, b.TargetURL,
				"Access-Control-Allow-Origin is *, allowing any origin to read responses.",
				"Restrict Access-Control-Allow-Origin to trusted origins.")
		}
	}

	if hi := b.HostIntel; hi != nil {
		for _, cve := range hi.Vulns {
			add(cve+" reported for host", domain.SeverityHigh, categoryComponent, 7.5, hi.IP,
				fmt.Sprintf("Passive host intelligence lists %s for %s. It was not verified by active testing.", cve, hi.IP),
				"Confirm the affected software version and apply the vendor patch.")
		}
		for _, port := range hi.Ports {
			svc, ok := riskyPorts[port]
			if !ok {
				continue
			}
			add(fmt.Sprintf("%s service exposed on port %d", svc.name, port), svc.severity, categoryExposure, svc.cvss,
				fmt.Sprintf("%s:%d", hi.IP, port),
				fmt.Sprintf("Passive host intelligence observed port %d (%s) open on %s. No packets were sent to confirm it.", port, svc.name, hi.IP),
				fmt.Sprintf("Restrict %s to trusted networks or a VPN and block it at the firewall.", svc.name))
		}
	}

	if t := b.TLS; t != nil {
		if !t.Reachable {
			add("HTTPS endpoint not reachable", domain.SeverityHigh, categoryCrypto, 7.4, b.TargetURL,
				"The origin could not be reached over HTTPS: "+strings.Join(t.Issues, "; "),
				"Serve the site over HTTPS with a valid certificate.")
		} else if !t.SupportsHSTS && b.Headers == nil {
			// With header evidence present the header rule already reports it.
			add("HSTS not enabled", domain.SeverityMedium, categoryCrypto, 5.3, b.TargetURL,
				"The HTTPS response does not advertise Strict-Transport-Security.",
				"Send Strict-Transport-Security with a max-age of at least one year.")
		}
	}

	if d := b.DNS; d != nil {
		host := hostOf(b.TargetURL)
		if !d.HasSPF {
			add("Missing SPF record", domain.SeverityMedium, categoryEmail, 5.3, host,
				"No v=spf1 TXT record was found, so any server can send mail as this domain.",
				"Publish an SPF record listing authorized senders and ending in -all or ~all.")
		}
		if !d.HasDMARC {
			add("Missing DMARC policy", domain.SeverityMedium, categoryEmail, 5.3, host,
				"No v=DMARC1 record was found at _dmarc, so receivers have no policy for spoofed mail.",
				"Publish a DMARC record, starting with p=none and moving to p=reject.")
		}
		if !d.HasDKIM {
			add("No DKIM key found for common selectors", domain.SeverityLow, categoryEmail, 3.1, host,
				"None of the common DKIM selectors publish a key.",
				"Sign outbound mail with DKIM and publish the selector's public key.")
		}
	}

	return out
}

func hostOf(targetURL string) string {
	host := targetURL
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	return host
}

func threats(b *domain.Bundle, vulns []analysis.VulnerabilityDraft) []analysis.ThreatDraft {
	out := []analysis.ThreatDraft{}
	count := func(category string, titleHas ...string) int {
		n := 0
		for _, v := range vulns {
			if v.Category != category {
				continue
			}
			if len(titleHas) == 0 {
				n++
				continue
			}
			for _, s := range titleHas {
				if strings.Contains(v.Title, s) {
					n++
					break
				}
			}
		}
		return n
	}
	add := func(typ string, sev domain.Severity, source, desc, action string, related int) {
		out = append(out, analysis.ThreatDraft{
			Type:              typ,
			Severity:          string(sev),
			Source:            source,
			Description:       desc,
			Status:            string(domain.ThreatActive),
			RelatedFindings:   related,
			RecommendedAction: action,
		})
	}

	if n := count(categoryComponent); n > 0 {
		sev := domain.SeverityHigh
		if n >= 3 {
			sev = domain.SeverityCritical
		}
		add("Exploitation of known vulnerabilities", sev, sourceHostIntel,
			fmt.Sprintf("%d known CVEs are associated with the host's software.", n),
			"Patch the affected software and re-scan.", n)
	}
	if n := count(categoryExposure); n > 0 {
		add("Unauthorized access to exposed services", domain.SeverityHigh, sourceHostIntel,
			fmt.Sprintf("%d administrative or data services appear reachable from the internet.", n),
			"Close the services to the internet or place them behind a VPN.", n)
	}
	if n := count(categoryMisconfig, "Content-Security-Policy", "X-Frame-Options", "CORS"); n > 0 {
		add("Client-side injection and clickjacking", domain.SeverityMedium, sourceHeaders,
			"Missing browser protections make cross-site scripting and clickjacking attacks easier.",
			"Deploy the missing security headers.", n)
	}
	if n := count(categoryEmail, "SPF", "DMARC"); n > 0 {
		add("Email spoofing and phishing", domain.SeverityMedium, sourceDNS,
			"Without SPF and DMARC, attackers can send convincing mail from this domain.",
			"Publish SPF and an enforcing DMARC policy.", n)
	}
	if n := count(categoryCrypto) + count(categoryMisconfig, "Strict-Transport-Security"); n > 0 && b.TLS != nil {
		add("Man-in-the-middle and protocol downgrade", domain.SeverityMedium, sourceTLS,
			"Traffic can be intercepted or downgraded before HTTPS is enforced.",
			"Serve all traffic over HTTPS and enable HSTS.", n)
	}
	return out
}
