package analysis

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"cloudauditor/internal/domain"
)

const instructions = `You are an expert cloud and web security auditor. Analyze the following scan data gathered from a live target and produce security findings.

Rules:
- Only report findings directly supported by the scan data below. Do not invent findings.
- Every vulnerability must reference a specific piece of evidence from the scan data.
- CVSS scores follow CVSS v3.1 scoring guidelines.
- Host intelligence is passive third-party data. Never describe its ports as actively scanned.
- Sections missing from the scan data were not collected; mark related compliance controls "na".
- All vulnerability statuses are "open" since these are newly discovered.
- If a section has no findings, return an empty array for it.

Evaluate compliance against OWASP Top 10, CIS Benchmarks for web servers and NIST CSF, 8-15 controls each, marking every control "pass", "fail" or "na" based on evidence.

SCAN DATA:
`

// Prompt is the full instruction text for a language-model analyzer.
func Prompt(b *domain.Bundle) string {
	return instructions + FormatEvidence(b)
}

// FormatEvidence renders the populated parts of a bundle as plain text.
// Nil sections are omitted entirely.
func FormatEvidence(b *domain.Bundle) string {
	var sections []string
	add := func(format string, args ...any) {
		sections = append(sections, fmt.Sprintf(format, args...))
	}

	add("## Target: %s", b.TargetURL)
	if b.ResolvedIP != nil {
		add("## Resolved IP: %s", *b.ResolvedIP)
	}

	if h := b.Headers; h != nil {
		add("\n## HTTP Security Headers")
		names := make([]string, 0, len(h.Present))
		for k := range h.Present {
			names = append(names, k)
		}
		sort.Strings(names)
		if len(names) > 0 {
			lines := make([]string, len(names))
			for i, k := range names {
				lines[i] = "  " + k + ": " + h.Present[k]
			}
			add("Present:\n%s", strings.Join(lines, "\n"))
		}
		if len(h.Missing) > 0 {
			lines := make([]string, len(h.Missing))
			for i, k := range h.Missing {
				lines[i] = "  - " + k
			}
			add("Missing (NOT present):\n%s", strings.Join(lines, "\n"))
		}
	}

	if hi := b.HostIntel; hi != nil {
		add("\n## Host Intelligence (passive, third-party data; no ports were probed)")
		ports := make([]string, len(hi.Ports))
		for i, p := range hi.Ports {
			ports[i] = strconv.Itoa(p)
		}
		add("  Observed Ports: %s", joinOrNone(ports))
		add("  Known CVEs: %s", joinOrNone(hi.Vulns))
		add("  CPEs (software): %s", joinOrNone(hi.CPEs))
		add("  Tags: %s", joinOrNone(hi.Tags))
		add("  Hostnames: %s", joinOrNone(hi.Hostnames))
	}

	if d := b.DNS; d != nil {
		add("\n## DNS Security Records")
		add("  SPF record present: %t", d.HasSPF)
		add("  DKIM record present: %t", d.HasDKIM)
		add("  DMARC record present: %t", d.HasDMARC)
		if len(d.Records) > 0 {
			add("  Records:")
			for _, r := range d.Records {
				add("    %s: %s", r.Type, r.Value)
			}
		}
	}

	if t := b.TLS; t != nil {
		add("\n## SSL/TLS Information")
		add("  Reachable over HTTPS: %t", t.Reachable)
		add("  HSTS Enabled: %t", t.SupportsHSTS)
		if len(t.Issues) > 0 {
			add("  Issues: %s", strings.Join(t.Issues, ", "))
		}
	}

	if len(b.Technologies) > 0 {
		add("\n## Detected Technologies")
		add("  %s", strings.Join(b.Technologies, ", "))
	}

	return strings.Join(sections, "\n")
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
