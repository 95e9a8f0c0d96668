// Package analysis holds what every analyzer shares: the draft shape an
// analyzer produces, validation of that shape, and id assignment.
package analysis

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cloudauditor/internal/domain"
)

// ErrAnalysis marks structural analyzer failures.
var ErrAnalysis = errors.New("analysis failed")

// Error describes why an analyzer result was rejected.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("analysis failed: %s: %v", e.Reason, e.Err)
	}
	return "analysis failed: " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrAnalysis }

func errorf(format string, args ...any) *Error {
	return &Error{Reason: fmt.Sprintf(format, args...)}
}

// Draft is analyzer output before ids, scan ids and timestamps are assigned.
type Draft struct {
	Vulnerabilities []VulnerabilityDraft `json:"vulnerabilities"`
	Threats         []ThreatDraft        `json:"threats"`
	Frameworks      []FrameworkDraft     `json:"complianceFrameworks"`
}

type VulnerabilityDraft struct {
	Title            string  `json:"title"`
	Severity         string  `json:"severity"`
	Category         string  `json:"category"`
	CVSSScore        float64 `json:"cvssScore"`
	AffectedResource string  `json:"affectedResource"`
	Status           string  `json:"status"`
	Description      string  `json:"description"`
	Remediation      string  `json:"remediation"`
}

type ThreatDraft struct {
	Type              string `json:"type"`
	Severity          string `json:"severity"`
	Source            string `json:"source"`
	Description       string `json:"description"`
	Status            string `json:"status"`
	RelatedFindings   int    `json:"relatedFindings"`
	RecommendedAction string `json:"recommendedAction"`
}

type ControlDraft struct {
	ControlID   string `json:"controlId"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Category    string `json:"category"`
	Severity    string `json:"severity"`
}

type FrameworkDraft struct {
	Name      string         `json:"name"`
	ShortName string         `json:"shortName"`
	Controls  []ControlDraft `json:"controls"`
}

// Finalize validates d and turns it into domain values. Ids follow
// vuln-<scan>-<n>, thr-<scan>-<n> and <framework>-<scan>-<n>, counting from 1.
func Finalize(scanID string, d Draft, now time.Time) (domain.Analysis, error) {
	if d.Vulnerabilities == nil || d.Threats == nil || d.Frameworks == nil {
		return domain.Analysis{}, errorf("result is missing vulnerabilities, threats or complianceFrameworks")
	}

	out := domain.Analysis{
		Vulnerabilities: make([]domain.Vulnerability, 0, len(d.Vulnerabilities)),
		Threats:         make([]domain.Threat, 0, len(d.Threats)),
		Frameworks:      make([]domain.ComplianceFramework, 0, len(d.Frameworks)),
	}

	for i, v := range d.Vulnerabilities {
		sev := domain.Severity(v.Severity)
		status := domain.VulnStatus(v.Status)
		switch {
		case strings.TrimSpace(v.Title) == "":
			return domain.Analysis{}, errorf("vulnerability %d has no title", i+1)
		case !sev.IsValid():
			return domain.Analysis{}, errorf("vulnerability %d has severity %q", i+1, v.Severity)
		case !status.IsValid():
			return domain.Analysis{}, errorf("vulnerability %d has status %q", i+1, v.Status)
		case v.CVSSScore < 0 || v.CVSSScore > 10:
			return domain.Analysis{}, errorf("vulnerability %d has cvss score %.1f", i+1, v.CVSSScore)
		}
		out.Vulnerabilities = append(out.Vulnerabilities, domain.Vulnerability{
			ID:               fmt.Sprintf("vuln-%s-%d", scanID, i+1),
			ScanID:           scanID,
			Title:            v.Title,
			Severity:         sev,
			Category:         v.Category,
			CVSSScore:        v.CVSSScore,
			AffectedResource: v.AffectedResource,
			Status:           status,
			Description:      v.Description,
			Remediation:      v.Remediation,
			DiscoveredAt:     now,
		})
	}

	for i, t := range d.Threats {
		sev := domain.Severity(t.Severity)
		status := domain.ThreatStatus(t.Status)
		switch {
		case strings.TrimSpace(t.Type) == "":
			return domain.Analysis{}, errorf("threat %d has no type", i+1)
		case !sev.IsValid():
			return domain.Analysis{}, errorf("threat %d has severity %q", i+1, t.Severity)
		case !status.IsValid():
			return domain.Analysis{}, errorf("threat %d has status %q", i+1, t.Status)
		}
		out.Threats = append(out.Threats, domain.Threat{
			ID:                fmt.Sprintf("thr-%s-%d", scanID, i+1),
			ScanID:            scanID,
			Type:              t.Type,
			Severity:          sev,
			Source:            t.Source,
			Description:       t.Description,
			Timestamp:         now,
			Status:            status,
			RelatedFindings:   t.RelatedFindings,
			RecommendedAction: t.RecommendedAction,
		})
	}

	// Framework and control ids derive from the short name, so it must be
	// unique per scan regardless of case.
	seen := make(map[string]bool, len(d.Frameworks))
	for i, f := range d.Frameworks {
		short := strings.TrimSpace(f.ShortName)
		if short == "" {
			return domain.Analysis{}, errorf("framework %d has no short name", i+1)
		}
		prefix := strings.ToLower(short)
		if seen[prefix] {
			return domain.Analysis{}, errorf("framework %d repeats short name %q", i+1, short)
		}
		seen[prefix] = true
		fw := domain.ComplianceFramework{
			ID:        fmt.Sprintf("%s-%s", prefix, scanID),
			ScanID:    scanID,
			Name:      f.Name,
			ShortName: short,
			Controls:  make([]domain.ComplianceControl, 0, len(f.Controls)),
		}
		for j, c := range f.Controls {
			status := domain.ControlStatus(c.Status)
			sev := domain.Severity(c.Severity)
			if !status.IsValid() {
				return domain.Analysis{}, errorf("%s control %d has status %q", short, j+1, c.Status)
			}
			if !sev.IsValid() {
				return domain.Analysis{}, errorf("%s control %d has severity %q", short, j+1, c.Severity)
			}
			fw.Controls = append(fw.Controls, domain.ComplianceControl{
				ID:          fmt.Sprintf("%s-%s-%d", prefix, scanID, j+1),
				ControlID:   c.ControlID,
				Description: c.Description,
				Status:      status,
				Category:    c.Category,
				Severity:    sev,
				Framework:   short,
			})
		}
		domain.Summarize(&fw)
		out.Frameworks = append(out.Frameworks, fw)
	}

	return out, nil
}
