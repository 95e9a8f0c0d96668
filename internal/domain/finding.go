package domain

import (
	"math"
	"time"
)

// Severity is shared by vulnerabilities, threats and compliance controls.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// IsValid reports whether s is a recognized severity level.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return true
	}
	return false
}

// Score orders severities: critical=5 ... info=1, unknown=0.
func (s Severity) Score() int {
	switch s {
	case SeverityCritical:
		return 5
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 2
	case SeverityInfo:
		return 1
	}
	return 0
}

type VulnStatus string

const (
	VulnOpen       VulnStatus = "open"
	VulnRemediated VulnStatus = "remediated"
	VulnAccepted   VulnStatus = "accepted"
	VulnInProgress VulnStatus = "in_progress"
)

func (s VulnStatus) IsValid() bool {
	switch s {
	case VulnOpen, VulnRemediated, VulnAccepted, VulnInProgress:
		return true
	}
	return false
}

type ThreatStatus string

const (
	ThreatActive        ThreatStatus = "active"
	ThreatInvestigating ThreatStatus = "investigating"
	ThreatResolved      ThreatStatus = "resolved"
)

func (s ThreatStatus) IsValid() bool {
	switch s {
	case ThreatActive, ThreatInvestigating, ThreatResolved:
		return true
	}
	return false
}

type ControlStatus string

const (
	ControlPass ControlStatus = "pass"
	ControlFail ControlStatus = "fail"
	ControlNA   ControlStatus = "na"
)

func (s ControlStatus) IsValid() bool {
	return s == ControlPass || s == ControlFail || s == ControlNA
}

type Vulnerability struct {
	ID               string     `json:"id"`
	ScanID           string     `json:"scanId"`
	Title            string     `json:"title"`
	Severity         Severity   `json:"severity"`
	Category         string     `json:"category"`
	CVSSScore        float64    `json:"cvssScore"`
	AffectedResource string     `json:"affectedResource"`
	Status           VulnStatus `json:"status"`
	Description      string     `json:"description"`
	Remediation      string     `json:"remediation"`
	DiscoveredAt     time.Time  `json:"discoveredAt"`
}

type Threat struct {
	ID                string       `json:"id"`
	ScanID            string       `json:"scanId"`
	Type              string       `json:"type"`
	Severity          Severity     `json:"severity"`
	Source            string       `json:"source"`
	Description       string       `json:"description"`
	Timestamp         time.Time    `json:"timestamp"`
	Status            ThreatStatus `json:"status"`
	RelatedFindings   int          `json:"relatedFindings"`
	RecommendedAction string       `json:"recommendedAction"`
}

type ComplianceControl struct {
	ID          string        `json:"id"`
	ControlID   string        `json:"controlId"`
	Description string        `json:"description"`
	Status      ControlStatus `json:"status"`
	Category    string        `json:"category"`
	Severity    Severity      `json:"severity"`
	Framework   string        `json:"framework"`
}

type ComplianceFramework struct {
	ID             string              `json:"id"`
	ScanID         string              `json:"scanId"`
	Name           string              `json:"name"`
	ShortName      string              `json:"shortName"`
	Score          int                 `json:"score"`
	TotalControls  int                 `json:"totalControls"`
	PassedControls int                 `json:"passedControls"`
	FailedControls int                 `json:"failedControls"`
	NAControls     int                 `json:"naControls"`
	Controls       []ComplianceControl `json:"controls"`
}

// Analysis is what an analyzer hands back for one evidence bundle.
type Analysis struct {
	Vulnerabilities []Vulnerability       `json:"vulnerabilities"`
	Threats         []Threat              `json:"threats"`
	Frameworks      []ComplianceFramework `json:"complianceFrameworks"`
}

// ComplianceScore is round(pass/(pass+fail)*100), or 0 when nothing was scorable.
// Controls marked na never count toward the score.
func ComplianceScore(pass, fail int) int {
	if pass+fail <= 0 {
		return 0
	}
	return int(math.Round(float64(pass) / float64(pass+fail) * 100))
}

// Summarize recomputes the counters and score of fw from its controls.
func Summarize(fw *ComplianceFramework) {
	var pass, fail, na int
	for _, c := range fw.Controls {
		switch c.Status {
		case ControlPass:
			pass++
		case ControlFail:
			fail++
		default:
			na++
		}
	}
	fw.TotalControls = len(fw.Controls)
	fw.PassedControls = pass
	fw.FailedControls = fail
	fw.NAControls = na
	fw.Score = ComplianceScore(pass, fail)
}

// SeverityCounts tallies vulnerabilities by severity.
func SeverityCounts(vulns []Vulnerability) map[Severity]int {
	out := make(map[Severity]int, 5)
	for _, v := range vulns {
		out[v.Severity]++
	}
	return out
}
