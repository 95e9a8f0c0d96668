package domain

import (
	"errors"
	"strings"
	"time"
)

// Core domain models shared by the pipeline, the stores and the HTTP layer.

// ScanStatus is the lifecycle state of a scan.
type ScanStatus string

const (
	StatusPending   ScanStatus = "pending"
	StatusRunning   ScanStatus = "running"
	StatusCompleted ScanStatus = "completed"
	StatusFailed    ScanStatus = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s ScanStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether the state machine allows moving from s to next.
// Re-entering the same non-terminal state is allowed so progress checkpoints can
// be patched while running.
func (s ScanStatus) CanTransition(next ScanStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusPending || next == StatusRunning || next == StatusFailed
	case StatusRunning:
		return next == StatusRunning || next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// Scope selects which collectors run for a scan.
type Scope string

const (
	ScopeFull    Scope = "full"
	ScopeSSL     Scope = "ssl"
	ScopeHeaders Scope = "headers"
	ScopePorts   Scope = "ports"
)

var ErrInvalidScope = errors.New("invalid scan scope")

// ParseScope validates a user supplied scope. The empty string means full.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopeFull:
		return ScopeFull, nil
	case ScopeSSL:
		return ScopeSSL, nil
	case ScopeHeaders:
		return ScopeHeaders, nil
	case ScopePorts:
		return ScopePorts, nil
	}
	return "", ErrInvalidScope
}

func (s Scope) IsValid() bool {
	switch s {
	case ScopeFull, ScopeSSL, ScopeHeaders, ScopePorts:
		return true
	}
	return false
}

func (s Scope) RunsHeaders() bool    { return s == ScopeFull || s == ScopeHeaders }
func (s Scope) RunsHostIntel() bool  { return s == ScopeFull || s == ScopePorts }
func (s Scope) RunsTLS() bool        { return s == ScopeFull || s == ScopeSSL }
func (s Scope) RunsDNSRecords() bool { return s == ScopeFull }

type Scan struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Target        string     `json:"target"`
	Scope         Scope      `json:"scanScope"`
	Status        ScanStatus `json:"status"`
	Progress      int        `json:"progress"`
	FindingsCount int        `json:"findingsCount"`
	CriticalCount int        `json:"criticalCount"`
	HighCount     int        `json:"highCount"`
	StartTime     time.Time  `json:"startTime"`
	EndTime       *time.Time `json:"endTime"`
	EvidenceHash  string     `json:"evidenceHash,omitempty"`
}

// ScanPatch is a partial update; nil fields are left untouched.
type ScanPatch struct {
	Status        *ScanStatus
	Progress      *int
	FindingsCount *int
	CriticalCount *int
	HighCount     *int
	EndTime       *time.Time
	EvidenceHash  *string
}

// Apply copies the non-nil fields of p onto s.
func (p ScanPatch) Apply(s *Scan) {
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.Progress != nil {
		s.Progress = ClampProgress(*p.Progress)
	}
	if p.FindingsCount != nil {
		s.FindingsCount = *p.FindingsCount
	}
	if p.CriticalCount != nil {
		s.CriticalCount = *p.CriticalCount
	}
	if p.HighCount != nil {
		s.HighCount = *p.HighCount
	}
	if p.EndTime != nil {
		t := *p.EndTime
		s.EndTime = &t
	}
	if p.EvidenceHash != nil {
		s.EvidenceHash = *p.EvidenceHash
	}
}

// ClampProgress bounds p to 0..100.
func ClampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Ptr returns a pointer to v. Handy for building patches.
func Ptr[T any](v T) *T { return &v }

// ErrInvalidTransition is returned when a patch would move a scan along an
// edge the state machine does not allow, including any patch of a terminal scan.
var ErrInvalidTransition = errors.New("invalid scan status transition")

// AllowedSources lists the statuses a scan may be in for p to apply. A patch
// without a status change may only touch non-terminal scans.
func (p ScanPatch) AllowedSources() []ScanStatus {
	if p.Status == nil {
		return []ScanStatus{StatusPending, StatusRunning}
	}
	var out []ScanStatus
	for _, from := range []ScanStatus{StatusPending, StatusRunning, StatusCompleted, StatusFailed} {
		if from.CanTransition(*p.Status) {
			out = append(out, from)
		}
	}
	return out
}

// Permits reports whether p may be applied to a scan currently in status.
func (p ScanPatch) Permits(status ScanStatus) bool {
	for _, s := range p.AllowedSources() {
		if s == status {
			return true
		}
	}
	return false
}

// ScanDetail is a scan together with everything its analysis produced.
type ScanDetail struct {
	Scan
	Findings   []Vulnerability       `json:"findings"`
	Threats    []Threat              `json:"threats"`
	Compliance []ComplianceFramework `json:"compliance"`
}
