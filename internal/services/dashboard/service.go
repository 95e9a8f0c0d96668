// Package dashboard aggregates headline numbers across all scans.
package dashboard

import (
	"context"
	"sort"

	"github.com/jonboulle/clockwork"

	"cloudauditor/internal/domain"
	"cloudauditor/internal/ports"
)

var _ ports.Dashboard = (*Service)(nil)

type Service struct {
	scans    ports.ScanRepository
	findings ports.FindingRepository
	clock    clockwork.Clock
}

func New(scans ports.ScanRepository, findings ports.FindingRepository, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{scans: scans, findings: findings, clock: clock}
}

func (s *Service) Overview(ctx context.Context) (ports.DashboardView, error) {
	scans, err := s.scans.ListScans(ctx)
	if err != nil {
		return ports.DashboardView{}, err
	}
	vulns, err := s.findings.AllFindings(ctx, ports.FindingFilter{})
	if err != nil {
		return ports.DashboardView{}, err
	}
	threats, err := s.findings.AllThreats(ctx)
	if err != nil {
		return ports.DashboardView{}, err
	}
	frameworks, err := s.findings.AllFrameworks(ctx)
	if err != nil {
		return ports.DashboardView{}, err
	}

	return ports.DashboardView{
		Stats:       stats(scans, vulns, threats, frameworks),
		Trend:       trend(vulns),
		GeneratedAt: s.clock.Now().UTC(),
	}, nil
}

func stats(scans []domain.Scan, vulns []domain.Vulnerability, threats []domain.Threat, frameworks []domain.ComplianceFramework) ports.DashboardStats {
	st := ports.DashboardStats{
		TotalScans:      len(scans),
		ThreatsDetected: len(threats),
	}

	targets := make(map[string]struct{}, len(scans))
	for _, sc := range scans {
		if sc.Status == domain.StatusRunning {
			st.ActiveScans++
		}
		targets[sc.Target] = struct{}{}
	}
	st.AssetsMonitored = len(targets)

	for _, v := range vulns {
		if v.Severity == domain.SeverityCritical {
			st.CriticalVulns++
		}
	}

	var pass, fail int
	for _, fw := range frameworks {
		for _, c := range fw.Controls {
			switch c.Status {
			case domain.ControlPass:
				pass++
			case domain.ControlFail:
				fail++
			}
		}
	}
	st.ComplianceScore = domain.ComplianceScore(pass, fail)
	return st
}

// trend buckets findings by the UTC day they were discovered, oldest first.
func trend(vulns []domain.Vulnerability) []ports.TrendPoint {
	byDay := map[string]*ports.TrendPoint{}
	for _, v := range vulns {
		day := v.DiscoveredAt.UTC().Format("2006-01-02")
		p, ok := byDay[day]
		if !ok {
			p = &ports.TrendPoint{Date: day}
			byDay[day] = p
		}
		switch v.Severity {
		case domain.SeverityCritical:
			p.Critical++
		case domain.SeverityHigh:
			p.High++
		case domain.SeverityMedium:
			p.Medium++
		case domain.SeverityLow, domain.SeverityInfo:
			p.Low++
		}
	}

	out := make([]ports.TrendPoint, 0, len(byDay))
	for _, p := range byDay {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}
