// Package findings answers queries that span every scan's analysis output.
package findings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloudauditor/internal/domain"
	"cloudauditor/internal/ports"
)

var (
	ErrNotFound      = errors.New("framework not found")
	ErrInvalidFilter = errors.New("invalid finding filter")
)

var _ ports.Findings = (*Service)(nil)

type Service struct {
	repo ports.FindingRepository
}

func New(repo ports.FindingRepository) *Service { return &Service{repo: repo} }

func (s *Service) Vulnerabilities(ctx context.Context, filter ports.FindingFilter) ([]domain.Vulnerability, error) {
	return s.repo.AllFindings(ctx, filter)
}

func (s *Service) Threats(ctx context.Context) ([]domain.Threat, error) {
	return s.repo.AllThreats(ctx)
}

func (s *Service) Frameworks(ctx context.Context) ([]domain.ComplianceFramework, error) {
	return s.repo.AllFrameworks(ctx)
}

// Framework returns the newest framework whose short name matches,
// ignoring case.
func (s *Service) Framework(ctx context.Context, shortName string) (domain.ComplianceFramework, error) {
	all, err := s.repo.AllFrameworks(ctx)
	if err != nil {
		return domain.ComplianceFramework{}, err
	}
	for i := len(all) - 1; i >= 0; i-- {
		if strings.EqualFold(all[i].ShortName, strings.TrimSpace(shortName)) {
			return all[i], nil
		}
	}
	return domain.ComplianceFramework{}, ErrNotFound
}

// ParseFilter builds a filter from a comma separated severity list and a
// status, as they arrive on a query string. Empty inputs match everything.
func ParseFilter(severities, status string) (ports.FindingFilter, error) {
	var f ports.FindingFilter
	for _, raw := range strings.Split(severities, ",") {
		raw = strings.ToLower(strings.TrimSpace(raw))
		if raw == "" {
			continue
		}
		sev := domain.Severity(raw)
		if !sev.IsValid() {
			return ports.FindingFilter{}, fmt.Errorf("%w: severity %q", ErrInvalidFilter, raw)
		}
		f.Severities = append(f.Severities, sev)
	}
	if st := domain.VulnStatus(strings.ToLower(strings.TrimSpace(status))); st != "" {
		if !st.IsValid() {
			return ports.FindingFilter{}, fmt.Errorf("%w: status %q", ErrInvalidFilter, st)
		}
		f.Status = st
	}
	return f, nil
}
