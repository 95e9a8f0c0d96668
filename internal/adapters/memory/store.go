// Package memory is an in-process store used when no database is configured
// and by tests. Data does not survive a restart.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"cloudauditor/internal/domain"
	"cloudauditor/internal/ports"
)

var _ ports.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	scans     map[string]domain.Scan
	scanOrder []string

	findings   []domain.Vulnerability
	threats    []domain.Threat
	frameworks []domain.ComplianceFramework

	reports     map[string]domain.Report
	reportOrder []string
}

func New() *Store {
	return &Store{
		scans:   make(map[string]domain.Scan),
		reports: make(map[string]domain.Report),
	}
}

func (s *Store) CreateScan(_ context.Context, scan domain.Scan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.scans[scan.ID]; exists {
		return fmt.Errorf("scan %s already exists", scan.ID)
	}
	s.scans[scan.ID] = scan
	s.scanOrder = append(s.scanOrder, scan.ID)
	return nil
}

// PatchScan applies patch under the write lock so concurrent patches never
// interleave their read-modify-write.
func (s *Store) PatchScan(_ context.Context, id string, patch domain.ScanPatch) (domain.Scan, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	scan, ok := s.scans[id]
	if !ok {
		return domain.Scan{}, false, nil
	}
	if !patch.Permits(scan.Status) {
		return scan, true, fmt.Errorf("%w: scan %s is %s", domain.ErrInvalidTransition, id, scan.Status)
	}
	patch.Apply(&scan)
	s.scans[id] = scan
	return scan, true, nil
}

func (s *Store) GetScan(_ context.Context, id string) (domain.Scan, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scan, ok := s.scans[id]
	return scan, ok, nil
}

func (s *Store) ListScans(_ context.Context) ([]domain.Scan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Scan, 0, len(s.scanOrder))
	for i := len(s.scanOrder) - 1; i >= 0; i-- {
		out = append(out, s.scans[s.scanOrder[i]])
	}
	return out, nil
}

func (s *Store) AppendFindings(_ context.Context, scanID string, vulns []domain.Vulnerability) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vulns {
		v.ScanID = scanID
		s.findings = append(s.findings, v)
	}
	return nil
}

func (s *Store) AppendThreats(_ context.Context, scanID string, threats []domain.Threat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range threats {
		t.ScanID = scanID
		s.threats = append(s.threats, t)
	}
	return nil
}

func (s *Store) AppendComplianceFrameworks(_ context.Context, scanID string, frameworks []domain.ComplianceFramework) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range frameworks {
		f.ScanID = scanID
		f.Controls = slices.Clone(f.Controls)
		s.frameworks = append(s.frameworks, f)
	}
	return nil
}

func (s *Store) FindingsByScan(_ context.Context, scanID string) ([]domain.Vulnerability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Vulnerability{}
	for _, v := range s.findings {
		if v.ScanID == scanID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *Store) ThreatsByScan(_ context.Context, scanID string) ([]domain.Threat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Threat{}
	for _, t := range s.threats {
		if t.ScanID == scanID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) FrameworksByScan(_ context.Context, scanID string) ([]domain.ComplianceFramework, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.ComplianceFramework{}
	for _, f := range s.frameworks {
		if f.ScanID == scanID {
			f.Controls = slices.Clone(f.Controls)
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *Store) AllFindings(_ context.Context, filter ports.FindingFilter) ([]domain.Vulnerability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Vulnerability{}
	for _, v := range s.findings {
		if filter.Matches(v) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *Store) AllThreats(_ context.Context) ([]domain.Threat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Threat{}, s.threats...), nil
}

func (s *Store) AllFrameworks(_ context.Context) ([]domain.ComplianceFramework, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ComplianceFramework, 0, len(s.frameworks))
	for _, f := range s.frameworks {
		f.Controls = slices.Clone(f.Controls)
		out = append(out, f)
	}
	return out, nil
}

func (s *Store) CreateReport(_ context.Context, r domain.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.reports[r.ID]; exists {
		return fmt.Errorf("report %s already exists", r.ID)
	}
	r.Content = slices.Clone(r.Content)
	s.reports[r.ID] = r
	s.reportOrder = append(s.reportOrder, r.ID)
	return nil
}

func (s *Store) GetReport(_ context.Context, id string) (domain.Report, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[id]
	return r, ok, nil
}

func (s *Store) ListReports(_ context.Context) ([]domain.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Report, 0, len(s.reportOrder))
	for i := len(s.reportOrder) - 1; i >= 0; i-- {
		r := s.reports[s.reportOrder[i]]
		r.Content = nil
		out = append(out, r)
	}
	return out, nil
}
