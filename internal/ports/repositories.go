package ports

import (
	"context"

	"cloudauditor/internal/domain"
)

// ScanRepository stores scan records. Implementations must make PatchScan an
// atomic read-modify-write and refuse patches the status machine forbids
// with domain.ErrInvalidTransition.
type ScanRepository interface {
	CreateScan(ctx context.Context, scan domain.Scan) error
	PatchScan(ctx context.Context, id string, patch domain.ScanPatch) (scan domain.Scan, found bool, err error)
	GetScan(ctx context.Context, id string) (scan domain.Scan, found bool, err error)
	// ListScans returns newest first.
	ListScans(ctx context.Context) ([]domain.Scan, error)
}

// FindingFilter narrows AllFindings. Zero values match everything.
type FindingFilter struct {
	Severities []domain.Severity
	Status     domain.VulnStatus
}

// Matches reports whether v passes the filter.
func (f FindingFilter) Matches(v domain.Vulnerability) bool {
	if f.Status != "" && v.Status != f.Status {
		return false
	}
	if len(f.Severities) == 0 {
		return true
	}
	for _, s := range f.Severities {
		if v.Severity == s {
			return true
		}
	}
	return false
}

// FindingRepository stores analysis output keyed by scan.
type FindingRepository interface {
	AppendFindings(ctx context.Context, scanID string, vulns []domain.Vulnerability) error
	AppendThreats(ctx context.Context, scanID string, threats []domain.Threat) error
	AppendComplianceFrameworks(ctx context.Context, scanID string, frameworks []domain.ComplianceFramework) error

	FindingsByScan(ctx context.Context, scanID string) ([]domain.Vulnerability, error)
	ThreatsByScan(ctx context.Context, scanID string) ([]domain.Threat, error)
	FrameworksByScan(ctx context.Context, scanID string) ([]domain.ComplianceFramework, error)

	AllFindings(ctx context.Context, filter FindingFilter) ([]domain.Vulnerability, error)
	AllThreats(ctx context.Context) ([]domain.Threat, error)
	AllFrameworks(ctx context.Context) ([]domain.ComplianceFramework, error)
}

// ReportRepository stores generated reports including their content.
type ReportRepository interface {
	CreateReport(ctx context.Context, r domain.Report) error
	GetReport(ctx context.Context, id string) (report domain.Report, found bool, err error)
	// ListReports omits report content.
	ListReports(ctx context.Context) ([]domain.Report, error)
}

// Store is everything a backing database provides.
type Store interface {
	ScanRepository
	FindingRepository
	ReportRepository
}
