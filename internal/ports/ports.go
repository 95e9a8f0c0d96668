package ports

import (
	"context"
	"time"

	"cloudauditor/internal/domain"
)

// Analyzer turns an evidence bundle into typed findings. It must not invent
// evidence for bundle fields that are nil.
type Analyzer interface {
	Analyze(ctx context.Context, scanID string, bundle *domain.Bundle) (domain.Analysis, error)
}

// NewScanRequest is the client input for a scan.
type NewScanRequest struct {
	Name   string `json:"name"`
	Target string `json:"target"`
	Scope  string `json:"scanScope"`
}

// Scanner submits and tracks scans.
type Scanner interface {
	Submit(ctx context.Context, req NewScanRequest) (domain.Scan, error)
	// RunInline creates a scan and runs it to completion before returning.
	RunInline(ctx context.Context, req NewScanRequest) (domain.Scan, error)
	Get(ctx context.Context, id string) (domain.ScanDetail, error)
	List(ctx context.Context) ([]domain.Scan, error)
}

// Findings answers cross-scan queries over analysis output.
type Findings interface {
	Vulnerabilities(ctx context.Context, filter FindingFilter) ([]domain.Vulnerability, error)
	Threats(ctx context.Context) ([]domain.Threat, error)
	Frameworks(ctx context.Context) ([]domain.ComplianceFramework, error)
	// Framework returns the most recent framework with the given short name.
	Framework(ctx context.Context, shortName string) (domain.ComplianceFramework, error)
}

type DashboardStats struct {
	TotalScans      int `json:"totalScans"`
	ActiveScans     int `json:"activeScans"`
	CriticalVulns   int `json:"criticalVulns"`
	ComplianceScore int `json:"complianceScore"`
	ThreatsDetected int `json:"threatsDetected"`
	AssetsMonitored int `json:"assetsMonitored"`
}

// TrendPoint counts findings discovered on one UTC day. Info findings are
// folded into Low.
type TrendPoint struct {
	Date     string `json:"date"`
	Critical int    `json:"critical"`
	High     int    `json:"high"`
	Medium   int    `json:"medium"`
	Low      int    `json:"low"`
}

type DashboardView struct {
	Stats       DashboardStats `json:"stats"`
	Trend       []TrendPoint   `json:"trend"`
	GeneratedAt time.Time      `json:"generatedAt"`
}

type Dashboard interface {
	Overview(ctx context.Context) (DashboardView, error)
}

type NewReportRequest struct {
	ScanID string `json:"scanId"`
	Name   string `json:"name"`
	Type   string `json:"type"`
}

type Reports interface {
	Generate(ctx context.Context, req NewReportRequest) (domain.Report, error)
	Get(ctx context.Context, id string) (domain.Report, error)
	List(ctx context.Context) ([]domain.Report, error)
}
