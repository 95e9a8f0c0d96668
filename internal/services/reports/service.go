// Package reports renders completed scans into downloadable PDF reports.
package reports

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"cloudauditor/internal/domain"
	"cloudauditor/internal/ports"
)

const StatusReady = "ready"

var (
	ErrNotFound        = errors.New("report not found")
	ErrScanNotFound    = errors.New("scan not found")
	ErrScanNotFinished = errors.New("scan has not completed")
	ErrInvalidRequest  = errors.New("invalid report request")
)

var _ ports.Reports = (*Service)(nil)

type Service struct {
	scans    ports.ScanRepository
	findings ports.FindingRepository
	reports  ports.ReportRepository
	clock    clockwork.Clock
	log      *slog.Logger
}

func New(scans ports.ScanRepository, findings ports.FindingRepository, reports ports.ReportRepository, clock clockwork.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{scans: scans, findings: findings, reports: reports, clock: clock, log: logger}
}

// Generate renders and stores a report for a completed scan. An empty type
// means executive.
func (s *Service) Generate(ctx context.Context, req ports.NewReportRequest) (domain.Report, error) {
	typ := domain.ReportType(strings.ToLower(strings.TrimSpace(req.Type)))
	if typ == "" {
		typ = domain.ReportExecutive
	}
	if !typ.IsValid() {
		return domain.Report{}, fmt.Errorf("%w: type %q", ErrInvalidRequest, req.Type)
	}
	if strings.TrimSpace(req.ScanID) == "" {
		return domain.Report{}, fmt.Errorf("%w: scanId is required", ErrInvalidRequest)
	}

	detail, err := s.detail(ctx, req.ScanID)
	if err != nil {
		return domain.Report{}, err
	}

	now := s.clock.Now().UTC()
	title := strings.TrimSpace(req.Name)
	if title == "" {
		title = cases.Title(language.English).String(string(typ)) + " Report"
	}

	var buf bytes.Buffer
	if err := render(&buf, typ, title, detail, now); err != nil {
		return domain.Report{}, fmt.Errorf("render %s report: %w", typ, err)
	}

	r := domain.Report{
		ID:          uuid.NewString(),
		ScanID:      detail.ID,
		Name:        fmt.Sprintf("%s - %s", title, now.Format("Jan 2006")),
		Type:        typ,
		GeneratedAt: now,
		SizeBytes:   int64(buf.Len()),
		Size:        humanize.Bytes(uint64(buf.Len())),
		Status:      StatusReady,
		Content:     buf.Bytes(),
	}
	if err := s.reports.CreateReport(ctx, r); err != nil {
		return domain.Report{}, fmt.Errorf("store report: %w", err)
	}
	s.log.Info("report generated", "report_id", r.ID, "scan_id", r.ScanID, "type", typ, "size", r.Size)
	return r, nil
}

func (s *Service) detail(ctx context.Context, scanID string) (domain.ScanDetail, error) {
	scan, found, err := s.scans.GetScan(ctx, scanID)
	if err != nil {
		return domain.ScanDetail{}, err
	}
	if !found {
		return domain.ScanDetail{}, ErrScanNotFound
	}
	if scan.Status != domain.StatusCompleted {
		return domain.ScanDetail{}, fmt.Errorf("%w: scan %s is %s", ErrScanNotFinished, scanID, scan.Status)
	}

	d := domain.ScanDetail{Scan: scan}
	if d.Findings, err = s.findings.FindingsByScan(ctx, scanID); err != nil {
		return domain.ScanDetail{}, err
	}
	if d.Threats, err = s.findings.ThreatsByScan(ctx, scanID); err != nil {
		return domain.ScanDetail{}, err
	}
	if d.Compliance, err = s.findings.FrameworksByScan(ctx, scanID); err != nil {
		return domain.ScanDetail{}, err
	}
	return d, nil
}

// Get returns a report including its PDF content.
func (s *Service) Get(ctx context.Context, id string) (domain.Report, error) {
	r, found, err := s.reports.GetReport(ctx, id)
	if err != nil {
		return domain.Report{}, err
	}
	if !found {
		return domain.Report{}, ErrNotFound
	}
	return r, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Report, error) {
	out, err := s.reports.ListReports(ctx)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Report{}
	}
	return out, nil
}
