// Package scanner owns the scan lifecycle: it creates scans, drives them
// through gathering and analysis, and records every status transition.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"cloudauditor/internal/domain"
	"cloudauditor/internal/metrics"
	"cloudauditor/internal/ports"
	"cloudauditor/internal/telemetry"
	"cloudauditor/internal/workers/scanrunner"
)

const DefaultScanName = "Security Scan"

var (
	ErrNotFound       = errors.New("scan not found")
	ErrInvalidRequest = errors.New("invalid scan request")
	ErrNoQueue        = errors.New("no job queue configured")
)

// Gatherer collects evidence for a target.
type Gatherer interface {
	Gather(ctx context.Context, rawTarget string, scope domain.Scope) (*domain.Bundle, error)
}

var (
	_ ports.Scanner       = (*Service)(nil)
	_ ports.ScanProcessor = (*Service)(nil)
)

type Service struct {
	scans    ports.ScanRepository
	findings ports.FindingRepository
	gatherer Gatherer
	analyzer ports.Analyzer
	queue    ports.JobQueue

	clock   clockwork.Clock
	log     *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	timeout time.Duration
}

type Option func(*Service)

func WithClock(c clockwork.Clock) Option { return func(s *Service) { s.clock = c } }
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.log = l } }
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }
func WithTracer(t trace.Tracer) Option { return func(s *Service) { s.tracer = t } }
func WithQueue(q ports.JobQueue) Option { return func(s *Service) { s.queue = q } }

// WithScanTimeout bounds a whole pipeline run. Zero means unbounded.
func WithScanTimeout(d time.Duration) Option { return func(s *Service) { s.timeout = d } }

func New(scans ports.ScanRepository, findings ports.FindingRepository, g Gatherer, a ports.Analyzer, opts ...Option) *Service {
	s := &Service{
		scans:    scans,
		findings: findings,
		gatherer: g,
		analyzer: a,
		clock:    clockwork.NewRealClock(),
		log:      slog.Default(),
		tracer:   telemetry.Tracer(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Submit creates a pending scan and hands it to the job queue. The caller
// polls Get for progress.
func (s *Service) Submit(ctx context.Context, req ports.NewScanRequest) (domain.Scan, error) {
	if s.queue == nil {
		return domain.Scan{}, ErrNoQueue
	}
	scan, err := s.create(ctx, req)
	if err != nil {
		return domain.Scan{}, err
	}
	if err := s.queue.Submit(ports.ScanJob{ScanID: scan.ID}); err != nil {
		s.fail(ctx, scan.ID, fmt.Errorf("enqueue: %w", err))
		return domain.Scan{}, fmt.Errorf("enqueue scan: %w", err)
	}
	s.log.Info("scan submitted", "scan_id", scan.ID, "target", scan.Target, "scope", scan.Scope)
	return scan, nil
}

// RunInline creates a scan and processes it on the calling goroutine. The
// returned scan is in its final state; a failed pipeline is not an error here.
func (s *Service) RunInline(ctx context.Context, req ports.NewScanRequest) (domain.Scan, error) {
	scan, err := s.create(ctx, req)
	if err != nil {
		return domain.Scan{}, err
	}
	if err := scanrunner.ProcessInline(ctx, s, scan.ID); err != nil {
		s.log.Warn("inline scan failed", "scan_id", scan.ID, "err", err)
	}
	final, found, err := s.scans.GetScan(context.WithoutCancel(ctx), scan.ID)
	if err != nil {
		return domain.Scan{}, err
	}
	if !found {
		return domain.Scan{}, ErrNotFound
	}
	return final, nil
}

func (s *Service) create(ctx context.Context, req ports.NewScanRequest) (domain.Scan, error) {
	target := strings.TrimSpace(req.Target)
	if target == "" {
		return domain.Scan{}, fmt.Errorf("%w: target is required", ErrInvalidRequest)
	}
	scope, err := domain.ParseScope(req.Scope)
	if err != nil {
		return domain.Scan{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = DefaultScanName
	}

	scan := domain.Scan{
		ID:        uuid.NewString(),
		Name:      name,
		Target:    target,
		Scope:     scope,
		Status:    domain.StatusPending,
		StartTime: s.clock.Now().UTC(),
	}
	if err := s.scans.CreateScan(ctx, scan); err != nil {
		return domain.Scan{}, fmt.Errorf("create scan: %w", err)
	}
	s.metrics.ScanTransition(domain.StatusPending)
	return scan, nil
}

// Process runs the pipeline for a stored scan: gather, analyze, persist.
// Any failure moves the scan to failed and is returned for the runner to log.
func (s *Service) Process(ctx context.Context, scanID string) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	ctx, span := s.tracer.Start(ctx, "scan.process", trace.WithAttributes(attribute.String("scan.id", scanID)))
	defer span.End()

	scan, found, err := s.scans.GetScan(ctx, scanID)
	if err != nil {
		return fmt.Errorf("load scan %s: %w", scanID, err)
	}
	if !found {
		s.log.Warn("scan vanished before processing", "scan_id", scanID)
		return nil
	}
	span.SetAttributes(attribute.String("scan.target", scan.Target), attribute.String("scan.scope", string(scan.Scope)))

	if ok, err := s.patch(ctx, scanID, domain.ScanPatch{Status: domain.Ptr(domain.StatusRunning), Progress: domain.Ptr(0)}); !ok || err != nil {
		return err
	}
	s.metrics.ScanTransition(domain.StatusRunning)
	s.metrics.ScanStarted()
	defer s.metrics.ScanFinished()

	err = s.executeRecovering(ctx, scan)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.fail(ctx, scanID, err)
		return err
	}
	return nil
}

// executeRecovering turns a panic in the pipeline into an error so the scan
// still reaches failed.
func (s *Service) executeRecovering(ctx context.Context, scan domain.Scan) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scan pipeline panicked", "scan_id", scan.ID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("scan pipeline panicked: %v", r)
		}
	}()
	return s.execute(ctx, scan)
}

func (s *Service) execute(ctx context.Context, scan domain.Scan) error {
	if ok, err := s.progress(ctx, scan.ID, domain.ScanPatch{Progress: domain.Ptr(5)}); !ok {
		return err
	}

	bundle, err := s.gatherer.Gather(ctx, scan.Target, scan.Scope)
	if err != nil {
		return fmt.Errorf("gather: %w", err)
	}
	if ok, err := s.progress(ctx, scan.ID, domain.ScanPatch{Progress: domain.Ptr(50), EvidenceHash: domain.Ptr(bundle.Hash())}); !ok {
		return err
	}

	result, err := s.analyzer.Analyze(ctx, scan.ID, bundle)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	if ok, err := s.progress(ctx, scan.ID, domain.ScanPatch{Progress: domain.Ptr(90)}); !ok {
		return err
	}

	if err := s.findings.AppendFindings(ctx, scan.ID, result.Vulnerabilities); err != nil {
		return fmt.Errorf("store findings: %w", err)
	}
	if err := s.findings.AppendThreats(ctx, scan.ID, result.Threats); err != nil {
		return fmt.Errorf("store threats: %w", err)
	}
	if err := s.findings.AppendComplianceFrameworks(ctx, scan.ID, result.Frameworks); err != nil {
		return fmt.Errorf("store compliance: %w", err)
	}

	counts := domain.SeverityCounts(result.Vulnerabilities)
	done := domain.ScanPatch{
		Status:        domain.Ptr(domain.StatusCompleted),
		Progress:      domain.Ptr(100),
		FindingsCount: domain.Ptr(len(result.Vulnerabilities)),
		CriticalCount: domain.Ptr(counts[domain.SeverityCritical]),
		HighCount:     domain.Ptr(counts[domain.SeverityHigh]),
		EndTime:       domain.Ptr(s.clock.Now().UTC()),
	}
	if ok, err := s.progress(ctx, scan.ID, done); !ok {
		return err
	}
	s.metrics.ScanTransition(domain.StatusCompleted)
	s.metrics.Findings(counts)
	s.log.Info("scan completed", "scan_id", scan.ID, "findings", len(result.Vulnerabilities),
		"critical", counts[domain.SeverityCritical], "high", counts[domain.SeverityHigh])
	return nil
}

// progress is patch for checkpoints inside execute. A scan that disappeared
// mid-run surfaces as ErrNotFound so execute stops.
func (s *Service) progress(ctx context.Context, id string, p domain.ScanPatch) (bool, error) {
	ok, err := s.patch(ctx, id, p)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return true, nil
}

// patch applies p and reports whether the scan still exists.
func (s *Service) patch(ctx context.Context, id string, p domain.ScanPatch) (bool, error) {
	_, found, err := s.scans.PatchScan(ctx, id, p)
	if err != nil {
		return false, fmt.Errorf("patch scan %s: %w", id, err)
	}
	if !found {
		s.log.Warn("patch on unknown scan", "scan_id", id)
	}
	return found, nil
}

// fail moves the scan to failed. It runs detached from ctx so a cancelled
// or timed out pipeline still records its outcome.
func (s *Service) fail(ctx context.Context, id string, cause error) {
	ctx = context.WithoutCancel(ctx)
	s.log.Error("scan failed", "scan_id", id, "err", cause)
	_, _, err := s.scans.PatchScan(ctx, id, domain.ScanPatch{
		Status:   domain.Ptr(domain.StatusFailed),
		Progress: domain.Ptr(0),
		EndTime:  domain.Ptr(s.clock.Now().UTC()),
	})
	if err != nil {
		s.log.Error("could not mark scan failed", "scan_id", id, "err", err)
		return
	}
	s.metrics.ScanTransition(domain.StatusFailed)
}

// Get returns the scan with its findings, threats and compliance results.
func (s *Service) Get(ctx context.Context, id string) (domain.ScanDetail, error) {
	scan, found, err := s.scans.GetScan(ctx, id)
	if err != nil {
		return domain.ScanDetail{}, err
	}
	if !found {
		return domain.ScanDetail{}, ErrNotFound
	}

	d := domain.ScanDetail{Scan: scan}
	if d.Findings, err = s.findings.FindingsByScan(ctx, id); err != nil {
		return domain.ScanDetail{}, err
	}
	if d.Threats, err = s.findings.ThreatsByScan(ctx, id); err != nil {
		return domain.ScanDetail{}, err
	}
	if d.Compliance, err = s.findings.FrameworksByScan(ctx, id); err != nil {
		return domain.ScanDetail{}, err
	}
	if d.Findings == nil {
		d.Findings = []domain.Vulnerability{}
	}
	if d.Threats == nil {
		d.Threats = []domain.Threat{}
	}
	if d.Compliance == nil {
		d.Compliance = []domain.ComplianceFramework{}
	}
	return d, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Scan, error) {
	scans, err := s.scans.ListScans(ctx)
	if err != nil {
		return nil, err
	}
	if scans == nil {
		scans = []domain.Scan{}
	}
	return scans, nil
}

// Status returns the lifecycle state and progress of a scan.
func (s *Service) Status(ctx context.Context, id string) (domain.ScanStatus, int, error) {
	scan, found, err := s.scans.GetScan(ctx, id)
	if err != nil {
		return "", 0, err
	}
	if !found {
		return "", 0, ErrNotFound
	}
	return scan.Status, scan.Progress, nil
}
