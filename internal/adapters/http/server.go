package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/runtime"

	"cloudauditor/internal/analysis"
	"cloudauditor/internal/domain"
	"cloudauditor/internal/metrics"
	"cloudauditor/internal/ports"
	findingsvc "cloudauditor/internal/services/findings"
	reportsvc "cloudauditor/internal/services/reports"
	scansvc "cloudauditor/internal/services/scanner"
	"cloudauditor/internal/workers/scanrunner"
)

const (
	defaultWaitTimeout = 30 * time.Second
	maxWaitTimeout     = 10 * time.Minute
	maxBodyBytes       = 1 << 20
)

// Server exposes the scan pipeline and its results as a JSON API.
type Server struct {
	scanner   ports.Scanner
	findings  ports.Findings
	dashboard ports.Dashboard
	reports   ports.Reports
	metrics   *metrics.Metrics
	log       *slog.Logger
}

type Deps struct {
	Scanner   ports.Scanner
	Findings  ports.Findings
	Dashboard ports.Dashboard
	Reports   ports.Reports
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

func New(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		scanner:   d.Scanner,
		findings:  d.Findings,
		dashboard: d.Dashboard,
		reports:   d.Reports,
		metrics:   d.Metrics,
		log:       logger,
	}
}

// Routes returns the router with all handlers and middleware mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.getHealthz)
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/scans", func(r chi.Router) {
		r.Post("/", s.postScan)
		r.Get("/", s.listScans)
		r.Get("/{id}", s.getScan)
	})
	r.Get("/vulnerabilities", s.listVulnerabilities)
	r.Get("/threats", s.listThreats)
	r.Get("/compliance", s.getCompliance)
	r.Get("/dashboard", s.getDashboard)
	r.Route("/reports", func(r chi.Router) {
		r.Get("/", s.listReports)
		r.Post("/", s.postReport)
		r.Get("/{id}", s.getReport)
	})
	return r
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.log.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"elapsed", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

type httpError struct {
	code int
	msg  string
}

func (e *httpError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &httpError{code: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps service errors onto status codes. Unknown errors are
// logged and reported as 500 without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var he *httpError
	status, msg := http.StatusInternalServerError, "Internal server error"
	switch {
	case errors.As(err, &he):
		status, msg = he.code, he.msg
	case errors.Is(err, scansvc.ErrNotFound), errors.Is(err, reportsvc.ErrScanNotFound):
		status, msg = http.StatusNotFound, "Scan not found"
	case errors.Is(err, reportsvc.ErrNotFound):
		status, msg = http.StatusNotFound, "Report not found"
	case errors.Is(err, findingsvc.ErrNotFound):
		status, msg = http.StatusNotFound, "Framework not found"
	case errors.Is(err, scansvc.ErrInvalidRequest), errors.Is(err, reportsvc.ErrInvalidRequest),
		errors.Is(err, findingsvc.ErrInvalidFilter), errors.Is(err, domain.ErrInvalidScope):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, reportsvc.ErrScanNotFinished), errors.Is(err, domain.ErrInvalidTransition):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, scanrunner.ErrPoolClosed):
		status, msg = http.StatusServiceUnavailable, "Scanner is shutting down"
	case errors.Is(err, analysis.ErrAnalysis):
		status, msg = http.StatusBadGateway, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		status, msg = http.StatusGatewayTimeout, "Timed out"
	}
	if status >= 500 {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "err", err,
			"request_id", middleware.GetReqID(r.Context()))
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return badRequest("invalid JSON body: %v", err)
	}
	return nil
}

func pathID(r *http.Request) (string, error) {
	var id string
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		return "", badRequest("invalid id: %v", err)
	}
	return id, nil
}

func (s *Server) getHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// postScan queues a scan and answers 201. With wait=true the scan runs on
// the request and the final state is returned with 200.
func (s *Server) postScan(w http.ResponseWriter, r *http.Request) {
	var (
		wait    *bool
		timeout *int
	)
	q := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "wait", q, &wait); err != nil {
		s.writeError(w, r, badRequest("invalid wait: %v", err))
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "timeout", q, &timeout); err != nil {
		s.writeError(w, r, badRequest("invalid timeout: %v", err))
		return
	}

	var req ports.NewScanRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if wait == nil || !*wait {
		scan, err := s.scanner.Submit(r.Context(), req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, scan)
		return
	}

	d := defaultWaitTimeout
	if timeout != nil && *timeout > 0 {
		d = min(time.Duration(*timeout)*time.Second, maxWaitTimeout)
	}
	ctx, cancel := context.WithTimeout(r.Context(), d)
	defer cancel()

	scan, err := s.scanner.RunInline(ctx, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scan)
}

func (s *Server) listScans(w http.ResponseWriter, r *http.Request) {
	scans, err := s.scanner.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scans)
}

func (s *Server) getScan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	detail, err := s.scanner.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) listVulnerabilities(w http.ResponseWriter, r *http.Request) {
	var severity, status string
	q := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "severity", q, &severity); err != nil {
		s.writeError(w, r, badRequest("invalid severity: %v", err))
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "status", q, &status); err != nil {
		s.writeError(w, r, badRequest("invalid status: %v", err))
		return
	}
	filter, err := findingsvc.ParseFilter(severity, status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	vulns, err := s.findings.Vulnerabilities(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vulns)
}

func (s *Server) listThreats(w http.ResponseWriter, r *http.Request) {
	threats, err := s.findings.Threats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, threats)
}

// getCompliance lists every framework, or the newest one matching
// ?framework= when given.
func (s *Server) getCompliance(w http.ResponseWriter, r *http.Request) {
	var framework string
	if err := runtime.BindQueryParameter("form", true, false, "framework", r.URL.Query(), &framework); err != nil {
		s.writeError(w, r, badRequest("invalid framework: %v", err))
		return
	}
	if framework == "" {
		all, err := s.findings.Frameworks(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, all)
		return
	}
	fw, err := s.findings.Framework(r.Context(), framework)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fw)
}

func (s *Server) getDashboard(w http.ResponseWriter, r *http.Request) {
	view, err := s.dashboard.Overview(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.reports.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) postReport(w http.ResponseWriter, r *http.Request) {
	var req ports.NewReportRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	report, err := s.reports.Generate(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	report, err := s.reports.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", strconv.Itoa(len(report.Content)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "report-"+report.ID+".pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(report.Content)
}
