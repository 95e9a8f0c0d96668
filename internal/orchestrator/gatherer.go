// Package orchestrator turns a raw target into an evidence bundle by running
// the collectors selected by the scan scope.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"cloudauditor/internal/collectors"
	"cloudauditor/internal/domain"
	"cloudauditor/internal/metrics"
	"cloudauditor/internal/target"
	"cloudauditor/internal/telemetry"
)

// Collectors are the probes a Gatherer fans out to. A nil entry is treated
// as a collector that always fails.
type Collectors struct {
	Resolver     collectors.Collector[string, string]
	Headers      collectors.Collector[string, *domain.HeaderEvidence]
	HostIntel    collectors.Collector[string, *domain.HostIntel]
	TLS          collectors.Collector[string, *domain.TLSEvidence]
	Technologies collectors.Collector[string, []string]
	DNSRecords   collectors.Collector[collectors.DNSTarget, *domain.DNSEvidence]
}

// Timeouts bound each collector independently.
type Timeouts struct {
	Resolve      time.Duration
	Headers      time.Duration
	HostIntel    time.Duration
	TLS          time.Duration
	Technologies time.Duration
	DNSRecords   time.Duration
}

// DefaultTimeouts bounds each network probe at 15s or less. DNSRecords is an
// aggregate over sequential sub-queries that carry their own 10s and 5s bounds.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Resolve:      10 * time.Second,
		Headers:      15 * time.Second,
		HostIntel:    10 * time.Second,
		TLS:          15 * time.Second,
		Technologies: 15 * time.Second,
		DNSRecords:   30 * time.Second,
	}
}

// CollectorConfig configures the production collectors.
type CollectorConfig struct {
	DoHEndpoint      string
	HostIntelBaseURL string
	HostIntelRPS     float64
	UserAgent        string
}

// DefaultCollectors builds the network-backed collectors. The resolver and
// DNS record checker share one DoH client.
func DefaultCollectors(cfg CollectorConfig) Collectors {
	doh := collectors.NewDoHClient(cfg.DoHEndpoint)
	return Collectors{
		Resolver:     collectors.NewResolver(doh),
		Headers:      collectors.NewHeaderProber(cfg.UserAgent),
		HostIntel:    collectors.NewHostIntelLookup(cfg.HostIntelBaseURL, cfg.UserAgent, cfg.HostIntelRPS),
		TLS:          collectors.NewTLSProber(cfg.UserAgent),
		Technologies: collectors.NewFingerprinter(cfg.UserAgent),
		DNSRecords:   collectors.NewDNSRecordChecker(doh),
	}
}

type Gatherer struct {
	c        Collectors
	timeouts Timeouts
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	log      *slog.Logger
}

type Option func(*Gatherer)

func WithTimeouts(t Timeouts) Option { return func(g *Gatherer) { g.timeouts = t } }
func WithMetrics(m *metrics.Metrics) Option { return func(g *Gatherer) { g.metrics = m } }
func WithLogger(l *slog.Logger) Option { return func(g *Gatherer) { g.log = l } }
func WithTracer(t trace.Tracer) Option { return func(g *Gatherer) { g.tracer = t } }

func New(c Collectors, opts ...Option) *Gatherer {
	g := &Gatherer{
		c:        c,
		timeouts: DefaultTimeouts(),
		tracer:   telemetry.Tracer(),
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Gather normalizes rawTarget, resolves it, and runs the collectors selected
// by scope concurrently. Collector failures leave the matching bundle field
// nil and are never returned as errors.
func (g *Gatherer) Gather(ctx context.Context, rawTarget string, scope domain.Scope) (*domain.Bundle, error) {
	if !scope.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidScope, scope)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t := target.Parse(rawTarget)

	ctx, span := g.tracer.Start(ctx, "scan.gather", trace.WithAttributes(
		attribute.String("target.url", t.URL),
		attribute.String("scan.scope", string(scope)),
	))
	defer span.End()

	b := &domain.Bundle{TargetURL: t.URL, Technologies: []string{}}

	// Resolution happens first; host intel depends on it.
	if ip, ok := run(ctx, g, g.c.Resolver, t.Hostname, g.timeouts.Resolve); ok && ip != "" {
		b.ResolvedIP = &ip
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	spawn := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	if scope.RunsHeaders() {
		spawn(func() {
			if ev, ok := run(ctx, g, g.c.Headers, t.URL, g.timeouts.Headers); ok && ev != nil {
				mu.Lock()
				b.Headers = ev
				mu.Unlock()
			}
		})
		spawn(func() {
			if techs, ok := run(ctx, g, g.c.Technologies, t.URL, g.timeouts.Technologies); ok && techs != nil {
				mu.Lock()
				b.Technologies = techs
				mu.Unlock()
			}
		})
	}
	if scope.RunsHostIntel() && b.ResolvedIP != nil {
		ip := *b.ResolvedIP
		spawn(func() {
			if hi, ok := run(ctx, g, g.c.HostIntel, ip, g.timeouts.HostIntel); ok && hi != nil {
				mu.Lock()
				b.HostIntel = hi
				mu.Unlock()
			}
		})
	}
	if scope.RunsTLS() {
		spawn(func() {
			if ev, ok := run(ctx, g, g.c.TLS, t.URL, g.timeouts.TLS); ok && ev != nil {
				mu.Lock()
				b.TLS = ev
				mu.Unlock()
			}
		})
	}
	if scope.RunsDNSRecords() {
		in := collectors.DNSTarget{Hostname: t.Hostname, Registrable: t.Registrable}
		spawn(func() {
			if ev, ok := run(ctx, g, g.c.DNSRecords, in, g.timeouts.DNSRecords); ok && ev != nil {
				mu.Lock()
				b.DNS = ev
				mu.Unlock()
			}
		})
	}

	wg.Wait()

	span.SetAttributes(attribute.Int("evidence.technologies", len(b.Technologies)))
	return b, nil
}

// run wraps collectors.Run with logging, metrics and a span per collector.
func run[I, O any](ctx context.Context, g *Gatherer, c collectors.Collector[I, O], in I, timeout time.Duration) (O, bool) {
	var zero O
	if c == nil {
		return zero, false
	}
	name := c.Name()

	ctx, span := g.tracer.Start(ctx, "collector."+name)
	defer span.End()

	start := time.Now()
	out, err := collectors.Run(ctx, c, in, timeout)
	elapsed := time.Since(start)
	g.metrics.ObserveCollector(name, elapsed, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.log.Warn("collector failed", "collector", name, "elapsed", elapsed, "err", err)
		return zero, false
	}
	g.log.Debug("collector finished", "collector", name, "elapsed", elapsed)
	return out, true
}
