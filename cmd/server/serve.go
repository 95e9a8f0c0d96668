package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	httpadapter "cloudauditor/internal/adapters/http"
	"cloudauditor/internal/adapters/memory"
	pg "cloudauditor/internal/adapters/postgres"
	"cloudauditor/internal/config"
	"cloudauditor/internal/metrics"
	"cloudauditor/internal/ports"
	dashboardsvc "cloudauditor/internal/services/dashboard"
	findingsvc "cloudauditor/internal/services/findings"
	reportsvc "cloudauditor/internal/services/reports"
	scansvc "cloudauditor/internal/services/scanner"
	"cloudauditor/internal/telemetry"
	"cloudauditor/internal/workers/scanrunner"
)

const (
	httpShutdownTimeout = 15 * time.Second
	poolShutdownTimeout = 30 * time.Second
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scan workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

// openStore returns Postgres when DATABASE_URL is set and an in-memory store
// otherwise. The returned func releases the store.
func openStore(ctx context.Context, cfg config.Config, clock clockwork.Clock, logger *slog.Logger) (ports.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, results are kept in memory only")
		return memory.New(), func() {}, nil
	}

	db, err := pg.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("db connect: %w", err)
	}
	applied, err := db.Migrate(ctx)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	if applied > 0 {
		logger.Info("migrations applied", "count", applied)
	}
	n, err := db.FailInterrupted(ctx, clock.Now().UTC())
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("recover interrupted scans: %w", err)
	}
	if n > 0 {
		logger.Warn("marked interrupted scans as failed", "count", n)
	}
	return db, db.Close, nil
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Options{
		Endpoint: cfg.OTLPEndpoint,
		Insecure: !cfg.Production(),
		Version:  version,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracer shutdown", "err", err)
		}
	}()

	clock := clockwork.NewRealClock()
	m := metrics.New()

	store, closeStore, err := openStore(ctx, cfg, clock, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	pool := scanrunner.NewPool(cfg.ScanWorkers, logger)
	scanner := scansvc.New(store, store, newGatherer(cfg, m, logger), newAnalyzer(cfg, clock),
		scansvc.WithQueue(pool),
		scansvc.WithClock(clock),
		scansvc.WithLogger(logger),
		scansvc.WithMetrics(m),
		scansvc.WithScanTimeout(cfg.ScanTimeout),
	)
	// Workers outlive the signal context so Shutdown can drain them.
	pool.Start(context.WithoutCancel(ctx), scanner)
	logger.Info("scan workers started", "count", cfg.ScanWorkers)

	api := httpadapter.New(httpadapter.Deps{
		Scanner:   scanner,
		Findings:  findingsvc.New(store),
		Dashboard: dashboardsvc.New(store, store, clock),
		Reports:   reportsvc.New(store, store, store, clock, logger),
		Metrics:   m,
		Logger:    logger,
	})
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("listening", "addr", cfg.ListenAddr, "env", cfg.Env)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	}

	base := context.WithoutCancel(ctx)
	hctx, cancel := context.WithTimeout(base, httpShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(hctx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}

	logger.Info("draining scan pool", "active", len(pool.Active()))
	pctx, cancelPool := context.WithTimeout(base, poolShutdownTimeout)
	defer cancelPool()
	if err := pool.Shutdown(pctx); err != nil {
		logger.Warn("scan pool shutdown cancelled running scans", "err", err)
	}
	return nil
}
