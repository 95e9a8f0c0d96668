package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"cloudauditor/internal/analysis/remote"
	"cloudauditor/internal/analysis/rules"
	"cloudauditor/internal/config"
	"cloudauditor/internal/metrics"
	"cloudauditor/internal/orchestrator"
	"cloudauditor/internal/ports"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	serve := newServeCmd()
	root := &cobra.Command{
		Use:           "cloudauditor",
		Short:         "Passive cloud security scanner and findings API",
		Version:       version,
		SilenceUsage:  true,
		RunE:          serve.RunE,
	}
	root.AddCommand(serve, newMigrateCmd(), newScanCmd())
	return root
}

// setup loads the configuration and installs the process logger.
func setup() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, fmt.Errorf("config: %w", err)
	}
	lvl, _ := cfg.SlogLevel()
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.Production() {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	logger := slog.New(h).With("version", version)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newGatherer(cfg config.Config, m *metrics.Metrics, logger *slog.Logger) *orchestrator.Gatherer {
	c := orchestrator.DefaultCollectors(orchestrator.CollectorConfig{
		DoHEndpoint:      cfg.DoHEndpoint,
		HostIntelBaseURL: cfg.HostIntelBaseURL,
		HostIntelRPS:     cfg.HostIntelRPS,
		UserAgent:        cfg.UserAgent,
	})
	opts := []orchestrator.Option{orchestrator.WithLogger(logger)}
	if m != nil {
		opts = append(opts, orchestrator.WithMetrics(m))
	}
	return orchestrator.New(c, opts...)
}

// newAnalyzer prefers the remote analysis service when one is configured and
// falls back to the built-in rule set.
func newAnalyzer(cfg config.Config, clock clockwork.Clock) ports.Analyzer {
	if cfg.AnalyzerURL == "" {
		return rules.New(clock)
	}
	return remote.New(cfg.AnalyzerURL,
		remote.WithToken(cfg.AnalyzerToken),
		remote.WithTimeout(cfg.AnalyzerTimeout),
		remote.WithClock(clock),
	)
}
