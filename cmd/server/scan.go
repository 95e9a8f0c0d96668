package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"cloudauditor/internal/adapters/memory"
	"cloudauditor/internal/domain"
	"cloudauditor/internal/output"
	"cloudauditor/internal/ports"
	scansvc "cloudauditor/internal/services/scanner"
)

type scanFlags struct {
	scope   string
	name    string
	jsonOut bool
	noColor bool
	timeout time.Duration
}

func newScanCmd() *cobra.Command {
	var f scanFlags
	cmd := &cobra.Command{
		Use:   "scan <target>",
		Short: "Run one scan in the foreground and print its findings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if f.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, f.timeout)
				defer cancel()
			}

			clock := clockwork.NewRealClock()
			store := memory.New()
			scanner := scansvc.New(store, store, newGatherer(cfg, nil, logger), newAnalyzer(cfg, clock),
				scansvc.WithClock(clock),
				scansvc.WithLogger(logger),
			)

			scan, err := scanner.RunInline(ctx, ports.NewScanRequest{Name: f.name, Target: args[0], Scope: f.scope})
			if err != nil {
				return err
			}
			detail, err := scanner.Get(context.WithoutCancel(ctx), scan.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if f.jsonOut {
				if err := output.WriteJSON(out, detail); err != nil {
					return err
				}
			} else {
				output.WriteSummary(out, detail)
				output.WriteFindings(out, detail.Findings, output.Plain(os.Stdout, f.noColor))
			}
			if detail.Status != domain.StatusCompleted {
				return fmt.Errorf("scan %s ended %s", detail.ID, detail.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&f.scope, "scope", "s", string(domain.ScopeFull), "collectors to run: full, ssl, headers or ports")
	cmd.Flags().StringVar(&f.name, "name", "", "scan name")
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "print the scan detail as JSON")
	cmd.Flags().BoolVar(&f.noColor, "no-color", false, "disable colored output")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 5*time.Minute, "overall scan timeout")
	return cmd
}
