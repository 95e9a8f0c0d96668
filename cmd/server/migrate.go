package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	pg "cloudauditor/internal/adapters/postgres"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}

			db, err := pg.Connect(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("db connect: %w", err)
			}
			defer db.Close()

			n, err := db.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("migrations applied", "count", n)
			return nil
		},
	}
}
