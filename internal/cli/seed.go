package cli

import (
	"fmt"

	"exam-session-engine/internal/config"
	"exam-session-engine/internal/infra/memory"
	"exam-session-engine/internal/infra/postgres"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
)

// NewSeedCmd loads the YAML content seed into the Postgres catalogue.
func NewSeedCmd(configPath *string) *cobra.Command {
	var seedPath string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load catalogue questions from a YAML seed into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			if seedPath == "" {
				seedPath = cfg.Content.SeedPath
			}
			questions, err := memory.LoadCatalogue(seedPath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			logger := newLogger()
			if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
				return err
			}
			pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := postgres.SeedCatalogue(ctx, pool, questions); err != nil {
				return err
			}
			logger.Info("catalogue seeded", "questions", len(questions), "path", seedPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&seedPath, "file", "", "seed file (defaults to content.seedPath)")
	return cmd
}
