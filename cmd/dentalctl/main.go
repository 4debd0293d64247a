package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/dental-agenda/internal/config"
	"github.com/hackgods/dental-agenda/internal/db"
	"github.com/hackgods/dental-agenda/internal/logging"
)

// env is what every subcommand needs: loaded config, a logger in the
// context and an open pool.
type env struct {
	cfg  config.Config
	pool *pgxpool.Pool
	ctx  context.Context
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "dentalctl",
		Short:         "Operate the dental agenda: schema, seed data, integrations and calendar sync",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(integrationCmd())
	rootCmd.AddCommand(syncLogCmd())
	rootCmd.AddCommand(resyncCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// open loads config and connects. The caller closes the pool.
func open(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := logging.New(cfg, "dentalctl").Level(zerolog.WarnLevel)
	ctx := logger.WithContext(cmd.Context())

	pool, err := db.Connect(ctx, cfg.PostgresDSN, false)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, pool: pool, ctx: ctx}, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd)
			if err != nil {
				return err
			}
			defer e.pool.Close()

			count, err := db.Migrate(e.ctx, e.pool, db.Migrations())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s).\n", count)
			return nil
		},
	}
}
