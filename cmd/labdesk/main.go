package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/labdesk/labdesk/internal/config"
	"github.com/labdesk/labdesk/internal/platform/db"
	"github.com/labdesk/labdesk/migrations"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "labdesk",
		Short:        "Lab report rendering service",
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(renderCmd())
	rootCmd.AddCommand(fetchCmd())
	rootCmd.AddCommand(migrateCmd())
	return rootCmd
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the lab report API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			autoMigrate, _ := cmd.Flags().GetBool("migrate")
			return runServer(autoMigrate)
		},
	}
	cmd.Flags().Bool("migrate", true, "Apply pending migrations before serving when DATABASE_URL is set")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	})

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printMigrationStatus(cmd.OutOrStdout(), statuses)
				return nil
			})
		},
	})

	return cmd
}

func withMigrator(ctx context.Context, fn func(context.Context, *db.Migrator) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.UsePostgres() {
		return fmt.Errorf("DATABASE_URL is required for migrations")
	}

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, db.NewMigrator(pool, migrations.FS))
}
