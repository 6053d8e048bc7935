package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/database"
)

// migrateCmd applies or rolls back SQLite migrations without serving.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Apply all pending SQLite migrations, or roll back the most recent one
with --down. serve migrates automatically; this command is for deployments
that migrate as a separate step.

The mongodb driver has no migrations; its indexes are created on connect.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		down, _ := cmd.Flags().GetBool("down")
		path, explicit := configPath(cmd)

		cfg, err := loadConfig(path, explicit)
		if err != nil {
			return err
		}
		return runMigrate(cmd.Context(), cfg, down, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().Bool("down", false, "roll back the most recently applied migration")
}

// runMigrate migrates the configured SQLite database and prints the
// resulting status to out.
func runMigrate(ctx context.Context, cfg *config.Config, down bool, out io.Writer) error {
	if cfg.Database.Driver != config.DriverSQLite {
		return fmt.Errorf("migrate: driver %q has no migrations", cfg.Database.Driver)
	}

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // read-only after migrate

	if down {
		if err := db.MigrateDown(ctx); err != nil {
			return fmt.Errorf("rolling back migration: %w", err)
		}
	} else if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}

	fmt.Fprintf(out, "database: %s\n", db.Path())
	for _, m := range applied {
		fmt.Fprintf(out, "  applied  %s  %s\n", m.Version, m.AppliedAt.Format("2006-01-02 15:04:05"))
	}
	for _, m := range pending {
		fmt.Fprintf(out, "  pending  %s  %s\n", m.Version, m.Name)
	}
	return nil
}
