package cmd

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/freezegate/freezegate/internal/config"
	"github.com/freezegate/freezegate/internal/logging"
	"github.com/freezegate/freezegate/internal/migrate"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "apply or inspect the exemption/history schema (standard and lite profiles)",
	RunE:  runMigrate,
}

var migrateStatusOnly bool

func init() {
	migrateCmd.Flags().BoolVar(&migrateStatusOnly, "status", false, "report the current schema version without applying migrations")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	bootCfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if bootCfg.Profile == config.ProfileMemory {
		return fmt.Errorf("migrate: profile %q has no SQL schema to manage", bootCfg.Profile)
	}

	logger := logging.New(logging.Config{Level: bootCfg.Log.Level, Format: bootCfg.Log.Format, Output: "stdout"})

	var (
		db      *sql.DB
		dialect migrate.Dialect
	)
	switch bootCfg.Profile {
	case config.ProfileStandard:
		dialect = migrate.DialectPostgres
		db, err = sql.Open("pgx", bootCfg.DatabaseURL())
	case config.ProfileLite:
		dialect = migrate.DialectSQLite
		db, err = sql.Open("sqlite", bootCfg.Database.Database)
	default:
		return fmt.Errorf("migrate: unknown profile %q", bootCfg.Profile)
	}
	if err != nil {
		return fmt.Errorf("migrate: open database: %w", err)
	}
	defer db.Close()

	if migrateStatusOnly {
		version, err := migrate.Status(ctx, db, dialect)
		if err != nil {
			return fmt.Errorf("migrate: status: %w", err)
		}
		fmt.Printf("current schema version: %d\n", version)
		return nil
	}

	if err := migrate.Up(ctx, db, dialect, logger); err != nil {
		return fmt.Errorf("migrate: up: %w", err)
	}
	logger.Info("migrations applied")
	return nil
}
