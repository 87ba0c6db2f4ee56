package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/solatis/rulelint/internal/core/db"
	"github.com/solatis/rulelint/internal/core/logging"
)

// Version is the rulelint release.
const Version = "0.1.0"

// ErrValidationFailed makes the process exit 1 after rule errors were printed.
var ErrValidationFailed = errors.New("validation failed")

var (
	configFile string
	dbURL      string
	logLevel   string
	logFormat  string

	logger = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:           "rulelint",
	Short:         "Structural validator for IoT automation rules",
	Long:          `rulelint checks automation rules (trigger trees and action lists) for structural defects before they reach the conflict-detection engine.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logging.New(logLevel, logFormat, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		logger = l
		slog.SetDefault(l)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "database connection URL (sqlite://path or postgres://...)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (json, text)")
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// openDB connects using --db-url.
func openDB(ctx context.Context) (*sqlx.DB, error) {
	if dbURL == "" {
		return nil, fmt.Errorf("--db-url required")
	}
	database, err := db.Open(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return database, nil
}

// openStore connects, checks the schema is current and loads named queries.
func openStore(ctx context.Context) (*sqlx.DB, *db.Store, error) {
	database, err := openDB(ctx)
	if err != nil {
		return nil, nil, err
	}
	latest, err := db.LatestMigration(database.DriverName())
	if err == nil {
		err = db.RequireMigration(ctx, database, latest)
	}
	if err != nil {
		database.Close()
		return nil, nil, err
	}
	queries, err := db.LoadQueries(database)
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to load queries: %w", err)
	}
	return database, db.NewStore(queries), nil
}
