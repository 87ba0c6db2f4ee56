package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/rulelint/internal/core/api"
	"github.com/solatis/rulelint/internal/core/auth"
	"github.com/solatis/rulelint/internal/core/config"
	"github.com/solatis/rulelint/internal/core/metrics"
	"github.com/solatis/rulelint/internal/core/retention"
	"github.com/solatis/rulelint/internal/core/server"
	"github.com/solatis/rulelint/internal/rules"
)

// shutdownTimeout bounds graceful shutdown after a signal.
const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC rule validation service",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "gRPC server host")
	serveCmd.Flags().Int("port", 50051, "gRPC server port")
	serveCmd.Flags().String("metrics-addr", ":9090", "prometheus listen address (empty disables)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("host") {
		cfg.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.MetricsAddr, _ = cmd.Flags().GetString("metrics-addr")
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if len(secrets) == 0 {
		return fmt.Errorf("no HMAC secrets configured (set %s environment variable)", config.SecretEnvVar)
	}

	database, store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	collector := metrics.NewCollector(nil)
	authenticator := auth.NewAuthenticator(secrets, store.Queries(), logger)

	service, err := api.NewRuleValidatorService(rules.NewEngine(), cfg,
		api.WithStore(store),
		api.WithMetrics(collector),
		api.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	grpcServer, err := server.NewGRPCServer(cfg, service, authenticator, collector, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	pruner := retention.NewPruner(store, api.ReportsDir(cfg.DataDir), cfg.ReportRetention, logger)
	scheduler := retention.NewScheduler(pruner, cfg.PruneSchedule, logger)
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	errChan := make(chan error, 2)

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux(collector)}
		go func() {
			logger.Info("metrics server listening", "addr", cfg.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	logger.Info("starting rulelint validator service",
		"version", Version,
		"addr", cfg.Addr(),
		"data_dir", cfg.DataDir,
		"secrets", len(secrets),
		"rate_limit", cfg.RateLimit,
	)
	go func() {
		errChan <- grpcServer.Start(ctx)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutting down gracefully")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown failed", "error", err)
		}
	}
	return grpcServer.Shutdown(shutdownCtx)
}
