package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/rulelint/internal/core/api"
	"github.com/solatis/rulelint/internal/core/config"
	"github.com/solatis/rulelint/internal/core/retention"
	"github.com/solatis/rulelint/internal/types"
)

var (
	reportsLimit     int
	reportsOlderThan time.Duration
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Inspect recorded validation reports",
}

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent validation reports",
	Args:  cobra.NoArgs,
	RunE:  runReportsList,
}

var reportsShowCmd = &cobra.Command{
	Use:   "show <report-id>",
	Short: "Print one report as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportsShow,
}

var reportsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete reports older than the retention period",
	Args:  cobra.NoArgs,
	RunE:  runReportsPrune,
}

func init() {
	rootCmd.AddCommand(reportsCmd)
	reportsCmd.AddCommand(reportsListCmd, reportsShowCmd, reportsPruneCmd)
	reportsListCmd.Flags().IntVar(&reportsLimit, "limit", 20, "maximum reports to list")
	reportsPruneCmd.Flags().DurationVar(&reportsOlderThan, "older-than", 0, "override validator_api.report_retention")
}

func runReportsList(cmd *cobra.Command, args []string) error {
	if reportsLimit <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", reportsLimit)
	}
	ctx := cmd.Context()
	database, store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	reports, err := store.ListReports(ctx, reportsLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "REPORT\tCREATED\tMETHOD\tRULES\tFAILED\tAPI KEY")
	for _, r := range reports {
		apiKey := r.APIKeyID.String
		if !r.APIKeyID.Valid {
			apiKey = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			r.ReportID, r.CreatedAt.UTC().Format(time.RFC3339), r.Method, r.RuleCount, r.FailedCount, apiKey)
	}
	return w.Flush()
}

func runReportsShow(cmd *cobra.Command, args []string) error {
	id, err := types.ParseReportID(args[0])
	if err != nil {
		return fmt.Errorf("invalid report id %q: %w", args[0], err)
	}

	ctx := cmd.Context()
	database, store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	r, err := store.GetReport(ctx, string(id))
	if err != nil {
		return err
	}

	out := map[string]any{
		"report_id":    r.ReportID,
		"method":       r.Method,
		"rule_count":   r.RuleCount,
		"failed_count": r.FailedCount,
		"errors":       r.Errors,
		"created_at":   r.CreatedAt.UTC(),
		"id_time":      types.ReportIDTime(id).UTC(),
	}
	if r.APIKeyID.Valid {
		out["api_key_id"] = r.APIKeyID.String
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func runReportsPrune(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("older-than") {
		cfg.ReportRetention = reportsOlderThan
	}
	if cfg.ReportRetention <= 0 {
		return fmt.Errorf("report retention is disabled; pass --older-than")
	}

	ctx := cmd.Context()
	database, store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	res, err := retention.NewPruner(store, api.ReportsDir(cfg.DataDir), cfg.ReportRetention, logger).Prune(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pruned %d report(s) and %d file(s) created before %s\n",
		res.Rows, res.Files, res.Cutoff.Format(time.RFC3339))
	return nil
}
