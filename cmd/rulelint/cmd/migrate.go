package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/rulelint/internal/core/db"
)

var migrateStatus bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply embedded database migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().BoolVar(&migrateStatus, "status", false, "list migrations without applying them")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	database, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	if !migrateStatus {
		if err := db.MigrateUp(ctx, database); err != nil {
			return err
		}
		logger.Info("migrations applied", "driver", database.DriverName())
	}

	statuses, err := db.MigrateStatus(ctx, database)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MIGRATION\tSTATUS\tAPPLIED AT\tDURATION")
	for _, s := range statuses {
		if !s.Applied() {
			fmt.Fprintf(w, "%s\tpending\t-\t-\n", s.ID)
			continue
		}
		fmt.Fprintf(w, "%s\tapplied\t%s\t%dms\n", s.ID, s.AppliedAt.UTC().Format(time.RFC3339), s.ExecutionMs)
	}
	return w.Flush()
}
