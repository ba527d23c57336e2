package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"throttle-gateway/config"
	"throttle-gateway/middleware/ratelimit/infra"
)

func newStatsCmd(envFile *string) *cobra.Command {
	var dsn string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print aggregated decisions from the SQL stats backend",
		Example: `  gateway stats --dsn file:ratelimit-stats.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				cfg, err := config.Load(*envFile)
				if err != nil {
					return err
				}
				dsn = cfg.Stats.SQLDSN
			}

			db, err := openStatsDB(dsn)
			if err != nil {
				return err
			}
			sqlDB, err := db.DB()
			if err != nil {
				return fmt.Errorf("stats db handle: %w", err)
			}
			defer sqlDB.Close()

			store, err := infra.NewSQLStatsStore(db)
			if err != nil {
				return err
			}
			rows, err := store.Totals(cmd.Context())
			if err != nil {
				return err
			}
			return printStats(cmd.OutOrStdout(), rows)
		},
	}

	cmd.Flags().StringVar(&dsn, "dsn", "", "sqlite DSN (default RATE_STATS_SQL_DSN)")
	return cmd
}

func printStats(w io.Writer, rows []infra.DecisionCounter) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCOPE\tROUTE\tALLOWED\tDENIED\tBYPASSED\tUPDATED")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n", r.Scope, r.Route, r.Allowed, r.Denied, r.Bypassed, r.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}
