package main

import (
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	backend    string
	sqlitePath string
	cache      string
	metricsURL string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "assignment-history",
		Short:         "Query and correct entity-to-owner assignment history",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.backend, "backend", "", "Store backend: postgres or sqlite (default from ASSIGNMENTS_BACKEND)")
	cmd.PersistentFlags().StringVar(&opts.sqlitePath, "sqlite-path", "", "SQLite database file (default from ASSIGNMENTS_SQLITE_PATH)")
	cmd.PersistentFlags().StringVar(&opts.cache, "cache", "", "Current owner cache: none, memory or redis (default from ASSIGNMENTS_CACHE)")
	cmd.PersistentFlags().StringVar(&opts.metricsURL, "metrics-push-url", "", "Pushgateway URL to push metrics to after the command (default from ASSIGNMENTS_METRICS_PUSH_URL)")

	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newCatalogCmd(opts))
	cmd.AddCommand(newOwnerAtCmd(opts))
	cmd.AddCommand(newCurrentCmd(opts))
	cmd.AddCommand(newHistoryCmd(opts))
	cmd.AddCommand(newOwnersAtCmd(opts))
	cmd.AddCommand(newOwnersAtDatesCmd(opts))
	cmd.AddCommand(newEntitiesOwnedCmd(opts))
	cmd.AddCommand(newChangeOwnerCmd(opts))
	cmd.AddCommand(newUpsertCmd(opts))
	cmd.AddCommand(newUpdateCmd(opts))
	cmd.AddCommand(newDeleteCmd(opts))
	return cmd
}

func Execute() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		writeError(cmd.ErrOrStderr(), err)
		os.Exit(exitCode(err))
	}
}
