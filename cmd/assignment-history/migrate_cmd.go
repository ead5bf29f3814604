package main

import (
	"database/sql"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	migrations "github.com/iota-uz/lendops/migrations/assignments"
	"github.com/iota-uz/lendops/modules/assignments/infrastructure/sqlite"
	"github.com/iota-uz/lendops/pkg/configuration"
)

type migrateOutput struct {
	Command string `json:"command"`
	Backend string `json:"backend"`
	Version int64  `json:"version,omitempty"`
	Path    string `json:"path,omitempty"`
}

func newMigrateCmd(flags *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations to the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf := configuration.Use()
			opts, err := resolveOptions(conf, flags)
			if err != nil {
				return err
			}
			out := migrateOutput{Command: "migrate", Backend: opts.Backend}

			if opts.Backend == configuration.BackendSQLite {
				// Open applies the embedded SQLite migrations.
				store, err := sqlite.Open(opts.SQLitePath)
				if err != nil {
					return withCode(exitDB, errors.Wrap(err, "open sqlite store"))
				}
				out.Path = opts.SQLitePath
				if err := store.Close(); err != nil {
					return withCode(exitDB, err)
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}

			db, err := sql.Open("postgres", conf.Database.ConnectionString())
			if err != nil {
				return withCode(exitDB, errors.Wrap(err, "db connect failed"))
			}
			defer db.Close()
			version, err := migrations.Up(cmd.Context(), db)
			if err != nil {
				return withCode(exitDB, err)
			}
			out.Version = version
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}
