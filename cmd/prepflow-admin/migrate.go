package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/target/prepflow/internal/bootstrap"
	"github.com/target/prepflow/internal/migrate"
)

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	var timeout time.Duration
	run := &cobra.Command{
		Use:   "run",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			db, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer a.closeDB(db)

			if err := bootstrap.RunMigrations(ctx, db, a.logger); err != nil {
				return err
			}
			return writef(cmd.OutOrStdout(), "migrations applied\n")
		},
	}
	run.Flags().DurationVar(&timeout, "timeout", defaultMigrationTimeout, "maximum time to wait for migrations")

	status := &cobra.Command{
		Use:   "status",
		Short: "List migrations and when they were applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer a.closeDB(db)

			list, err := migrate.List(cmd.Context(), db)
			if err != nil {
				return err
			}
			return printMigrations(cmd, list)
		},
	}

	cmd.AddCommand(run, status)
	return cmd
}

func printMigrations(cmd *cobra.Command, list []migrate.Status) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	if err := writef(w, "VERSION\tAPPLIED AT\n"); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, s := range list {
		applied := "pending"
		if s.Applied() {
			applied = s.AppliedAt.Format(time.RFC3339)
		}
		if err := writef(w, "%s\t%s\n", s.Version, applied); err != nil {
			return fmt.Errorf("write migration %s: %w", s.Version, err)
		}
	}
	return w.Flush()
}
