package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/target/prepflow/internal/bootstrap"
	"github.com/target/prepflow/internal/domain/model"
)

// jobReader is the part of the dispatcher the job commands use.
type jobReader interface {
	JobStatus(ctx context.Context, tenantID, jobID string) (*model.JobStatusView, error)
	Stats(ctx context.Context, tenantID string) (*model.JobStats, error)
}

func newJobCmd(a *app) *cobra.Command {
	var tenantID string
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect jobs of one tenant",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if tenantID == "" {
				return errors.New("--tenant is required")
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&tenantID, "tenant", "", "tenant identifier")

	status := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show one job's status, result and error",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withJobs(cmd, func(jobs jobReader) error {
				view, err := jobs.JobStatus(cmd.Context(), tenantID, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), view)
			})
		},
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Count jobs by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withJobs(cmd, func(jobs jobReader) error {
				st, err := jobs.Stats(cmd.Context(), tenantID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), st)
			})
		},
	}

	cmd.AddCommand(status, stats)
	return cmd
}

// withJobs builds the services against the configured database and hands the dispatcher to fn.
func (a *app) withJobs(cmd *cobra.Command, fn func(jobReader) error) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	db, err := a.openDB(cmd.Context())
	if err != nil {
		return err
	}
	defer a.closeDB(db)

	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{Config: &cfg, DB: db, Logger: a.logger})
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}
	return fn(services.Dispatcher)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
