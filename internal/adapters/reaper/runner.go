// Package reaper runs the job reaper on a cron schedule.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/target/prepflow/internal/service"
)

// DefaultSchedule sweeps once an hour.
const DefaultSchedule = "@hourly"

// Sweeper is the part of service.ReaperService the runner drives.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Reaper   Sweeper      // Required: cleanup service
	Schedule string       // Optional: standard cron expression or descriptor, defaults to DefaultSchedule
	Logger   *slog.Logger // Optional: structured logger
}

// Runner triggers reaper sweeps from a cron schedule. Overlapping sweeps are skipped.
type Runner struct {
	reaper   Sweeper
	schedule cron.Schedule
	expr     string
	logger   *slog.Logger
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NewRunner validates the schedule and builds a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Reaper == nil {
		return nil, errors.New("reaper service is required")
	}
	expr := opts.Schedule
	if expr == "" {
		expr = DefaultSchedule
	}
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid reaper schedule %q: %w", expr, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		reaper:   opts.Reaper,
		schedule: schedule,
		expr:     expr,
		logger:   logger.With("component", "reaper_runner"),
	}, nil
}

// Run sweeps once immediately, then on every scheduled tick until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reaper runner", "schedule", r.expr)

	r.sweep(ctx)

	c := cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	c.Schedule(r.schedule, cron.FuncJob(func() { r.sweep(ctx) }))
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	r.logger.InfoContext(ctx, "reaper runner stopped")
	return nil
}

func (r *Runner) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	// Sweep logs its own failures.
	_, _ = r.reaper.Sweep(ctx)
}

var _ Sweeper = (*service.ReaperService)(nil)
