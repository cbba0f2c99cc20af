package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/prepflow/internal/core"
	"github.com/target/prepflow/internal/data"
	"github.com/target/prepflow/internal/observability/metrics"
	"github.com/target/prepflow/internal/observability/statsd"
)

// Reaper defaults.
const (
	DefaultReaperRetention  = 7 * 24 * time.Hour
	DefaultReaperBatchSize  = 500
	DefaultReaperMaxBatches = 100
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo core.ReaperRepository // Required: reaper repository

	Retention  time.Duration     // Optional: age after which terminal jobs are deleted
	BatchSize  int               // Optional: rows deleted per statement
	MaxBatches int               // Optional: upper bound on statements per sweep
	Clock      data.TimeProvider // Optional: defaults to system time
	Logger     *slog.Logger      // Optional: structured logger
	Metrics    statsd.Sink       // Optional: metrics sink
}

// ReaperService deletes completed and failed jobs, with their step results, once they are older than
// the retention period. Pending and processing jobs are never touched.
type ReaperService struct {
	repo       core.ReaperRepository
	retention  time.Duration
	batchSize  int
	maxBatches int
	clock      data.TimeProvider
	logger     *slog.Logger
	metrics    statsd.Sink
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ReaperRepository is required")
	}
	s := &ReaperService{
		repo:       opts.Repo,
		retention:  opts.Retention,
		batchSize:  opts.BatchSize,
		maxBatches: opts.MaxBatches,
		clock:      opts.Clock,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}
	if s.retention <= 0 {
		s.retention = DefaultReaperRetention
	}
	if s.batchSize <= 0 {
		s.batchSize = DefaultReaperBatchSize
	}
	if s.maxBatches <= 0 {
		s.maxBatches = DefaultReaperMaxBatches
	}
	if s.clock == nil {
		s.clock = data.RealTimeProvider{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "reaper_service")
	return s, nil
}

// Sweep deletes expired terminal jobs in batches until a batch comes back short. It returns the number of
// jobs deleted, including those deleted before an error.
func (s *ReaperService) Sweep(ctx context.Context) (int64, error) {
	start := time.Now()
	cutoff := s.clock.Now().Add(-s.retention)

	var total int64
	var err error
	for range s.maxBatches {
		if err = ctx.Err(); err != nil {
			break
		}
		var n int64
		n, err = s.repo.DeleteTerminalBefore(ctx, cutoff, s.batchSize)
		total += n
		if err != nil {
			err = fmt.Errorf("delete terminal jobs: %w", err)
			break
		}
		if n < int64(s.batchSize) {
			break
		}
	}

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	if s.metrics != nil {
		tags := map[string]string{"result": result}
		s.metrics.Count("reaper.deleted", total, tags)
		s.metrics.Timing("reaper.duration", time.Since(start), metrics.CloneTags(tags))
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return total, err
		}
		s.logger.ErrorContext(ctx, "reaper sweep failed", "deleted", total, "error", err)
		return total, err
	}
	if total > 0 {
		s.logger.InfoContext(ctx, "reaper sweep finished", "deleted", total, "cutoff", cutoff)
	}
	return total, nil
}
