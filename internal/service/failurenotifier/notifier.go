// Package failurenotifier fans terminal job failures out to operator alert sinks.
package failurenotifier

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/target/prepflow/internal/observability/notify"
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// IgnoreKinds lists error kinds that never alert.
	IgnoreKinds []string
	Now         func() time.Time
}

// Service dispatches failure events to all registered sinks.
type Service struct {
	logger      *slog.Logger
	sinks       []SinkRegistration
	ignoreKinds []string
	now         func() time.Time
}

// NewService constructs a failure notifier. Nil sinks are dropped.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		logger:      logger.With("component", "failure_notifier"),
		ignoreKinds: slices.Clone(opts.IgnoreKinds),
		now:         opts.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		if entry.Name == "" {
			entry.Name = "sink"
		}
		s.sinks = append(s.sinks, entry)
	}
	return s
}

// NotifyJobFailure delivers payload to every sink concurrently and waits for all of them. Delivery
// errors are logged, never returned.
func (s *Service) NotifyJobFailure(ctx context.Context, payload notify.JobFailurePayload) {
	if len(s.sinks) == 0 {
		return
	}
	if slices.Contains(s.ignoreKinds, payload.ErrorKind) {
		s.logger.DebugContext(ctx, "failure kind not alerted", "job_id", payload.JobID, "error_kind", payload.ErrorKind)
		return
	}
	if payload.Severity == "" {
		payload.Severity = notify.SeverityFor(payload.ErrorKind)
	}
	if payload.OccurredAt.IsZero() {
		payload.OccurredAt = s.now().UTC()
	}

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.SendJobFailure(ctx, payload); err != nil {
				s.logger.ErrorContext(ctx, "failure notifier delivery error",
					"sink", entry.Name,
					"job_id", payload.JobID,
					"kind", payload.Kind,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return s != nil && len(s.sinks) > 0
}
