package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/target/prepflow/internal/domain/model"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the trigger intake and status API.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeJobRunner runs the workflow job runner.
	ServiceModeJobRunner ServiceMode = "job-runner"
	// ServiceModeReaper runs the cleanup of old terminal jobs.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModeHTTP, ServiceModeJobRunner, ServiceModeReaper}
}

// ParseServices parses a comma-delimited string of service names.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	for part := range strings.SplitSeq(servicesStr, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		mode := ServiceMode(name)
		switch mode {
		case ServiceModeHTTP, ServiceModeJobRunner, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf("invalid service name: %q (valid options: http, job-runner, reaper)", name)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one service must be specified")
	}
	return services, nil
}

// RunnerConfig contains job runner configuration.
type RunnerConfig struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int `env:"RUNNER_CONCURRENCY" envDefault:"2"`

	// JobLease is how long a reserved job is owned before another runner may take it over.
	JobLease time.Duration `env:"RUNNER_JOB_LEASE" envDefault:"60s"`

	// Kinds restricts the runner to some job kinds; empty runs every kind.
	Kinds []model.JobKind `env:"RUNNER_KINDS" envSeparator:","`

	// NotifyWindow bounds one wait for new-job notifications; deferred jobs are picked up at this pace.
	NotifyWindow time.Duration `env:"RUNNER_NOTIFY_WINDOW" envDefault:"15s"`
}

// Sanitize applies guardrails to runner configuration values.
func (r *RunnerConfig) Sanitize() {
	if r.Concurrency < 1 {
		r.Concurrency = 1
	}
	if r.JobLease < 5*time.Second {
		r.JobLease = 5 * time.Second
	}
	if r.JobLease > 15*time.Minute {
		r.JobLease = 15 * time.Minute
	}
	if r.NotifyWindow < time.Second {
		r.NotifyWindow = time.Second
	}
}

// ReaperConfig contains job reaper configuration.
type ReaperConfig struct {
	// Schedule is a standard cron expression or descriptor such as @hourly.
	Schedule string `env:"REAPER_SCHEDULE" envDefault:"@hourly"`

	// Retention is how long completed and failed jobs are kept.
	Retention time.Duration `env:"REAPER_RETENTION" envDefault:"168h"` // 7 days

	// BatchSize is the maximum number of jobs deleted per statement.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"500"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	r.Schedule = strings.TrimSpace(r.Schedule)
	if r.Schedule == "" {
		r.Schedule = "@hourly"
	}
	if r.Retention < time.Hour {
		r.Retention = time.Hour
	}
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
