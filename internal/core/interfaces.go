// Package core defines the ports between the workflow engine and its storage and external collaborators.
package core

import (
	"context"
	"time"

	"github.com/target/prepflow/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// Service implementations depend on these interfaces, not on concrete implementations.

// JobRepository defines the interface for job data operations. Every tenant-facing operation takes the
// tenant identifier and never reveals jobs that belong to another tenant.
type JobRepository interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	// Get returns NotFound for ids that exist only in another tenant.
	Get(ctx context.Context, tenantID, id string) (*model.Job, error)
	// Transition applies one lifecycle edge as a single update conditional on the expected current status.
	Transition(ctx context.Context, req model.TransitionRequest) (*model.Job, error)
	// IncrementRetry bumps retry_count of a processing job, records the classified kind and returns the new count.
	IncrementRetry(ctx context.Context, tenantID, id, kind string) (int, error)
	Stats(ctx context.Context, tenantID string) (*model.JobStats, error)

	// Runner operations. They act on leases and scheduling columns only, never on status.
	ReserveNext(ctx context.Context, params ReserveParams) (*model.Job, error)
	Heartbeat(ctx context.Context, id, owner string, lease time.Duration) (bool, error)
	Defer(ctx context.Context, id string, until time.Time) error
	Release(ctx context.Context, id string) error
	WaitForNotification(ctx context.Context, kind model.JobKind) error

	// DeleteTerminalBefore removes up to limit completed or failed jobs last updated before cutoff,
	// together with their step results.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// ReserveParams groups parameters for JobRepository.ReserveNext.
type ReserveParams struct {
	Kinds []model.JobKind
	Owner string
	Lease time.Duration
}

// StepResultRepository persists per-step checkpoints. Results are write-once.
type StepResultRepository interface {
	// Get returns (nil, nil) when the step has no checkpoint yet.
	Get(ctx context.Context, tenantID, jobID, step string) (*model.StepResult, error)
	// Record stores the checkpoint unless one exists already; the stored checkpoint is returned either way.
	Record(ctx context.Context, res *model.StepResult) (*model.StepResult, error)
	List(ctx context.Context, tenantID, jobID string) ([]*model.StepResult, error)
}

// TenantStore is the tenant-scoped record store the workflows read and write. Every call that targets
// an entity owned by another tenant fails with CrossTenantAccess.
type TenantStore interface {
	Find(ctx context.Context, tenantID string, et model.EntityType, filter model.Filter) ([]*model.Entity, error)
	Create(ctx context.Context, tenantID string, et model.EntityType, data map[string]any) (*model.Entity, error)
	// Update merges data into the stored entity.
	Update(ctx context.Context, tenantID string, et model.EntityType, id string, data map[string]any) (*model.Entity, error)
	Delete(ctx context.Context, tenantID string, et model.EntityType, id string) error
}

// ModelRequest is one call to the external language model.
type ModelRequest struct {
	Instructions string
	Subject      string
	// Schema names the response contract; adapters may use it to request JSON output.
	Schema string
}

// ModelClient calls the external language model and returns the raw text content of its reply.
type ModelClient interface {
	Complete(ctx context.Context, req ModelRequest) (string, error)
}

// BulkNotifier delivers in-app notifications. Delivery is fire-and-forget: failures are logged by the
// implementation and never reported to the caller.
type BulkNotifier interface {
	SendBulkNotification(ctx context.Context, tenantID string, userIDs []string, title, message string)
}

// JobLock guards a job against concurrent execution by two runners.
type JobLock interface {
	Acquire(ctx context.Context, jobID, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, jobID, owner string) error
}

// TriggerDeduper collapses repeated identical triggers within a short window onto one job.
type TriggerDeduper interface {
	// Claim records jobID under key unless the key is held; it returns the job id that owns the key.
	Claim(ctx context.Context, key, jobID string, ttl time.Duration) (owner string, claimed bool, err error)
}

// ReaperRepository defines the interface for job cleanup operations.
type ReaperRepository interface {
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}
