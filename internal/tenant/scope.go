// Package tenant binds store access to a single tenant identifier.
package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/target/prepflow/internal/core"
	"github.com/target/prepflow/internal/domain/model"
	apperrors "github.com/target/prepflow/internal/errors"
)

// Stores groups the repositories a Scope reads and writes.
type Stores struct {
	Records core.TenantStore
	Jobs    core.JobRepository
	Steps   core.StepResultRepository
}

// Validate reports missing repositories.
func (s Stores) Validate() error {
	switch {
	case s.Records == nil:
		return errors.New("tenant store is required")
	case s.Jobs == nil:
		return errors.New("job repository is required")
	case s.Steps == nil:
		return errors.New("step result repository is required")
	default:
		return nil
	}
}

// Scope is a data-access facade bound to one tenant. Code holding a Scope has no way to name
// another tenant's partition.
type Scope struct {
	tenantID string
	stores   Stores
}

// NewScope binds stores to tenantID.
func NewScope(tenantID string, stores Stores) (*Scope, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, apperrors.ValidationField("tenantId", "tenant id is required")
	}
	if err := stores.Validate(); err != nil {
		return nil, err
	}
	return &Scope{tenantID: tenantID, stores: stores}, nil
}

// TenantID returns the bound tenant identifier.
func (s *Scope) TenantID() string { return s.tenantID }

// Find returns the tenant's entities of type et whose data contains filter.
func (s *Scope) Find(ctx context.Context, et model.EntityType, filter model.Filter) ([]*model.Entity, error) {
	return s.stores.Records.Find(ctx, s.tenantID, et, filter)
}

// Get returns one entity by id.
func (s *Scope) Get(ctx context.Context, et model.EntityType, id string) (*model.Entity, error) {
	found, err := s.Find(ctx, et, model.Filter{"id": id})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, apperrors.NotFoundf("%s %s not found", et, id)
	}
	return found[0], nil
}

// FindOne returns the first entity matching filter, or nil when none does.
func (s *Scope) FindOne(ctx context.Context, et model.EntityType, filter model.Filter) (*model.Entity, error) {
	found, err := s.Find(ctx, et, filter)
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return found[0], nil
}

// Create stores a new entity owned by the bound tenant.
func (s *Scope) Create(ctx context.Context, et model.EntityType, data map[string]any) (*model.Entity, error) {
	return s.stores.Records.Create(ctx, s.tenantID, et, data)
}

// Update merges data into an entity.
func (s *Scope) Update(ctx context.Context, et model.EntityType, id string, data map[string]any) (*model.Entity, error) {
	return s.stores.Records.Update(ctx, s.tenantID, et, id, data)
}

// Delete removes an entity.
func (s *Scope) Delete(ctx context.Context, et model.EntityType, id string) error {
	return s.stores.Records.Delete(ctx, s.tenantID, et, id)
}

// CreateJob creates a pending job in the bound tenant.
func (s *Scope) CreateJob(ctx context.Context, req model.CreateJobRequest) (*model.Job, error) {
	req.TenantID = s.tenantID
	return s.stores.Jobs.Create(ctx, &req)
}

// Job returns a job of the bound tenant.
func (s *Scope) Job(ctx context.Context, id string) (*model.Job, error) {
	return s.stores.Jobs.Get(ctx, s.tenantID, id)
}

// Transition applies a lifecycle edge to a job of the bound tenant.
func (s *Scope) Transition(ctx context.Context, req model.TransitionRequest) (*model.Job, error) {
	req.TenantID = s.tenantID
	return s.stores.Jobs.Transition(ctx, req)
}

// IncrementRetry bumps a job's retry count and returns it.
func (s *Scope) IncrementRetry(ctx context.Context, jobID, kind string) (int, error) {
	return s.stores.Jobs.IncrementRetry(ctx, s.tenantID, jobID, kind)
}

// Checkpoint returns the recorded result of a step, or nil.
func (s *Scope) Checkpoint(ctx context.Context, jobID, step string) (*model.StepResult, error) {
	return s.stores.Steps.Get(ctx, s.tenantID, jobID, step)
}

// RecordCheckpoint stores a step result and returns the checkpoint that won.
func (s *Scope) RecordCheckpoint(ctx context.Context, jobID, step string, output any) (*model.StepResult, error) {
	raw, err := json.Marshal(output)
	if err != nil {
		return nil, fmt.Errorf("encode %s output: %w", step, err)
	}
	return s.stores.Steps.Record(ctx, &model.StepResult{
		JobID:    jobID,
		TenantID: s.tenantID,
		StepName: step,
		Output:   raw,
	})
}

// Checkpoints lists every recorded step result of a job.
func (s *Scope) Checkpoints(ctx context.Context, jobID string) ([]*model.StepResult, error) {
	return s.stores.Steps.List(ctx, s.tenantID, jobID)
}
