// Package memstore implements the job, step result and tenant stores in process memory. It follows the
// Postgres repositories' semantics, conditional transitions included, and backs unit tests and
// STORE_DRIVER=memory.
package memstore

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/target/prepflow/internal/core"
	"github.com/target/prepflow/internal/data"
	"github.com/target/prepflow/internal/domain/model"
)

// Store owns the shared state behind the repositories it hands out.
type Store struct {
	mu      sync.Mutex
	clock   data.TimeProvider
	seq     int64
	jobs    map[string]*jobRow
	steps   map[string]map[string]*stepRow
	records map[string]*recordRow
	wake    map[model.JobKind]chan struct{}

	Jobs    *JobRepo
	Steps   *StepResultRepo
	Records *TenantStore
}

type jobRow struct {
	job *model.Job
	seq int64
}

type stepRow struct {
	res *model.StepResult
	seq int64
}

type recordRow struct {
	entity *model.Entity
	seq    int64
}

// New creates an empty store. A nil clock uses system time.
func New(clock data.TimeProvider) *Store {
	if clock == nil {
		clock = data.RealTimeProvider{}
	}
	s := &Store{
		clock:   clock,
		jobs:    make(map[string]*jobRow),
		steps:   make(map[string]map[string]*stepRow),
		records: make(map[string]*recordRow),
		wake:    make(map[model.JobKind]chan struct{}),
	}
	s.Jobs = &JobRepo{s: s}
	s.Steps = &StepResultRepo{s: s}
	s.Records = &TenantStore{s: s}
	return s
}

var (
	_ core.JobRepository        = (*JobRepo)(nil)
	_ core.StepResultRepository = (*StepResultRepo)(nil)
	_ core.TenantStore          = (*TenantStore)(nil)
)

func (s *Store) now() time.Time { return s.clock.Now() }

func (s *Store) next() int64 {
	s.seq++
	return s.seq
}

func cloneJob(j *model.Job) *model.Job {
	cp := *j
	cp.Input = cloneRaw(j.Input)
	cp.Result = cloneRaw(j.Result)
	if j.Error != nil {
		v := *j.Error
		cp.Error = &v
	}
	if j.ErrorKind != nil {
		v := *j.ErrorKind
		cp.ErrorKind = &v
	}
	if j.LeaseOwner != nil {
		v := *j.LeaseOwner
		cp.LeaseOwner = &v
	}
	if j.LeaseExpiresAt != nil {
		v := *j.LeaseExpiresAt
		cp.LeaseExpiresAt = &v
	}
	return &cp
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
