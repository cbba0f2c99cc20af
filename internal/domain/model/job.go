// Package model defines the core data types shared by the prepflow workflow engine.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobKind represents the kind of asynchronous work a job performs.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobKind string

// JobStatus represents the lifecycle position of a job.
type JobStatus string

const (
	// JobKindGeneration generates exam questions from a passage.
	JobKindGeneration JobKind = "generation"
	// JobKindGrading grades a free-form writing or speaking submission.
	JobKindGrading JobKind = "grading"
	// JobKindDeletion deletes an account's data after a grace period.
	JobKindDeletion JobKind = "deletion"
	// JobKindNotificationSend fans out an in-app notification to users.
	JobKindNotificationSend JobKind = "notification-send"

	// JobStatusPending indicates the job was accepted but no step has run.
	JobStatusPending JobStatus = "pending"
	// JobStatusProcessing indicates the workflow is executing its steps.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusCompleted indicates every step succeeded and a result was recorded.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the workflow stopped on a terminal error.
	JobStatusFailed JobStatus = "failed"
)

// DefaultMaxAttempts is the retry budget shared by a job and the trigger that started it.
const DefaultMaxAttempts = 3

// ErrNoJobsAvailable is returned when no runnable job could be reserved.
var ErrNoJobsAvailable = errors.New("no jobs available")

// UnmarshalText implements encoding.TextUnmarshaler for JobKind to allow env parsing.
func (k *JobKind) UnmarshalText(text []byte) error {
	v := JobKind(strings.ToLower(strings.TrimSpace(string(text))))
	if v.Valid() {
		*k = v
		return nil
	}
	return fmt.Errorf("invalid JobKind: %q", v)
}

// Valid returns true if the JobKind is known.
func (k JobKind) Valid() bool {
	switch k {
	case JobKindGeneration, JobKindGrading, JobKindDeletion, JobKindNotificationSend:
		return true
	default:
		return false
	}
}

// AllJobKinds lists every kind the engine knows how to run.
func AllJobKinds() []JobKind {
	return []JobKind{JobKindGeneration, JobKindGrading, JobKindDeletion, JobKindNotificationSend}
}

// Valid returns true if the JobStatus is known.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusProcessing || s == JobStatusCompleted ||
		s == JobStatusFailed
}

// Terminal reports whether no further transition may leave this status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransition reports whether from -> to is one of the allowed lifecycle edges:
// pending -> processing -> {completed | failed}.
func CanTransition(from, to JobStatus) bool {
	switch from {
	case JobStatusPending:
		return to == JobStatusProcessing
	case JobStatusProcessing:
		return to == JobStatusCompleted || to == JobStatusFailed
	default:
		return false
	}
}

// Job is the persisted record of one unit of asynchronous work.
// Result is set iff Status is completed; Error is set iff Status is failed.
type Job struct {
	ID             string          `json:"id"                         db:"id"`
	TenantID       string          `json:"tenant_id"                  db:"tenant_id"`
	Kind           JobKind         `json:"kind"                       db:"kind"`
	Status         JobStatus       `json:"status"                     db:"status"`
	Input          json.RawMessage `json:"input"                      db:"input"`
	Result         json.RawMessage `json:"result,omitempty"           db:"result"`
	Error          *string         `json:"error,omitempty"            db:"error"`
	ErrorKind      *string         `json:"error_kind,omitempty"       db:"error_kind"`
	RetryCount     int             `json:"retry_count"                db:"retry_count"`
	MaxAttempts    int             `json:"max_attempts"               db:"max_attempts"`
	RunAfter       time.Time       `json:"run_after"                  db:"run_after"`
	LeaseOwner     *string         `json:"lease_owner,omitempty"      db:"lease_owner"`
	LeaseExpiresAt *time.Time      `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
	CreatedAt      time.Time       `json:"created_at"                 db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"                 db:"updated_at"`
}

// CreateJobRequest represents a request to create a new job.
type CreateJobRequest struct {
	// ID is optional; triggers that already carry a job id reuse it.
	ID          string          `json:"id,omitempty"`
	TenantID    string          `json:"tenant_id"`
	Kind        JobKind         `json:"kind"`
	Input       json.RawMessage `json:"input"`
	MaxAttempts int             `json:"max_attempts,omitempty"`
	RunAfter    *time.Time      `json:"run_after,omitempty"`
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if strings.TrimSpace(r.TenantID) == "" {
		return errors.New("tenant id is required")
	}
	if !r.Kind.Valid() {
		return errors.New("invalid job kind")
	}
	if len(r.Input) == 0 {
		return errors.New("input is required")
	}
	if !json.Valid(r.Input) {
		return errors.New("input must be valid JSON")
	}
	if r.MaxAttempts < 0 {
		return errors.New("max attempts must be >= 0")
	}
	return nil
}

// TransitionRequest describes a status change for one job in one tenant partition.
type TransitionRequest struct {
	JobID     string
	TenantID  string
	To        JobStatus
	Result    json.RawMessage
	Error     string
	ErrorKind string
}

// Validate enforces the result/error pairing invariants for the target status.
func (r *TransitionRequest) Validate() error {
	if strings.TrimSpace(r.JobID) == "" {
		return errors.New("job id is required")
	}
	if strings.TrimSpace(r.TenantID) == "" {
		return errors.New("tenant id is required")
	}
	switch r.To {
	case JobStatusProcessing:
		if len(r.Result) > 0 || r.Error != "" {
			return errors.New("processing transition carries neither result nor error")
		}
	case JobStatusCompleted:
		if len(r.Result) == 0 {
			return errors.New("completed transition requires a result")
		}
		if r.Error != "" {
			return errors.New("completed transition cannot carry an error")
		}
	case JobStatusFailed:
		if r.Error == "" {
			return errors.New("failed transition requires an error message")
		}
		if len(r.Result) > 0 {
			return errors.New("failed transition cannot carry a result")
		}
	case JobStatusPending:
		return errors.New("no transition leads back to pending")
	default:
		return fmt.Errorf("invalid job status: %q", r.To)
	}
	return nil
}

// From returns the only status a job may be in for this transition to apply.
func (r *TransitionRequest) From() JobStatus {
	if r.To == JobStatusProcessing {
		return JobStatusPending
	}
	return JobStatusProcessing
}

// JobStatusView is the polling surface exposed to callers.
type JobStatusView struct {
	ID     string          `json:"id"`
	Kind   JobKind         `json:"kind"`
	Status JobStatus       `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *string         `json:"error,omitempty"`
}

// StatusView projects a job onto its polling view.
func (j *Job) StatusView() JobStatusView {
	v := JobStatusView{ID: j.ID, Kind: j.Kind, Status: j.Status}
	if j.Status == JobStatusCompleted {
		v.Result = j.Result
	}
	if j.Status == JobStatusFailed {
		v.Error = j.Error
	}
	return v
}

// JobStats represents counts of jobs per status within a tenant.
type JobStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}
