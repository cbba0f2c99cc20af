//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"encoding/json"
	"time"
)

// StepResult marks that a named step of a job already applied its side effects.
// It is written once and only removed together with its job.
type StepResult struct {
	JobID     string          `json:"job_id"     db:"job_id"`
	TenantID  string          `json:"tenant_id"  db:"tenant_id"`
	StepName  string          `json:"step_name"  db:"step_name"`
	Output    json.RawMessage `json:"output"     db:"output"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}
