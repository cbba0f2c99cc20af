// Package workflow runs a job as an ordered list of checkpointed steps.
//
// Every step that completes records its output as a StepResult. Running the same list again skips
// recorded steps and restores their outputs, so a job interrupted by a crash or a retry resumes where it
// stopped without repeating side effects.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/target/prepflow/internal/domain/model"
)

// Step is one named unit of work. Build steps with Do, Exec or Sleep.
type Step struct {
	name    string
	delay   time.Duration
	isSleep bool
	run     func(ctx context.Context) (any, error)
	restore func(raw json.RawMessage) error
}

// Name returns the step name.
func (s Step) Name() string { return s.name }

// IsSleep reports whether the step is a delay.
func (s Step) IsSleep() bool { return s.isSleep }

// Do builds a step whose output is checkpointed and written to out, both when fn runs and when the
// step is replayed from its checkpoint. Later steps read earlier outputs through out.
func Do[T any](name string, out *T, fn func(ctx context.Context) (T, error)) Step {
	return Step{
		name: name,
		run: func(ctx context.Context) (any, error) {
			v, err := fn(ctx)
			if err != nil {
				return nil, err
			}
			return v, nil
		},
		restore: func(raw json.RawMessage) error {
			if out == nil {
				return nil
			}
			var v T
			if err := json.Unmarshal(raw, &v); err != nil {
				return fmt.Errorf("restore %s checkpoint: %w", name, err)
			}
			*out = v
			return nil
		},
	}
}

// Exec builds a step without output.
func Exec(name string, fn func(ctx context.Context) error) Step {
	return Step{
		name: name,
		run: func(ctx context.Context) (any, error) {
			if err := fn(ctx); err != nil {
				return nil, err
			}
			return struct{}{}, nil
		},
		restore: func(json.RawMessage) error { return nil },
	}
}

// Sleep builds a delay step. It never counts as a failure and a zero or negative duration is skipped.
func Sleep(name string, d time.Duration) Step {
	return Step{name: name, delay: d, isSleep: true}
}

// sleepCheckpoint is the recorded state of a started sleep.
type sleepCheckpoint struct {
	WakeAt time.Time `json:"wake_at"`
}

// Failure is a terminal workflow error as seen by failure hooks and status callers.
type Failure struct {
	Step    string `json:"step,omitempty"`
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

// FailureHook runs after a job failed terminally, whether or not the failed transition was stored.
type FailureHook func(ctx context.Context, f Failure) error

// Definition is the ordered step list of one job.
type Definition struct {
	Kind      model.JobKind
	Steps     []Step
	OnFailure FailureHook
}

// Validate checks that steps exist and that their names are unique.
func (d Definition) Validate() error {
	if len(d.Steps) == 0 {
		return errors.New("workflow has no steps")
	}
	seen := make(map[string]bool, len(d.Steps))
	for _, s := range d.Steps {
		name := strings.TrimSpace(s.name)
		if name == "" {
			return errors.New("workflow step name is required")
		}
		if seen[name] {
			return fmt.Errorf("duplicate workflow step %q", name)
		}
		seen[name] = true
		if !s.isSleep && s.run == nil {
			return fmt.Errorf("workflow step %q has no action", name)
		}
	}
	return nil
}

// Outcome reports what one Run did.
type Outcome struct {
	JobID  string
	Status model.JobStatus
	// Result is set when Status is completed.
	Result  json.RawMessage
	Failure *Failure
	// Executed, Replayed and Skipped list step names in order: run now, restored from a checkpoint,
	// and zero-length sleeps.
	Executed []string
	Replayed []string
	Skipped  []string
	// Suspended is set when a sleep is too long to wait inline; the job stays processing until ResumeAt.
	Suspended bool
	ResumeAt  time.Time
	Attempts  int
}
