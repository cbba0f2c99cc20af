package config

import "time"

// WorkflowConfig contains workflow engine configuration.
type WorkflowConfig struct {
	// MaxAttempts is the attempt budget of a job, first attempt included.
	MaxAttempts int `env:"WORKFLOW_MAX_ATTEMPTS" envDefault:"3"`

	// Backoff is the delay before the first retry; it doubles per retry up to MaxBackoff.
	Backoff    time.Duration `env:"WORKFLOW_BACKOFF"     envDefault:"500ms"`
	MaxBackoff time.Duration `env:"WORKFLOW_MAX_BACKOFF" envDefault:"10s"`

	// GenerationSpacing separates consecutive model calls of one generation job.
	GenerationSpacing time.Duration `env:"WORKFLOW_GENERATION_SPACING" envDefault:"2s"`

	// MaxInlineSleep is the longest sleep waited in-process; longer sleeps defer the job.
	MaxInlineSleep time.Duration `env:"WORKFLOW_MAX_INLINE_SLEEP" envDefault:"30s"`

	// DedupeWindow maps repeated identical triggers onto one job.
	DedupeWindow time.Duration `env:"WORKFLOW_DEDUPE_WINDOW" envDefault:"10s"`
}

// Sanitize applies guardrails to workflow configuration values.
func (w *WorkflowConfig) Sanitize() {
	if w.MaxAttempts < 1 {
		w.MaxAttempts = 1
	}
	if w.Backoff <= 0 {
		w.Backoff = 500 * time.Millisecond
	}
	if w.MaxBackoff < w.Backoff {
		w.MaxBackoff = w.Backoff
	}
	if w.GenerationSpacing < 0 {
		w.GenerationSpacing = 0
	}
	if w.MaxInlineSleep <= 0 {
		w.MaxInlineSleep = 30 * time.Second
	}
	if w.DedupeWindow <= 0 {
		w.DedupeWindow = 10 * time.Second
	}
}
