// Package metrics emits the job and step lifecycle counters of the workflow engine.
package metrics

import (
	"time"

	obserrors "github.com/target/prepflow/internal/observability/errors"
	"github.com/target/prepflow/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess   = "success"
	ResultError     = "error"
	ResultRetry     = "retry"
	ResultReplay    = "replay"
	ResultSkipped   = "skipped"
	ResultDuplicate = "duplicate"
)

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	Kind       string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle emits one job.transition counter and, when measured, a job.duration timing.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"kind":       in.Kind,
		"transition": in.Transition,
		"result":     in.Result,
	}
	addErrorTags(tags, in.Result, in.Err)

	sink.Count("job.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, CloneTags(tags))
	}
}

// StepMetric describes one step attempt.
type StepMetric struct {
	Kind     string
	Step     string
	Result   string
	Duration time.Duration
	Err      error
}

// EmitStep emits a workflow.step counter and timing for one step attempt.
func EmitStep(sink statsd.Sink, in StepMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"kind":   in.Kind,
		"step":   in.Step,
		"result": in.Result,
	}
	addErrorTags(tags, in.Result, in.Err)

	sink.Count("workflow.step", 1, tags)
	if in.Duration > 0 {
		sink.Timing("workflow.step.duration", in.Duration, CloneTags(tags))
	}
}

func addErrorTags(tags map[string]string, result string, err error) {
	if err == nil || (result != ResultError && result != ResultRetry) {
		return
	}
	tags["error_kind"] = obserrors.Classify(err)
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
