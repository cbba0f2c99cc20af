// Package testutil provides testing utilities and helpers for the prepflow job system.
package testutil

import (
	"encoding/json"
	"time"

	"github.com/target/prepflow/internal/domain/model"
)

// JobRequestBuilder provides a fluent interface for building CreateJobRequest objects for testing.
type JobRequestBuilder struct {
	req *model.CreateJobRequest
}

// NewJobRequest creates a new JobRequestBuilder for a grading job of tenantID.
func NewJobRequest(tenantID string) *JobRequestBuilder {
	return &JobRequestBuilder{
		req: &model.CreateJobRequest{
			TenantID:    tenantID,
			Kind:        model.JobKindGrading,
			Input:       json.RawMessage(`{"submissionId":"sub-1","tenantId":"` + tenantID + `"}`),
			MaxAttempts: model.DefaultMaxAttempts,
		},
	}
}

// WithID sets the job id.
func (b *JobRequestBuilder) WithID(id string) *JobRequestBuilder {
	b.req.ID = id
	return b
}

// WithKind sets the job kind.
func (b *JobRequestBuilder) WithKind(kind model.JobKind) *JobRequestBuilder {
	b.req.Kind = kind
	return b
}

// WithInput sets the job input.
func (b *JobRequestBuilder) WithInput(input json.RawMessage) *JobRequestBuilder {
	b.req.Input = input
	return b
}

// WithInputString sets the job input from a string.
func (b *JobRequestBuilder) WithInputString(input string) *JobRequestBuilder {
	b.req.Input = json.RawMessage(input)
	return b
}

// WithMaxAttempts sets the attempt budget.
func (b *JobRequestBuilder) WithMaxAttempts(n int) *JobRequestBuilder {
	b.req.MaxAttempts = n
	return b
}

// WithRunAfter delays the first reservation.
func (b *JobRequestBuilder) WithRunAfter(at time.Time) *JobRequestBuilder {
	b.req.RunAfter = &at
	return b
}

// Build returns the built CreateJobRequest.
func (b *JobRequestBuilder) Build() *model.CreateJobRequest {
	out := *b.req
	return &out
}

// GenerationTrigger returns a valid single-type generation trigger.
func GenerationTrigger(tenantID, exerciseID string) model.GenerationTrigger {
	return model.GenerationTrigger{
		ExerciseID:  exerciseID,
		TenantID:    tenantID,
		PassageText: SamplePassage,
		QuestionTypes: []model.QuestionTypeRequest{
			{Type: model.QuestionTypeTrueFalseNotGiven, Count: 5},
		},
		Difficulty: model.DifficultyMedium,
	}
}

// SamplePassage is a short reading passage for generation tests.
const SamplePassage = "The honeybee is one of the few insects that produce food eaten by people. " +
	"A colony can contain up to sixty thousand workers, all of them female. " +
	"Workers communicate the location of flowers through a movement known as the waggle dance."

// SampleEssay is a short writing submission for grading tests.
const SampleEssay = "Some people believe that university education should be free for everyone. " +
	"In my opinion, governments should pay for tuition because an educated population benefits the whole society. " +
	"However, students should still contribute to their living costs."
