package service

import (
	"context"
	"fmt"

	"github.com/target/prepflow/internal/core"
	"github.com/target/prepflow/internal/domain/model"
	"github.com/target/prepflow/internal/prompt"
	"github.com/target/prepflow/internal/tenant"
	"github.com/target/prepflow/internal/workflow"
)

// Exercise generation states written to the exercise record.
const (
	GenerationStatusProcessing = "processing"
	GenerationStatusCompleted  = "completed"
	GenerationStatusFailed     = "failed"
)

// generationWorkflow generates one section per requested question type, spacing model calls
// apart, then saves every section and its questions in one step.
func (d *Dispatcher) generationWorkflow(scope *tenant.Scope, job *model.Job, in model.GenerationTrigger) workflow.Definition {
	sections := make([]model.GeneratedSection, len(in.QuestionTypes))
	var saved model.GenerationResult

	steps := []workflow.Step{
		workflow.Exec("mark-processing", func(ctx context.Context) error {
			_, err := scope.Update(ctx, model.EntityExercise, in.ExerciseID, map[string]any{
				"generation_status": GenerationStatusProcessing,
				"generation_job_id": job.ID,
			})
			return err
		}),
	}
	for i, qt := range in.QuestionTypes {
		steps = append(steps, workflow.Do("generate-"+string(qt.Type), &sections[i],
			func(ctx context.Context) (model.GeneratedSection, error) {
				return d.generateSection(ctx, prompt.GenerationInput{
					Type:       qt.Type,
					Difficulty: in.Difficulty,
					Count:      qt.Count,
					Passage:    in.PassageText,
				})
			}))
		delay := d.spacing
		if i == len(in.QuestionTypes)-1 {
			delay = 0
		}
		steps = append(steps, workflow.Sleep("sleep-after-"+string(qt.Type), delay))
	}
	steps = append(steps,
		workflow.Do("save-sections", &saved, func(ctx context.Context) (model.GenerationResult, error) {
			return saveSections(ctx, scope, job.ID, in.ExerciseID, sections)
		}),
		workflow.Do("mark-completed", &saved, func(ctx context.Context) (model.GenerationResult, error) {
			_, err := scope.Update(ctx, model.EntityExercise, in.ExerciseID, map[string]any{
				"generation_status": GenerationStatusCompleted,
				"section_ids":       saved.SectionIDs,
				"question_count":    saved.QuestionCount,
			})
			return saved, err
		}),
	)

	return workflow.Definition{
		Kind:  model.JobKindGeneration,
		Steps: steps,
		OnFailure: d.onFailure(scope, job, markWatchedFailed(scope, job.Kind, in.ExerciseID)),
	}
}

// generateSection asks the model for one question type and validates the reply.
func (d *Dispatcher) generateSection(ctx context.Context, in prompt.GenerationInput) (model.GeneratedSection, error) {
	p, err := d.prompts.Generation(in)
	if err != nil {
		return model.GeneratedSection{}, err
	}
	raw, err := d.model.Complete(ctx, core.ModelRequest{
		Instructions: p.Instructions,
		Subject:      p.Subject,
		Schema:       p.Schema,
	})
	if err != nil {
		return model.GeneratedSection{}, fmt.Errorf("generate %s questions: %w", in.Type, err)
	}
	section, err := d.prompts.ValidateGeneration(in, []byte(raw))
	if err != nil {
		return model.GeneratedSection{}, err
	}
	return *section, nil
}

// saveSections persists generated sections and questions under ids derived from the job.
func saveSections(ctx context.Context, scope *tenant.Scope, jobID, exerciseID string, sections []model.GeneratedSection) (model.GenerationResult, error) {
	res := model.GenerationResult{ExerciseID: exerciseID, SectionIDs: make([]string, 0, len(sections))}
	for pos, sec := range sections {
		sectionID := stableID(jobID, "section", string(sec.Type))
		if _, err := createOnce(ctx, scope, model.EntityExerciseSection, sectionID, map[string]any{
			"exercise_id":  exerciseID,
			"job_id":       jobID,
			"type":         string(sec.Type),
			"difficulty":   string(sec.Difficulty),
			"instructions": sec.Instructions,
			"position":     pos + 1,
		}); err != nil {
			return model.GenerationResult{}, fmt.Errorf("save section %s: %w", sec.Type, err)
		}
		for _, q := range sec.Questions {
			data, err := toData(q)
			if err != nil {
				return model.GenerationResult{}, err
			}
			data["exercise_id"] = exerciseID
			data["section_id"] = sectionID
			questionID := stableID(jobID, "question", string(sec.Type), fmt.Sprint(q.Number))
			if _, err := createOnce(ctx, scope, model.EntityQuestion, questionID, data); err != nil {
				return model.GenerationResult{}, fmt.Errorf("save %s question %d: %w", sec.Type, q.Number, err)
			}
			res.QuestionCount++
		}
		res.SectionIDs = append(res.SectionIDs, sectionID)
	}
	return res, nil
}
