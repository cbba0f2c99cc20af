package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/unicode/norm"

	"github.com/target/prepflow/internal/core"
	"github.com/target/prepflow/internal/domain/model"
	apperrors "github.com/target/prepflow/internal/errors"
	"github.com/target/prepflow/internal/prompt"
	"github.com/target/prepflow/internal/scoring"
	"github.com/target/prepflow/internal/tenant"
	"github.com/target/prepflow/internal/workflow"
)

// Grading states written to the submission record.
const (
	GradingStatusProcessing = "processing"
	GradingStatusCompleted  = "completed"
	GradingStatusFailed     = "failed"
)

// minLanguageSample is the shortest text whose detected language is trusted.
const minLanguageSample = 60

// gradingSubject is the checkpointed output of fetch-submission.
type gradingSubject struct {
	Submission model.Submission `json:"submission"`
	// Text is the NFC-normalised submission text; highlight offsets index its runes.
	Text string `json:"text"`
}

// gradingWorkflow grades one submission and supersedes earlier feedback for it.
func (d *Dispatcher) gradingWorkflow(scope *tenant.Scope, job *model.Job, in model.GradingTrigger) workflow.Definition {
	var (
		subject gradingSubject
		request prompt.Prompt
		reply   string
		graded  model.GradingResult
		result  model.GradingJobResult
	)

	steps := []workflow.Step{
		workflow.Do("fetch-submission", &subject, func(ctx context.Context) (gradingSubject, error) {
			return fetchSubmission(ctx, scope, job.ID, in.SubmissionID)
		}),
		workflow.Do("build-prompt", &request, func(context.Context) (prompt.Prompt, error) {
			return d.prompts.Grading(prompt.GradingInput{
				Skill:      subject.Submission.Skill,
				Text:       subject.Text,
				TaskPrompt: subject.Submission.TaskPrompt,
			})
		}),
		workflow.Do("call-model", &reply, func(ctx context.Context) (string, error) {
			out, err := d.model.Complete(ctx, core.ModelRequest{
				Instructions: request.Instructions,
				Subject:      request.Subject,
				Schema:       request.Schema,
			})
			if err != nil {
				return "", fmt.Errorf("grade submission %s: %w", in.SubmissionID, err)
			}
			return out, nil
		}),
		workflow.Do("validate-response", &graded, func(context.Context) (model.GradingResult, error) {
			res, err := d.prompts.ValidateGrading(subject.Submission.Skill, []byte(reply), utf8.RuneCountInString(subject.Text))
			if err != nil {
				return model.GradingResult{}, err
			}
			return *res, nil
		}),
		workflow.Do("persist-feedback", &result, func(ctx context.Context) (model.GradingJobResult, error) {
			return persistFeedback(ctx, scope, job.ID, subject.Submission, graded)
		}),
		workflow.Do("mark-completed", &result, func(ctx context.Context) (model.GradingJobResult, error) {
			_, err := scope.Update(ctx, model.EntitySubmission, in.SubmissionID, map[string]any{
				"grading_status": GradingStatusCompleted,
				"feedback_id":    result.FeedbackID,
				"band":           result.Band,
			})
			return result, err
		}),
	}

	return workflow.Definition{
		Kind:  model.JobKindGrading,
		Steps: steps,
		OnFailure: d.onFailure(scope, job, markWatchedFailed(scope, job.Kind, in.SubmissionID)),
	}
}

// fetchSubmission loads the submission, normalises its text and marks it as being graded.
func fetchSubmission(ctx context.Context, scope *tenant.Scope, jobID, id string) (gradingSubject, error) {
	e, err := scope.Get(ctx, model.EntitySubmission, id)
	if err != nil {
		return gradingSubject{}, err
	}
	var sub model.Submission
	if err := fromEntity(e, &sub); err != nil {
		return gradingSubject{}, err
	}
	if !sub.Skill.Valid() {
		return gradingSubject{}, apperrors.Validationf("submission %s has ungradable skill %q", id, sub.Skill)
	}
	text := strings.TrimSpace(norm.NFC.String(sub.Text))
	if text == "" {
		return gradingSubject{}, apperrors.Validationf("submission %s text is required", id)
	}
	if err := checkLanguage(text); err != nil {
		return gradingSubject{}, err
	}
	if _, err := scope.Update(ctx, model.EntitySubmission, id, map[string]any{
		"grading_status": GradingStatusProcessing,
		"grading_job_id": jobID,
	}); err != nil {
		return gradingSubject{}, err
	}
	return gradingSubject{Submission: sub, Text: text}, nil
}

// checkLanguage rejects text that is reliably detected as something other than English.
func checkLanguage(text string) error {
	if utf8.RuneCountInString(text) < minLanguageSample {
		return nil
	}
	info := whatlanggo.Detect(text)
	if info.IsReliable() && info.Lang != whatlanggo.Eng {
		return apperrors.Validationf("submission language validation failed: detected %s", info.Lang.Iso6391())
	}
	return nil
}

// persistFeedback stores the feedback and its items, supersedes older active feedback of the
// submission and refreshes the attempt's writing band.
func persistFeedback(ctx context.Context, scope *tenant.Scope, jobID string, sub model.Submission, graded model.GradingResult) (model.GradingJobResult, error) {
	feedbackID := stableID(jobID, "feedback")
	band := criteriaBand(sub.Skill, graded.CriteriaScores)

	fb := model.SubmissionFeedback{
		SubmissionID:   sub.ID,
		JobID:          jobID,
		Skill:          sub.Skill,
		OverallScore:   graded.OverallScore,
		Band:           band,
		CriteriaScores: graded.CriteriaScores,
		Feedback:       graded.Feedback,
		Status:         model.FeedbackStatusActive,
	}
	data, err := toData(fb)
	if err != nil {
		return model.GradingJobResult{}, err
	}
	if _, err := createOnce(ctx, scope, model.EntityFeedback, feedbackID, data); err != nil {
		return model.GradingJobResult{}, fmt.Errorf("save feedback: %w", err)
	}

	for i, h := range graded.Highlights {
		item, err := toData(model.FeedbackItem{
			FeedbackID: feedbackID,
			Category:   h.Type,
			Start:      h.Start,
			End:        h.End,
			Severity:   h.Severity,
			Confidence: h.Confidence,
			Context:    h.Context,
			Suggestion: h.Suggestion,
		})
		if err != nil {
			return model.GradingJobResult{}, err
		}
		if _, err := createOnce(ctx, scope, model.EntityFeedbackItem, stableID(jobID, "item", fmt.Sprint(i)), item); err != nil {
			return model.GradingJobResult{}, fmt.Errorf("save feedback item %d: %w", i, err)
		}
	}

	superseded, err := supersedeFeedback(ctx, scope, sub.ID, feedbackID)
	if err != nil {
		return model.GradingJobResult{}, err
	}
	if err := updateWritingBand(ctx, scope, sub); err != nil {
		return model.GradingJobResult{}, err
	}

	return model.GradingJobResult{
		SubmissionID: sub.ID,
		FeedbackID:   feedbackID,
		OverallScore: graded.OverallScore,
		Band:         band,
		Superseded:   superseded,
	}, nil
}

// supersedeFeedback marks every other active feedback of the submission as replaced by current.
// Superseded feedback and its items are kept.
func supersedeFeedback(ctx context.Context, scope *tenant.Scope, submissionID, current string) (int, error) {
	active, err := scope.Find(ctx, model.EntityFeedback, model.Filter{
		"submission_id": submissionID,
		"status":        string(model.FeedbackStatusActive),
	})
	if err != nil {
		return 0, fmt.Errorf("find active feedback: %w", err)
	}
	n := 0
	for _, e := range active {
		if e.ID == current {
			continue
		}
		if _, err := scope.Update(ctx, model.EntityFeedback, e.ID, map[string]any{
			"status":        string(model.FeedbackStatusSuperseded),
			"superseded_by": current,
		}); err != nil {
			return n, fmt.Errorf("supersede feedback %s: %w", e.ID, err)
		}
		n++
	}
	return n, nil
}

func criteriaBand(skill model.Skill, scores map[string]float64) float64 {
	if skill == model.SkillSpeaking {
		return scoring.CalculateSpeakingBand(scoring.CriteriaValues(scores))
	}
	return scoring.TaskBand(scoring.CriteriaValues(scores))
}

// updateWritingBand stores the writing band on the submission's test attempt once both writing
// tasks of the attempt have active feedback.
func updateWritingBand(ctx context.Context, scope *tenant.Scope, sub model.Submission) error {
	if sub.Skill != model.SkillWriting || sub.AttemptID == "" || (sub.TaskNumber != 1 && sub.TaskNumber != 2) {
		return nil
	}
	tasks, err := scope.Find(ctx, model.EntitySubmission, model.Filter{
		"attempt_id": sub.AttemptID,
		"skill":      string(model.SkillWriting),
	})
	if err != nil {
		return fmt.Errorf("find attempt submissions: %w", err)
	}

	criteria := map[int][]float64{}
	for _, e := range tasks {
		var s model.Submission
		if err := fromEntity(e, &s); err != nil {
			return err
		}
		if s.TaskNumber != 1 && s.TaskNumber != 2 {
			continue
		}
		fb, err := scope.FindOne(ctx, model.EntityFeedback, model.Filter{
			"submission_id": s.ID,
			"status":        string(model.FeedbackStatusActive),
		})
		if err != nil {
			return fmt.Errorf("find feedback of %s: %w", s.ID, err)
		}
		if fb == nil {
			continue
		}
		var f model.SubmissionFeedback
		if err := fromEntity(fb, &f); err != nil {
			return err
		}
		criteria[s.TaskNumber] = scoring.CriteriaValues(f.CriteriaScores)
	}
	if len(criteria[1]) == 0 || len(criteria[2]) == 0 {
		return nil
	}

	band := scoring.CalculateWritingBand(criteria[1], criteria[2])
	if _, err := scope.Update(ctx, model.EntityTestAttempt, sub.AttemptID, map[string]any{"writing_band": band}); err != nil {
		return fmt.Errorf("update attempt %s: %w", sub.AttemptID, err)
	}
	return nil
}
