package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// QuestionTypeRequest asks for Count questions of one question type.
type QuestionTypeRequest struct {
	Type  QuestionType `json:"type"`
	Count int          `json:"count"`
}

// GenerationTrigger starts a question generation workflow for an exercise.
type GenerationTrigger struct {
	JobID         string                `json:"jobId,omitempty"`
	ExerciseID    string                `json:"exerciseId"`
	TenantID      string                `json:"tenantId"`
	PassageText   string                `json:"passageText"`
	QuestionTypes []QuestionTypeRequest `json:"questionTypes"`
	Difficulty    Difficulty            `json:"difficulty"`
}

// MaxQuestionsPerType bounds a single model call.
const MaxQuestionsPerType = 20

// Validate validates the GenerationTrigger fields.
func (t *GenerationTrigger) Validate() error {
	if strings.TrimSpace(t.TenantID) == "" {
		return errors.New("tenantId is required")
	}
	if strings.TrimSpace(t.ExerciseID) == "" {
		return errors.New("exerciseId is required")
	}
	if strings.TrimSpace(t.PassageText) == "" {
		return errors.New("passageText is required")
	}
	if len(t.QuestionTypes) == 0 {
		return errors.New("at least one question type is required")
	}
	seen := make(map[QuestionType]bool, len(t.QuestionTypes))
	for _, qt := range t.QuestionTypes {
		if !qt.Type.Valid() {
			return fmt.Errorf("unknown question type %q", qt.Type)
		}
		if seen[qt.Type] {
			return fmt.Errorf("question type %q requested twice", qt.Type)
		}
		seen[qt.Type] = true
		if qt.Count < 1 || qt.Count > MaxQuestionsPerType {
			return fmt.Errorf("count for %q must be between 1 and %d", qt.Type, MaxQuestionsPerType)
		}
	}
	if !t.Difficulty.Valid() {
		return fmt.Errorf("unknown difficulty %q", t.Difficulty)
	}
	return nil
}

// GradingTrigger starts a grading workflow; the submission text is resolved by the workflow.
type GradingTrigger struct {
	JobID        string `json:"jobId,omitempty"`
	SubmissionID string `json:"submissionId"`
	TenantID     string `json:"tenantId"`
}

// Validate validates the GradingTrigger fields.
func (t *GradingTrigger) Validate() error {
	if strings.TrimSpace(t.TenantID) == "" {
		return errors.New("tenantId is required")
	}
	if strings.TrimSpace(t.SubmissionID) == "" {
		return errors.New("submissionId is required")
	}
	return nil
}

// DeletionTrigger schedules an account's data for deletion after a grace period.
type DeletionTrigger struct {
	JobID     string `json:"jobId,omitempty"`
	TenantID  string `json:"tenantId"`
	UserID    string `json:"userId"`
	RequestID string `json:"requestId"`
	// GraceSeconds is how long the request may still be cancelled.
	GraceSeconds int64 `json:"graceSeconds"`
}

// MaxGracePeriod bounds a deletion grace period.
const MaxGracePeriod = 365 * 24 * time.Hour

// GracePeriod returns the grace period as a duration, capped at MaxGracePeriod.
func (t *DeletionTrigger) GracePeriod() time.Duration {
	if t.GraceSeconds > int64(MaxGracePeriod/time.Second) {
		return MaxGracePeriod
	}
	return time.Duration(t.GraceSeconds) * time.Second
}

// Validate validates the DeletionTrigger fields.
func (t *DeletionTrigger) Validate() error {
	if strings.TrimSpace(t.TenantID) == "" {
		return errors.New("tenantId is required")
	}
	if strings.TrimSpace(t.UserID) == "" {
		return errors.New("userId is required")
	}
	if strings.TrimSpace(t.RequestID) == "" {
		return errors.New("requestId is required")
	}
	if t.GraceSeconds < 0 {
		return errors.New("graceSeconds must be >= 0")
	}
	if t.GraceSeconds > int64(MaxGracePeriod/time.Second) {
		return fmt.Errorf("graceSeconds must be <= %d", int64(MaxGracePeriod/time.Second))
	}
	return nil
}

// NotificationTrigger fans out one message to a set of users.
type NotificationTrigger struct {
	JobID    string   `json:"jobId,omitempty"`
	TenantID string   `json:"tenantId"`
	UserIDs  []string `json:"userIds"`
	Title    string   `json:"title"`
	Message  string   `json:"message"`
}

// Validate validates the NotificationTrigger fields.
func (t *NotificationTrigger) Validate() error {
	if strings.TrimSpace(t.TenantID) == "" {
		return errors.New("tenantId is required")
	}
	if len(t.UserIDs) == 0 {
		return errors.New("at least one user id is required")
	}
	if strings.TrimSpace(t.Title) == "" {
		return errors.New("title is required")
	}
	if strings.TrimSpace(t.Message) == "" {
		return errors.New("message is required")
	}
	return nil
}
