package model

import "time"

// EntityType names a tenant-owned record kind in the tenant-scoped store.
type EntityType string

// Entity types the workflows read and write.
const (
	EntityExercise          EntityType = "exercise"
	EntityExerciseSection   EntityType = "exercise_section"
	EntityQuestion          EntityType = "question"
	EntitySubmission        EntityType = "submission"
	EntityFeedback          EntityType = "submission_feedback"
	EntityFeedbackItem      EntityType = "feedback_item"
	EntityTestAttempt       EntityType = "test_attempt"
	EntityUser              EntityType = "user"
	EntityDeletionRequest   EntityType = "account_deletion_request"
	EntityNotificationBatch EntityType = "notification_batch"
	EntityNotification      EntityType = "notification"
)

// Entity is one tenant-owned record. Data is an opaque JSON object.
type Entity struct {
	ID        string         `json:"id"         db:"id"`
	TenantID  string         `json:"tenant_id"  db:"tenant_id"`
	Type      EntityType     `json:"type"       db:"entity_type"`
	Data      map[string]any `json:"data"       db:"data"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

// String returns the string field key of Data or "".
func (e *Entity) String(key string) string {
	if e == nil || e.Data == nil {
		return ""
	}
	s, _ := e.Data[key].(string)
	return s
}

// Filter matches entities whose data contains every key/value pair.
// The reserved key "id" matches the entity id.
type Filter map[string]any
