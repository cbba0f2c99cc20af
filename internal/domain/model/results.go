package model

// DeletionResult is stored as the result of a completed deletion job.
type DeletionResult struct {
	RequestID string `json:"requestId"`
	UserID    string `json:"userId"`
	Deleted   bool   `json:"deleted"`
	// Reason explains why nothing was deleted.
	Reason string `json:"reason,omitempty"`
	// Purged counts removed entities per entity type.
	Purged map[EntityType]int `json:"purged,omitempty"`
}

// Reasons a deletion job completes without deleting.
const (
	DeletionReasonCancelled = "cancelled"
	DeletionReasonWithdrawn = "withdrawn"
)

// Deletion request statuses.
const (
	DeletionStatusRequested  = "requested"
	DeletionStatusProcessing = "processing"
	DeletionStatusCancelled  = "cancelled"
	DeletionStatusCompleted  = "completed"
	DeletionStatusFailed     = "failed"
)

// NotificationResult is stored as the result of a completed notification-send job.
type NotificationResult struct {
	BatchID    string `json:"batchId"`
	Recipients int    `json:"recipients"`
}
