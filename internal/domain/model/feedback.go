package model

// Skill is an exam skill graded from free-form input.
type Skill string

// Skills graded by the grading workflow.
const (
	SkillWriting  Skill = "writing"
	SkillSpeaking Skill = "speaking"
)

// Valid returns true if the skill can be graded.
func (s Skill) Valid() bool {
	return s == SkillWriting || s == SkillSpeaking
}

// Submission is the subset of a stored submission the grading workflow needs.
type Submission struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Skill      Skill  `json:"skill"`
	Text       string `json:"text"`
	TaskPrompt string `json:"task_prompt,omitempty"`
	// TaskNumber is 1 or 2 for writing submissions that belong to a test attempt.
	TaskNumber int    `json:"task_number,omitempty"`
	AttemptID  string `json:"attempt_id,omitempty"`
}

// FeedbackStatus tracks whether a feedback record is the current one for its submission.
type FeedbackStatus string

const (
	// FeedbackStatusActive marks the most recent feedback for a submission.
	FeedbackStatusActive FeedbackStatus = "active"
	// FeedbackStatusSuperseded marks feedback replaced by a re-grade.
	FeedbackStatusSuperseded FeedbackStatus = "superseded"
)

// Highlight is a located remark on the submitted text, validated from the model response.
type Highlight struct {
	Type       string  `json:"type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
	Severity   string  `json:"severity"`
	Context    string  `json:"context"`
	Suggestion string  `json:"suggestion,omitempty"`
}

// GradingResult is a model grading response that passed schema validation.
type GradingResult struct {
	OverallScore   float64            `json:"overallScore"`
	CriteriaScores map[string]float64 `json:"criteriaScores"`
	Feedback       string             `json:"feedback"`
	Highlights     []Highlight        `json:"highlights"`
}

// SubmissionFeedback is the persisted grading output for one submission.
type SubmissionFeedback struct {
	ID             string             `json:"id"`
	SubmissionID   string             `json:"submission_id"`
	JobID          string             `json:"job_id"`
	Skill          Skill              `json:"skill"`
	OverallScore   float64            `json:"overall_score"`
	Band           float64            `json:"band"`
	CriteriaScores map[string]float64 `json:"criteria_scores"`
	Feedback       string             `json:"feedback"`
	Status         FeedbackStatus     `json:"status"`
	SupersededBy   string             `json:"superseded_by,omitempty"`
	Items          []FeedbackItem     `json:"items,omitempty"`
}

// FeedbackItem is one persisted highlight pointing into the submitted text.
type FeedbackItem struct {
	ID         string  `json:"id"`
	FeedbackID string  `json:"feedback_id"`
	Category   string  `json:"category"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Severity   string  `json:"severity"`
	Confidence float64 `json:"confidence"`
	Context    string  `json:"context"`
	Suggestion string  `json:"suggestion,omitempty"`
}

// GradingJobResult is stored as the result of a completed grading job.
type GradingJobResult struct {
	SubmissionID string  `json:"submissionId"`
	FeedbackID   string  `json:"feedbackId"`
	OverallScore float64 `json:"overallScore"`
	Band         float64 `json:"band"`
	Superseded   int     `json:"superseded"`
}
