package model

// QuestionType identifies a reading question format.
type QuestionType string

// Reading question formats the generator supports.
const (
	QuestionTypeMultipleChoice      QuestionType = "R1_MCQ"
	QuestionTypeMatchingHeadings    QuestionType = "R2_MATCHING_HEADINGS"
	QuestionTypeTrueFalseNotGiven   QuestionType = "R3_TFNG"
	QuestionTypeYesNoNotGiven       QuestionType = "R4_YNNG"
	QuestionTypeSentenceCompletion  QuestionType = "R5_SENTENCE_COMPLETION"
	QuestionTypeShortAnswer         QuestionType = "R6_SHORT_ANSWER"
	QuestionTypeSummaryCompletion   QuestionType = "R7_SUMMARY_COMPLETION"
	QuestionTypeMatchingInformation QuestionType = "R8_MATCHING_INFORMATION"
)

// Valid returns true if the question type is supported.
func (q QuestionType) Valid() bool {
	switch q {
	case QuestionTypeMultipleChoice, QuestionTypeMatchingHeadings, QuestionTypeTrueFalseNotGiven,
		QuestionTypeYesNoNotGiven, QuestionTypeSentenceCompletion, QuestionTypeShortAnswer,
		QuestionTypeSummaryCompletion, QuestionTypeMatchingInformation:
		return true
	default:
		return false
	}
}

// Difficulty is the requested difficulty of generated questions.
type Difficulty string

// Supported difficulties.
const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid returns true if the difficulty is supported.
func (d Difficulty) Valid() bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

// GeneratedQuestion is one question produced by the model, held in memory until the save step.
type GeneratedQuestion struct {
	Number      int      `json:"number"`
	Prompt      string   `json:"prompt"`
	Options     []string `json:"options,omitempty"`
	Answer      string   `json:"answer"`
	Explanation string   `json:"explanation,omitempty"`
}

// GeneratedSection groups the questions of one type produced by one model call.
type GeneratedSection struct {
	Type         QuestionType        `json:"type"`
	Difficulty   Difficulty          `json:"difficulty"`
	Instructions string              `json:"instructions"`
	Questions    []GeneratedQuestion `json:"questions"`
}

// GenerationResult is stored as the result of a completed generation job.
type GenerationResult struct {
	ExerciseID    string   `json:"exerciseId"`
	SectionIDs    []string `json:"sectionIds"`
	QuestionCount int      `json:"questionCount"`
}
