// Package prompt builds model instructions and validates model responses against the expected
// response shape for each grading skill and question type.
package prompt

import (
	"fmt"

	"github.com/target/prepflow/internal/domain/model"
)

// Version identifies the prompt and response schema revision. It is recorded with every prompt so
// stored results can be traced back to the contract they were validated against.
const Version = "2024-06.1"

// Criterion is one rubric dimension scored on the band scale.
type Criterion struct {
	// Key is the property name expected in criteriaScores.
	Key  string
	Name string
	// Guidance is embedded in the instructions.
	Guidance string
}

// Rubric is the set of criteria a skill is graded against.
type Rubric struct {
	Skill    model.Skill
	Criteria []Criterion
	// Caveat is appended to the instructions when set.
	Caveat string
	// HighlightTypes lists the highlight categories the model may use.
	HighlightTypes []string
}

// Keys returns the criterion keys in rubric order.
func (r Rubric) Keys() []string {
	out := make([]string, len(r.Criteria))
	for i, c := range r.Criteria {
		out[i] = c.Key
	}
	return out
}

var writingRubric = Rubric{
	Skill: model.SkillWriting,
	Criteria: []Criterion{
		{Key: "taskAchievement", Name: "Task Achievement", Guidance: "how fully and relevantly the response addresses every part of the task"},
		{Key: "coherenceCohesion", Name: "Coherence & Cohesion", Guidance: "logical organisation, paragraphing and use of cohesive devices"},
		{Key: "lexicalResource", Name: "Lexical Resource", Guidance: "range, precision and appropriacy of vocabulary, including spelling"},
		{Key: "grammaticalRange", Name: "Grammatical Range & Accuracy", Guidance: "variety of sentence structures and frequency of grammatical errors"},
	},
	HighlightTypes: []string{"grammar", "vocabulary", "coherence", "task", "spelling"},
}

var speakingRubric = Rubric{
	Skill: model.SkillSpeaking,
	Criteria: []Criterion{
		{Key: "fluencyCoherence", Name: "Fluency & Coherence", Guidance: "ability to speak at length without noticeable effort and to link ideas"},
		{Key: "lexicalResource", Name: "Lexical Resource", Guidance: "range and flexibility of vocabulary, including paraphrase"},
		{Key: "grammaticalRange", Name: "Grammatical Range & Accuracy", Guidance: "variety and accuracy of spoken grammatical structures"},
		{Key: "pronunciation", Name: "Pronunciation", Guidance: "intelligibility, stress and intonation"},
	},
	Caveat: "You are reading a text transcript, so pronunciation cannot be reliably assessed. " +
		"Score Pronunciation conservatively from indirect evidence such as transcription artefacts, " +
		"and state in the feedback that this score has limited accuracy.",
	HighlightTypes: []string{"fluency", "grammar", "vocabulary", "pronunciation", "coherence"},
}

// RubricFor returns the rubric for a gradable skill.
func RubricFor(skill model.Skill) (Rubric, error) {
	switch skill {
	case model.SkillWriting:
		return writingRubric, nil
	case model.SkillSpeaking:
		return speakingRubric, nil
	default:
		return Rubric{}, fmt.Errorf("no rubric for skill %q", skill)
	}
}

// Severities accepted on highlights.
var Severities = []string{"low", "medium", "high"}
