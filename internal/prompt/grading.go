package prompt

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/target/prepflow/internal/domain/model"
)

// MaxHighlightContext bounds the snippet length carried by a highlight.
const MaxHighlightContext = 300

// GradingSchema names the grading response contract.
const GradingSchema = "grading.v1"

// GradingInput is what a grading prompt is built from.
type GradingInput struct {
	Skill model.Skill
	Text  string
	// TaskPrompt is the question the candidate answered, when known.
	TaskPrompt string
}

// BuildGradingPrompt produces the rubric instructions for one submission.
func BuildGradingPrompt(in GradingInput) (Prompt, error) {
	rubric, err := RubricFor(in.Skill)
	if err != nil {
		return Prompt{}, err
	}
	if strings.TrimSpace(in.Text) == "" {
		return Prompt{}, errors.New("submission text is required")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are an experienced examiner grading a %s response on the 0-9 band scale.\n\n", in.Skill)
	if tp := strings.TrimSpace(in.TaskPrompt); tp != "" {
		b.WriteString("## Task prompt\n")
		b.WriteString(tp)
		b.WriteString("\n\n")
	}
	b.WriteString("## Criteria\n")
	for _, c := range rubric.Criteria {
		fmt.Fprintf(&b, "- %s (key %q): %s.\n", c.Name, c.Key, c.Guidance)
	}
	if rubric.Caveat != "" {
		b.WriteString("\n")
		b.WriteString(rubric.Caveat)
		b.WriteString("\n")
	}
	b.WriteString("\n## Response format\n")
	b.WriteString("Reply with one JSON object and nothing else:\n")
	b.WriteString(`{"overallScore": number, "criteriaScores": {`)
	for i, k := range rubric.Keys() {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q: number", k)
	}
	b.WriteString(`}, "feedback": string, "highlights": [{"type": string, "start": integer, "end": integer, `)
	b.WriteString(`"confidence": number, "severity": string, "context": string, "suggestion": string}]}`)
	b.WriteString("\n\nAll scores are between 0 and 9 in steps of 0.5. ")
	fmt.Fprintf(&b, "Highlight types: %s. Severities: %s. ", strings.Join(rubric.HighlightTypes, ", "),
		strings.Join(Severities, ", "))
	b.WriteString("start and end are character offsets into the response text with start <= end; ")
	b.WriteString("confidence is between 0 and 1; context quotes the highlighted words.\n")

	return Prompt{
		Version:      Version,
		Schema:       GradingSchema,
		Instructions: b.String(),
		Subject:      in.Text,
	}, nil
}

type gradingWire struct {
	OverallScore   *float64            `json:"overallScore"`
	CriteriaScores map[string]*float64 `json:"criteriaScores"`
	Feedback       *string             `json:"feedback"`
	Highlights     *[]highlightWire    `json:"highlights"`
}

type highlightWire struct {
	Type       string   `json:"type"`
	Start      *int     `json:"start"`
	End        *int     `json:"end"`
	Confidence *float64 `json:"confidence"`
	Severity   string   `json:"severity"`
	Context    string   `json:"context"`
	Suggestion string   `json:"suggestion"`
}

// ValidateGrading decodes and validates a grading response for skill. textLen is the length of
// the graded text in characters; highlight spans beyond it are rejected when textLen > 0.
func ValidateGrading(skill model.Skill, raw []byte, textLen int) (*model.GradingResult, error) {
	rubric, err := RubricFor(skill)
	if err != nil {
		return nil, err
	}
	var w gradingWire
	if err := decodeStrict(raw, &w); err != nil {
		return nil, err
	}

	var v violations
	switch {
	case w.OverallScore == nil:
		v.addf("overallScore is required")
	case !inBandRange(*w.OverallScore):
		v.addf("overallScore %v out of range, want 0-9 in steps of 0.5", *w.OverallScore)
	}

	criteria := make(map[string]float64, len(rubric.Criteria))
	if w.CriteriaScores == nil {
		v.addf("criteriaScores is required")
	}
	for _, c := range rubric.Criteria {
		if w.CriteriaScores == nil {
			break
		}
		score, ok := w.CriteriaScores[c.Key]
		switch {
		case !ok || score == nil:
			v.addf("criterion %q is required", c.Key)
		case !inBandRange(*score):
			v.addf("criterion %q score %v out of range, want 0-9 in steps of 0.5", c.Key, *score)
		default:
			criteria[c.Key] = *score
		}
	}
	for k := range w.CriteriaScores {
		if !slices.Contains(rubric.Keys(), k) {
			v.addf("criteriaScores has a key outside the %s rubric", skill)
		}
	}

	if w.Feedback == nil || strings.TrimSpace(*w.Feedback) == "" {
		v.addf("feedback is required")
	}

	var highlights []model.Highlight
	if w.Highlights == nil {
		v.addf("highlights is required")
	} else {
		highlights = make([]model.Highlight, 0, len(*w.Highlights))
		for i, h := range *w.Highlights {
			if hl, ok := checkHighlight(&v, i, h, rubric, textLen); ok {
				highlights = append(highlights, hl)
			}
		}
	}

	if err := v.err(); err != nil {
		return nil, err
	}
	return &model.GradingResult{
		OverallScore:   *w.OverallScore,
		CriteriaScores: criteria,
		Feedback:       *w.Feedback,
		Highlights:     highlights,
	}, nil
}

func checkHighlight(v *violations, i int, h highlightWire, rubric Rubric, textLen int) (model.Highlight, bool) {
	n := len(*v)
	if !slices.Contains(rubric.HighlightTypes, h.Type) {
		v.addf("highlights[%d].type is not one of %s", i, strings.Join(rubric.HighlightTypes, ", "))
	}
	switch {
	case h.Start == nil || h.End == nil:
		v.addf("highlights[%d].start and end are required", i)
	case *h.Start < 0 || *h.Start > *h.End:
		v.addf("highlights[%d] span [%d,%d] out of range, want 0 <= start <= end", i, *h.Start, *h.End)
	case textLen > 0 && *h.End > textLen:
		v.addf("highlights[%d].end %d out of range, text has %d characters", i, *h.End, textLen)
	}
	switch {
	case h.Confidence == nil:
		v.addf("highlights[%d].confidence is required", i)
	case *h.Confidence < 0 || *h.Confidence > 1:
		v.addf("highlights[%d].confidence %v out of range, want 0-1", i, *h.Confidence)
	}
	if !slices.Contains(Severities, h.Severity) {
		v.addf("highlights[%d].severity is not one of %s", i, strings.Join(Severities, ", "))
	}
	if strings.TrimSpace(h.Context) == "" {
		v.addf("highlights[%d].context is required", i)
	} else if utf8.RuneCountInString(h.Context) > MaxHighlightContext {
		v.addf("highlights[%d].context longer than %d characters", i, MaxHighlightContext)
	}
	if len(*v) > n {
		return model.Highlight{}, false
	}
	return model.Highlight{
		Type:       h.Type,
		Start:      *h.Start,
		End:        *h.End,
		Confidence: *h.Confidence,
		Severity:   h.Severity,
		Context:    h.Context,
		Suggestion: h.Suggestion,
	}, true
}
