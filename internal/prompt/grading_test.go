package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/prepflow/internal/domain/model"
	obserrors "github.com/target/prepflow/internal/observability/errors"
)

const validWriting = `{
  "overallScore": 6.5,
  "criteriaScores": {"taskAchievement": 6, "coherenceCohesion": 6.5, "lexicalResource": 7, "grammaticalRange": 6.5},
  "feedback": "Clear position, some repetition.",
  "highlights": [
    {"type": "grammar", "start": 4, "end": 9, "confidence": 0.8, "severity": "medium", "context": "peoples", "suggestion": "people"}
  ]
}`

func TestBuildGradingPrompt(t *testing.T) {
	p, err := BuildGradingPrompt(GradingInput{
		Skill:      model.SkillWriting,
		Text:       "Many peoples think...",
		TaskPrompt: "Some people believe that cities are better than villages.",
	})
	require.NoError(t, err)
	assert.Equal(t, GradingSchema, p.Schema)
	assert.Equal(t, Version, p.Version)
	assert.Equal(t, "Many peoples think...", p.Subject)
	for _, want := range []string{"Task Achievement", "Coherence & Cohesion", "Lexical Resource",
		"Grammatical Range & Accuracy", "## Task prompt", "cities are better"} {
		assert.Contains(t, p.Instructions, want)
	}
	assert.NotContains(t, p.Instructions, "Pronunciation")

	p, err = BuildGradingPrompt(GradingInput{Skill: model.SkillSpeaking, Text: "well I think"})
	require.NoError(t, err)
	assert.Contains(t, p.Instructions, "Fluency & Coherence")
	assert.Contains(t, p.Instructions, "Pronunciation")
	assert.Contains(t, p.Instructions, "cannot be reliably assessed")
	assert.NotContains(t, p.Instructions, "## Task prompt")

	_, err = BuildGradingPrompt(GradingInput{Skill: "reading", Text: "x"})
	assert.Error(t, err)
	_, err = BuildGradingPrompt(GradingInput{Skill: model.SkillWriting, Text: "  "})
	assert.Equal(t, obserrors.KindValidationError, obserrors.ClassifyKind(err))
}

func TestValidateGrading_Accepts(t *testing.T) {
	res, err := ValidateGrading(model.SkillWriting, []byte(validWriting), 40)
	require.NoError(t, err)
	assert.InDelta(t, 6.5, res.OverallScore, 0)
	assert.Len(t, res.CriteriaScores, 4)
	require.Len(t, res.Highlights, 1)
	assert.Equal(t, "people", res.Highlights[0].Suggestion)
}

func TestValidateGrading_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantKind obserrors.Kind
		wantMsg  string
	}{
		{
			name:     "overall score out of range",
			body:     strings.Replace(validWriting, `"overallScore": 6.5`, `"overallScore": 15`, 1),
			wantKind: obserrors.KindValidationError,
			wantMsg:  "overallScore 15 out of range",
		},
		{
			name:     "overall score not a half step",
			body:     strings.Replace(validWriting, `"overallScore": 6.5`, `"overallScore": 6.3`, 1),
			wantKind: obserrors.KindValidationError,
		},
		{
			name:     "missing criterion",
			body:     strings.Replace(validWriting, `"lexicalResource": 7, `, ``, 1),
			wantKind: obserrors.KindValidationError,
			wantMsg:  `criterion "lexicalResource" is required`,
		},
		{
			name:     "unknown criterion",
			body:     strings.Replace(validWriting, `"lexicalResource": 7`, `"lexicalResource": 7, "pronunciation": 5`, 1),
			wantKind: obserrors.KindValidationError,
		},
		{
			name:     "span reversed",
			body:     strings.Replace(validWriting, `"start": 4, "end": 9`, `"start": 9, "end": 4`, 1),
			wantKind: obserrors.KindValidationError,
		},
		{
			name:     "span beyond text",
			body:     strings.Replace(validWriting, `"end": 9`, `"end": 90`, 1),
			wantKind: obserrors.KindValidationError,
		},
		{
			name:     "confidence out of range",
			body:     strings.Replace(validWriting, `"confidence": 0.8`, `"confidence": 1.5`, 1),
			wantKind: obserrors.KindValidationError,
		},
		{
			name:     "highlight type controlled by model is not echoed",
			body:     strings.Replace(validWriting, `"type": "grammar"`, `"type": "timeout parse 429"`, 1),
			wantKind: obserrors.KindValidationError,
		},
		{
			name:     "missing feedback",
			body:     strings.Replace(validWriting, `"feedback": "Clear position, some repetition.",`, ``, 1),
			wantKind: obserrors.KindValidationError,
		},
		{
			name:     "score is a string",
			body:     strings.Replace(validWriting, `"overallScore": 6.5`, `"overallScore": "6.5"`, 1),
			wantKind: obserrors.KindInvalidResponse,
			wantMsg:  "schema mismatch",
		},
		{
			name:     "not json",
			body:     "Here is your grade: 6.5",
			wantKind: obserrors.KindInvalidResponse,
		},
		{
			name:     "truncated",
			body:     validWriting[:40],
			wantKind: obserrors.KindInvalidResponse,
		},
		{
			name:     "trailing text",
			body:     validWriting + " thanks!",
			wantKind: obserrors.KindInvalidResponse,
		},
		{
			name:     "empty",
			body:     " ",
			wantKind: obserrors.KindInvalidResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateGrading(model.SkillWriting, []byte(tt.body), 40)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, obserrors.ClassifyKind(err), err.Error())
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestValidateGrading_SpeakingRubric(t *testing.T) {
	body := `{"overallScore": 7, "criteriaScores": {"fluencyCoherence": 7, "lexicalResource": 7,
	  "grammaticalRange": 6.5, "pronunciation": 6}, "feedback": "ok", "highlights": []}`
	res, err := ValidateGrading(model.SkillSpeaking, []byte(body), 0)
	require.NoError(t, err)
	assert.Empty(t, res.Highlights)

	_, err = ValidateGrading(model.SkillWriting, []byte(body), 0)
	assert.Equal(t, obserrors.KindValidationError, obserrors.ClassifyKind(err))
}

func TestValidateGrading_ModelValuesDoNotChangeKind(t *testing.T) {
	for _, body := range []string{
		strings.Replace(validWriting, `"overallScore": 6.5`, `"overallScore": 429`, 1),
		strings.Replace(validWriting, `"end": 9`, `"end": 4290`, 1),
		strings.Replace(validWriting, `"severity": "medium"`, `"severity": "timeout"`, 1),
	} {
		_, err := ValidateGrading(model.SkillWriting, []byte(body), 40)
		require.Error(t, err)
		assert.Equal(t, obserrors.KindValidationError, obserrors.ClassifyKind(err), err.Error())
	}

	_, err := ValidateGrading(model.SkillWriting, []byte(`{"overallScore": "429"}`), 0)
	assert.Equal(t, obserrors.KindInvalidResponse, obserrors.ClassifyKind(err))
	_, err = ValidateGrading(model.SkillWriting, []byte(`429 Too Many Requests`), 0)
	assert.Equal(t, obserrors.KindInvalidResponse, obserrors.ClassifyKind(err))
}
