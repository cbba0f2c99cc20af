package prompt

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/prepflow/internal/domain/model"
	obserrors "github.com/target/prepflow/internal/observability/errors"
)

func tfngResponse(n int, answer string) string {
	qs := make([]string, n)
	for i := range qs {
		qs[i] = fmt.Sprintf(`{"number": %d, "prompt": "Statement %d", "answer": %q}`, i+1, i+1, answer)
	}
	return `{"instructions": "Do the statements agree?", "questions": [` + strings.Join(qs, ",") + `]}`
}

func TestBuildGenerationPrompt(t *testing.T) {
	in := GenerationInput{
		Type:       model.QuestionTypeTrueFalseNotGiven,
		Difficulty: model.DifficultyMedium,
		Count:      5,
		Passage:    "The Nile is long.",
	}
	p, err := BuildGenerationPrompt(in)
	require.NoError(t, err)
	assert.Equal(t, "generation.v1/R3_TFNG", p.Schema)
	assert.Contains(t, p.Instructions, "Write 5 true / false / not given")
	assert.Contains(t, p.Instructions, "TRUE, FALSE, NOT GIVEN")
	assert.Contains(t, p.Instructions, "paraphrase")
	assert.Equal(t, in.Passage, p.Subject)

	bad := in
	bad.Count = 0
	_, err = BuildGenerationPrompt(bad)
	assert.Error(t, err)
	bad = in
	bad.Type = "R9_UNKNOWN"
	_, err = BuildGenerationPrompt(bad)
	assert.Error(t, err)
	bad = in
	bad.Difficulty = "brutal"
	_, err = BuildGenerationPrompt(bad)
	assert.Error(t, err)
}

func TestValidateGeneration(t *testing.T) {
	in := GenerationInput{Type: model.QuestionTypeTrueFalseNotGiven, Difficulty: model.DifficultyEasy, Count: 5}

	section, err := ValidateGeneration(in, []byte(tfngResponse(5, "NOT GIVEN")))
	require.NoError(t, err)
	assert.Equal(t, model.QuestionTypeTrueFalseNotGiven, section.Type)
	assert.Len(t, section.Questions, 5)
	assert.Equal(t, 5, section.Questions[4].Number)

	tests := []struct {
		name string
		body string
		kind obserrors.Kind
	}{
		{"wrong count", tfngResponse(4, "TRUE"), obserrors.KindValidationError},
		{"answer outside closed set", tfngResponse(5, "MAYBE"), obserrors.KindValidationError},
		{"missing questions", `{"instructions": "x"}`, obserrors.KindValidationError},
		{"not an object", `[1,2]`, obserrors.KindInvalidResponse},
		{"questions not a list", `{"instructions": "x", "questions": 3}`, obserrors.KindInvalidResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateGeneration(in, []byte(tt.body))
			require.Error(t, err)
			assert.Equal(t, tt.kind, obserrors.ClassifyKind(err), err.Error())
		})
	}
}

func TestValidateGeneration_MultipleChoiceNeedsOptions(t *testing.T) {
	in := GenerationInput{Type: model.QuestionTypeMultipleChoice, Difficulty: model.DifficultyHard, Count: 1}
	_, err := ValidateGeneration(in, []byte(`{"instructions": "Choose", "questions": [{"number": 1, "prompt": "Why?", "answer": "A"}]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "options")

	_, err = ValidateGeneration(in, []byte(`{"instructions": "Choose", "questions": [{"number": 1, "prompt": "Why?",
	  "options": ["a", "b", "c", "d"], "answer": "B"}]}`))
	assert.NoError(t, err)
}

func TestRegistrySchemas(t *testing.T) {
	schemas := NewRegistry().Schemas()
	assert.Len(t, schemas, 9)
	assert.Contains(t, schemas, GradingSchema)
	assert.Contains(t, schemas, "generation.v1/R8_MATCHING_INFORMATION")
}
