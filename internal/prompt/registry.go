package prompt

import (
	"sort"

	"github.com/target/prepflow/internal/domain/model"
)

// Registry hands out prompt builders and response validators. The zero value is ready to use.
type Registry struct{}

// NewRegistry returns the registry for the current prompt Version.
func NewRegistry() *Registry { return &Registry{} }

// Grading builds the grading prompt for a submission.
func (*Registry) Grading(in GradingInput) (Prompt, error) { return BuildGradingPrompt(in) }

// ValidateGrading validates a grading response.
func (*Registry) ValidateGrading(skill model.Skill, raw []byte, textLen int) (*model.GradingResult, error) {
	return ValidateGrading(skill, raw, textLen)
}

// Generation builds the generation prompt for one question type.
func (*Registry) Generation(in GenerationInput) (Prompt, error) { return BuildGenerationPrompt(in) }

// ValidateGeneration validates a generation response.
func (*Registry) ValidateGeneration(in GenerationInput, raw []byte) (*model.GeneratedSection, error) {
	return ValidateGeneration(in, raw)
}

// Schemas lists every response contract the registry can validate.
func (*Registry) Schemas() []string {
	out := []string{GradingSchema}
	for qt := range questionSpecs {
		out = append(out, GenerationSchema+"/"+string(qt))
	}
	sort.Strings(out)
	return out
}
