package prompt

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/target/prepflow/internal/domain/model"
)

// GenerationSchema names the question generation response contract.
const GenerationSchema = "generation.v1"

type questionSpec struct {
	label        string
	instructions string
	// answers, when set, is the closed answer set.
	answers []string
	// minOptions is the smallest options list a question must carry.
	minOptions int
}

var questionSpecs = map[model.QuestionType]questionSpec{
	model.QuestionTypeMultipleChoice: {
		label:        "multiple choice",
		instructions: "Each question has exactly four options labelled A-D. The answer is the letter of the single correct option.",
		answers:      []string{"A", "B", "C", "D"},
		minOptions:   4,
	},
	model.QuestionTypeMatchingHeadings: {
		label:        "matching headings",
		instructions: "Provide the list of headings as options (roman numerals i, ii, iii...). Each question names a paragraph; the answer is the numeral of its heading.",
		minOptions:   2,
	},
	model.QuestionTypeTrueFalseNotGiven: {
		label:        "true / false / not given",
		instructions: "Each question is a statement about the passage. The answer is TRUE, FALSE or NOT GIVEN.",
		answers:      []string{"TRUE", "FALSE", "NOT GIVEN"},
	},
	model.QuestionTypeYesNoNotGiven: {
		label:        "yes / no / not given",
		instructions: "Each question is a claim about the writer's views. The answer is YES, NO or NOT GIVEN.",
		answers:      []string{"YES", "NO", "NOT GIVEN"},
	},
	model.QuestionTypeSentenceCompletion: {
		label:        "sentence completion",
		instructions: "Each question is a sentence with a gap marked ____. The answer is NO MORE THAN THREE WORDS taken from the passage.",
	},
	model.QuestionTypeShortAnswer: {
		label:        "short answer",
		instructions: "Each question asks for a fact from the passage. The answer is NO MORE THAN THREE WORDS and/or a number.",
	},
	model.QuestionTypeSummaryCompletion: {
		label:        "summary completion",
		instructions: "Each question is one gap in a summary of the passage. The answer is ONE WORD taken from the passage.",
	},
	model.QuestionTypeMatchingInformation: {
		label:        "matching information",
		instructions: "Paragraphs are labelled with letters as options. Each question is a piece of information; the answer is the letter of the paragraph containing it.",
		minOptions:   2,
	},
}

var difficultyGuidance = map[model.Difficulty]string{
	model.DifficultyEasy:   "Target band 4-5: answers are stated explicitly and use the passage's own wording.",
	model.DifficultyMedium: "Target band 6-7: answers require paraphrase recognition.",
	model.DifficultyHard:   "Target band 8-9: answers require inference and careful distinction between similar ideas.",
}

// GenerationInput is what a generation prompt is built from.
type GenerationInput struct {
	Type       model.QuestionType
	Difficulty model.Difficulty
	Count      int
	Passage    string
}

// BuildGenerationPrompt produces the instructions for generating Count questions of one type.
func BuildGenerationPrompt(in GenerationInput) (Prompt, error) {
	spec, ok := questionSpecs[in.Type]
	if !ok {
		return Prompt{}, fmt.Errorf("unsupported question type %q", in.Type)
	}
	guidance, ok := difficultyGuidance[in.Difficulty]
	if !ok {
		return Prompt{}, fmt.Errorf("unsupported difficulty %q", in.Difficulty)
	}
	if in.Count < 1 || in.Count > model.MaxQuestionsPerType {
		return Prompt{}, fmt.Errorf("question count %d out of range 1-%d", in.Count, model.MaxQuestionsPerType)
	}
	if strings.TrimSpace(in.Passage) == "" {
		return Prompt{}, errors.New("passage text is required")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Write %d %s reading questions about the passage.\n", in.Count, spec.label)
	b.WriteString(spec.instructions)
	b.WriteString("\n")
	b.WriteString(guidance)
	b.WriteString("\nEvery answer must be supported by, or in the case of NOT GIVEN absent from, the passage.\n\n")
	b.WriteString("Reply with one JSON object and nothing else:\n")
	b.WriteString(`{"instructions": string, "questions": [{"number": integer, "prompt": string, `)
	b.WriteString(`"options": [string], "answer": string, "explanation": string}]}`)
	fmt.Fprintf(&b, "\nNumber the questions 1 to %d.", in.Count)
	if spec.minOptions == 0 {
		b.WriteString(" Omit options.")
	}
	if len(spec.answers) > 0 {
		fmt.Fprintf(&b, " The answer must be exactly one of: %s.", strings.Join(spec.answers, ", "))
	}
	b.WriteString("\n")

	return Prompt{
		Version:      Version,
		Schema:       GenerationSchema + "/" + string(in.Type),
		Instructions: b.String(),
		Subject:      in.Passage,
	}, nil
}

type generationWire struct {
	Instructions *string         `json:"instructions"`
	Questions    *[]questionWire `json:"questions"`
}

type questionWire struct {
	Number      int      `json:"number"`
	Prompt      string   `json:"prompt"`
	Options     []string `json:"options"`
	Answer      string   `json:"answer"`
	Explanation string   `json:"explanation"`
}

// ValidateGeneration decodes and validates a generation response for one question type.
func ValidateGeneration(in GenerationInput, raw []byte) (*model.GeneratedSection, error) {
	spec, ok := questionSpecs[in.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported question type %q", in.Type)
	}
	var w generationWire
	if err := decodeStrict(raw, &w); err != nil {
		return nil, err
	}

	var v violations
	if w.Instructions == nil || strings.TrimSpace(*w.Instructions) == "" {
		v.addf("instructions is required")
	}
	if w.Questions == nil {
		v.addf("questions is required")
		return nil, v.err()
	}
	qs := *w.Questions
	if len(qs) != in.Count {
		v.addf("got %d questions, want %d", len(qs), in.Count)
	}

	out := make([]model.GeneratedQuestion, 0, len(qs))
	for i, q := range qs {
		if q.Number != i+1 {
			v.addf("questions[%d].number is %d, want %d", i, q.Number, i+1)
		}
		if strings.TrimSpace(q.Prompt) == "" {
			v.addf("questions[%d].prompt is required", i)
		}
		if strings.TrimSpace(q.Answer) == "" {
			v.addf("questions[%d].answer is required", i)
		} else if len(spec.answers) > 0 && !slices.Contains(spec.answers, q.Answer) {
			v.addf("questions[%d].answer must be one of %s", i, strings.Join(spec.answers, ", "))
		}
		if len(q.Options) < spec.minOptions {
			v.addf("questions[%d] has %d options, want at least %d", i, len(q.Options), spec.minOptions)
		}
		out = append(out, model.GeneratedQuestion{
			Number:      q.Number,
			Prompt:      q.Prompt,
			Options:     q.Options,
			Answer:      q.Answer,
			Explanation: q.Explanation,
		})
	}
	if err := v.err(); err != nil {
		return nil, err
	}
	return &model.GeneratedSection{
		Type:         in.Type,
		Difficulty:   in.Difficulty,
		Instructions: *w.Instructions,
		Questions:    out,
	}, nil
}
