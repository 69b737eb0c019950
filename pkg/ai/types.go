package ai

import "context"

// Coverage status values returned by the evaluator.
const (
	CoverageFull    = "full"
	CoveragePartial = "partial"
	CoverageMissing = "missing"
)

// EvaluationInput contains the artefacts needed to grade a spoken answer.
type EvaluationInput struct {
	QuestionText    string
	ReferenceAnswer string
	Transcript      string
	Language        string
}

// CoverageItem grades how completely one topic of the reference answer was
// covered by the transcript.
type CoverageItem struct {
	Topic  string `json:"topic"`
	Status string `json:"status"`
}

// Evaluation is the structured verdict returned by the AI evaluator.
type Evaluation struct {
	Score        int            `json:"score"`
	Coverage     []CoverageItem `json:"coverage"`
	MissedPoints []string       `json:"missed_points"`
	Summary      string         `json:"summary"`
}

// Evaluator describes an AI model capable of grading an oral exam answer
// against a reference answer.
type Evaluator interface {
	Evaluate(ctx context.Context, input EvaluationInput) (Evaluation, error)
}

// Generator describes an AI model capable of producing a canonical reference
// answer for an exam question.
type Generator interface {
	Generate(ctx context.Context, language, questionText string) (string, error)
}
