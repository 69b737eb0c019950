package dto

import (
	"time"

	"github.com/medvox/medvox-api/internal/models"
)

// StartSessionRequest is the payload for creating an oral exam session.
type StartSessionRequest struct {
	ExamID uint `json:"exam_id" validate:"required,gt=0"`
}

// SessionQuestion is one question in a session's fixed order.
type SessionQuestion struct {
	ID    uint   `json:"id"`
	Text  string `json:"text"`
	Order int    `json:"order"`
}

// StartSessionResponse is returned when a session is created or resumed.
type StartSessionResponse struct {
	SessionID string            `json:"session_id"`
	Questions []SessionQuestion `json:"questions"`
	ExpiresAt time.Time         `json:"expires_at"`
	Resumed   bool              `json:"resumed"`
}

// CoverageEntry mirrors one topic verdict of the evaluator.
type CoverageEntry struct {
	Topic  string `json:"topic"`
	Status string `json:"status"`
}

// FeedbackResponse is the structured evaluation returned with an answer.
type FeedbackResponse struct {
	Coverage     []CoverageEntry `json:"coverage"`
	MissedPoints []string        `json:"missed_points"`
	Summary      string          `json:"summary"`
}

// SubmitAnswerResponse is returned after an answer has been evaluated.
type SubmitAnswerResponse struct {
	Transcript string           `json:"transcript"`
	Score      int              `json:"score"`
	MaxScore   int              `json:"max_score"`
	Feedback   FeedbackResponse `json:"feedback"`
}

// AnswerBreakdown is one question's outcome in the finish summary. Transcript
// and feedback are nil for unanswered questions.
type AnswerBreakdown struct {
	QuestionID   uint              `json:"question_id"`
	QuestionText string            `json:"question_text"`
	Transcript   *string           `json:"transcript"`
	Score        int               `json:"score"`
	Feedback     *FeedbackResponse `json:"feedback"`
}

// FinishSessionResponse is the aggregated session result.
type FinishSessionResponse struct {
	SessionID     string            `json:"session_id"`
	Score         int               `json:"score"`
	MaxScore      int               `json:"max_score"`
	Passed        bool              `json:"passed"`
	PassThreshold int               `json:"pass_threshold"`
	Status        string            `json:"status"`
	Answers       []AnswerBreakdown `json:"answers"`
}

// SessionStatusResponse reports liveness and progress for polling clients.
type SessionStatusResponse struct {
	Status         string `json:"status"`
	TTL            int64  `json:"ttl"`
	AnsweredCount  int    `json:"answered_count"`
	TotalQuestions int    `json:"total_questions"`
}

// NewFeedbackResponse converts the stored feedback representation.
func NewFeedbackResponse(feedback models.AnswerFeedback) FeedbackResponse {
	coverage := make([]CoverageEntry, 0, len(feedback.Coverage))
	for _, item := range feedback.Coverage {
		coverage = append(coverage, CoverageEntry{Topic: item.Topic, Status: item.Status})
	}

	missed := feedback.MissedPoints
	if missed == nil {
		missed = []string{}
	}

	return FeedbackResponse{
		Coverage:     coverage,
		MissedPoints: missed,
		Summary:      feedback.Summary,
	}
}
