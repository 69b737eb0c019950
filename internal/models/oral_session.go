package models

import (
	"time"

	"gorm.io/datatypes"
)

// Oral exam session lifecycle states. Finished and timeout are terminal.
const (
	SessionStatusActive   = "active"
	SessionStatusFinished = "finished"
	SessionStatusTimeout  = "timeout"
)

// Scoring constants for one oral exam attempt.
const (
	QuestionsPerSession = 5
	PerQuestionMaxScore = 10
	SessionMaxScore     = QuestionsPerSession * PerQuestionMaxScore
	PassThreshold       = 30
)

// OralExamSession is one user's timed oral exam attempt. The question list is
// fixed at creation; liveness is tracked by an external TTL key, not a column.
type OralExamSession struct {
	ID          string                    `gorm:"primaryKey;size:36" json:"id"`
	UserID      uint                      `gorm:"not null;index" json:"user_id"`
	ExamID      uint                      `gorm:"not null;index" json:"exam_id"`
	Status      string                    `gorm:"size:16;not null;index" json:"status"`
	QuestionIDs datatypes.JSONSlice[uint] `gorm:"not null" json:"question_ids"`
	MaxScore    int                       `gorm:"not null" json:"max_score"`
	Score       *int                      `json:"score"`
	CompletedAt *time.Time                `json:"completed_at"`
	CreatedAt   time.Time                 `json:"created_at"`
	UpdatedAt   time.Time                 `json:"updated_at"`
}

// IsTerminal reports whether the session can no longer accept answers.
func (s OralExamSession) IsTerminal() bool {
	return s.Status == SessionStatusFinished || s.Status == SessionStatusTimeout
}

// HasQuestion reports whether the question belongs to this session's fixed set.
func (s OralExamSession) HasQuestion(questionID uint) bool {
	for _, id := range s.QuestionIDs {
		if id == questionID {
			return true
		}
	}
	return false
}

// AnswerFeedback is the structured evaluation stored alongside an answer.
type AnswerFeedback struct {
	Coverage     []CoverageItem `json:"coverage"`
	MissedPoints []string       `json:"missed_points"`
	Summary      string         `json:"summary"`
}

// CoverageItem grades how completely one topic of the reference answer was covered.
type CoverageItem struct {
	Topic  string `json:"topic"`
	Status string `json:"status"`
}

// OralExamAnswer is the latest evaluated answer for one (session, question)
// pair. Resubmissions replace the row in place.
type OralExamAnswer struct {
	ID         uint                               `gorm:"primaryKey" json:"id"`
	SessionID  string                             `gorm:"size:36;not null;uniqueIndex:idx_answer_session_question" json:"session_id"`
	QuestionID uint                               `gorm:"not null;uniqueIndex:idx_answer_session_question" json:"question_id"`
	Transcript string                             `gorm:"type:text" json:"transcript"`
	Score      int                                `gorm:"not null" json:"score"`
	Feedback   datatypes.JSONType[AnswerFeedback] `json:"feedback"`
	CreatedAt  time.Time                          `json:"created_at"`
	UpdatedAt  time.Time                          `json:"updated_at"`
}
