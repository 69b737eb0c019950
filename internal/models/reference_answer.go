package models

import "time"

// DirectionAnswer is the deduplicated store of generated reference answers.
// The (direction, language, prompt hash) triple is the source of truth: two
// questions with identical prompt text in one direction share a single row.
type DirectionAnswer struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	DirectionID uint      `gorm:"not null;uniqueIndex:idx_direction_answer_key" json:"direction_id"`
	Language    string    `gorm:"size:8;not null;uniqueIndex:idx_direction_answer_key" json:"language"`
	PromptHash  string    `gorm:"size:64;not null;uniqueIndex:idx_direction_answer_key" json:"prompt_hash"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// QuestionReferenceAnswer denormalizes the resolved reference answer per
// question for fast lookup. Missing here while present in DirectionAnswer is a
// benign state, not corruption.
type QuestionReferenceAnswer struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	QuestionID uint      `gorm:"not null;uniqueIndex" json:"question_id"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
