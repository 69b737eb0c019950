package models

import "time"

// QuestionTypeOral marks questions that belong to the spoken exam mode.
const (
	QuestionTypeOral = "oral"
	QuestionTypeTest = "test"
)

// Direction is a medical specialty grouping. Reference answers are shared
// across exams within one direction and language.
type Direction struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Exam groups questions for one certification topic.
type Exam struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Language    string    `gorm:"size:8;not null" json:"language"`
	DirectionID uint      `gorm:"not null;index" json:"direction_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Direction   Direction `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"direction"`
}

// Question is a single exam question. Immutable within a session.
type Question struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ExamID    uint      `gorm:"not null;index" json:"exam_id"`
	Type      string    `gorm:"size:16;not null;index" json:"type"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Exam      Exam      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"exam"`
}

// IsOral reports whether the question belongs to the oral exam mode.
func (q Question) IsOral() bool {
	return q.Type == QuestionTypeOral
}
