package models

import "time"

// AI usage kinds recorded for billing and diagnostics.
const (
	UsageKindTranscription = "transcription"
	UsageKindGeneration    = "generation"
	UsageKindEvaluation    = "evaluation"
)

// AIUsageLog records one call to an external AI service. Writes are
// best-effort; a failed insert never affects the user-facing flow.
type AIUsageLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Kind      string    `gorm:"size:32;not null" json:"kind"`
	Success   bool      `gorm:"not null" json:"success"`
	Detail    string    `gorm:"size:512" json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}
