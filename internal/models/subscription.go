package models

import "time"

// Subscription entitles a user to start new oral exam sessions while the
// current time falls inside [StartsAt, EndsAt).
type Subscription struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	StartsAt  time.Time `gorm:"not null" json:"starts_at"`
	EndsAt    time.Time `gorm:"not null" json:"ends_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CoversInstant reports whether the subscription is active at the given time.
func (s Subscription) CoversInstant(at time.Time) bool {
	return !at.Before(s.StartsAt) && at.Before(s.EndsAt)
}
