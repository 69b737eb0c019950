package cache

import "fmt"

// SessionLivenessKey returns the TTL key whose presence means the session is
// still within its time budget.
func SessionLivenessKey(sessionID string) string {
	return fmt.Sprintf("oral:session:%s:alive", sessionID)
}

// GenerationLockKey returns the lock key serializing reference-answer
// generation for one question.
func GenerationLockKey(questionID uint) string {
	return fmt.Sprintf("oral:question:%d:genlock", questionID)
}

// ReferenceAnswerKey returns the fast-cache key for a resolved reference answer.
func ReferenceAnswerKey(questionID uint) string {
	return fmt.Sprintf("oral:question:%d:reference", questionID)
}

// DailyLimitKey returns the per-user marker key for the daily session cap.
func DailyLimitKey(userID uint) string {
	return fmt.Sprintf("oral:user:%d:daily", userID)
}
