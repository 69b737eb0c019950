package service

import "errors"

// Reason codes surfaced to API clients.
const (
	ReasonSubscriptionRequired = "SUBSCRIPTION_REQUIRED"
	ReasonRateLimitExceeded    = "RATE_LIMIT_EXCEEDED"
	ReasonNotEnoughQuestions   = "NOT_ENOUGH_QUESTIONS"
	ReasonSessionNotFound      = "SESSION_NOT_FOUND"
	ReasonSessionEnded         = "SESSION_ENDED"
	ReasonSessionExpired       = "SESSION_EXPIRED"
	ReasonQuestionNotInSession = "QUESTION_NOT_IN_SESSION"
	ReasonAccessForbidden      = "ACCESS_FORBIDDEN"
	ReasonGenerationFailed     = "GENERATION_FAILED"
	ReasonInternalError        = "INTERNAL_ERROR"
)

// ReasonError is a domain failure carrying a machine-readable reason code and
// a user-safe message. The wrapped cause, if any, is for logs only.
type ReasonError struct {
	Code    string
	Message string
	cause   error
}

// NewReasonError builds a reason-coded error.
func NewReasonError(code, message string) *ReasonError {
	return &ReasonError{Code: code, Message: message}
}

// WrapReason attaches a cause to a reason-coded error without exposing it in
// the message.
func WrapReason(code, message string, cause error) *ReasonError {
	return &ReasonError{Code: code, Message: message, cause: cause}
}

func (e *ReasonError) Error() string {
	return e.Code + ": " + e.Message
}

func (e *ReasonError) Unwrap() error {
	return e.cause
}

// AsReasonError extracts a ReasonError from an error chain.
func AsReasonError(err error) (*ReasonError, bool) {
	var reason *ReasonError
	if errors.As(err, &reason) {
		return reason, true
	}
	return nil, false
}
