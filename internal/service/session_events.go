package service

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/medvox/medvox-api/internal/models"
)

// Session lifecycle event names published to NATS.
const (
	EventSessionStarted  = "session.started"
	EventSessionFinished = "session.finished"
	EventSessionTimeout  = "session.timeout"
)

// SessionEventPublisher fans out session lifecycle events. Publishing is
// fire-and-forget: a missing connection or a failed publish is logged and
// never affects the caller.
type SessionEventPublisher struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// NewSessionEventPublisher builds a publisher. A nil connection disables
// publishing.
func NewSessionEventPublisher(conn *nats.Conn, subject string, logger zerolog.Logger) *SessionEventPublisher {
	return &SessionEventPublisher{
		conn:    conn,
		subject: subject,
		logger:  logger.With().Str("component", "session_events").Logger(),
	}
}

type sessionEvent struct {
	Event     string    `json:"event"`
	SessionID string    `json:"session_id"`
	UserID    uint      `json:"user_id"`
	ExamID    uint      `json:"exam_id"`
	Status    string    `json:"status"`
	Score     *int      `json:"score,omitempty"`
	At        time.Time `json:"at"`
}

// Publish emits one lifecycle event.
func (p *SessionEventPublisher) Publish(event string, session models.OralExamSession) {
	if p == nil || p.conn == nil || p.subject == "" {
		return
	}

	payload, err := json.Marshal(sessionEvent{
		Event:     event,
		SessionID: session.ID,
		UserID:    session.UserID,
		ExamID:    session.ExamID,
		Status:    session.Status,
		Score:     session.Score,
		At:        time.Now().UTC(),
	})
	if err != nil {
		p.logger.Warn().Err(err).Str("event", event).Msg("failed to encode session event")
		return
	}

	if err := p.conn.Publish(p.subject, payload); err != nil {
		p.logger.Warn().Err(err).Str("event", event).Msg("failed to publish session event")
	}
}
