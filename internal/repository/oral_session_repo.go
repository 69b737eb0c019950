package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/medvox/medvox-api/internal/models"
)

// OralSessionRepository defines data operations for oral exam sessions and
// their answers.
type OralSessionRepository interface {
	Create(ctx context.Context, session *models.OralExamSession) error
	GetByID(ctx context.Context, id string) (models.OralExamSession, error)
	FindActiveByUser(ctx context.Context, userID uint) (models.OralExamSession, error)
	Update(ctx context.Context, session *models.OralExamSession) error
	UpsertAnswer(ctx context.Context, answer *models.OralExamAnswer) error
	ListAnswersBySession(ctx context.Context, sessionID string) ([]models.OralExamAnswer, error)
	CountAnswers(ctx context.Context, sessionID string) (int64, error)
}

type oralSessionRepository struct {
	db *gorm.DB
}

// NewOralSessionRepository instantiates the repository.
func NewOralSessionRepository(db *gorm.DB) OralSessionRepository {
	return &oralSessionRepository{db: db}
}

func (r *oralSessionRepository) Create(ctx context.Context, session *models.OralExamSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *oralSessionRepository) GetByID(ctx context.Context, id string) (models.OralExamSession, error) {
	var session models.OralExamSession
	if err := r.db.WithContext(ctx).First(&session, "id = ?", id).Error; err != nil {
		return models.OralExamSession{}, err
	}

	return session, nil
}

func (r *oralSessionRepository) FindActiveByUser(ctx context.Context, userID uint) (models.OralExamSession, error) {
	var session models.OralExamSession
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("status = ?", models.SessionStatusActive).
		Order("created_at DESC").
		First(&session).Error; err != nil {
		return models.OralExamSession{}, err
	}

	return session, nil
}

func (r *oralSessionRepository) Update(ctx context.Context, session *models.OralExamSession) error {
	return r.db.WithContext(ctx).Save(session).Error
}

// UpsertAnswer keeps at most one row per (session, question); a resubmission
// overwrites the previous transcript, score, and feedback.
func (r *oralSessionRepository) UpsertAnswer(ctx context.Context, answer *models.OralExamAnswer) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "question_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"transcript", "score", "feedback", "updated_at"}),
	}).Create(answer).Error
}

func (r *oralSessionRepository) ListAnswersBySession(ctx context.Context, sessionID string) ([]models.OralExamAnswer, error) {
	var answers []models.OralExamAnswer
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Find(&answers).Error; err != nil {
		return nil, err
	}

	return answers, nil
}

func (r *oralSessionRepository) CountAnswers(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.OralExamAnswer{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error; err != nil {
		return 0, err
	}

	return count, nil
}
