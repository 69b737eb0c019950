package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/medvox/medvox-api/internal/models"
)

// ReferenceAnswerRepository defines data operations for the two durable
// reference-answer tiers.
type ReferenceAnswerRepository interface {
	GetByQuestionID(ctx context.Context, questionID uint) (models.QuestionReferenceAnswer, error)
	GetByPromptHash(ctx context.Context, directionID uint, language, promptHash string) (models.DirectionAnswer, error)
	SaveQuestionAnswer(ctx context.Context, answer *models.QuestionReferenceAnswer) error
	SaveDirectionAnswer(ctx context.Context, answer *models.DirectionAnswer) error
}

type referenceAnswerRepository struct {
	db *gorm.DB
}

// NewReferenceAnswerRepository instantiates the repository.
func NewReferenceAnswerRepository(db *gorm.DB) ReferenceAnswerRepository {
	return &referenceAnswerRepository{db: db}
}

func (r *referenceAnswerRepository) GetByQuestionID(ctx context.Context, questionID uint) (models.QuestionReferenceAnswer, error) {
	var answer models.QuestionReferenceAnswer
	if err := r.db.WithContext(ctx).
		Where("question_id = ?", questionID).
		First(&answer).Error; err != nil {
		return models.QuestionReferenceAnswer{}, err
	}

	return answer, nil
}

func (r *referenceAnswerRepository) GetByPromptHash(ctx context.Context, directionID uint, language, promptHash string) (models.DirectionAnswer, error) {
	var answer models.DirectionAnswer
	if err := r.db.WithContext(ctx).
		Where("direction_id = ?", directionID).
		Where("language = ?", language).
		Where("prompt_hash = ?", promptHash).
		First(&answer).Error; err != nil {
		return models.DirectionAnswer{}, err
	}

	return answer, nil
}

func (r *referenceAnswerRepository) SaveQuestionAnswer(ctx context.Context, answer *models.QuestionReferenceAnswer) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "question_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "updated_at"}),
	}).Create(answer).Error
}

func (r *referenceAnswerRepository) SaveDirectionAnswer(ctx context.Context, answer *models.DirectionAnswer) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "direction_id"}, {Name: "language"}, {Name: "prompt_hash"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "updated_at"}),
	}).Create(answer).Error
}
