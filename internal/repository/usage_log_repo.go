package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/medvox/medvox-api/internal/models"
)

// UsageLogRepository records AI service usage.
type UsageLogRepository interface {
	Record(ctx context.Context, entry *models.AIUsageLog) error
}

type usageLogRepository struct {
	db *gorm.DB
}

// NewUsageLogRepository instantiates the repository.
func NewUsageLogRepository(db *gorm.DB) UsageLogRepository {
	return &usageLogRepository{db: db}
}

func (r *usageLogRepository) Record(ctx context.Context, entry *models.AIUsageLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}
