package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/medvox/medvox-api/internal/models"
)

// SubscriptionRepository defines entitlement lookups.
type SubscriptionRepository interface {
	HasActive(ctx context.Context, userID uint, at time.Time) (bool, error)
}

type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository instantiates the repository.
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) HasActive(ctx context.Context, userID uint, at time.Time) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("user_id = ?", userID).
		Where("starts_at <= ?", at).
		Where("ends_at > ?", at).
		Count(&count).Error; err != nil {
		return false, err
	}

	return count > 0, nil
}
