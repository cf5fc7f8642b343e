package services

import (
	"context"
	"errors"
	"time"

	"weekend_planner_go_backend/internal/models"

	"gorm.io/gorm"
)

type DefaultRecommendationCacheDB struct {
	db *gorm.DB
}

func NewRecommendationCacheDB(db *gorm.DB) RecommendationCacheDB {
	return &DefaultRecommendationCacheDB{db: db}
}

func (s *DefaultRecommendationCacheDB) IncrementAccessDB(ctx context.Context, cacheKey string, userID uint, now time.Time) (*models.RecommendationCache, error) {
	var entry models.RecommendationCache
	result := s.db.WithContext(ctx).Raw(`
		UPDATE recommendation_caches
		SET access_count = access_count + 1, updated_at = ?
		WHERE cache_key = ? AND user_id = ? AND expires_at > ?
		RETURNING *`, now, cacheKey, userID, now).Scan(&entry)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &entry, nil
}

func (s *DefaultRecommendationCacheDB) CreateEntryDB(ctx context.Context, entry *models.RecommendationCache, now time.Time) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("cache_key = ? AND expires_at <= ?", entry.CacheKey, now).
			Delete(&models.RecommendationCache{}).Error; err != nil {
			return err
		}
		return tx.Create(entry).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateFingerprint
	}
	return err
}

func (s *DefaultRecommendationCacheDB) ListByUserDB(ctx context.Context, userID uint, limit int) ([]models.RecommendationCache, error) {
	var entries []models.RecommendationCache
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *DefaultRecommendationCacheDB) DeleteExpiredDB(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&models.RecommendationCache{})
	return result.RowsAffected, result.Error
}
