package models

import (
	"time"
)

// RecommendationCache is one persisted recommendation outcome, owned by a
// single user and keyed by the request fingerprint.
type RecommendationCache struct {
	ID              uint         `gorm:"primaryKey" json:"id"`
	CacheKey        string       `gorm:"size:64;not null;uniqueIndex" json:"cacheKey"`
	UserID          uint         `gorm:"not null;index:idx_recommendation_caches_user_created,priority:1" json:"userId"`
	City            string       `gorm:"size:100;not null" json:"city"`
	DateRangeStart  string       `gorm:"size:10;not null" json:"dateRangeStart"`
	DateRangeEnd    string       `gorm:"size:10;not null" json:"dateRangeEnd"`
	Attendees       AttendeeList `gorm:"type:jsonb;not null" json:"attendees"`
	Preferences     string       `gorm:"size:500" json:"preferences,omitempty"`
	Recommendations JSONEnvelope `gorm:"type:jsonb;not null" json:"-"`
	Metadata        JSONEnvelope `gorm:"type:jsonb;not null" json:"-"`
	AccessCount     int          `gorm:"not null;default:1" json:"accessCount"`
	CreatedAt       time.Time    `gorm:"not null;index:idx_recommendation_caches_user_created,priority:2" json:"createdAt"`
	UpdatedAt       time.Time    `gorm:"not null" json:"updatedAt"`
	ExpiresAt       time.Time    `gorm:"not null;index" json:"expiresAt"`
}

// DecodeRecommendations returns the stored agent output.
func (c *RecommendationCache) DecodeRecommendations() (*Recommendations, error) {
	var recs Recommendations
	if err := c.Recommendations.Decode(RecommendationsSchemaVersion, &recs); err != nil {
		return nil, err
	}
	return &recs, nil
}

// DecodeMetadata returns the stored usage snapshot.
func (c *RecommendationCache) DecodeMetadata() (*UsageMetadata, error) {
	var meta UsageMetadata
	if err := c.Metadata.Decode(UsageSchemaVersion, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// IsExpiredAt reports whether the entry is stale at now.
func (c *RecommendationCache) IsExpiredAt(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
