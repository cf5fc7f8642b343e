package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"weekend_planner_go_backend/internal/models"

	"github.com/rs/zerolog"
)

const (
	DefaultCacheTTL     = 48 * time.Hour
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// HistoryEntry is a stored recommendation annotated with its expiry state.
type HistoryEntry struct {
	models.RecommendationCache
	IsExpired bool `json:"isExpired"`
}

type RecommendationCacheService struct {
	db  RecommendationCacheDB
	ttl time.Duration
	now func() time.Time
}

func NewRecommendationCacheService(db RecommendationCacheDB, ttl time.Duration) *RecommendationCacheService {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RecommendationCacheService{db: db, ttl: ttl, now: time.Now}
}

// WithClock replaces the time source. Used by tests to pin the expiry boundary.
func (s *RecommendationCacheService) WithClock(now func() time.Time) *RecommendationCacheService {
	s.now = now
	return s
}

// Lookup returns the valid entry for the request and records the hit.
// Expired entries are reported as a miss and left untouched.
func (s *RecommendationCacheService) Lookup(ctx context.Context, req models.RecommendationRequest, userID uint) (*models.RecommendationCache, bool, error) {
	key := Fingerprint(req, userID)
	entry, err := s.db.IncrementAccessDB(ctx, key, userID, s.now().UTC())
	if err != nil {
		return nil, false, storageUnavailable("look up cache entry", err)
	}
	if entry == nil {
		return nil, false, nil
	}
	zerolog.Ctx(ctx).Debug().
		Str("cache_key", key).
		Int("access_count", entry.AccessCount).
		Msg("Cache hit")
	return entry, true, nil
}

// Store persists a fresh agent result and returns the new entry id.
func (s *RecommendationCacheService) Store(ctx context.Context, req models.RecommendationRequest, recs *models.Recommendations, userID uint, meta *models.UsageMetadata) (uint, error) {
	if recs == nil || meta == nil {
		return 0, errors.New("recommendations and metadata are required")
	}
	recsDoc, err := models.NewEnvelope(models.RecommendationsSchemaVersion, recs)
	if err != nil {
		return 0, fmt.Errorf("failed to encode recommendations: %w", err)
	}
	metaDoc, err := models.NewEnvelope(models.UsageSchemaVersion, meta)
	if err != nil {
		return 0, fmt.Errorf("failed to encode metadata: %w", err)
	}

	now := s.now().UTC()
	entry := &models.RecommendationCache{
		CacheKey:        Fingerprint(req, userID),
		UserID:          userID,
		City:            req.City,
		DateRangeStart:  req.DateRangeStart,
		DateRangeEnd:    req.DateRangeEnd,
		Attendees:       models.AttendeeList(req.Attendees),
		Preferences:     req.PreferencesText(),
		Recommendations: recsDoc,
		Metadata:        metaDoc,
		AccessCount:     1,
		CreatedAt:       now,
		UpdatedAt:       now,
		ExpiresAt:       now.Add(s.ttl),
	}
	if err := s.db.CreateEntryDB(ctx, entry, now); err != nil {
		if errors.Is(err, ErrDuplicateFingerprint) {
			return 0, err
		}
		return 0, storageUnavailable("store cache entry", err)
	}
	return entry.ID, nil
}

// History lists the user's entries newest first without touching counters.
func (s *RecommendationCacheService) History(ctx context.Context, userID uint, limit int) ([]HistoryEntry, error) {
	limit = clampHistoryLimit(limit)
	entries, err := s.db.ListByUserDB(ctx, userID, limit)
	if err != nil {
		return nil, storageUnavailable("list cache history", err)
	}
	now := s.now().UTC()
	history := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		history = append(history, HistoryEntry{RecommendationCache: e, IsExpired: e.IsExpiredAt(now)})
	}
	return history, nil
}

// DeleteExpired removes every entry whose expiry has passed.
func (s *RecommendationCacheService) DeleteExpired(ctx context.Context) (int64, error) {
	n, err := s.db.DeleteExpiredDB(ctx, s.now().UTC())
	if err != nil {
		return 0, storageUnavailable("delete expired entries", err)
	}
	return n, nil
}

func clampHistoryLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return limit
	}
}
