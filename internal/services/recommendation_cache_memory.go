package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"weekend_planner_go_backend/internal/models"
)

// MemoryRecommendationCacheDB keeps cache entries in process. It backs
// STORAGE_BACKEND=memory and the service tests.
type MemoryRecommendationCacheDB struct {
	mu      sync.Mutex
	nextID  uint
	entries map[string]*models.RecommendationCache
}

func NewMemoryRecommendationCacheDB() *MemoryRecommendationCacheDB {
	return &MemoryRecommendationCacheDB{entries: make(map[string]*models.RecommendationCache)}
}

func (m *MemoryRecommendationCacheDB) IncrementAccessDB(ctx context.Context, cacheKey string, userID uint, now time.Time) (*models.RecommendationCache, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[cacheKey]
	if !ok || entry.UserID != userID || !now.Before(entry.ExpiresAt) {
		return nil, nil
	}
	entry.AccessCount++
	entry.UpdatedAt = now
	out := *entry
	return &out, nil
}

func (m *MemoryRecommendationCacheDB) CreateEntryDB(ctx context.Context, entry *models.RecommendationCache, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.entries[entry.CacheKey]; ok && now.Before(existing.ExpiresAt) {
		return ErrDuplicateFingerprint
	}
	m.nextID++
	entry.ID = m.nextID
	stored := *entry
	m.entries[entry.CacheKey] = &stored
	return nil
}

func (m *MemoryRecommendationCacheDB) ListByUserDB(ctx context.Context, userID uint, limit int) ([]models.RecommendationCache, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	var entries []models.RecommendationCache
	for _, e := range m.entries {
		if e.UserID == userID {
			entries = append(entries, *e)
		}
	}
	m.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].ID > entries[j].ID
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (m *MemoryRecommendationCacheDB) DeleteExpiredDB(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for key, e := range m.entries {
		if !now.Before(e.ExpiresAt) {
			delete(m.entries, key)
			n++
		}
	}
	return n, nil
}
