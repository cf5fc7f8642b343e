package services

import (
	"context"
	"time"

	"weekend_planner_go_backend/internal/models"
)

// RecommendationCacheDB is the persistence port behind the Cache Store.
// Implementations must make IncrementAccessDB a single atomic
// read-modify-write and must report unique-key collisions on CreateEntryDB
// as ErrDuplicateFingerprint.
type RecommendationCacheDB interface {
	// IncrementAccessDB bumps access_count on the entry matching cacheKey and
	// userID whose expiry is after now, returning nil when no such entry exists.
	IncrementAccessDB(ctx context.Context, cacheKey string, userID uint, now time.Time) (*models.RecommendationCache, error)
	// CreateEntryDB removes an expired entry with the same key, then inserts.
	CreateEntryDB(ctx context.Context, entry *models.RecommendationCache, now time.Time) error
	ListByUserDB(ctx context.Context, userID uint, limit int) ([]models.RecommendationCache, error)
	DeleteExpiredDB(ctx context.Context, now time.Time) (int64, error)
}

// CacheStore is the request-level cache contract used by the recommendation flow.
type CacheStore interface {
	Lookup(ctx context.Context, req models.RecommendationRequest, userID uint) (*models.RecommendationCache, bool, error)
	Store(ctx context.Context, req models.RecommendationRequest, recs *models.Recommendations, userID uint, meta *models.UsageMetadata) (uint, error)
	History(ctx context.Context, userID uint, limit int) ([]HistoryEntry, error)
}

// WebSearcher runs one live web search and returns model-ready text.
type WebSearcher interface {
	Search(ctx context.Context, query string, resultCount int) (string, error)
}

// ChatModel is one round-trip to a tool-capable generative model.
type ChatModel interface {
	Generate(ctx context.Context, systemInstruction string, tools []ToolDefinition, history []Turn) (*ModelReply, error)
	ModelName() string
}

// AgentRunner produces fresh recommendations for a request.
type AgentRunner interface {
	Run(ctx context.Context, req models.RecommendationRequest, progress chan<- ProgressEvent) (*models.Recommendations, *models.UsageMetadata, error)
}

// UsagePublisher fans out per-user usage updates to live connections.
type UsagePublisher interface {
	Publish(topic string, msg interface{})
}
