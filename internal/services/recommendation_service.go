package services

import (
	"context"
	"errors"
	"fmt"

	"weekend_planner_go_backend/internal/models"

	"github.com/rs/zerolog"
)

// RecommendationResult is what the request handler returns to the client.
type RecommendationResult struct {
	ID              uint                    `json:"id,omitempty"`
	Recommendations *models.Recommendations `json:"recommendations"`
	Metadata        *models.UsageMetadata   `json:"metadata"`
	Cached          bool                    `json:"cached"`
	AccessCount     int                     `json:"accessCount"`
}

// UsageSummary aggregates the stored usage of one user's history.
type UsageSummary struct {
	Entries      int                `json:"entries"`
	InputTokens  int64              `json:"inputTokens"`
	OutputTokens int64              `json:"outputTokens"`
	SearchCalls  int64              `json:"searchCalls"`
	TotalCost    float64            `json:"totalCost"`
	Currency     string             `json:"currency"`
	Providers    map[string]float64 `json:"providers,omitempty"`
	CacheHits    int                `json:"cacheHits"`
}

// RecommendationService owns the cache-then-agent flow.
type RecommendationService struct {
	cache     CacheStore
	agent     AgentRunner
	pricing   Pricing
	publisher UsagePublisher
}

func NewRecommendationService(cache CacheStore, agent AgentRunner, pricing Pricing, publisher UsagePublisher) *RecommendationService {
	return &RecommendationService{cache: cache, agent: agent, pricing: pricing, publisher: publisher}
}

func UsageTopic(userID uint) string {
	return fmt.Sprintf("usage_update_%d", userID)
}

// Recommend answers from the cache when a valid entry exists, otherwise runs
// the agent, prices the run and stores the result.
func (s *RecommendationService) Recommend(ctx context.Context, req models.RecommendationRequest, userID uint, progress chan<- ProgressEvent) (*RecommendationResult, error) {
	logger := zerolog.Ctx(ctx)

	entry, hit, err := s.cache.Lookup(ctx, req, userID)
	if err != nil {
		logger.Warn().Err(err).Msg("Cache lookup failed, continuing without cache")
	} else if hit {
		result, err := resultFromEntry(entry)
		if err == nil {
			emitProgress(progress, ProgressEvent{Stage: StageCacheHit, Message: "Found saved recommendations"})
			return result, nil
		}
		logger.Error().Err(err).Uint("entry_id", entry.ID).Msg("Failed to decode cached entry, regenerating")
	}

	recs, usage, err := s.agent.Run(ctx, req, progress)
	if err != nil {
		return nil, fmt.Errorf("failed to generate recommendations: %w", err)
	}
	usage.PricingVersion = s.pricing.Version
	usage.Cost = EstimateCost(s.pricing, usage.InputTokens, usage.OutputTokens, usage.SearchCalls)

	fresh := &RecommendationResult{Recommendations: recs, Metadata: usage, AccessCount: 1}
	s.publishUsage(userID, usage)

	id, err := s.cache.Store(ctx, req, recs, userID, usage)
	switch {
	case err == nil:
		fresh.ID = id
		return fresh, nil
	case errors.Is(err, ErrDuplicateFingerprint):
		// Lost a concurrent store race; the winner's row is the answer.
		entry, hit, lookupErr := s.cache.Lookup(ctx, req, userID)
		if lookupErr == nil && hit {
			if result, decodeErr := resultFromEntry(entry); decodeErr == nil {
				return result, nil
			}
		}
		logger.Warn().Msg("Duplicate fingerprint but no readable entry, returning uncached result")
		return fresh, nil
	default:
		logger.Error().Err(err).Msg("Failed to store recommendations, returning uncached result")
		return fresh, nil
	}
}

// Usage sums cost and token counters over the user's most recent entries.
func (s *RecommendationService) Usage(ctx context.Context, userID uint) (*UsageSummary, error) {
	history, err := s.cache.History(ctx, userID, MaxHistoryLimit)
	if err != nil {
		return nil, err
	}
	summary := &UsageSummary{Currency: s.pricing.Currency, Providers: map[string]float64{}}
	if summary.Currency == "" {
		summary.Currency = "USD"
	}
	for _, h := range history {
		meta, err := h.DecodeMetadata()
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Uint("entry_id", h.ID).Msg("Skipping entry with unreadable metadata")
			continue
		}
		summary.Entries++
		summary.InputTokens += meta.InputTokens
		summary.OutputTokens += meta.OutputTokens
		summary.SearchCalls += meta.SearchCalls
		summary.TotalCost = round6(summary.TotalCost + meta.Cost.Total)
		for name, v := range meta.Cost.Providers {
			summary.Providers[name] = round6(summary.Providers[name] + v)
		}
		summary.CacheHits += max(h.AccessCount-1, 0)
	}
	return summary, nil
}

func (s *RecommendationService) publishUsage(userID uint, usage *models.UsageMetadata) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(UsageTopic(userID), usage)
}

func resultFromEntry(entry *models.RecommendationCache) (*RecommendationResult, error) {
	recs, err := entry.DecodeRecommendations()
	if err != nil {
		return nil, err
	}
	meta, err := entry.DecodeMetadata()
	if err != nil {
		return nil, err
	}
	return &RecommendationResult{
		ID:              entry.ID,
		Recommendations: recs,
		Metadata:        meta,
		Cached:          true,
		AccessCount:     entry.AccessCount,
	}, nil
}
