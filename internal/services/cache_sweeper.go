package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// CacheSweeper periodically purges expired recommendation entries.
type CacheSweeper struct {
	cache    *RecommendationCacheService
	interval time.Duration
}

func NewCacheSweeper(cache *RecommendationCacheService, interval time.Duration) *CacheSweeper {
	return &CacheSweeper{cache: cache, interval: interval}
}

// Run sweeps on every tick until ctx is cancelled.
func (s *CacheSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *CacheSweeper) sweep(ctx context.Context) {
	n, err := s.cache.DeleteExpired(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to sweep expired cache entries")
		return
	}
	if n > 0 {
		log.Info().Int64("deleted", n).Msg("Swept expired cache entries")
	}
}
