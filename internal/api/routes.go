package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"weekend_planner_go_backend/internal/auth"
	apperrors "weekend_planner_go_backend/internal/errors"
	"weekend_planner_go_backend/internal/models"
	"weekend_planner_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type Recommender interface {
	Recommend(ctx context.Context, req models.RecommendationRequest, userID uint, progress chan<- services.ProgressEvent) (*services.RecommendationResult, error)
	Usage(ctx context.Context, userID uint) (*services.UsageSummary, error)
}

type HistoryLister interface {
	History(ctx context.Context, userID uint, limit int) ([]services.HistoryEntry, error)
}

// Pinger reports storage liveness. Nil means there is nothing to ping.
type Pinger func(ctx context.Context) error

func SetupRoutes(r *gin.Engine, authMiddleware gin.HandlerFunc, recommender Recommender, history HistoryLister, ping Pinger) {
	r.GET("/healthz", healthHandler(ping))

	api := r.Group("/api", authMiddleware)
	{
		api.POST("/recommendations", createRecommendationHandler(recommender))
		api.GET("/recommendations/history", getHistoryHandler(history))
		api.GET("/usage", getUsageHandler(recommender))
	}
}

type historyItem struct {
	ID              uint                    `json:"id"`
	City            string                  `json:"city"`
	DateRangeStart  string                  `json:"dateRangeStart"`
	DateRangeEnd    string                  `json:"dateRangeEnd"`
	Attendees       []models.Attendee       `json:"attendees"`
	Preferences     string                  `json:"preferences,omitempty"`
	Recommendations *models.Recommendations `json:"recommendations"`
	Metadata        *models.UsageMetadata   `json:"metadata"`
	AccessCount     int                     `json:"accessCount"`
	CreatedAt       time.Time               `json:"createdAt"`
	ExpiresAt       time.Time               `json:"expiresAt"`
	IsExpired       bool                    `json:"isExpired"`
}

func getHistoryHandler(history HistoryLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := auth.CurrentUser(c)
		if !ok {
			apperrors.HandleError(c, apperrors.New401Error())
			return
		}

		limit := 0
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				apperrors.HandleError(c, apperrors.New400Error("limit must be a positive integer"))
				return
			}
			limit = n
		}

		entries, err := history.History(c.Request.Context(), user.ID, limit)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}

		items := make([]historyItem, 0, len(entries))
		for _, e := range entries {
			recs, err := e.DecodeRecommendations()
			if err != nil {
				zerolog.Ctx(c.Request.Context()).Warn().Err(err).Uint("entry_id", e.ID).Msg("Skipping unreadable history entry")
				continue
			}
			meta, err := e.DecodeMetadata()
			if err != nil {
				zerolog.Ctx(c.Request.Context()).Warn().Err(err).Uint("entry_id", e.ID).Msg("Skipping unreadable history entry")
				continue
			}
			items = append(items, historyItem{
				ID:              e.ID,
				City:            e.City,
				DateRangeStart:  e.DateRangeStart,
				DateRangeEnd:    e.DateRangeEnd,
				Attendees:       e.Attendees,
				Preferences:     e.Preferences,
				Recommendations: recs,
				Metadata:        meta,
				AccessCount:     e.AccessCount,
				CreatedAt:       e.CreatedAt.UTC(),
				ExpiresAt:       e.ExpiresAt.UTC(),
				IsExpired:       e.IsExpired,
			})
		}
		c.JSON(http.StatusOK, gin.H{"entries": items})
	}
}

func getUsageHandler(recommender Recommender) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := auth.CurrentUser(c)
		if !ok {
			apperrors.HandleError(c, apperrors.New401Error())
			return
		}
		summary, err := recommender.Usage(c.Request.Context(), user.ID)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func healthHandler(ping Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ping != nil {
			if err := ping(c.Request.Context()); err != nil {
				zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("Health check failed")
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
