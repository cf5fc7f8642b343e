package api

import (
	"io"
	"net/http"
	"strings"

	"weekend_planner_go_backend/internal/auth"
	apperrors "weekend_planner_go_backend/internal/errors"
	"weekend_planner_go_backend/internal/models"
	"weekend_planner_go_backend/internal/services"

	"github.com/gin-gonic/gin"
)

const progressBuffer = 16

type recommendOutcome struct {
	result *services.RecommendationResult
	err    error
}

// createRecommendationHandler streams progress as Server-Sent Events and ends
// with a single result or error event. Clients that ask for
// application/json get one plain JSON response instead.
func createRecommendationHandler(recommender Recommender) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := auth.CurrentUser(c)
		if !ok {
			apperrors.HandleError(c, apperrors.New401Error())
			return
		}

		req, err := bindRecommendationRequest(c)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}

		ctx := c.Request.Context()
		if wantsJSON(c) {
			result, err := recommender.Recommend(ctx, req, user.ID, nil)
			if err != nil {
				apperrors.HandleError(c, err)
				return
			}
			c.JSON(http.StatusOK, result)
			return
		}

		progress := make(chan services.ProgressEvent, progressBuffer)
		done := make(chan recommendOutcome, 1)
		go func() {
			result, err := recommender.Recommend(ctx, req, user.ID, progress)
			done <- recommendOutcome{result: result, err: err}
		}()

		c.Header("Cache-Control", "no-cache")
		c.Header("X-Accel-Buffering", "no")
		c.Stream(func(w io.Writer) bool {
			select {
			case ev := <-progress:
				c.SSEvent("progress", ev)
				return true
			case out := <-done:
				drainProgress(c, progress)
				if out.err != nil {
					ce := apperrors.FromError(out.err)
					c.SSEvent("error", ce)
					return false
				}
				c.SSEvent("result", out.result)
				return false
			}
		})
	}
}

func drainProgress(c *gin.Context, progress <-chan services.ProgressEvent) {
	for {
		select {
		case ev := <-progress:
			c.SSEvent("progress", ev)
		default:
			return
		}
	}
}

func bindRecommendationRequest(c *gin.Context) (models.RecommendationRequest, error) {
	var req models.RecommendationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return req, apperrors.NewValidationError(err)
	}
	if err := req.Validate(); err != nil {
		return req, apperrors.NewValidationError(err)
	}
	return req, nil
}

func wantsJSON(c *gin.Context) bool {
	accept := c.GetHeader("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/event-stream")
}
