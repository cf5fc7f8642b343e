package auth

import (
	"net/http"
	"strings"

	apperrors "weekend_planner_go_backend/internal/errors"
	"weekend_planner_go_backend/internal/models"
	"weekend_planner_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const userContextKey = "user"

func SetupRoutes(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	auth := r.Group("/auth")
	{
		auth.GET("/user", authMiddleware, getUser)
	}
}

func AuthMiddleware(verifier Verifier, userService *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		log := zerolog.Ctx(ctx)

		token, err := extractToken(c)
		if err != nil || (token == "" && verifier.RequiresToken()) {
			log.Debug().Msg("Missing or malformed credentials")
			apperrors.HandleError(c, apperrors.New401Error())
			return
		}

		claims, err := verifier.Verify(ctx, token)
		if err != nil {
			log.Debug().Err(err).Msg("Token verification failed")
			apperrors.HandleError(c, apperrors.New401Error())
			return
		}

		user, err := userService.CreateOrUpdateUser(ctx, claims.Subject, claims.Email, claims.Name, claims.Nickname)
		if err != nil {
			apperrors.HandleError(c, apperrors.New500Error(err))
			return
		}

		logger := log.With().Uint("user_id", user.ID).Logger()
		c.Request = c.Request.WithContext(logger.WithContext(ctx))
		c.Set(userContextKey, user)
		c.Next()
	}
}

// extractToken reads the bearer token, or the token query parameter for
// websocket upgrades where browsers cannot set headers.
func extractToken(c *gin.Context) (string, error) {
	if websocket.IsWebSocketUpgrade(c.Request) {
		return c.Query("token"), nil
	}
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", nil
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", apperrors.New401Error()
	}
	return parts[1], nil
}

// CurrentUser returns the user stored by AuthMiddleware.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(userContextKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok
}

func getUser(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		apperrors.HandleError(c, apperrors.New401Error())
		return
	}
	c.JSON(http.StatusOK, user)
}
