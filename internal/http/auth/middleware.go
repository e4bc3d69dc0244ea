package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"shopauth/internal/lib/jwt"
	"shopauth/internal/lib/sl"
)

const userIDKey = "userID"

type TokenValidator interface {
	ValidateAccessToken(token string) (*jwt.Claims, error)
}

// Bearer requires a valid access token in the Authorization header and
// stores the caller id under userIDKey.
func Bearer(logger *slog.Logger, validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		const op = "http.auth.Bearer"
		log := logger.With(slog.String("op", op), slog.String("path", c.FullPath()))

		scheme, token, found := strings.Cut(strings.TrimSpace(c.GetHeader("Authorization")), " ")
		token = strings.TrimSpace(token)
		if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
			log.Warn("missing bearer token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, Failure("Unauthorized"))
			return
		}

		claims, err := validator.ValidateAccessToken(token)
		if err != nil {
			log.Warn("invalid access token", sl.Err(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, Failure("Unauthorized"))
			return
		}

		userID, err := claims.UserID()
		if err != nil {
			log.Warn("invalid subject claim", sl.Err(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, Failure("Unauthorized"))
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}
