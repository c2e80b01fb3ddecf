package v1

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shenikar/incident_reporting_system/internal/config"
	"github.com/shenikar/incident_reporting_system/internal/models"
	"github.com/sirupsen/logrus"
)

const principalKey = "principal"

// TokenParser проверяет токен доступа и возвращает его владельца
type TokenParser interface {
	Parse(raw string) (models.Principal, error)
}

// APIKeyAuthMiddleware - middleware для служебного доступа по API-ключу
func APIKeyAuthMiddleware(cfg *config.Config, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			log.Warn("API key missing from request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API key required"})
			return
		}

		isValid := false
		for _, key := range cfg.APIKeys {
			if key != "" && subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1 {
				isValid = true
				break
			}
		}

		if !isValid {
			log.WithField("path", c.FullPath()).Warn("Invalid API key provided")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			return
		}

		c.Next()
	}
}

// JWTAuthMiddleware проверяет Bearer-токен и кладет Principal в контекст запроса
func JWTAuthMiddleware(tokens TokenParser, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization token required"})
			return
		}

		principal, err := tokens.Parse(strings.TrimSpace(raw))
		if err != nil {
			log.WithError(err).Warn("Rejected access token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// principalFrom достает аутентифицированного пользователя. Маршрут без
// JWTAuthMiddleware получит пустой Principal, сервис такой отклонит.
func principalFrom(c *gin.Context) models.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(models.Principal); ok {
			return p
		}
	}
	return models.Principal{}
}
