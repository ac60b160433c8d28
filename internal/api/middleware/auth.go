package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adamscao/ctapi/internal/auth"
	"github.com/adamscao/ctapi/internal/db/repository"
	"github.com/adamscao/ctapi/internal/models"
)

const (
	// APIKeyHeader carries the API key
	APIKeyHeader = "X-API-Key"

	// APIKeyQueryParam carries the API key when no header is sent
	APIKeyQueryParam = "api_key"

	// KeyNameContextKey holds the authenticated key name in the gin context
	KeyNameContextKey = "api_key_name"

	staticKeyName = "static"
)

// KeyStore looks up issued API keys by hash
type KeyStore interface {
	Validate(ctx context.Context, keyHash string) (*models.APIKey, error)
	UpdateLastUsed(ctx context.Context, id int64) error
}

// Auditor records security relevant events
type Auditor interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// APIKeyAuth middleware requires a valid API key on every request. A key is
// valid if it matches one of the static hashes or an enabled stored key.
func APIKeyAuth(staticHashes []string, keys KeyStore, auditor Auditor, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(APIKeyHeader)
		if key == "" {
			key = c.Query(APIKeyQueryParam)
		}

		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"message": "API key required",
			})
			return
		}

		if auth.MatchAny(key, staticHashes) {
			c.Set(KeyNameContextKey, staticKeyName)
			c.Next()
			return
		}

		if keys != nil {
			stored, err := keys.Validate(c.Request.Context(), auth.HashToken(key))
			switch {
			case err == nil:
				if err := keys.UpdateLastUsed(c.Request.Context(), stored.ID); err != nil {
					logger.Warn("failed to update api key last use", "key", stored.Name, "error", err)
				}
				c.Set(KeyNameContextKey, stored.Name)
				c.Next()
				return
			case !errors.Is(err, repository.ErrKeyNotFound):
				logger.Error("failed to validate api key", "error", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"message": "Internal server error",
				})
				return
			}
		}

		if auditor != nil {
			err := auditor.Create(c.Request.Context(), &models.AuditLog{
				Action:    models.ActionAuthFailed,
				ClientIP:  c.ClientIP(),
				UserAgent: c.GetHeader("User-Agent"),
				Success:   false,
				ErrorMsg:  "Invalid API key",
			})
			if err != nil {
				logger.Warn("failed to audit auth failure", "error", err)
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"message": "Invalid API key",
		})
	}
}

// KeyName returns the name of the key that authenticated the request
func KeyName(c *gin.Context) string {
	return c.GetString(KeyNameContextKey)
}
