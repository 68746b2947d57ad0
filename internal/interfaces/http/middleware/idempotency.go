package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/transfertrack/backend/internal/domain/shared"
	"github.com/transfertrack/backend/internal/interfaces/http/dto"
)

// Idempotency rejects replays of mutating requests carrying an
// Idempotency-Key header. Keys are scoped per identity and route so two
// devices may reuse the same key. Requests without the header pass through.
func Idempotency(store shared.IdempotencyStore, ttl time.Duration, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("Idempotency-Key")
		if key == "" {
			c.Next()
			return
		}

		scoped := GetIdentity(c) + ":" + c.Request.Method + ":" + c.FullPath() + ":" + key
		fresh, err := store.MarkProcessed(c.Request.Context(), scoped, ttl)
		if err != nil {
			// Deduplication is best-effort; an unavailable store must not
			// take the write path down with it.
			logger.Warn("idempotency check failed", zap.Error(err))
			c.Next()
			return
		}
		if !fresh {
			c.AbortWithStatusJSON(http.StatusConflict,
				dto.NewErrorResponse(dto.ErrCodeDuplicateRequest, "Request with this idempotency key was already processed"))
			return
		}
		c.Next()
	}
}
