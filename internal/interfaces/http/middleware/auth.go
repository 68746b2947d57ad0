// Package middleware holds the record store's gin middleware: device token
// authentication and idempotency-key deduplication.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/transfertrack/backend/internal/infrastructure/recordpersist"
	"github.com/transfertrack/backend/internal/interfaces/http/dto"
)

// Context keys set by DeviceAuth.
const (
	ContextIdentityKey    = "device_identity"
	ContextDisplayNameKey = "device_display_name"
)

// DeviceAuth authenticates requests by bearer device token. The token is
// hashed and looked up; on success the device's identity and display name
// are attached to the request context.
func DeviceAuth(devices *recordpersist.DeviceRepository, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				dto.NewErrorResponse(dto.ErrCodeUnauthorized, "Missing bearer token"))
			return
		}

		device, err := devices.FindByToken(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				logger.Error("device lookup failed", zap.Error(err))
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				dto.NewErrorResponse(dto.ErrCodeUnauthorized, "Unknown device token"))
			return
		}

		c.Set(ContextIdentityKey, device.Identity)
		c.Set(ContextDisplayNameKey, device.DisplayName)
		c.Next()
	}
}

// GetIdentity returns the authenticated device identity.
func GetIdentity(c *gin.Context) string {
	return c.GetString(ContextIdentityKey)
}

// GetDisplayName returns the authenticated device's display name.
func GetDisplayName(c *gin.Context) string {
	return c.GetString(ContextDisplayNameKey)
}
