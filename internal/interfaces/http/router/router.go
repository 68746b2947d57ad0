// Package router wires the record store's HTTP routes.
package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/transfertrack/backend/internal/domain/shared"
	"github.com/transfertrack/backend/internal/infrastructure/logger"
	"github.com/transfertrack/backend/internal/infrastructure/recordpersist"
	"github.com/transfertrack/backend/internal/interfaces/http/handler"
	"github.com/transfertrack/backend/internal/interfaces/http/middleware"
)

// Config bundles router dependencies.
type Config struct {
	Handler        *handler.Handler
	Devices        *recordpersist.DeviceRepository
	Idempotency    shared.IdempotencyStore
	IdempotencyTTL time.Duration
	Logger         *zap.Logger
}

// New builds the gin engine. Every /v1 route requires device authentication;
// mutating record routes additionally honor idempotency keys.
func New(cfg Config) *gin.Engine {
	middleware.SetupValidator()

	engine := gin.New()
	engine.Use(logger.GinMiddleware(cfg.Logger), logger.Recovery(cfg.Logger))

	v1 := engine.Group("/v1")
	v1.Use(middleware.DeviceAuth(cfg.Devices, cfg.Logger))

	v1.GET("/identity", cfg.Handler.Identity)

	dedupe := middleware.Idempotency(cfg.Idempotency, cfg.IdempotencyTTL, cfg.Logger)

	partition := v1.Group("/:partition")
	{
		partition.POST("/zones", cfg.Handler.EnsureZone)
		partition.POST("/records", dedupe, cfg.Handler.SaveRecord)
		partition.POST("/records/batch", dedupe, cfg.Handler.SaveBatch)

		zone := partition.Group("/zones/:owner/:zone")
		{
			zone.GET("/records", cfg.Handler.QueryRecords)
			zone.GET("/records/:name", cfg.Handler.FetchRecord)
			zone.DELETE("/records/:name", dedupe, cfg.Handler.DeleteRecord)
		}
	}

	invites := v1.Group("/invites")
	{
		invites.GET("/:token", cfg.Handler.ResolveInvite)
		invites.POST("/:token/accept", dedupe, cfg.Handler.AcceptInvite)
	}

	return engine
}
