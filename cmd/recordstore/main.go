// Command recordstore runs the reference record store server that the sync
// manager's HTTP gateway talks to. Devices authenticate with pre-registered
// bearer tokens; use -register-device to provision one.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/transfertrack/backend/internal/infrastructure/auth"
	"github.com/transfertrack/backend/internal/infrastructure/cache"
	"github.com/transfertrack/backend/internal/infrastructure/config"
	"github.com/transfertrack/backend/internal/infrastructure/logger"
	"github.com/transfertrack/backend/internal/infrastructure/recordpersist"
	"github.com/transfertrack/backend/internal/interfaces/http/handler"
	"github.com/transfertrack/backend/internal/interfaces/http/router"
)

func main() {
	var (
		registerToken    = flag.String("register-device", "", "device token to register, then exit")
		registerIdentity = flag.String("identity", "", "identity for -register-device")
		registerName     = flag.String("display-name", "", "display name for -register-device")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := recordpersist.NewDatabase(cfg.Server, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	devices := recordpersist.NewDeviceRepository(db.DB)

	if *registerToken != "" {
		if *registerIdentity == "" {
			log.Fatal("-register-device requires -identity")
		}
		if err := devices.Register(context.Background(), *registerToken, *registerIdentity, *registerName); err != nil {
			log.Fatal("Failed to register device", zap.Error(err))
		}
		log.Info("Device registered", zap.String("identity", *registerIdentity))
		return
	}

	records := recordpersist.NewRecordRepository(db.DB)
	shares := recordpersist.NewShareRepository(db.DB)
	invites := auth.NewInviteTokenService(cfg.Server)

	idempotency, err := cache.NewIdempotencyStore(cfg.Cache, log)
	if err != nil {
		log.Fatal("Failed to initialize idempotency store", zap.Error(err))
	}
	defer func() {
		if err := idempotency.Close(); err != nil {
			log.Error("Error closing idempotency store", zap.Error(err))
		}
	}()

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := router.New(router.Config{
		Handler:        handler.New(records, shares, invites, log),
		Devices:        devices,
		Idempotency:    idempotency,
		IdempotencyTTL: cfg.Cache.TTL,
		Logger:         log,
	})
	engine.GET("/health", healthHandler(db))

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("Record store starting",
			zap.String("addr", srv.Addr),
			zap.String("driver", cfg.Server.Driver),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}
	log.Info("Server exited gracefully")
}

func healthHandler(db *recordpersist.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
