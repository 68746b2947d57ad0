package cache

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/transfertrack/backend/internal/domain/shared"
	"github.com/transfertrack/backend/internal/infrastructure/config"
)

// NewIdempotencyStore creates an idempotency store from configuration. The
// redis backend fails fast when the server is unreachable; there is no silent
// fallback, since split idempotency state across instances defeats the point.
func NewIdempotencyStore(cfg config.CacheConfig, logger *zap.Logger) (shared.IdempotencyStore, error) {
	switch cfg.Backend {
	case "redis":
		store, err := NewRedisIdempotencyStore(cfg)
		if err != nil {
			return nil, fmt.Errorf("create redis idempotency store: %w", err)
		}
		logger.Info("using redis idempotency store", zap.String("addr", cfg.RedisAddr()))
		return store, nil
	case "inmemory", "":
		logger.Info("using in-memory idempotency store")
		return NewInMemoryIdempotencyStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
