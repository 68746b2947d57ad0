package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	assert.Equal(t, "transfertrack", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "transfertrack.db", cfg.LocalStore.Path)
	assert.Equal(t, 30*time.Second, cfg.Sync.RefreshInterval)
	assert.Equal(t, 200, cfg.Activity.RetentionCap)
	assert.Equal(t, "sqlite", cfg.Server.Driver)
	assert.Equal(t, "inmemory", cfg.Cache.Backend)
	assert.Equal(t, 168*time.Hour, cfg.Server.InviteTokenTTL)
}

func TestValidate(t *testing.T) {
	valid := &Config{}
	applyDefaults(valid)
	require.NoError(t, valid.validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative retention cap", func(c *Config) { c.Activity.RetentionCap = -1 }},
		{"negative refresh interval", func(c *Config) { c.Sync.RefreshInterval = -time.Second }},
		{"unknown server driver", func(c *Config) { c.Server.Driver = "oracle" }},
		{"unknown cache backend", func(c *Config) { c.Cache.Backend = "memcached" }},
		{"postgres without dsn", func(c *Config) { c.Server.Driver = "postgres" }},
		{"production without invite secret", func(c *Config) { c.App.Env = "production" }},
		{"production short invite secret", func(c *Config) {
			c.App.Env = "production"
			c.Server.InviteSecret = "short"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			applyDefaults(cfg)
			tt.mutate(cfg)
			assert.Error(t, cfg.validate())
		})
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("TRANSFERTRACK_SYNC_REFRESH_INTERVAL", "5s")
	t.Setenv("TRANSFERTRACK_ACTIVITY_RETENTION_CAP", "50")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Sync.RefreshInterval)
	assert.Equal(t, 50, cfg.Activity.RetentionCap)
}

func TestRedisAddr(t *testing.T) {
	cfg := CacheConfig{RedisHost: "cache.internal", RedisPort: 6380}
	assert.Equal(t, "cache.internal:6380", cfg.RedisAddr())
}
