package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig
	Log        LogConfig
	LocalStore LocalStoreConfig
	Remote     RemoteConfig
	Sync       SyncConfig
	Activity   ActivityConfig
	Server     ServerConfig
	Cache      CacheConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// LocalStoreConfig holds local cache database settings
type LocalStoreConfig struct {
	Path string // SQLite file path, ":memory:" for ephemeral
}

// RemoteConfig holds remote record store client settings
type RemoteConfig struct {
	BaseURL     string
	DeviceToken string
	Timeout     time.Duration
}

// SyncConfig holds synchronization manager settings
type SyncConfig struct {
	// RefreshInterval rate-limits automatic background refreshes triggered
	// by FetchLists. SyncNow bypasses it.
	RefreshInterval time.Duration
}

// ActivityConfig holds activity log settings
type ActivityConfig struct {
	RetentionCap int // events kept per list, newest-first
}

// ServerConfig holds reference record store server settings
type ServerConfig struct {
	Addr            string
	Driver          string // sqlite, postgres
	SQLitePath      string
	PostgresDSN     string
	InviteSecret    string // HMAC key for invite tokens
	InviteTokenTTL  time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
}

// CacheConfig holds idempotency cache settings for the record store
type CacheConfig struct {
	Backend       string // inmemory, redis
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with TRANSFERTRACK_ prefix
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/transfertrack")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("TRANSFERTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		LocalStore: LocalStoreConfig{
			Path: v.GetString("local_store.path"),
		},
		Remote: RemoteConfig{
			BaseURL:     v.GetString("remote.base_url"),
			DeviceToken: v.GetString("remote.device_token"),
			Timeout:     v.GetDuration("remote.timeout"),
		},
		Sync: SyncConfig{
			RefreshInterval: v.GetDuration("sync.refresh_interval"),
		},
		Activity: ActivityConfig{
			RetentionCap: v.GetInt("activity.retention_cap"),
		},
		Server: ServerConfig{
			Addr:            v.GetString("server.addr"),
			Driver:          v.GetString("server.driver"),
			SQLitePath:      v.GetString("server.sqlite_path"),
			PostgresDSN:     v.GetString("server.postgres_dsn"),
			InviteSecret:    v.GetString("server.invite_secret"),
			InviteTokenTTL:  v.GetDuration("server.invite_token_ttl"),
			MaxOpenConns:    v.GetInt("server.max_open_conns"),
			MaxIdleConns:    v.GetInt("server.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("server.conn_max_lifetime"),
		},
		Cache: CacheConfig{
			Backend:       v.GetString("cache.backend"),
			RedisHost:     v.GetString("cache.redis_host"),
			RedisPort:     v.GetInt("cache.redis_port"),
			RedisPassword: v.GetString("cache.redis_password"),
			RedisDB:       v.GetInt("cache.redis_db"),
			TTL:           v.GetDuration("cache.ttl"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "transfertrack"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stderr"
	}
	if cfg.LocalStore.Path == "" {
		cfg.LocalStore.Path = "transfertrack.db"
	}
	if cfg.Remote.BaseURL == "" {
		cfg.Remote.BaseURL = "http://localhost:8080"
	}
	if cfg.Remote.Timeout == 0 {
		cfg.Remote.Timeout = 15 * time.Second
	}
	if cfg.Sync.RefreshInterval == 0 {
		cfg.Sync.RefreshInterval = 30 * time.Second
	}
	if cfg.Activity.RetentionCap == 0 {
		cfg.Activity.RetentionCap = 200
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.Driver == "" {
		cfg.Server.Driver = "sqlite"
	}
	if cfg.Server.SQLitePath == "" {
		cfg.Server.SQLitePath = "recordstore.db"
	}
	if cfg.Server.InviteTokenTTL == 0 {
		cfg.Server.InviteTokenTTL = 168 * time.Hour
	}
	if cfg.Server.MaxOpenConns == 0 {
		cfg.Server.MaxOpenConns = 25
	}
	if cfg.Server.MaxIdleConns == 0 {
		cfg.Server.MaxIdleConns = 5
	}
	if cfg.Server.ConnMaxLifetime == 0 {
		cfg.Server.ConnMaxLifetime = 60
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "inmemory"
	}
	if cfg.Cache.RedisHost == "" {
		cfg.Cache.RedisHost = "localhost"
	}
	if cfg.Cache.RedisPort == 0 {
		cfg.Cache.RedisPort = 6379
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 24 * time.Hour
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Activity.RetentionCap < 0 {
		return fmt.Errorf("activity.retention_cap cannot be negative")
	}
	if c.Sync.RefreshInterval < 0 {
		return fmt.Errorf("sync.refresh_interval cannot be negative")
	}
	switch c.Server.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("server.driver must be sqlite or postgres, got %q", c.Server.Driver)
	}
	switch c.Cache.Backend {
	case "inmemory", "redis":
	default:
		return fmt.Errorf("cache.backend must be inmemory or redis, got %q", c.Cache.Backend)
	}
	if c.Server.Driver == "postgres" && c.Server.PostgresDSN == "" {
		return fmt.Errorf("server.postgres_dsn is required when server.driver is postgres")
	}
	if c.App.Env == "production" {
		if c.Server.InviteSecret == "" {
			return fmt.Errorf("server.invite_secret is required in production")
		}
		if len(c.Server.InviteSecret) < 32 {
			return fmt.Errorf("server.invite_secret must be at least 32 characters in production")
		}
	}
	return nil
}

// RedisAddr returns the host:port address for the redis cache backend
func (c *CacheConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}
