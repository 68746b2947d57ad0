package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/transfertrack/backend/internal/domain/shared"
)

// kvEntry is the single-table layout of the local cache.
type kvEntry struct {
	Key       string `gorm:"primaryKey;column:key"`
	Value     []byte `gorm:"not null"`
	UpdatedAt time.Time
}

// TableName returns the table name for GORM
func (kvEntry) TableName() string {
	return "kv_entries"
}

// GormStore implements Store on a GORM SQLite database.
type GormStore struct {
	db *gorm.DB
	// SQLite has a single writer; serializing here keeps concurrent
	// background tasks from tripping over each other.
	mu sync.Mutex
}

// NewGormStore opens (and migrates) the cache database at path.
// Use ":memory:" for an ephemeral store.
func NewGormStore(path string, gormLog gormlogger.Interface) (*GormStore, error) {
	cfg := &gorm.Config{SkipDefaultTransaction: true}
	if gormLog != nil {
		cfg.Logger = gormLog
	}
	db, err := gorm.Open(sqlite.Open(path), cfg)
	if err != nil {
		return nil, fmt.Errorf("open local store %q: %w: %w", path, shared.ErrLocalIO, err)
	}
	if err := db.AutoMigrate(&kvEntry{}); err != nil {
		return nil, fmt.Errorf("migrate local store: %w: %w", shared.ErrLocalIO, err)
	}
	return &GormStore{db: db}, nil
}

// NewGormStoreFromDB wraps an existing GORM connection. Used by tests that
// inject a mocked database.
func NewGormStoreFromDB(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Get implements Store.Get
func (s *GormStore) Get(ctx context.Context, key string, out any) error {
	var entry kvEntry
	if err := s.db.WithContext(ctx).First(&entry, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return shared.ErrNotFound
		}
		return fmt.Errorf("read %q: %w: %w", key, shared.ErrLocalIO, err)
	}
	if err := json.Unmarshal(entry.Value, out); err != nil {
		return fmt.Errorf("decode %q: %w: %w", key, shared.ErrLocalIO, err)
	}
	return nil
}

// Put implements Store.Put
func (s *GormStore) Put(ctx context.Context, key string, in any) error {
	value, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %q: %w: %w", key, shared.ErrLocalIO, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := kvEntry{Key: key, Value: value, UpdatedAt: time.Now()}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&entry).Error
	if err != nil {
		return fmt.Errorf("write %q: %w: %w", key, shared.ErrLocalIO, err)
	}
	return nil
}

// Delete implements Store.Delete
func (s *GormStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.WithContext(ctx).Delete(&kvEntry{}, "key = ?", key).Error; err != nil {
		return fmt.Errorf("delete %q: %w: %w", key, shared.ErrLocalIO, err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}
