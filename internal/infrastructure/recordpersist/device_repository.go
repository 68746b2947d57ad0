package recordpersist

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// HashToken derives the stored hash of a raw device token. Raw tokens never
// touch the database.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// DeviceRepository persists device registrations.
type DeviceRepository struct {
	db *gorm.DB
}

// NewDeviceRepository creates a device repository.
func NewDeviceRepository(db *gorm.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// Register stores a device token hash with its identity. Re-registering the
// same token is a no-op.
func (r *DeviceRepository) Register(ctx context.Context, token, identity, displayName string) error {
	row := DeviceRow{
		TokenHash:   HashToken(token),
		Identity:    identity,
		DisplayName: displayName,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token_hash"}},
			DoNothing: true,
		}).
		Create(&row).Error
}

// FindByToken resolves a raw device token to its device row. Returns
// gorm.ErrRecordNotFound for unknown tokens.
func (r *DeviceRepository) FindByToken(ctx context.Context, token string) (*DeviceRow, error) {
	var row DeviceRow
	err := r.db.WithContext(ctx).
		Where("token_hash = ?", HashToken(token)).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}
