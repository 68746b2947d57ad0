package recordpersist

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecordRepository persists records and zones.
type RecordRepository struct {
	db *gorm.DB
}

// NewRecordRepository creates a record repository.
func NewRecordRepository(db *gorm.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// EnsureZone idempotently creates a zone row.
func (r *RecordRepository) EnsureZone(ctx context.Context, owner, name string) error {
	zone := ZoneRow{Owner: owner, Name: name}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner"}, {Name: "name"}},
			DoNothing: true,
		}).
		Create(&zone).Error
}

// ZoneExists reports whether a zone has been created.
func (r *RecordRepository) ZoneExists(ctx context.Context, owner, name string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&ZoneRow{}).
		Where("owner = ? AND name = ?", owner, name).
		Count(&count).Error
	return count > 0, err
}

// Upsert saves a record by its (zone owner, zone name, name) address,
// replacing any previous version.
func (r *RecordRepository) Upsert(ctx context.Context, row *RecordRow) error {
	return r.upsert(r.db.WithContext(ctx), row)
}

// UpsertBatch saves several records in one transaction; either all are
// written or none.
func (r *RecordRepository) UpsertBatch(ctx context.Context, rows []*RecordRow) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			if err := r.upsert(tx, row); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *RecordRepository) upsert(tx *gorm.DB, row *RecordRow) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "zone_owner"}, {Name: "zone_name"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"type", "fields", "updated_at"}),
	}).Create(row).Error
}

// Get fetches one record. Returns gorm.ErrRecordNotFound when absent.
func (r *RecordRepository) Get(ctx context.Context, owner, zone, name string) (*RecordRow, error) {
	var row RecordRow
	err := r.db.WithContext(ctx).
		Where("zone_owner = ? AND zone_name = ? AND name = ?", owner, zone, name).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Query returns one page of a zone's records ordered by name, optionally
// filtered by type, plus the total match count for cursor computation.
func (r *RecordRepository) Query(ctx context.Context, owner, zone, recordType string, offset, limit int) ([]RecordRow, int64, error) {
	query := r.db.WithContext(ctx).Model(&RecordRow{}).
		Where("zone_owner = ? AND zone_name = ?", owner, zone)
	if recordType != "" {
		query = query.Where("type = ?", recordType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []RecordRow
	err := query.Order("name ASC").Offset(offset).Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// Delete removes a record. Deleting an absent record is a no-op.
func (r *RecordRepository) Delete(ctx context.Context, owner, zone, name string) error {
	return r.db.WithContext(ctx).
		Where("zone_owner = ? AND zone_name = ? AND name = ?", owner, zone, name).
		Delete(&RecordRow{}).Error
}
