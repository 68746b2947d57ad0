package recordpersist

import "time"

// RecordRow is one stored record. Family payloads live in Fields as JSON so
// the server never needs to understand record schemas.
type RecordRow struct {
	ID        uint   `gorm:"primaryKey"`
	ZoneOwner string `gorm:"size:128;not null;uniqueIndex:idx_record_addr,priority:1"`
	ZoneName  string `gorm:"size:128;not null;uniqueIndex:idx_record_addr,priority:2"`
	Name      string `gorm:"size:128;not null;uniqueIndex:idx_record_addr,priority:3"`
	Type      string `gorm:"size:32;not null;index"`
	Fields    []byte `gorm:"type:blob"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName overrides the table name
func (RecordRow) TableName() string {
	return "remote_records"
}

// ZoneRow is a created record zone.
type ZoneRow struct {
	ID        uint   `gorm:"primaryKey"`
	Owner     string `gorm:"size:128;not null;uniqueIndex:idx_zone_addr,priority:1"`
	Name      string `gorm:"size:128;not null;uniqueIndex:idx_zone_addr,priority:2"`
	CreatedAt time.Time
}

// TableName overrides the table name
func (ZoneRow) TableName() string {
	return "zones"
}

// ShareRow is the server-side share state. Participants is a JSON array of
// participant descriptors; the signed invite token references the row by ID.
type ShareRow struct {
	ID            string `gorm:"size:36;primaryKey"`
	ShareName     string `gorm:"size:128;not null;index"`
	RootName      string `gorm:"size:128;not null"`
	ZoneOwner     string `gorm:"size:128;not null;index"`
	ZoneName      string `gorm:"size:128;not null"`
	OwnerIdentity string `gorm:"size:128;not null"`
	Title         string `gorm:"size:256"`
	Permission    string `gorm:"size:32"`
	Participants  []byte `gorm:"type:blob"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName overrides the table name
func (ShareRow) TableName() string {
	return "shares"
}

// DeviceRow maps a hashed device token to its stable identity.
type DeviceRow struct {
	ID          uint   `gorm:"primaryKey"`
	TokenHash   string `gorm:"size:64;not null;uniqueIndex"`
	Identity    string `gorm:"size:128;not null;index"`
	DisplayName string `gorm:"size:128"`
	CreatedAt   time.Time
}

// TableName overrides the table name
func (DeviceRow) TableName() string {
	return "devices"
}
