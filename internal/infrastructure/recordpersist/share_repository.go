package recordpersist

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Participant is one entry in a share's JSON participant array.
type Participant struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role"`
	Permission  string `json:"permission"`
}

// ShareRepository persists share state.
type ShareRepository struct {
	db *gorm.DB
}

// NewShareRepository creates a share repository.
func NewShareRepository(db *gorm.DB) *ShareRepository {
	return &ShareRepository{db: db}
}

// Upsert saves a share keyed by its share record name within its zone. A
// re-shared list keeps its share ID and participants.
func (r *ShareRepository) Upsert(ctx context.Context, row *ShareRow) error {
	var existing ShareRow
	err := r.db.WithContext(ctx).
		Where("zone_owner = ? AND zone_name = ? AND share_name = ?", row.ZoneOwner, row.ZoneName, row.ShareName).
		First(&existing).Error
	if err == nil {
		row.ID = existing.ID
		row.Participants = existing.Participants
		return r.db.WithContext(ctx).Save(row).Error
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error
}

// GetByID fetches a share by its primary key.
func (r *ShareRepository) GetByID(ctx context.Context, id string) (*ShareRow, error) {
	var row ShareRow
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// AddParticipant appends an identity to a share's participant array if not
// already present.
func (r *ShareRepository) AddParticipant(ctx context.Context, id string, participant Participant) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row ShareRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&row).Error; err != nil {
			return err
		}

		participants, err := decodeParticipants(row.Participants)
		if err != nil {
			return err
		}
		for _, p := range participants {
			if p.Identity == participant.Identity {
				return nil
			}
		}
		participants = append(participants, participant)

		encoded, err := json.Marshal(participants)
		if err != nil {
			return fmt.Errorf("encode participants: %w", err)
		}
		return tx.Model(&ShareRow{}).Where("id = ?", id).
			Update("participants", encoded).Error
	})
}

// ParticipantsOf decodes a share's participant array.
func (r *ShareRepository) ParticipantsOf(row *ShareRow) ([]Participant, error) {
	return decodeParticipants(row.Participants)
}

// ZonesForIdentity returns the distinct zones of shares the identity
// participates in. The shares table is small; filtering the JSON arrays
// client-side keeps the query portable across sqlite and postgres.
func (r *ShareRepository) ZonesForIdentity(ctx context.Context, identity string) ([]ZoneRow, error) {
	var rows []ShareRow
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var zones []ZoneRow
	for _, row := range rows {
		participants, err := decodeParticipants(row.Participants)
		if err != nil {
			return nil, err
		}
		for _, p := range participants {
			if p.Identity != identity {
				continue
			}
			key := row.ZoneOwner + "/" + row.ZoneName
			if !seen[key] {
				seen[key] = true
				zones = append(zones, ZoneRow{Owner: row.ZoneOwner, Name: row.ZoneName})
			}
			break
		}
	}
	return zones, nil
}

// ParticipatesIn reports whether the identity participates in any share
// rooted in the given zone.
func (r *ShareRepository) ParticipatesIn(ctx context.Context, identity, owner, zone string) (bool, error) {
	var rows []ShareRow
	err := r.db.WithContext(ctx).
		Where("zone_owner = ? AND zone_name = ?", owner, zone).
		Find(&rows).Error
	if err != nil {
		return false, err
	}
	for _, row := range rows {
		participants, err := decodeParticipants(row.Participants)
		if err != nil {
			return false, err
		}
		for _, p := range participants {
			if p.Identity == identity {
				return true, nil
			}
		}
	}
	return false, nil
}

func decodeParticipants(raw []byte) ([]Participant, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var participants []Participant
	if err := json.Unmarshal(raw, &participants); err != nil {
		return nil, fmt.Errorf("decode participants: %w", err)
	}
	return participants, nil
}
