package remote

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/transfertrack/backend/internal/domain/transfer"
)

// RecordType names a record family. Each family has a fixed field schema;
// unknown or missing fields are tolerated, open field bags are not.
type RecordType string

const (
	RecordTypeList    RecordType = "TransferList"
	RecordTypeProduct RecordType = "Product"
	RecordTypeEvent   RecordType = "ActivityEvent"
	RecordTypeShare   RecordType = "Share"
)

// RecordID addresses a record inside a partition.
type RecordID struct {
	Name string          `json:"name"`
	Zone transfer.ZoneID `json:"zone"`
}

// ListFields is the remote schema of a TransferList record.
type ListFields struct {
	Title             string    `json:"title"`
	EntityNames       []string  `json:"entity_names"`
	CreatedBy         string    `json:"created_by"`
	CreatedByIdentity string    `json:"created_by_identity,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	// ShareRef points at the Share record once the list is shared.
	ShareRef string `json:"share_ref,omitempty"`
}

// ProductFields is the remote schema of a Product record.
type ProductFields struct {
	Name       string          `json:"name"`
	UnitCount  decimal.Decimal `json:"unit_count"`
	CaseCount  decimal.Decimal `json:"case_count"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	Notes      string          `json:"notes,omitempty"`
	FromEntity string          `json:"from_entity"`
	ToEntity   string          `json:"to_entity"`
	CreatedBy  string          `json:"created_by"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedBy  string          `json:"updated_by,omitempty"`
	UpdatedAt  *time.Time      `json:"updated_at,omitempty"`
	// ListRef is the queryable parent list id; ParentRef is the structural
	// parent link the shared partition uses for write permission checks.
	ListRef   string `json:"list_ref"`
	ParentRef string `json:"parent_ref"`
}

// EventFields is the remote schema of an ActivityEvent record.
type EventFields struct {
	ListRef       string    `json:"list_ref"`
	ListTitle     string    `json:"list_title,omitempty"`
	Type          string    `json:"type"`
	Summary       string    `json:"summary"`
	Actor         string    `json:"actor"`
	ActorIdentity string    `json:"actor_identity,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ShareParticipantInfo describes one identity on a share.
type ShareParticipantInfo struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role"`
	Permission  string `json:"permission"`
}

// ShareFields is the remote schema of a Share record.
type ShareFields struct {
	Title        string                 `json:"title"`
	Permission   string                 `json:"permission"`
	RootRef      string                 `json:"root_ref"`
	Owner        ShareParticipantInfo   `json:"owner"`
	Participants []ShareParticipantInfo `json:"participants,omitempty"`
	// Token is minted by the remote side when the share is first saved.
	Token string `json:"token,omitempty"`
}

// PermissionReadWrite is the open read-write permission new shares get.
const PermissionReadWrite = "read-write"

// Record is the typed envelope exchanged with the remote store. Exactly one
// of the family payloads is set, matching Type.
type Record struct {
	Name    string          `json:"name"`
	Type    RecordType      `json:"type"`
	Zone    transfer.ZoneID `json:"zone"`
	List    *ListFields     `json:"list,omitempty"`
	Product *ProductFields  `json:"product,omitempty"`
	Event   *EventFields    `json:"event,omitempty"`
	Share   *ShareFields    `json:"share,omitempty"`
}

// ID returns the record's address within its partition.
func (r Record) ID() RecordID {
	return RecordID{Name: r.Name, Zone: r.Zone}
}

// NewListRecord encodes a list for its effective zone.
func NewListRecord(l transfer.List) Record {
	routing := l.EffectiveRouting()
	return Record{
		Name: l.ID,
		Type: RecordTypeList,
		Zone: routing.Zone,
		List: &ListFields{
			Title:             l.Title,
			EntityNames:       l.EntityNames,
			CreatedBy:         l.CreatedBy,
			CreatedByIdentity: l.CreatedByIdentity,
			CreatedAt:         l.CreatedAt,
		},
	}
}

// ToList decodes a fetched list record. Routing comes from the record's
// actual location, never from caller assumptions.
func (r Record) ToList(partition transfer.Partition) transfer.List {
	fields := r.List
	if fields == nil {
		fields = &ListFields{}
	}
	title := fields.Title
	if title == "" {
		title = "Untitled"
	}
	entityNames := fields.EntityNames
	if entityNames == nil {
		entityNames = []string{}
	}
	return transfer.List{
		ID:                r.Name,
		Title:             title,
		EntityNames:       entityNames,
		CreatedBy:         fields.CreatedBy,
		CreatedByIdentity: fields.CreatedByIdentity,
		CreatedAt:         fields.CreatedAt,
		Routing:           transfer.Routing{Partition: partition, Zone: r.Zone},
	}
}

// NewProductRecord encodes a product for its parent list's zone.
func NewProductRecord(p transfer.Product) Record {
	routing := transfer.ResolveRouting(p.Routing)
	return Record{
		Name: p.ID,
		Type: RecordTypeProduct,
		Zone: routing.Zone,
		Product: &ProductFields{
			Name:       p.Name,
			UnitCount:  p.UnitCount,
			CaseCount:  p.CaseCount,
			UnitCost:   p.UnitCost,
			Notes:      p.Notes,
			FromEntity: p.FromEntity,
			ToEntity:   p.ToEntity,
			CreatedBy:  p.CreatedBy,
			CreatedAt:  p.CreatedAt,
			UpdatedBy:  p.UpdatedBy,
			UpdatedAt:  p.UpdatedAt,
			ListRef:    p.ListID,
			ParentRef:  p.ListID,
		},
	}
}

// ToProduct decodes a fetched product record.
func (r Record) ToProduct(partition transfer.Partition) transfer.Product {
	fields := r.Product
	if fields == nil {
		fields = &ProductFields{}
	}
	return transfer.Product{
		ID:         r.Name,
		ListID:     fields.ListRef,
		Name:       fields.Name,
		UnitCount:  fields.UnitCount,
		CaseCount:  fields.CaseCount,
		UnitCost:   fields.UnitCost,
		Notes:      fields.Notes,
		FromEntity: fields.FromEntity,
		ToEntity:   fields.ToEntity,
		CreatedBy:  fields.CreatedBy,
		CreatedAt:  fields.CreatedAt,
		UpdatedBy:  fields.UpdatedBy,
		UpdatedAt:  fields.UpdatedAt,
		Routing:    transfer.Routing{Partition: partition, Zone: r.Zone},
	}
}

// NewEventRecord encodes an activity event into its parent list's zone.
// Events always land in the same zone as the list so collaborators see one
// event stream.
func NewEventRecord(e transfer.ActivityEvent, parentRouting transfer.Routing) Record {
	routing := transfer.ResolveRouting(parentRouting)
	return Record{
		Name: e.ID,
		Type: RecordTypeEvent,
		Zone: routing.Zone,
		Event: &EventFields{
			ListRef:       e.ListID,
			ListTitle:     e.ListTitle,
			Type:          e.Type,
			Summary:       e.Summary,
			Actor:         e.Actor,
			ActorIdentity: e.ActorIdentity,
			CreatedAt:     e.CreatedAt,
		},
	}
}

// ToEvent decodes a fetched activity event record.
func (r Record) ToEvent() transfer.ActivityEvent {
	fields := r.Event
	if fields == nil {
		fields = &EventFields{}
	}
	return transfer.ActivityEvent{
		ID:            r.Name,
		ListID:        fields.ListRef,
		ListTitle:     fields.ListTitle,
		Type:          fields.Type,
		Summary:       fields.Summary,
		Actor:         fields.Actor,
		ActorIdentity: fields.ActorIdentity,
		CreatedAt:     fields.CreatedAt,
	}
}

// NewShareRecord builds the share object saved alongside a root list record.
func NewShareRecord(root Record, title, ownerIdentity, ownerName string) Record {
	return Record{
		Name: "share-" + root.Name,
		Type: RecordTypeShare,
		Zone: root.Zone,
		Share: &ShareFields{
			Title:      title,
			Permission: PermissionReadWrite,
			RootRef:    root.Name,
			Owner: ShareParticipantInfo{
				Identity:    ownerIdentity,
				DisplayName: ownerName,
				Role:        string(transfer.RoleOwner),
				Permission:  PermissionReadWrite,
			},
		},
	}
}
