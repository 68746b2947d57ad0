package transfer

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/transfertrack/backend/internal/domain/shared"
)

// List is a collection of inventory movements between named entities. It is
// the aggregate root of the sync domain: products and activity events are
// parented to it for remote permission purposes.
type List struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	EntityNames       []string  `json:"entity_names"`
	CreatedBy         string    `json:"created_by"`
	CreatedByIdentity string    `json:"created_by_identity,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	Routing           Routing   `json:"routing,omitzero"`
}

// NewList creates a locally originated list routed to the own-partition
// default zone.
func NewList(title, createdBy, createdByIdentity string, entityNames []string) (List, error) {
	if strings.TrimSpace(title) == "" {
		return List{}, shared.NewDomainError("INVALID_TITLE", "List title cannot be empty")
	}
	if entityNames == nil {
		entityNames = []string{}
	}
	return List{
		ID:                uuid.NewString(),
		Title:             title,
		EntityNames:       entityNames,
		CreatedBy:         createdBy,
		CreatedByIdentity: createdByIdentity,
		CreatedAt:         time.Now(),
		Routing:           Routing{Partition: PartitionOwn, Zone: DefaultZone()},
	}, nil
}

// IsShared reports whether the list lives in the shared partition, i.e. it
// was joined through an invitation rather than created here.
func (l *List) IsShared() bool {
	return l.Routing.Partition == PartitionShared
}

// IsOwnedBy reports whether the given resolved identity created the list.
// Ownership checks fail closed: an unresolved caller identity or a list
// whose creator identity never synced down both deny.
func (l *List) IsOwnedBy(identity string) bool {
	if identity == "" || l.CreatedByIdentity == "" {
		return false
	}
	return l.CreatedByIdentity == identity
}

// EffectiveRouting returns the list's resolved (partition, zone).
func (l *List) EffectiveRouting() Routing {
	return ResolveRouting(l.Routing)
}
