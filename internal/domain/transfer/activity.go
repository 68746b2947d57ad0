package transfer

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Activity event types. The value doubles as the human-facing tag shown in
// the activity feed.
const (
	EventListCreated    = "list.created"
	EventListUpdated    = "list.updated"
	EventListShared     = "list.shared"
	EventListJoined     = "list.joined"
	EventProductAdded   = "product.added"
	EventProductUpdated = "product.updated"
	EventProductDeleted = "product.deleted"
)

// DefaultActivityCap is how many events are retained per list.
const DefaultActivityCap = 200

// ActivityEvent is one append-only entry in a list's activity feed.
type ActivityEvent struct {
	ID            string    `json:"id"`
	ListID        string    `json:"list_id"`
	ListTitle     string    `json:"list_title"`
	Type          string    `json:"type"`
	Summary       string    `json:"summary"`
	Actor         string    `json:"actor"`
	ActorIdentity string    `json:"actor_identity,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewActivityEvent creates an event snapshotting the list's current title.
func NewActivityEvent(list List, eventType, summary, actor, actorIdentity string) ActivityEvent {
	return ActivityEvent{
		ID:            uuid.NewString(),
		ListID:        list.ID,
		ListTitle:     list.Title,
		Type:          eventType,
		Summary:       summary,
		Actor:         actor,
		ActorIdentity: actorIdentity,
		CreatedAt:     time.Now(),
	}
}

// SortEventsNewestFirst orders events by creation time descending, in place.
func SortEventsNewestFirst(events []ActivityEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
}

// CapEvents truncates an already newest-first slice to the retention cap.
func CapEvents(events []ActivityEvent, cap int) []ActivityEvent {
	if cap <= 0 || len(events) <= cap {
		return events
	}
	return events[:cap]
}
