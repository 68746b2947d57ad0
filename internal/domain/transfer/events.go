package transfer

import "github.com/transfertrack/backend/internal/domain/shared"

// Domain event types published by the sync manager. Observers (the UI layer)
// subscribe to these instead of polling manager state.
const (
	EventTypeListCreated     = "transfer.list.created"
	EventTypeListUpdated     = "transfer.list.updated"
	EventTypeListDeleted     = "transfer.list.deleted"
	EventTypeListsRefreshed  = "transfer.lists.refreshed"
	EventTypeProductChanged  = "transfer.product.changed"
	EventTypeIdentityChanged = "transfer.identity.changed"
)

const aggregateTypeList = "TransferList"

// ListCreatedEvent is published after a list is appended and persisted.
type ListCreatedEvent struct {
	shared.BaseDomainEvent
	List List `json:"list"`
}

// NewListCreatedEvent creates a ListCreatedEvent
func NewListCreatedEvent(list List) *ListCreatedEvent {
	return &ListCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeListCreated, aggregateTypeList, list.ID),
		List:            list,
	}
}

// ListUpdatedEvent is published after an in-place replacement.
type ListUpdatedEvent struct {
	shared.BaseDomainEvent
	List List `json:"list"`
}

// NewListUpdatedEvent creates a ListUpdatedEvent
func NewListUpdatedEvent(list List) *ListUpdatedEvent {
	return &ListUpdatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeListUpdated, aggregateTypeList, list.ID),
		List:            list,
	}
}

// ListDeletedEvent is published after a list is removed locally.
type ListDeletedEvent struct {
	shared.BaseDomainEvent
	ListID string `json:"deleted_list_id"`
}

// NewListDeletedEvent creates a ListDeletedEvent
func NewListDeletedEvent(listID string) *ListDeletedEvent {
	return &ListDeletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeListDeleted, aggregateTypeList, listID),
		ListID:          listID,
	}
}

// ListsRefreshedEvent is published after a local reload or a remote merge
// changes the published collection.
type ListsRefreshedEvent struct {
	shared.BaseDomainEvent
	Lists []List `json:"lists"`
}

// NewListsRefreshedEvent creates a ListsRefreshedEvent
func NewListsRefreshedEvent(lists []List) *ListsRefreshedEvent {
	return &ListsRefreshedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeListsRefreshed, aggregateTypeList, ""),
		Lists:           lists,
	}
}

// IdentityChangedEvent is published once the caller's remote identity has
// been resolved. Ownership checks fail closed until then.
type IdentityChangedEvent struct {
	shared.BaseDomainEvent
	Identity string `json:"identity"`
}

// NewIdentityChangedEvent creates an IdentityChangedEvent
func NewIdentityChangedEvent(identity string) *IdentityChangedEvent {
	return &IdentityChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeIdentityChanged, "Identity", identity),
		Identity:        identity,
	}
}

// ProductChangedEvent is published after any product mutation under a list.
type ProductChangedEvent struct {
	shared.BaseDomainEvent
	ListID  string  `json:"list_id"`
	Product Product `json:"product"`
}

// NewProductChangedEvent creates a ProductChangedEvent
func NewProductChangedEvent(product Product) *ProductChangedEvent {
	return &ProductChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeProductChanged, aggregateTypeList, product.ListID),
		ListID:          product.ListID,
		Product:         product,
	}
}
