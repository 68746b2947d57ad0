// Package localstore provides the durable key-value cache backing the
// synchronization manager. It is pure persistence: no sync logic, no remote
// awareness. Values are JSON-encoded so decoders tolerate missing fields
// across schema revisions.
package localstore

import (
	"context"
	"fmt"
)

// Well-known keys. Lists live under a single entry; products and activity
// events are partitioned per list.
const listsKey = "lists"

// ListsKey returns the key holding the full list collection.
func ListsKey() string {
	return listsKey
}

// ProductsKey returns the key holding a list's products.
func ProductsKey(listID string) string {
	return fmt.Sprintf("products:%s", listID)
}

// EventsKey returns the key holding a list's activity events.
func EventsKey(listID string) string {
	return fmt.Sprintf("events:%s", listID)
}

// Store is durable namespaced key-value persistence. Implementations must
// serialize writes internally; callers invoke them from concurrent
// background tasks.
type Store interface {
	// Get decodes the entry at key into out. Returns shared.ErrNotFound
	// when no entry exists.
	Get(ctx context.Context, key string, out any) error
	// Put JSON-encodes in and writes it at key, replacing any previous entry.
	Put(ctx context.Context, key string, in any) error
	// Delete removes the entry at key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error
}
