// Package sync owns the authoritative in-memory list collection and keeps it
// reconciled between the local store and the remote record store. Writes are
// local-first: persist synchronously, push remotely in a detached background
// task. On read the remote wins; merged results re-enter through the same
// mutation path as foreground commands.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/transfertrack/backend/internal/domain/shared"
	"github.com/transfertrack/backend/internal/domain/transfer"
	"github.com/transfertrack/backend/internal/infrastructure/config"
	"github.com/transfertrack/backend/internal/infrastructure/localstore"
	"github.com/transfertrack/backend/internal/infrastructure/remote"
)

const defaultRefreshInterval = 30 * time.Second

// Manager coordinates local persistence, remote synchronization and state
// publication for transfer lists and their products. All state lives behind
// one mutex; background task results funnel through the same entry points as
// foreground commands, so a task completing after its trigger is gone merges
// safely.
type Manager struct {
	store   localstore.Store
	gateway remote.Gateway
	bus     shared.EventPublisher
	logger  *zap.Logger
	actor   string

	refreshInterval time.Duration

	mu          sync.Mutex
	lists       []transfer.List
	identity    string
	lastRefresh time.Time

	wg sync.WaitGroup
}

// NewManager creates a sync manager. actor is the local user's display name,
// stamped onto records this device creates.
func NewManager(store localstore.Store, gateway remote.Gateway, bus shared.EventPublisher, logger *zap.Logger, actor string, cfg config.SyncConfig) *Manager {
	interval := cfg.RefreshInterval
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	return &Manager{
		store:           store,
		gateway:         gateway,
		bus:             bus,
		logger:          logger.Named("sync"),
		actor:           actor,
		refreshInterval: interval,
	}
}

// Start loads the locally cached collection and kicks off zone setup and
// identity resolution in the background. It never blocks on the remote.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.reloadLocal(ctx); err != nil {
		return err
	}

	m.background("startup", func(ctx context.Context) {
		if err := m.gateway.EnsureZone(ctx, transfer.PartitionOwn, transfer.DefaultZone()); err != nil {
			m.logger.Warn("default zone setup failed", zap.Error(err))
		}
		identity, err := m.gateway.CurrentIdentity(ctx)
		if err != nil {
			// Ownership checks fail closed while the identity is unresolved.
			m.logger.Warn("identity resolution failed", zap.Error(err))
			return
		}
		m.mu.Lock()
		m.identity = identity
		m.mu.Unlock()
		m.logger.Info("identity resolved", zap.String("identity", identity))
		m.publish(ctx, transfer.NewIdentityChangedEvent(identity))
	})
	return nil
}

// CurrentIdentity returns the resolved caller identity, empty until the
// background resolution has completed.
func (m *Manager) CurrentIdentity() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

// Lists returns a snapshot of the current collection, newest first.
func (m *Manager) Lists() []transfer.List {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]transfer.List(nil), m.lists...)
}

// CreateList validates and appends a new list, persists synchronously and
// pushes the record in a detached background task. Push failures are logged,
// never surfaced and never auto-retried.
func (m *Manager) CreateList(ctx context.Context, title string, entityNames []string) (transfer.List, error) {
	m.mu.Lock()
	list, err := transfer.NewList(title, m.actor, m.identity, entityNames)
	if err != nil {
		m.mu.Unlock()
		return transfer.List{}, err
	}
	next := append([]transfer.List{list}, m.lists...)
	if err := m.store.Put(ctx, localstore.ListsKey(), next); err != nil {
		m.mu.Unlock()
		return transfer.List{}, err
	}
	m.lists = next
	m.mu.Unlock()

	m.publish(ctx, transfer.NewListCreatedEvent(list))
	m.pushList(list)
	return list, nil
}

// FetchLists synchronously reloads the collection from the local store, then
// refreshes from the remote in the background when the rate-limit window has
// elapsed. Use SyncNow to bypass the window.
func (m *Manager) FetchLists(ctx context.Context) ([]transfer.List, error) {
	if err := m.reloadLocal(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	due := time.Since(m.lastRefresh) >= m.refreshInterval
	if due {
		m.lastRefresh = time.Now()
	}
	snapshot := append([]transfer.List(nil), m.lists...)
	m.mu.Unlock()

	if due {
		m.background("refresh", func(ctx context.Context) {
			if err := m.refreshRemote(ctx); err != nil {
				m.logger.Warn("background refresh failed", zap.Error(err))
			}
		})
	}
	return snapshot, nil
}

// SyncNow forces a synchronous remote refresh regardless of the rate-limit
// window.
func (m *Manager) SyncNow(ctx context.Context) error {
	m.mu.Lock()
	m.lastRefresh = time.Now()
	m.mu.Unlock()
	return m.refreshRemote(ctx)
}

// UpdateList replaces a list in place, persists and pushes using the list's
// stored routing. Returns shared.ErrNotFound when the list is not in the
// collection.
func (m *Manager) UpdateList(ctx context.Context, list transfer.List) error {
	m.mu.Lock()
	idx := m.indexOfLocked(list.ID)
	if idx < 0 {
		m.mu.Unlock()
		return fmt.Errorf("list %q: %w", list.ID, shared.ErrNotFound)
	}
	// Routing assigned by a remote fetch must survive local edits, otherwise
	// the push would target the wrong zone.
	if list.Routing.Zone.IsZero() {
		list.Routing = m.lists[idx].Routing
	}

	next := append([]transfer.List(nil), m.lists...)
	next[idx] = list
	if err := m.store.Put(ctx, localstore.ListsKey(), next); err != nil {
		m.mu.Unlock()
		return err
	}
	m.lists = next
	m.mu.Unlock()

	m.publish(ctx, transfer.NewListUpdatedEvent(list))
	m.pushList(list)
	return nil
}

// DeleteList removes an owned list locally and remotely. Only the creator may
// delete; the check fails closed while the caller identity is unresolved.
// The remote delete is synchronous and its failure is surfaced, with the
// local removal already applied.
func (m *Manager) DeleteList(ctx context.Context, list transfer.List) error {
	m.mu.Lock()
	if !list.IsOwnedBy(m.identity) {
		m.mu.Unlock()
		return fmt.Errorf("list %q: %w", list.ID, shared.ErrNotOwner)
	}
	if err := m.removeLocked(ctx, list.ID); err != nil {
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()
	m.publish(ctx, transfer.NewListDeletedEvent(list.ID))

	routing := list.EffectiveRouting()
	id := remote.RecordID{Name: list.ID, Zone: routing.Zone}
	if err := m.gateway.Delete(ctx, routing.Partition, id); err != nil {
		m.logger.Error("remote delete failed", zap.String("list_id", list.ID), zap.Error(err))
		return err
	}
	return nil
}

// LeaveList removes a shared list from the local view without touching the
// owner's remote records.
func (m *Manager) LeaveList(ctx context.Context, list transfer.List) error {
	m.mu.Lock()
	err := m.removeLocked(ctx, list.ID)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.publish(ctx, transfer.NewListDeletedEvent(list.ID))
	return nil
}

// UpsertSharedList folds a shared-partition list into the collection,
// replacing any previous copy. The sharing coordinator calls this after an
// invite is accepted.
func (m *Manager) UpsertSharedList(ctx context.Context, list transfer.List) error {
	m.mu.Lock()
	next := append([]transfer.List(nil), m.lists...)
	if idx := m.indexOfLocked(list.ID); idx >= 0 {
		next[idx] = list
	} else {
		next = append([]transfer.List{list}, next...)
	}
	if err := m.store.Put(ctx, localstore.ListsKey(), next); err != nil {
		m.mu.Unlock()
		return err
	}
	m.lists = next
	m.mu.Unlock()

	m.publish(ctx, transfer.NewListUpdatedEvent(list))
	m.publish(ctx, transfer.NewListsRefreshedEvent(next))
	return nil
}

// FetchProducts returns the locally cached products for a list immediately
// and refreshes them from the list's zone in the background.
func (m *Manager) FetchProducts(ctx context.Context, list transfer.List) ([]transfer.Product, error) {
	var products []transfer.Product
	if err := m.store.Get(ctx, localstore.ProductsKey(list.ID), &products); err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	m.background("refresh-products", func(ctx context.Context) {
		if err := m.refreshProducts(ctx, list); err != nil {
			m.logger.Warn("background product refresh failed",
				zap.String("list_id", list.ID), zap.Error(err))
		}
	})
	return products, nil
}

// AddProduct appends a product to its list's local cache and pushes the
// record into the parent list's zone in the background.
func (m *Manager) AddProduct(ctx context.Context, product transfer.Product) error {
	if err := m.mutateProducts(ctx, product.ListID, func(products []transfer.Product) ([]transfer.Product, error) {
		return append(products, product), nil
	}); err != nil {
		return err
	}
	m.publish(ctx, transfer.NewProductChangedEvent(product))
	m.pushProduct(product)
	return nil
}

// UpdateProduct replaces a product in place. Returns shared.ErrNotFound when
// the product is not in the list's cache.
func (m *Manager) UpdateProduct(ctx context.Context, product transfer.Product) error {
	if err := m.mutateProducts(ctx, product.ListID, func(products []transfer.Product) ([]transfer.Product, error) {
		for i := range products {
			if products[i].ID == product.ID {
				products[i] = product
				return products, nil
			}
		}
		return nil, fmt.Errorf("product %q: %w", product.ID, shared.ErrNotFound)
	}); err != nil {
		return err
	}
	m.publish(ctx, transfer.NewProductChangedEvent(product))
	m.pushProduct(product)
	return nil
}

// DeleteProduct removes a product locally and deletes the remote record in
// the background.
func (m *Manager) DeleteProduct(ctx context.Context, product transfer.Product) error {
	if err := m.mutateProducts(ctx, product.ListID, func(products []transfer.Product) ([]transfer.Product, error) {
		next := products[:0]
		for _, p := range products {
			if p.ID != product.ID {
				next = append(next, p)
			}
		}
		return next, nil
	}); err != nil {
		return err
	}
	m.publish(ctx, transfer.NewProductChangedEvent(product))

	routing := transfer.ResolveRouting(product.Routing)
	id := remote.RecordID{Name: product.ID, Zone: routing.Zone}
	m.background("delete-product", func(ctx context.Context) {
		if err := m.gateway.Delete(ctx, routing.Partition, id); err != nil {
			m.logger.Warn("background product delete failed",
				zap.String("product_id", product.ID), zap.Error(err))
		}
	})
	return nil
}

// Wait blocks until all in-flight background tasks have drained.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// reloadLocal replaces the in-memory collection with the local store's copy.
func (m *Manager) reloadLocal(ctx context.Context) error {
	var lists []transfer.List
	if err := m.store.Get(ctx, localstore.ListsKey(), &lists); err != nil && !errors.Is(err, shared.ErrNotFound) {
		return err
	}
	sortListsNewestFirst(lists)

	m.mu.Lock()
	m.lists = lists
	snapshot := append([]transfer.List(nil), lists...)
	m.mu.Unlock()

	m.publish(ctx, transfer.NewListsRefreshedEvent(snapshot))
	return nil
}

// refreshRemote queries the own-partition default zone plus every known
// shared zone and merges the result. Remote records replace local copies by
// id; unknown remote records are appended; local-only lists are kept, they
// may simply not have pushed yet.
func (m *Manager) refreshRemote(ctx context.Context) error {
	ownRecords, err := m.gateway.Query(ctx, transfer.PartitionOwn, transfer.DefaultZone(), remote.RecordTypeList)
	if err != nil {
		return err
	}
	incoming := make([]transfer.List, 0, len(ownRecords))
	for _, rec := range ownRecords {
		incoming = append(incoming, rec.ToList(transfer.PartitionOwn))
	}

	for _, zone := range m.sharedZones() {
		records, err := m.gateway.Query(ctx, transfer.PartitionShared, zone, remote.RecordTypeList)
		if err != nil {
			// A revoked or unreachable shared zone must not abort the whole
			// refresh.
			m.logger.Warn("shared zone query failed",
				zap.String("zone", zone.Name), zap.String("owner", zone.Owner), zap.Error(err))
			continue
		}
		for _, rec := range records {
			incoming = append(incoming, rec.ToList(transfer.PartitionShared))
		}
	}

	m.mu.Lock()
	merged := append([]transfer.List(nil), m.lists...)
	for _, in := range incoming {
		replaced := false
		for i := range merged {
			if merged[i].ID == in.ID {
				merged[i] = in
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, in)
		}
	}
	sortListsNewestFirst(merged)

	if err := m.store.Put(ctx, localstore.ListsKey(), merged); err != nil {
		m.mu.Unlock()
		return err
	}
	m.lists = merged
	m.mu.Unlock()

	m.publish(ctx, transfer.NewListsRefreshedEvent(merged))
	return nil
}

// refreshProducts overwrites a list's local product cache with the remote
// zone's contents.
func (m *Manager) refreshProducts(ctx context.Context, list transfer.List) error {
	routing := list.EffectiveRouting()
	records, err := m.gateway.Query(ctx, routing.Partition, routing.Zone, remote.RecordTypeProduct)
	if err != nil {
		return err
	}

	products := make([]transfer.Product, 0, len(records))
	for _, rec := range records {
		product := rec.ToProduct(routing.Partition)
		if product.ListID == list.ID {
			products = append(products, product)
		}
	}
	sort.SliceStable(products, func(i, j int) bool {
		return products[i].CreatedAt.Before(products[j].CreatedAt)
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Put(ctx, localstore.ProductsKey(list.ID), products)
}

// sharedZones returns the distinct shared-partition zones of the current
// collection.
func (m *Manager) sharedZones() []transfer.ZoneID {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[transfer.ZoneID]bool)
	var zones []transfer.ZoneID
	for _, list := range m.lists {
		if !list.IsShared() {
			continue
		}
		zone := list.EffectiveRouting().Zone
		if !seen[zone] {
			seen[zone] = true
			zones = append(zones, zone)
		}
	}
	return zones
}

// mutateProducts applies fn to a list's product cache under the mutex and
// persists the result.
func (m *Manager) mutateProducts(ctx context.Context, listID string, fn func([]transfer.Product) ([]transfer.Product, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var products []transfer.Product
	if err := m.store.Get(ctx, localstore.ProductsKey(listID), &products); err != nil && !errors.Is(err, shared.ErrNotFound) {
		return err
	}
	next, err := fn(products)
	if err != nil {
		return err
	}
	return m.store.Put(ctx, localstore.ProductsKey(listID), next)
}

// removeLocked drops a list and its per-list caches. Caller holds the mutex.
func (m *Manager) removeLocked(ctx context.Context, listID string) error {
	next := make([]transfer.List, 0, len(m.lists))
	for _, l := range m.lists {
		if l.ID != listID {
			next = append(next, l)
		}
	}
	if err := m.store.Put(ctx, localstore.ListsKey(), next); err != nil {
		return err
	}
	m.lists = next

	if err := m.store.Delete(ctx, localstore.ProductsKey(listID)); err != nil {
		m.logger.Warn("product cache cleanup failed", zap.String("list_id", listID), zap.Error(err))
	}
	if err := m.store.Delete(ctx, localstore.EventsKey(listID)); err != nil {
		m.logger.Warn("event cache cleanup failed", zap.String("list_id", listID), zap.Error(err))
	}
	return nil
}

func (m *Manager) indexOfLocked(listID string) int {
	for i := range m.lists {
		if m.lists[i].ID == listID {
			return i
		}
	}
	return -1
}

// pushList saves a list record remotely in a detached task.
func (m *Manager) pushList(list transfer.List) {
	routing := list.EffectiveRouting()
	rec := remote.NewListRecord(list)
	m.background("push-list", func(ctx context.Context) {
		if _, err := m.gateway.Save(ctx, routing.Partition, rec); err != nil {
			m.logger.Warn("background list push failed",
				zap.String("list_id", list.ID), zap.Error(err))
		}
	})
}

// pushProduct saves a product record remotely in a detached task, routed
// with the parent list's routing.
func (m *Manager) pushProduct(product transfer.Product) {
	routing := transfer.ResolveRouting(product.Routing)
	rec := remote.NewProductRecord(product)
	m.background("push-product", func(ctx context.Context) {
		if _, err := m.gateway.Save(ctx, routing.Partition, rec); err != nil {
			m.logger.Warn("background product push failed",
				zap.String("product_id", product.ID), zap.Error(err))
		}
	})
}

// background runs fn on a tracked goroutine with a fresh context; detached
// tasks must outlive the request that triggered them.
func (m *Manager) background(name string, fn func(ctx context.Context)) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("background task panicked",
					zap.String("task", name), zap.Any("panic", r))
			}
		}()
		fn(context.Background())
	}()
}

func (m *Manager) publish(ctx context.Context, events ...shared.DomainEvent) {
	if m.bus == nil {
		return
	}
	if err := m.bus.Publish(ctx, events...); err != nil {
		m.logger.Warn("event publish failed", zap.Error(err))
	}
}

func sortListsNewestFirst(lists []transfer.List) {
	sort.SliceStable(lists, func(i, j int) bool {
		return lists[i].CreatedAt.After(lists[j].CreatedAt)
	})
}
