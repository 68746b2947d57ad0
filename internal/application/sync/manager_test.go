package sync

import (
	"context"
	stdsync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/transfertrack/backend/internal/domain/shared"
	"github.com/transfertrack/backend/internal/domain/transfer"
	"github.com/transfertrack/backend/internal/infrastructure/config"
	"github.com/transfertrack/backend/internal/infrastructure/localstore"
	"github.com/transfertrack/backend/internal/infrastructure/remote"
)

// countingGateway wraps a gateway and counts zone queries, so tests can
// observe whether a background refresh actually ran.
type countingGateway struct {
	remote.Gateway
	queryPages atomic.Int64
}

func (g *countingGateway) QueryPage(ctx context.Context, partition transfer.Partition, zone transfer.ZoneID, typ remote.RecordType, cursor string, limit int) (remote.Page, error) {
	g.queryPages.Add(1)
	return g.Gateway.QueryPage(ctx, partition, zone, typ, cursor, limit)
}

func newTestManager(t *testing.T, gateway remote.Gateway, interval time.Duration) (*Manager, *localstore.MemoryStore) {
	t.Helper()
	store := localstore.NewMemoryStore()
	mgr := NewManager(store, gateway, nil, zap.NewNop(), "Dana", config.SyncConfig{RefreshInterval: interval})
	return mgr, store
}

func startedManager(t *testing.T, gateway remote.Gateway) (*Manager, *localstore.MemoryStore) {
	t.Helper()
	mgr, store := newTestManager(t, gateway, time.Hour)
	require.NoError(t, mgr.Start(context.Background()))
	mgr.Wait()
	return mgr, store
}

func TestManager_CreateList_LocalFirstAndPushed(t *testing.T) {
	backend := remote.NewMemoryBackend()
	gw := backend.Gateway("id-dana", "Dana")
	mgr, store := startedManager(t, gw)
	ctx := context.Background()

	list, err := mgr.CreateList(ctx, "Friday restock", []string{"Bar", "Cellar"})
	require.NoError(t, err)
	assert.Equal(t, "id-dana", list.CreatedByIdentity)

	// Read-your-own-writes: visible before any remote round trip completes.
	lists := mgr.Lists()
	require.Len(t, lists, 1)
	assert.Equal(t, "Friday restock", lists[0].Title)

	var persisted []transfer.List
	require.NoError(t, store.Get(ctx, localstore.ListsKey(), &persisted))
	require.Len(t, persisted, 1)

	mgr.Wait()
	zone := transfer.ZoneID{Name: transfer.DefaultZoneName, Owner: "id-dana"}
	records, err := gw.Query(ctx, transfer.PartitionOwn, zone, remote.RecordTypeList)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, list.ID, records[0].Name)
}

func TestManager_CreateList_EmptyTitleRejected(t *testing.T) {
	backend := remote.NewMemoryBackend()
	mgr, _ := startedManager(t, backend.Gateway("id-dana", "Dana"))

	_, err := mgr.CreateList(context.Background(), "   ", nil)
	require.Error(t, err)
	assert.Empty(t, mgr.Lists())
}

func TestManager_CreateList_SucceedsWhileRemoteDown(t *testing.T) {
	backend := remote.NewMemoryBackend()
	backend.Unavailable = true
	gw := backend.Gateway("id-dana", "Dana")
	mgr, _ := startedManager(t, gw)
	ctx := context.Background()

	list, err := mgr.CreateList(ctx, "Offline list", nil)
	require.NoError(t, err, "remote outage must not block local creation")
	mgr.Wait()

	// Reconnect. The failed push is never auto-retried, so the remote zone
	// stays empty until the next explicit save.
	backend.Unavailable = false
	require.NoError(t, mgr.SyncNow(ctx))

	lists := mgr.Lists()
	require.Len(t, lists, 1)
	assert.Equal(t, list.ID, lists[0].ID)

	zone := transfer.ZoneID{Name: transfer.DefaultZoneName, Owner: "id-dana"}
	records, err := gw.Query(ctx, transfer.PartitionOwn, zone, remote.RecordTypeList)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestManager_CreateList_LocalWriteFailureSurfaced(t *testing.T) {
	backend := remote.NewMemoryBackend()
	gw := backend.Gateway("id-dana", "Dana")
	mgr, store := startedManager(t, gw)
	store.FailWrites = true

	_, err := mgr.CreateList(context.Background(), "Restock", nil)
	assert.ErrorIs(t, err, shared.ErrLocalIO)
	assert.Empty(t, mgr.Lists())
}

func TestManager_RemoteWinsOnMerge(t *testing.T) {
	backend := remote.NewMemoryBackend()
	gw := backend.Gateway("id-dana", "Dana")
	mgr, _ := startedManager(t, gw)
	ctx := context.Background()

	list, err := mgr.CreateList(ctx, "Local title", nil)
	require.NoError(t, err)
	mgr.Wait()

	// Another device renames the list remotely.
	rec, err := gw.Fetch(ctx, transfer.PartitionOwn, remote.RecordID{
		Name: list.ID,
		Zone: transfer.ZoneID{Name: transfer.DefaultZoneName, Owner: "id-dana"},
	})
	require.NoError(t, err)
	rec.List.Title = "Remote title"
	_, err = gw.Save(ctx, transfer.PartitionOwn, rec)
	require.NoError(t, err)

	require.NoError(t, mgr.SyncNow(ctx))

	lists := mgr.Lists()
	require.Len(t, lists, 1)
	assert.Equal(t, "Remote title", lists[0].Title)
}

func TestManager_LocalOnlyListsSurviveMerge(t *testing.T) {
	backend := remote.NewMemoryBackend()
	backend.Unavailable = true
	gw := backend.Gateway("id-dana", "Dana")
	mgr, _ := startedManager(t, gw)
	ctx := context.Background()

	// Created offline, so it never reached the remote.
	_, err := mgr.CreateList(ctx, "Unpushed", nil)
	require.NoError(t, err)
	mgr.Wait()

	backend.Unavailable = false
	require.NoError(t, mgr.SyncNow(ctx))
	require.Len(t, mgr.Lists(), 1, "merge must not drop lists the remote has never seen")
}

func TestManager_FetchLists_RateLimitsBackgroundRefresh(t *testing.T) {
	backend := remote.NewMemoryBackend()
	counting := &countingGateway{Gateway: backend.Gateway("id-dana", "Dana")}
	mgr, _ := newTestManager(t, counting, time.Hour)
	ctx := context.Background()
	require.NoError(t, mgr.Start(ctx))
	mgr.Wait()

	_, err := mgr.FetchLists(ctx)
	require.NoError(t, err)
	mgr.Wait()
	afterFirst := counting.queryPages.Load()
	assert.Positive(t, afterFirst, "first fetch should refresh remotely")

	// Within the window: local reload only.
	_, err = mgr.FetchLists(ctx)
	require.NoError(t, err)
	mgr.Wait()
	assert.Equal(t, afterFirst, counting.queryPages.Load())

	// SyncNow bypasses the window.
	require.NoError(t, mgr.SyncNow(ctx))
	assert.Greater(t, counting.queryPages.Load(), afterFirst)
}

func TestManager_UpdateList(t *testing.T) {
	backend := remote.NewMemoryBackend()
	gw := backend.Gateway("id-dana", "Dana")
	mgr, _ := startedManager(t, gw)
	ctx := context.Background()

	list, err := mgr.CreateList(ctx, "Old title", nil)
	require.NoError(t, err)

	list.Title = "New title"
	require.NoError(t, mgr.UpdateList(ctx, list))
	assert.Equal(t, "New title", mgr.Lists()[0].Title)

	mgr.Wait()
	rec, err := gw.Fetch(ctx, transfer.PartitionOwn, remote.RecordID{
		Name: list.ID,
		Zone: transfer.ZoneID{Name: transfer.DefaultZoneName, Owner: "id-dana"},
	})
	require.NoError(t, err)
	assert.Equal(t, "New title", rec.List.Title)
}

func TestManager_UpdateList_NotFound(t *testing.T) {
	backend := remote.NewMemoryBackend()
	mgr, _ := startedManager(t, backend.Gateway("id-dana", "Dana"))

	ghost := transfer.List{ID: "missing", Title: "Ghost"}
	assert.ErrorIs(t, mgr.UpdateList(context.Background(), ghost), shared.ErrNotFound)
}

func TestManager_DeleteList_OwnerOnly(t *testing.T) {
	backend := remote.NewMemoryBackend()
	gw := backend.Gateway("id-dana", "Dana")
	mgr, _ := startedManager(t, gw)
	ctx := context.Background()

	list, err := mgr.CreateList(ctx, "Mine", []string{"Bar", "Cellar"})
	require.NoError(t, err)
	mgr.Wait()

	require.NoError(t, mgr.DeleteList(ctx, list))
	assert.Empty(t, mgr.Lists())

	zone := transfer.ZoneID{Name: transfer.DefaultZoneName, Owner: "id-dana"}
	records, err := gw.Query(ctx, transfer.PartitionOwn, zone, remote.RecordTypeList)
	require.NoError(t, err)
	assert.Empty(t, records, "remote copy removed synchronously")
}

func TestManager_DeleteList_NotOwner(t *testing.T) {
	backend := remote.NewMemoryBackend()
	mgr, _ := startedManager(t, backend.Gateway("id-dana", "Dana"))
	ctx := context.Background()

	foreign := transfer.List{
		ID:                "list-1",
		Title:             "Someone else's",
		CreatedByIdentity: "id-riley",
	}
	require.NoError(t, mgr.UpsertSharedList(ctx, foreign))

	assert.ErrorIs(t, mgr.DeleteList(ctx, foreign), shared.ErrNotOwner)
	assert.Len(t, mgr.Lists(), 1)
}

func TestManager_DeleteList_FailsClosedWithoutIdentity(t *testing.T) {
	backend := remote.NewMemoryBackend()
	backend.Unavailable = true
	mgr, _ := startedManager(t, backend.Gateway("id-dana", "Dana"))
	ctx := context.Background()

	// Identity never resolved, so even the list's creator is denied.
	list, err := mgr.CreateList(ctx, "Mine", nil)
	require.NoError(t, err)
	list.CreatedByIdentity = "id-dana"
	require.NoError(t, mgr.UpdateList(ctx, list))
	mgr.Wait()

	assert.ErrorIs(t, mgr.DeleteList(ctx, list), shared.ErrNotOwner)
}

func TestManager_DeleteList_RemoteFailureSurfaced(t *testing.T) {
	backend := remote.NewMemoryBackend()
	gw := backend.Gateway("id-dana", "Dana")
	mgr, _ := startedManager(t, gw)
	ctx := context.Background()

	list, err := mgr.CreateList(ctx, "Mine", nil)
	require.NoError(t, err)
	mgr.Wait()

	backend.Unavailable = true
	err = mgr.DeleteList(ctx, list)
	assert.ErrorIs(t, err, shared.ErrRemoteUnavailable)
	// Local removal already applied.
	assert.Empty(t, mgr.Lists())
}

func TestManager_LeaveList(t *testing.T) {
	backend := remote.NewMemoryBackend()
	mgr, store := startedManager(t, backend.Gateway("id-riley", "Riley"))
	ctx := context.Background()

	joined := transfer.List{
		ID:                "list-1",
		Title:             "Shared restock",
		CreatedByIdentity: "id-dana",
		Routing: transfer.Routing{
			Partition: transfer.PartitionShared,
			Zone:      transfer.ZoneID{Name: transfer.DefaultZoneName, Owner: "id-dana"},
		},
	}
	require.NoError(t, mgr.UpsertSharedList(ctx, joined))
	require.NoError(t, mgr.LeaveList(ctx, joined))

	assert.Empty(t, mgr.Lists())
	var lists []transfer.List
	require.NoError(t, store.Get(ctx, localstore.ListsKey(), &lists))
	assert.Empty(t, lists)
}

func TestManager_UpsertSharedList_ReplacesExisting(t *testing.T) {
	backend := remote.NewMemoryBackend()
	mgr, _ := startedManager(t, backend.Gateway("id-riley", "Riley"))
	ctx := context.Background()

	list := transfer.List{ID: "list-1", Title: "First", Routing: transfer.Routing{Partition: transfer.PartitionShared, Zone: transfer.ZoneID{Name: transfer.DefaultZoneName, Owner: "id-dana"}}}
	require.NoError(t, mgr.UpsertSharedList(ctx, list))

	list.Title = "Second"
	require.NoError(t, mgr.UpsertSharedList(ctx, list))

	lists := mgr.Lists()
	require.Len(t, lists, 1)
	assert.Equal(t, "Second", lists[0].Title)
}

func TestManager_SharedZoneIncludedInRefresh(t *testing.T) {
	backend := remote.NewMemoryBackend()
	owner := backend.Gateway("id-dana", "Dana")
	ctx := context.Background()

	// Dana owns a shared list Riley participates in.
	danaList, err := transfer.NewList("Shared restock", "Dana", "id-dana", nil)
	require.NoError(t, err)
	root, err := owner.Save(ctx, transfer.PartitionOwn, remote.NewListRecord(danaList))
	require.NoError(t, err)
	shareRec := remote.NewShareRecord(root, danaList.Title, "id-dana", "Dana")
	saved, err := owner.Save(ctx, transfer.PartitionOwn, shareRec)
	require.NoError(t, err)

	riley := backend.Gateway("id-riley", "Riley")
	_, err = riley.AcceptInvite(ctx, saved.Share.Token)
	require.NoError(t, err)

	mgr, _ := startedManager(t, riley)
	joined := root.ToList(transfer.PartitionShared)
	require.NoError(t, mgr.UpsertSharedList(ctx, joined))

	// The owner renames; Riley's refresh picks it up through the shared zone.
	root.List.Title = "Renamed by Dana"
	_, err = owner.Save(ctx, transfer.PartitionOwn, root)
	require.NoError(t, err)

	require.NoError(t, mgr.SyncNow(ctx))
	lists := mgr.Lists()
	require.Len(t, lists, 1)
	assert.Equal(t, "Renamed by Dana", lists[0].Title)
	assert.Equal(t, transfer.PartitionShared, lists[0].Routing.Partition)
}

func TestManager_ProductLifecycle(t *testing.T) {
	backend := remote.NewMemoryBackend()
	gw := backend.Gateway("id-dana", "Dana")
	mgr, store := startedManager(t, gw)
	ctx := context.Background()

	list, err := mgr.CreateList(ctx, "Restock", []string{"Bar", "Cellar"})
	require.NoError(t, err)
	mgr.Wait()

	product, err := transfer.NewProduct(list, "Cabernet", decimal.NewFromInt(6), decimal.NewFromInt(2), decimal.RequireFromString("11.50"), "", "Cellar", "Bar", "Dana")
	require.NoError(t, err)
	require.NoError(t, mgr.AddProduct(ctx, product))
	mgr.Wait()

	// Pushed into the parent list's zone.
	zone := transfer.ZoneID{Name: transfer.DefaultZoneName, Owner: "id-dana"}
	records, err := gw.Query(ctx, transfer.PartitionOwn, zone, remote.RecordTypeProduct)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, list.ID, records[0].Product.ParentRef)

	product.Notes = "chilled"
	require.NoError(t, mgr.UpdateProduct(ctx, product))
	mgr.Wait()

	products, err := mgr.FetchProducts(ctx, list)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "chilled", products[0].Notes)
	mgr.Wait()

	require.NoError(t, mgr.DeleteProduct(ctx, product))
	mgr.Wait()

	records, err = gw.Query(ctx, transfer.PartitionOwn, zone, remote.RecordTypeProduct)
	require.NoError(t, err)
	assert.Empty(t, records)

	var cached []transfer.Product
	require.NoError(t, store.Get(ctx, localstore.ProductsKey(list.ID), &cached))
	assert.Empty(t, cached)
}

func TestManager_UpdateProduct_NotFound(t *testing.T) {
	backend := remote.NewMemoryBackend()
	mgr, _ := startedManager(t, backend.Gateway("id-dana", "Dana"))

	ghost := transfer.Product{ID: "missing", ListID: "list-1", Name: "Ghost"}
	assert.ErrorIs(t, mgr.UpdateProduct(context.Background(), ghost), shared.ErrNotFound)
}

func TestManager_FetchProducts_RefreshesFromRemote(t *testing.T) {
	backend := remote.NewMemoryBackend()
	gw := backend.Gateway("id-dana", "Dana")
	mgr, store := startedManager(t, gw)
	ctx := context.Background()

	list, err := mgr.CreateList(ctx, "Restock", nil)
	require.NoError(t, err)
	mgr.Wait()

	// Another device adds a product directly to the remote zone.
	product, err := transfer.NewProduct(list, "Rioja", decimal.NewFromInt(3), decimal.Zero, decimal.RequireFromString("9.00"), "", "Cellar", "Bar", "Sam")
	require.NoError(t, err)
	_, err = gw.Save(ctx, transfer.PartitionOwn, remote.NewProductRecord(product))
	require.NoError(t, err)

	_, err = mgr.FetchProducts(ctx, list)
	require.NoError(t, err)
	mgr.Wait()

	var cached []transfer.Product
	require.NoError(t, store.Get(ctx, localstore.ProductsKey(list.ID), &cached))
	require.Len(t, cached, 1)
	assert.Equal(t, "Rioja", cached[0].Name)
}

// capturingBus records the event types it receives, so tests can assert what
// the manager publishes without wiring the full in-memory bus.
type capturingBus struct {
	mu    stdsync.Mutex
	types []string
}

func (b *capturingBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, event := range events {
		b.types = append(b.types, event.EventType())
	}
	return nil
}

func (b *capturingBus) Types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.types...)
}

func (b *capturingBus) Count(eventType string) int {
	n := 0
	for _, typ := range b.Types() {
		if typ == eventType {
			n++
		}
	}
	return n
}

func TestManager_PublishesLifecycleEvents(t *testing.T) {
	backend := remote.NewMemoryBackend()
	bus := &capturingBus{}
	store := localstore.NewMemoryStore()
	mgr := NewManager(store, backend.Gateway("id-dana", "Dana"), bus, zap.NewNop(), "Dana", config.SyncConfig{RefreshInterval: time.Hour})
	ctx := context.Background()

	require.NoError(t, mgr.Start(ctx))
	mgr.Wait()
	assert.Equal(t, 1, bus.Count(transfer.EventTypeIdentityChanged))

	list, err := mgr.CreateList(ctx, "Friday restock", []string{"Bar", "Cellar"})
	require.NoError(t, err)
	assert.Equal(t, 1, bus.Count(transfer.EventTypeListCreated))

	list.Title = "Friday restock v2"
	require.NoError(t, mgr.UpdateList(ctx, list))
	assert.Equal(t, 1, bus.Count(transfer.EventTypeListUpdated))

	refreshedBefore := bus.Count(transfer.EventTypeListsRefreshed)
	require.NoError(t, mgr.SyncNow(ctx))
	assert.Equal(t, refreshedBefore+1, bus.Count(transfer.EventTypeListsRefreshed))

	mgr.Wait()
	require.NoError(t, mgr.DeleteList(ctx, list))
	assert.Equal(t, 1, bus.Count(transfer.EventTypeListDeleted))
}

func TestManager_PublishesProductEvents(t *testing.T) {
	backend := remote.NewMemoryBackend()
	bus := &capturingBus{}
	store := localstore.NewMemoryStore()
	mgr := NewManager(store, backend.Gateway("id-dana", "Dana"), bus, zap.NewNop(), "Dana", config.SyncConfig{RefreshInterval: time.Hour})
	ctx := context.Background()
	require.NoError(t, mgr.Start(ctx))
	mgr.Wait()

	list, err := mgr.CreateList(ctx, "Restock", nil)
	require.NoError(t, err)
	product, err := transfer.NewProduct(list, "Rioja", decimal.NewFromInt(3), decimal.Zero, decimal.RequireFromString("9.00"), "", "Cellar", "Bar", "Dana")
	require.NoError(t, err)

	require.NoError(t, mgr.AddProduct(ctx, product))
	require.NoError(t, mgr.UpdateProduct(ctx, product))
	require.NoError(t, mgr.DeleteProduct(ctx, product))
	assert.Equal(t, 3, bus.Count(transfer.EventTypeProductChanged))
	mgr.Wait()
}

// A subscriber reading manager state from inside a handler must not deadlock:
// events are published outside the mutex.
func TestManager_PublishOutsideMutex(t *testing.T) {
	backend := remote.NewMemoryBackend()
	store := localstore.NewMemoryStore()
	var mgr *Manager
	bus := publisherFunc(func(ctx context.Context, events ...shared.DomainEvent) error {
		mgr.Lists()
		return nil
	})
	mgr = NewManager(store, backend.Gateway("id-dana", "Dana"), bus, zap.NewNop(), "Dana", config.SyncConfig{RefreshInterval: time.Hour})
	ctx := context.Background()
	require.NoError(t, mgr.Start(ctx))

	_, err := mgr.CreateList(ctx, "Reentrant", nil)
	require.NoError(t, err)
	mgr.Wait()
}

type publisherFunc func(ctx context.Context, events ...shared.DomainEvent) error

func (f publisherFunc) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	return f(ctx, events...)
}
