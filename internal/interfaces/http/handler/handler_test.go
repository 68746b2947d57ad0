package handler_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/transfertrack/backend/internal/domain/shared"
	"github.com/transfertrack/backend/internal/domain/transfer"
	"github.com/transfertrack/backend/internal/infrastructure/auth"
	"github.com/transfertrack/backend/internal/infrastructure/cache"
	"github.com/transfertrack/backend/internal/infrastructure/config"
	"github.com/transfertrack/backend/internal/infrastructure/recordpersist"
	"github.com/transfertrack/backend/internal/infrastructure/remote"
	"github.com/transfertrack/backend/internal/interfaces/http/handler"
	"github.com/transfertrack/backend/internal/interfaces/http/router"
)

// The tests below drive the server through the same HTTP gateway client the
// sync manager uses, so they double as a wire compatibility check.

const (
	tokenDana  = "token-dana"
	tokenRiley = "token-riley"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	db, err := recordpersist.NewDatabaseFromConn(conn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	devices := recordpersist.NewDeviceRepository(db.DB)
	ctx := context.Background()
	require.NoError(t, devices.Register(ctx, tokenDana, "id-dana", "Dana"))
	require.NoError(t, devices.Register(ctx, tokenRiley, "id-riley", "Riley"))

	records := recordpersist.NewRecordRepository(db.DB)
	shares := recordpersist.NewShareRepository(db.DB)
	invites := auth.NewInviteTokenService(config.ServerConfig{
		InviteSecret:   "test-secret",
		InviteTokenTTL: time.Hour,
	})

	idempotency := cache.NewInMemoryIdempotencyStore()
	t.Cleanup(func() { _ = idempotency.Close() })

	log := zap.NewNop()
	engine := router.New(router.Config{
		Handler:        handler.New(records, shares, invites, log),
		Devices:        devices,
		Idempotency:    idempotency,
		IdempotencyTTL: time.Hour,
		Logger:         log,
	})

	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	return srv
}

func newGatewayClient(t *testing.T, srv *httptest.Server, token string) *remote.HTTPGateway {
	t.Helper()
	return remote.NewHTTPGateway(config.RemoteConfig{
		BaseURL:     srv.URL,
		DeviceToken: token,
		Timeout:     5 * time.Second,
	}, zap.NewNop())
}

func oneDecimal() decimal.Decimal {
	return decimal.NewFromInt(1)
}

func newBody(s string) io.Reader {
	return strings.NewReader(s)
}

func mustList(t *testing.T, title string) transfer.List {
	t.Helper()
	list, err := transfer.NewList(title, "Dana", "id-dana", []string{"Bar", "Cellar"})
	require.NoError(t, err)
	return list
}

func TestIdentity(t *testing.T) {
	srv := newTestServer(t)
	gw := newGatewayClient(t, srv, tokenDana)

	identity, err := gw.CurrentIdentity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "id-dana", identity)
}

func TestUnknownTokenRejected(t *testing.T) {
	srv := newTestServer(t)
	gw := newGatewayClient(t, srv, "bogus-token")

	_, err := gw.CurrentIdentity(context.Background())
	assert.ErrorIs(t, err, shared.ErrRemoteUnavailable)
}

func TestMissingTokenRejected(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/identity")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSaveAndFetchResolvesOwnerMarker(t *testing.T) {
	srv := newTestServer(t)
	gw := newGatewayClient(t, srv, tokenDana)
	ctx := context.Background()

	require.NoError(t, gw.EnsureZone(ctx, transfer.PartitionOwn, transfer.DefaultZone()))

	list := mustList(t, "Friday restock")
	saved, err := gw.Save(ctx, transfer.PartitionOwn, remote.NewListRecord(list))
	require.NoError(t, err)
	assert.Equal(t, "id-dana", saved.Zone.Owner)

	fetched, err := gw.Fetch(ctx, transfer.PartitionOwn, saved.ID())
	require.NoError(t, err)
	require.NotNil(t, fetched.List)
	assert.Equal(t, "Friday restock", fetched.List.Title)
	assert.Equal(t, []string{"Bar", "Cellar"}, fetched.List.EntityNames)
}

func TestFetchMissingRecord(t *testing.T) {
	srv := newTestServer(t)
	gw := newGatewayClient(t, srv, tokenDana)

	_, err := gw.Fetch(context.Background(), transfer.PartitionOwn, remote.RecordID{
		Name: "list-missing",
		Zone: transfer.DefaultZone(),
	})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestOwnPartitionRejectsForeignZone(t *testing.T) {
	srv := newTestServer(t)
	gw := newGatewayClient(t, srv, tokenDana)

	list := mustList(t, "Sneaky")
	rec := remote.NewListRecord(list)
	rec.Zone = transfer.ZoneID{Name: transfer.DefaultZoneName, Owner: "id-riley"}

	_, err := gw.Save(context.Background(), transfer.PartitionOwn, rec)
	assert.ErrorIs(t, err, shared.ErrRemoteUnavailable)
}

func TestQueryPagination(t *testing.T) {
	srv := newTestServer(t)
	gw := newGatewayClient(t, srv, tokenDana)
	ctx := context.Background()

	list := mustList(t, "Inventory")
	_, err := gw.Save(ctx, transfer.PartitionOwn, remote.NewListRecord(list))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		product, err := transfer.NewProduct(list, fmt.Sprintf("Keg %d", i),
			oneDecimal(), oneDecimal(), oneDecimal(), "", "Bar", "Cellar", "Dana")
		require.NoError(t, err)
		_, err = gw.Save(ctx, transfer.PartitionOwn, remote.NewProductRecord(product))
		require.NoError(t, err)
	}

	cursor := remote.PaginatedQuery(gw, transfer.PartitionOwn, transfer.DefaultZone(), remote.RecordTypeProduct, 2)
	var products []remote.Record
	pages := 0
	for {
		page, err := cursor.Next(ctx)
		require.NoError(t, err)
		if page == nil {
			break
		}
		pages++
		products = append(products, page...)
	}
	assert.Len(t, products, 5)
	assert.GreaterOrEqual(t, pages, 3)

	// The type filter keeps the list record out of product queries.
	for _, rec := range products {
		assert.Equal(t, remote.RecordTypeProduct, rec.Type)
	}
}

func TestDeleteRecordIsIdempotent(t *testing.T) {
	srv := newTestServer(t)
	gw := newGatewayClient(t, srv, tokenDana)
	ctx := context.Background()

	list := mustList(t, "Short lived")
	saved, err := gw.Save(ctx, transfer.PartitionOwn, remote.NewListRecord(list))
	require.NoError(t, err)

	require.NoError(t, gw.Delete(ctx, transfer.PartitionOwn, saved.ID()))
	_, err = gw.Fetch(ctx, transfer.PartitionOwn, saved.ID())
	assert.ErrorIs(t, err, shared.ErrNotFound)

	// Deleting again is a no-op.
	assert.NoError(t, gw.Delete(ctx, transfer.PartitionOwn, saved.ID()))
}

func TestShareLifecycle(t *testing.T) {
	srv := newTestServer(t)
	owner := newGatewayClient(t, srv, tokenDana)
	participant := newGatewayClient(t, srv, tokenRiley)
	ctx := context.Background()

	list := mustList(t, "Shared restock")
	root := remote.NewListRecord(list)
	savedRoot, err := owner.Save(ctx, transfer.PartitionOwn, root)
	require.NoError(t, err)

	share := remote.NewShareRecord(savedRoot, list.Title, "id-dana", "Dana")
	results, err := owner.SaveBatch(ctx, transfer.PartitionOwn, []remote.Record{savedRoot, share})
	require.NoError(t, err)
	require.Len(t, results, 2)

	var token string
	for _, rec := range results {
		if rec.Type == remote.RecordTypeShare {
			require.NotNil(t, rec.Share)
			token = rec.Share.Token
		}
	}
	require.NotEmpty(t, token, "share save must mint an invite token")

	// The root record now carries the share back-reference.
	refetched, err := owner.Fetch(ctx, transfer.PartitionOwn, savedRoot.ID())
	require.NoError(t, err)
	require.NotNil(t, refetched.List)
	assert.Equal(t, share.Name, refetched.List.ShareRef)

	meta, err := participant.ResolveInvite(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "Shared restock", meta.Title)
	assert.Equal(t, savedRoot.Name, meta.RootRecord.Name)
	assert.Equal(t, "id-dana", meta.RootRecord.Zone.Owner)

	rootID, err := participant.AcceptInvite(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, savedRoot.Name, rootID.Name)

	// Accepting grants shared-partition access to the owner's zone.
	viaShared, err := participant.Fetch(ctx, transfer.PartitionShared, rootID)
	require.NoError(t, err)
	require.NotNil(t, viaShared.List)
	assert.Equal(t, "Shared restock", viaShared.List.Title)

	// The stored share record reflects the roster.
	shareRec, err := participant.Fetch(ctx, transfer.PartitionShared, remote.RecordID{
		Name: share.Name,
		Zone: rootID.Zone,
	})
	require.NoError(t, err)
	require.NotNil(t, shareRec.Share)
	require.Len(t, shareRec.Share.Participants, 1)
	assert.Equal(t, "id-riley", shareRec.Share.Participants[0].Identity)
	assert.Equal(t, "Riley", shareRec.Share.Participants[0].DisplayName)

	// Re-accepting does not duplicate the participant.
	_, err = participant.AcceptInvite(ctx, token)
	require.NoError(t, err)
	shareRec, err = participant.Fetch(ctx, transfer.PartitionShared, shareRec.ID())
	require.NoError(t, err)
	assert.Len(t, shareRec.Share.Participants, 1)
}

func TestSharedPartitionRequiresParticipation(t *testing.T) {
	srv := newTestServer(t)
	owner := newGatewayClient(t, srv, tokenDana)
	stranger := newGatewayClient(t, srv, tokenRiley)
	ctx := context.Background()

	list := mustList(t, "Private")
	saved, err := owner.Save(ctx, transfer.PartitionOwn, remote.NewListRecord(list))
	require.NoError(t, err)

	_, err = stranger.Fetch(ctx, transfer.PartitionShared, saved.ID())
	assert.ErrorIs(t, err, shared.ErrRemoteUnavailable)
}

func TestResolveInvalidInviteToken(t *testing.T) {
	srv := newTestServer(t)
	gw := newGatewayClient(t, srv, tokenRiley)

	_, err := gw.ResolveInvite(context.Background(), "not-a-real-token")
	assert.ErrorIs(t, err, shared.ErrInvalidInviteToken)
}

func TestOwnerCannotAcceptOwnInvite(t *testing.T) {
	srv := newTestServer(t)
	owner := newGatewayClient(t, srv, tokenDana)
	ctx := context.Background()

	list := mustList(t, "Self share")
	saved, err := owner.Save(ctx, transfer.PartitionOwn, remote.NewListRecord(list))
	require.NoError(t, err)
	share := remote.NewShareRecord(saved, list.Title, "id-dana", "Dana")
	results, err := owner.SaveBatch(ctx, transfer.PartitionOwn, []remote.Record{saved, share})
	require.NoError(t, err)

	var token string
	for _, rec := range results {
		if rec.Type == remote.RecordTypeShare {
			token = rec.Share.Token
		}
	}
	require.NotEmpty(t, token)

	_, err = owner.AcceptInvite(ctx, token)
	assert.Error(t, err)
}

func TestIdempotencyKeyRejectsReplay(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	body := `{"name":"list-1","type":"TransferList","zone":{"name":"TransferTrackerZone","owner":"__current__"},"list":{"title":"Once"}}`
	send := func() int {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/own/records", newBody(body))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tokenDana)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", "key-123")
		resp, err := client.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusConflict, send())
}
