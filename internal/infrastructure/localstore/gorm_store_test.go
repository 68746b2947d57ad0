package localstore

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/transfertrack/backend/internal/domain/shared"
)

type payload struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	store, err := NewGormStore(filepath.Join(t.TempDir(), "cache.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestGormStore_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	in := []payload{{ID: "a", Title: "Q1 Transfers"}, {ID: "b", Title: "Q2 Transfers"}}
	require.NoError(t, store.Put(ctx, ListsKey(), in))

	var out []payload
	require.NoError(t, store.Get(ctx, ListsKey(), &out))
	assert.Equal(t, in, out)
}

func TestGormStore_GetMissingKey(t *testing.T) {
	store := newTestStore(t)

	var out []payload
	err := store.Get(context.Background(), ProductsKey("nope"), &out)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormStore_PutOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, ListsKey(), []payload{{ID: "a", Title: "old"}}))
	require.NoError(t, store.Put(ctx, ListsKey(), []payload{{ID: "a", Title: "new"}}))

	var out []payload
	require.NoError(t, store.Get(ctx, ListsKey(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "new", out[0].Title)
}

func TestGormStore_DecoderToleratesUnknownFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// An entry written by a newer schema revision with extra fields.
	require.NoError(t, store.Put(ctx, ListsKey(), []map[string]any{
		{"id": "a", "title": "Transfers", "color_theme": "indigo"},
	}))

	var out []payload
	require.NoError(t, store.Get(ctx, ListsKey(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "Transfers", out[0].Title)
}

func TestGormStore_DeleteIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, EventsKey("l1"), []payload{{ID: "e1"}}))
	require.NoError(t, store.Delete(ctx, EventsKey("l1")))
	require.NoError(t, store.Delete(ctx, EventsKey("l1")))

	var out []payload
	assert.ErrorIs(t, store.Get(ctx, EventsKey("l1"), &out), shared.ErrNotFound)
}

func newMockStore(t *testing.T) (*GormStore, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})
	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewGormStoreFromDB(gormDB), mock, mockDB
}

func TestGormStore_WriteFailureMapsToLocalIO(t *testing.T) {
	store, mock, mockDB := newMockStore(t)
	defer mockDB.Close()

	mock.ExpectExec(`INSERT INTO "kv_entries"`).
		WillReturnError(errors.New("disk I/O error"))

	err := store.Put(context.Background(), ListsKey(), []payload{{ID: "a"}})
	assert.ErrorIs(t, err, shared.ErrLocalIO)
}

func TestGormStore_ReadFailureMapsToLocalIO(t *testing.T) {
	store, mock, mockDB := newMockStore(t)
	defer mockDB.Close()

	mock.ExpectQuery(`SELECT \* FROM "kv_entries"`).
		WillReturnError(errors.New("database is locked"))

	var out []payload
	err := store.Get(context.Background(), ListsKey(), &out)
	assert.ErrorIs(t, err, shared.ErrLocalIO)
}
