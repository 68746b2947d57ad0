package localstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transfertrack/backend/internal/domain/shared"
)

func TestMemoryStore_RoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, ProductsKey("l1"), []payload{{ID: "p1", Title: "Wine"}}))

	var out []payload
	require.NoError(t, store.Get(ctx, ProductsKey("l1"), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "p1", out[0].ID)

	var missing []payload
	assert.ErrorIs(t, store.Get(ctx, ProductsKey("other"), &missing), shared.ErrNotFound)
}

func TestMemoryStore_FailWrites(t *testing.T) {
	store := NewMemoryStore()
	store.FailWrites = true

	err := store.Put(context.Background(), ListsKey(), []payload{})
	assert.ErrorIs(t, err, shared.ErrLocalIO)
	assert.ErrorIs(t, store.Delete(context.Background(), ListsKey()), shared.ErrLocalIO)
}
