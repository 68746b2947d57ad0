package remote

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transfertrack/backend/internal/domain/shared"
	"github.com/transfertrack/backend/internal/domain/transfer"
)

func TestMemoryGateway_SaveFetchRoundTrip(t *testing.T) {
	backend := NewMemoryBackend()
	gw := backend.Gateway("id-dana", "Dana")
	ctx := context.Background()

	list, err := transfer.NewList("Restock", "Dana", "id-dana", []string{"Bar", "Cellar"})
	require.NoError(t, err)

	saved, err := gw.Save(ctx, transfer.PartitionOwn, NewListRecord(list))
	require.NoError(t, err)
	// The current-user marker resolves to the concrete identity.
	assert.Equal(t, "id-dana", saved.Zone.Owner)

	fetched, err := gw.Fetch(ctx, transfer.PartitionOwn, saved.ID())
	require.NoError(t, err)
	require.NotNil(t, fetched.List)
	assert.Equal(t, "Restock", fetched.List.Title)

	_, err = gw.Fetch(ctx, transfer.PartitionOwn, RecordID{Name: "missing", Zone: saved.Zone})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestMemoryGateway_Unavailable(t *testing.T) {
	backend := NewMemoryBackend()
	backend.Unavailable = true
	gw := backend.Gateway("id-dana", "Dana")
	ctx := context.Background()

	_, err := gw.CurrentIdentity(ctx)
	assert.ErrorIs(t, err, shared.ErrRemoteUnavailable)
	err = gw.EnsureZone(ctx, transfer.PartitionOwn, transfer.DefaultZone())
	assert.ErrorIs(t, err, shared.ErrRemoteUnavailable)
}

func TestMemoryGateway_OwnPartitionRejectsForeignZone(t *testing.T) {
	backend := NewMemoryBackend()
	gw := backend.Gateway("id-dana", "Dana")

	foreign := transfer.ZoneID{Name: transfer.DefaultZoneName, Owner: "id-other"}
	err := gw.EnsureZone(context.Background(), transfer.PartitionOwn, foreign)
	assert.ErrorIs(t, err, shared.ErrRemoteUnavailable)
}

func TestMemoryGateway_QueryAllPaginates(t *testing.T) {
	backend := NewMemoryBackend()
	backend.PageSize = 2
	gw := backend.Gateway("id-dana", "Dana")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		list, err := transfer.NewList(fmt.Sprintf("List %d", i), "Dana", "id-dana", []string{"A", "B"})
		require.NoError(t, err)
		_, err = gw.Save(ctx, transfer.PartitionOwn, NewListRecord(list))
		require.NoError(t, err)
	}

	records, err := gw.Query(ctx, transfer.PartitionOwn, transfer.DefaultZone(), RecordTypeList)
	require.NoError(t, err)
	assert.Len(t, records, 5)
}

func TestMemoryGateway_ShareLifecycle(t *testing.T) {
	backend := NewMemoryBackend()
	owner := backend.Gateway("id-dana", "Dana")
	joiner := backend.Gateway("id-riley", "Riley")
	ctx := context.Background()

	list, err := transfer.NewList("Restock", "Dana", "id-dana", []string{"Bar", "Cellar"})
	require.NoError(t, err)
	root, err := owner.Save(ctx, transfer.PartitionOwn, NewListRecord(list))
	require.NoError(t, err)

	results, err := owner.SaveBatch(ctx, transfer.PartitionOwn, []Record{
		root,
		NewShareRecord(root, list.Title, "id-dana", "Dana"),
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	var token string
	for _, rec := range results {
		if rec.Type == RecordTypeShare {
			token = rec.Share.Token
		}
	}
	require.NotEmpty(t, token, "backend mints the invite token on save")

	// The root record now carries the share back-reference.
	refetched, err := owner.Fetch(ctx, transfer.PartitionOwn, root.ID())
	require.NoError(t, err)
	assert.Equal(t, "share-"+root.Name, refetched.List.ShareRef)

	meta, err := joiner.ResolveInvite(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, root.Name, meta.RootRecord.Name)

	rootID, err := joiner.AcceptInvite(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, root.ID(), rootID)

	// After accepting, the joiner reads the owner's zone via the shared
	// partition.
	fetched, err := joiner.Fetch(ctx, transfer.PartitionShared, rootID)
	require.NoError(t, err)
	assert.Equal(t, "Restock", fetched.List.Title)

	records, err := joiner.Query(ctx, transfer.PartitionShared, rootID.Zone, RecordTypeList)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestMemoryGateway_SharedQueryRequiresParticipation(t *testing.T) {
	backend := NewMemoryBackend()
	owner := backend.Gateway("id-dana", "Dana")
	stranger := backend.Gateway("id-riley", "Riley")
	ctx := context.Background()

	list, err := transfer.NewList("Restock", "Dana", "id-dana", []string{"Bar", "Cellar"})
	require.NoError(t, err)
	root, err := owner.Save(ctx, transfer.PartitionOwn, NewListRecord(list))
	require.NoError(t, err)

	_, err = stranger.Query(ctx, transfer.PartitionShared, root.Zone, RecordTypeList)
	assert.ErrorIs(t, err, shared.ErrRemoteUnavailable)
}

func TestMemoryGateway_ResolveInvite_UnknownToken(t *testing.T) {
	backend := NewMemoryBackend()
	gw := backend.Gateway("id-riley", "Riley")

	_, err := gw.ResolveInvite(context.Background(), "bogus")
	assert.ErrorIs(t, err, shared.ErrInvalidInviteToken)
	_, err = gw.AcceptInvite(context.Background(), "bogus")
	assert.ErrorIs(t, err, shared.ErrInvalidInviteToken)
}

func TestMemoryGateway_DropShareFromBatch(t *testing.T) {
	backend := NewMemoryBackend()
	backend.DropShareFromBatch = true
	gw := backend.Gateway("id-dana", "Dana")
	ctx := context.Background()

	list, err := transfer.NewList("Restock", "Dana", "id-dana", []string{"Bar", "Cellar"})
	require.NoError(t, err)
	root := NewListRecord(list)

	results, err := gw.SaveBatch(ctx, transfer.PartitionOwn, []Record{
		root,
		NewShareRecord(root, list.Title, "id-dana", "Dana"),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, RecordTypeList, results[0].Type)
}

func TestMemoryGateway_Delete(t *testing.T) {
	backend := NewMemoryBackend()
	gw := backend.Gateway("id-dana", "Dana")
	ctx := context.Background()

	list, err := transfer.NewList("Restock", "Dana", "id-dana", []string{"Bar", "Cellar"})
	require.NoError(t, err)
	saved, err := gw.Save(ctx, transfer.PartitionOwn, NewListRecord(list))
	require.NoError(t, err)

	require.NoError(t, gw.Delete(ctx, transfer.PartitionOwn, saved.ID()))
	_, err = gw.Fetch(ctx, transfer.PartitionOwn, saved.ID())
	assert.ErrorIs(t, err, shared.ErrNotFound)

	// Deleting again is a no-op.
	assert.NoError(t, gw.Delete(ctx, transfer.PartitionOwn, saved.ID()))
}
